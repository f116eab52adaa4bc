// internal/utils/logger/config.go
package logger

import "io"

type Config struct {
	LogFile     string // empty disables the JSON file sink
	MaxSize     int    // megabytes
	MaxAge      int    // days
	MaxBackups  int
	Compress    bool
	Level       string // debug, info, warn, error; overrides Development
	Development bool

	// Console receives human readable output. Defaults to stdout.
	Console io.Writer
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() *Config {
	return &Config{
		LogFile:    "dice-roll.log",
		MaxSize:    100,
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   true,
	}
}
