// ====================================
// File: cmd/diceroll/main.go
// ====================================
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rovshanmuradov/dice-roll/internal/config"
	"github.com/rovshanmuradov/dice-roll/internal/node"
	"github.com/rovshanmuradov/dice-roll/internal/scenario"
	"github.com/rovshanmuradov/dice-roll/internal/utils/logger"
	"github.com/rovshanmuradov/dice-roll/internal/wallet"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	keygen := flag.String("keygen", "", "comma separated wallet names to generate into wallets_file, then exit")
	hold := flag.Bool("hold", false, "keep serving metrics after the scenario until interrupted")
	exportDir := flag.String("export", "", "directory to export journaled bets into after the scenario (needs database_dsn)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := runOptions{
		configPath: *configPath,
		keygen:     *keygen,
		hold:       *hold,
		exportDir:  *exportDir,
	}
	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "dice-roll: %v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	configPath string
	keygen     string
	hold       bool
	exportDir  string
}

func run(ctx context.Context, opts runOptions) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	if opts.keygen != "" {
		return generateWallets(log, cfg.WalletsFile, opts.keygen)
	}
	if opts.exportDir != "" && cfg.DatabaseDSN == "" {
		return errors.New("-export needs database_dsn to be set")
	}

	wallets, err := wallet.LoadWallets(cfg.WalletsFile)
	if err != nil {
		return err
	}
	sc, err := scenario.NewLoader(log.Logger).Load(cfg.ScenarioFile)
	if err != nil {
		return err
	}

	n, err := node.New(ctx, cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to start node: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := n.Close(shutdownCtx); err != nil {
			log.Error("Node shutdown failed", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if srv := n.MetricsServer(); srv != nil {
		g.Go(func() error {
			log.Info("Metrics server listening", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		end := log.TrackPerformance("scenario")
		defer end()

		report, err := n.Runner(wallets).Run(gctx, sc)
		if report != nil {
			fmt.Fprint(os.Stdout, report.Render())
		}
		if err != nil {
			return err
		}
		if opts.exportDir != "" {
			paths, err := n.ExportBets(gctx, opts.exportDir, time.Now())
			if err != nil {
				return fmt.Errorf("failed to export bets: %w", err)
			}
			for _, p := range paths {
				fmt.Fprintln(os.Stdout, "exported", p)
			}
		}
		if opts.hold {
			log.Info("Scenario finished, holding for metrics scrapes")
			<-gctx.Done()
			return nil
		}
		return errScenarioDone
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errScenarioDone) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// errScenarioDone stops the remaining services once the scenario finishes.
var errScenarioDone = errors.New("scenario finished")

func generateWallets(log *logger.Logger, path, names string) error {
	wallets := make(map[string]*wallet.Wallet)
	if _, err := os.Stat(path); err == nil {
		existing, err := wallet.LoadWallets(path)
		if err != nil {
			return err
		}
		wallets = existing
	}

	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, exists := wallets[name]; exists {
			return fmt.Errorf("wallet %q already exists in %s", name, path)
		}
		w, err := wallet.NewRandomWallet(name)
		if err != nil {
			return err
		}
		wallets[name] = w
		log.WithWallet(name, w.PublicKey).Info("Wallet generated")
	}
	return wallet.SaveWallets(path, wallets)
}
