// internal/node/node.go
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/dice-roll/internal/blockchain/solbc"
	"github.com/rovshanmuradov/dice-roll/internal/cache"
	"github.com/rovshanmuradov/dice-roll/internal/config"
	"github.com/rovshanmuradov/dice-roll/internal/events"
	"github.com/rovshanmuradov/dice-roll/internal/export"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
	"github.com/rovshanmuradov/dice-roll/internal/program"
	"github.com/rovshanmuradov/dice-roll/internal/publisher"
	"github.com/rovshanmuradov/dice-roll/internal/runtime"
	"github.com/rovshanmuradov/dice-roll/internal/scenario"
	"github.com/rovshanmuradov/dice-roll/internal/storage"
	"github.com/rovshanmuradov/dice-roll/internal/storage/postgres"
	"github.com/rovshanmuradov/dice-roll/internal/utils/metrics"
	"github.com/rovshanmuradov/dice-roll/internal/wallet"
	"go.uber.org/zap"
)

// ErrClosed is reported by the health check once the node is shutting down.
var ErrClosed = errors.New("node is closed")

// AccountFetcher reads accounts from a cluster.
type AccountFetcher interface {
	FetchAccount(ctx context.Context, pubkey solana.PublicKey) (*solbc.AccountSnapshot, error)
}

// Node wires the ledger, the program and its observers together.
type Node struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     storage.Storage
	fetcher   AccountFetcher
	bank      *ledger.Bank
	bus       *events.Bus
	collector *metrics.Collector
	journal   *storage.Journal
	statsHash cache.Hash
	stats     *cache.BettorStats
	writer    publisher.MessageWriter
	program   *program.Program
	runtime   *runtime.Runtime
	shutdown  *ShutdownHandler
	closed    atomic.Bool

	oracle      solana.PublicKey
	oracleOwner solana.PublicKey
}

// Option configures a Node.
type Option func(*Node)

// WithStorage uses store instead of opening database_dsn.
func WithStorage(store storage.Storage) Option {
	return func(n *Node) {
		n.store = store
	}
}

// WithAccountFetcher uses f instead of an RPC client for rpc_url.
func WithAccountFetcher(f AccountFetcher) Option {
	return func(n *Node) {
		n.fetcher = f
	}
}

// WithStatsCache keeps bettor totals in h instead of connecting to
// redis_addr.
func WithStatsCache(h cache.Hash) Option {
	return func(n *Node) {
		n.statsHash = h
	}
}

// WithMessageWriter publishes pool events through w instead of writing to
// kafka_brokers.
func WithMessageWriter(w publisher.MessageWriter) Option {
	return func(n *Node) {
		n.writer = w
	}
}

// New builds a node from cfg. When oracle_feed is set the price account is
// mirrored from the cluster before New returns.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*Node, error) {
	n := &Node{
		cfg:      cfg,
		logger:   logger.Named("node"),
		shutdown: NewShutdownHandler(logger),
	}
	for _, opt := range opts {
		opt(n)
	}

	if err := n.build(ctx); err != nil {
		if cerr := n.shutdown.Shutdown(context.Background()); cerr != nil {
			n.logger.Warn("Cleanup after failed start", zap.Error(cerr))
		}
		return nil, err
	}
	return n, nil
}

func (n *Node) build(ctx context.Context) error {
	programID := program.DefaultProgramID
	if id, ok := n.cfg.ProgramKey(); ok {
		programID = id
	}
	var progOpts []program.Option
	if owner, ok := n.cfg.OracleOwnerKey(); ok {
		n.oracleOwner = owner
		progOpts = append(progOpts, program.WithOracleOwner(owner))
	}
	prog, err := program.New(programID, n.logger, progOpts...)
	if err != nil {
		return fmt.Errorf("failed to create program: %w", err)
	}
	n.program = prog

	if n.store == nil && n.cfg.DatabaseDSN != "" {
		store, err := postgres.NewStorage(n.cfg.DatabaseDSN, n.logger)
		if err != nil {
			return err
		}
		n.store = store
	}

	var accounts ledger.Store
	if n.store != nil {
		n.shutdown.AddFunc("storage", n.store.Close)
		if err := n.store.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		accounts = n.store
	}

	n.bank = ledger.NewBank(n.logger, accounts)
	if err := n.bank.Load(ctx); err != nil {
		return err
	}

	n.bus = events.NewBus(n.logger, n.cfg.EventBuffer)
	n.collector = metrics.NewCollector()
	n.collector.Attach(n.bus)
	if n.store != nil {
		n.journal = storage.NewJournal(n.store, n.logger)
		n.journal.Attach(n.bus)
	}
	if err := n.attachSinks(ctx); err != nil {
		// The bus is not registered yet, so stop its worker here. Sinks
		// attached so far are closed by the caller's cleanup afterwards.
		if serr := n.bus.Shutdown(ctx); serr != nil {
			n.logger.Warn("Failed to stop event bus", zap.Error(serr))
		}
		return err
	}
	n.shutdown.AddContextFunc("event-bus", n.bus.Shutdown)

	rt, err := runtime.New(n.bank, n.logger, []runtime.Processor{prog}, runtime.WithEventBus(n.bus))
	if err != nil {
		return fmt.Errorf("failed to start runtime: %w", err)
	}
	n.runtime = rt

	feed, ok := n.cfg.OracleFeedKey()
	if !ok {
		return nil
	}
	if n.fetcher == nil {
		n.fetcher = solbc.NewClient(n.cfg.RPCURL, n.cfg.OracleRetries, n.logger)
	}
	return n.MirrorAccount(ctx, feed)
}

// attachSinks subscribes the redis stats cache and the kafka publisher. They
// are registered for shutdown before the bus so they outlive its drain.
func (n *Node) attachSinks(ctx context.Context) error {
	if n.statsHash == nil && n.cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, n.cfg.RedisAddr)
		if err != nil {
			return err
		}
		n.shutdown.AddFunc("redis", rdb.Close)
		n.statsHash = rdb
	}
	if n.statsHash != nil {
		n.stats = cache.NewBettorStats(n.statsHash, n.logger)
		n.stats.Attach(n.bus)
	}

	if brokers := n.cfg.KafkaBrokerList(); n.writer == nil && len(brokers) > 0 {
		n.writer = publisher.NewWriter(brokers, n.cfg.KafkaTopic)
	}
	if n.writer != nil {
		pub := publisher.NewKafkaPublisher(n.writer, n.logger)
		pub.Attach(n.bus)
		n.shutdown.AddFunc("kafka-publisher", pub.Close)
	}
	return nil
}

// BettorStats returns the running totals of bettor in currency, where
// currency is a mint or "SOL".
func (n *Node) BettorStats(ctx context.Context, bettor, currency string) (cache.Stats, error) {
	if n.stats == nil {
		return cache.Stats{}, errors.New("no stats cache configured")
	}
	who, err := solana.PublicKeyFromBase58(bettor)
	if err != nil {
		return cache.Stats{}, fmt.Errorf("invalid bettor: %w", err)
	}
	mint := program.WrappedSolMint
	if currency != "SOL" {
		if mint, err = solana.PublicKeyFromBase58(currency); err != nil {
			return cache.Stats{}, fmt.Errorf("invalid currency: %w", err)
		}
	}
	return n.stats.Get(ctx, who, mint)
}

// MirrorAccount copies an account from the cluster into the local ledger
// and makes it the oracle used by scenarios.
func (n *Node) MirrorAccount(ctx context.Context, addr solana.PublicKey) error {
	if n.fetcher == nil {
		return errors.New("no account fetcher configured")
	}
	snap, err := n.fetcher.FetchAccount(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to mirror %s: %w", addr, err)
	}

	if err := n.runtime.Setup(ctx, nil, func(tx *ledger.Tx) error {
		tx.PutAccount(ledger.Account{Address: snap.Address, Owner: snap.Owner, Data: snap.Data})
		return nil
	}); err != nil {
		return err
	}

	n.oracle = snap.Address
	if n.oracleOwner.IsZero() {
		n.oracleOwner = snap.Owner
	}
	n.logger.Info("Oracle account mirrored",
		zap.String("address", snap.Address.String()),
		zap.String("owner", snap.Owner.String()),
		zap.Uint64("slot", snap.Slot),
		zap.Int("data_len", len(snap.Data)))
	return nil
}

// Runner returns a scenario runner bound to this node.
func (n *Node) Runner(wallets map[string]*wallet.Wallet) *scenario.Runner {
	opts := []scenario.Option{scenario.WithCollector(n.collector)}
	switch {
	case !n.oracle.IsZero():
		opts = append(opts, scenario.WithOracle(n.oracle, n.oracleOwner))
	case !n.oracleOwner.IsZero():
		opts = append(opts, scenario.WithOracle(solana.NewWallet().PublicKey(), n.oracleOwner))
	}
	return scenario.NewRunner(n.runtime, n.program, wallets, n.logger, opts...)
}

// MetricsServer returns the metrics and health endpoint, or nil when
// metrics_addr is empty.
func (n *Node) MetricsServer() *http.Server {
	if n.cfg.MetricsAddr == "" {
		return nil
	}
	var opts []metrics.ServerOption
	if n.stats != nil {
		opts = append(opts, metrics.WithStats(func(ctx context.Context, bettor, currency string) (any, error) {
			return n.BettorStats(ctx, bettor, currency)
		}))
	}
	return metrics.NewServer(n.cfg.MetricsAddr, n.collector, n.Health, opts...)
}

// Health reports ErrClosed once Close has started.
func (n *Node) Health(context.Context) error {
	if n.closed.Load() {
		return ErrClosed
	}
	return nil
}

// ErrNoStorage is returned by operations that need the journal when the
// node runs without a database.
var ErrNoStorage = errors.New("node has no storage configured")

// ExportBets writes every journaled bet to dir as CSV and JSON, plus a daily
// report for day. It returns the written paths.
func (n *Node) ExportBets(ctx context.Context, dir string, day time.Time) ([]string, error) {
	if n.store == nil {
		return nil, ErrNoStorage
	}
	if err := n.bus.Flush(ctx); err != nil {
		return nil, fmt.Errorf("failed to flush events: %w", err)
	}
	bets, err := n.store.ListBets(ctx, "", -1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}
	if len(bets) == 0 {
		n.logger.Info("No bets to export")
		return nil, nil
	}

	exporter := export.NewBetExporter(n.logger)
	var paths []string
	for _, format := range []export.ExportFormat{export.FormatCSV, export.FormatJSON} {
		path, err := exporter.ExportBets(bets, export.ExportOptions{Format: format, OutputDir: dir})
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	path, err := exporter.ExportDailyReport(bets, day, dir)
	if err != nil || path == "" {
		return paths, err
	}
	return append(paths, path), nil
}

// Runtime returns the transaction runtime.
func (n *Node) Runtime() *runtime.Runtime { return n.runtime }

// Program returns the settlement program.
func (n *Node) Program() *program.Program { return n.program }

// Bus returns the event bus.
func (n *Node) Bus() *events.Bus { return n.bus }

// Collector returns the metrics collector.
func (n *Node) Collector() *metrics.Collector { return n.collector }

// Storage returns the configured storage, nil when running in memory.
func (n *Node) Storage() storage.Storage { return n.store }

// Oracle returns the mirrored oracle account, if any.
func (n *Node) Oracle() (solana.PublicKey, bool) { return n.oracle, !n.oracle.IsZero() }

// Close drains the event bus, then closes storage.
func (n *Node) Close(ctx context.Context) error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := n.shutdown.Shutdown(ctx)
	n.collector.Detach()
	if n.journal != nil {
		n.journal.Detach()
	}
	if n.stats != nil {
		n.stats.Detach()
	}
	return err
}
