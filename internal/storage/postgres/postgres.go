// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/dice-roll/internal/ledger"
	"github.com/rovshanmuradov/dice-roll/internal/storage"
	"github.com/rovshanmuradov/dice-roll/internal/storage/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// migrationLockID guards concurrent AutoMigrate runs against one database.
const migrationLockID = 7231

// gormLogger routes GORM output through zap.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

// Trace logs every statement at debug level and failed ones as errors.
// Record-not-found is expected on lookups and is not an error here.
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", time.Since(begin)),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}
	if l.logLevel >= logger.Info {
		l.zapLogger.Debug("trace", fields...)
	}
}

// gormStorage implements storage.Storage on any GORM dialect.
type gormStorage struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStorage connects to PostgreSQL.
func NewStorage(dsn string, zapLogger *zap.Logger) (storage.Storage, error) {
	s, err := open(postgres.Open(dsn), zapLogger)
	if err != nil {
		return nil, err
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return s, nil
}

// NewWithDialector opens storage over an arbitrary GORM dialector.
func NewWithDialector(dialector gorm.Dialector, zapLogger *zap.Logger) (storage.Storage, error) {
	return open(dialector, zapLogger)
}

func open(dialector gorm.Dialector, zapLogger *zap.Logger) (*gormStorage, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &gormStorage{db: db, logger: zapLogger.Named("storage")}, nil
}

// RunMigrations creates or updates the schema. On PostgreSQL an advisory
// lock keeps concurrent nodes from migrating at the same time.
func (s *gormStorage) RunMigrations() error {
	if s.db.Dialector.Name() == "postgres" {
		var lockObtained bool
		if err := s.db.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error; err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if !lockObtained {
			return errors.New("another migration is in progress")
		}
		defer s.db.Exec("SELECT pg_advisory_unlock(?)", migrationLockID)
	}

	if err := s.db.AutoMigrate(
		&models.Account{},
		&models.Transaction{},
		&models.Bet{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// LoadAccounts returns every committed account.
func (s *gormStorage) LoadAccounts(ctx context.Context) ([]ledger.Account, error) {
	var rows []models.Account
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	out := make([]ledger.Account, 0, len(rows))
	for _, row := range rows {
		addr, err := solana.PublicKeyFromBase58(row.Address)
		if err != nil {
			return nil, fmt.Errorf("account %d: bad address: %w", row.ID, err)
		}
		owner, err := solana.PublicKeyFromBase58(row.Owner)
		if err != nil {
			return nil, fmt.Errorf("account %s: bad owner: %w", row.Address, err)
		}
		out = append(out, ledger.Account{
			Address:  addr,
			Owner:    owner,
			Lamports: row.Lamports,
			Data:     row.Data,
		})
	}
	return out, nil
}

// SaveAccounts upserts accounts in a single database transaction.
func (s *gormStorage) SaveAccounts(ctx context.Context, accounts []ledger.Account) error {
	if len(accounts) == 0 {
		return nil
	}

	rows := make([]models.Account, 0, len(accounts))
	for _, acc := range accounts {
		rows = append(rows, models.Account{
			Address:  acc.Address.String(),
			Owner:    acc.Owner.String(),
			Lamports: acc.Lamports,
			Data:     acc.Data,
		})
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{"owner", "lamports", "data", "updated_at"}),
		}).Create(&rows).Error
	})
}

func (s *gormStorage) SaveTransaction(ctx context.Context, tx *models.Transaction) error {
	return s.db.WithContext(ctx).Create(tx).Error
}

func (s *gormStorage) GetTransaction(ctx context.Context, signature string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := s.db.WithContext(ctx).Where("signature = ?", signature).First(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *gormStorage) SaveBet(ctx context.Context, bet *models.Bet) error {
	return s.db.WithContext(ctx).Create(bet).Error
}

// ListBets returns the bettor's bets, newest first. An empty bettor lists
// every bet; a negative limit lists without a limit.
func (s *gormStorage) ListBets(ctx context.Context, bettor string, limit, offset int) ([]*models.Bet, error) {
	var bets []*models.Bet
	q := s.db.WithContext(ctx)
	if bettor != "" {
		q = q.Where("bettor = ?", bettor)
	}
	err := q.
		Order("settled_at desc").
		Order("id desc").
		Limit(limit).
		Offset(offset).
		Find(&bets).Error
	return bets, err
}

func (s *gormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
