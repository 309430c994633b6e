package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/pkg/logger"
)

// tokenRow is the token_records table. Rows are inserted once and never updated.
type tokenRow struct {
	ID             uint               `gorm:"primaryKey"`
	Signature      string             `gorm:"uniqueIndex;not null"`
	Creator        string             `gorm:"not null"`
	DetectedAt     time.Time          `gorm:"index;not null"`
	BaseAddress    string             `gorm:"index;not null"`
	BaseDecimals   int                `gorm:"not null"`
	BaseLiquidity  float64            `gorm:"not null"`
	QuoteAddress   string             `gorm:"not null"`
	QuoteDecimals  int                `gorm:"not null"`
	QuoteLiquidity float64            `gorm:"not null"`
	RawLogLines    []string           `gorm:"serializer:json"`
	RiskReport     *models.RiskReport `gorm:"serializer:json"`
}

func (tokenRow) TableName() string {
	return "token_records"
}

func rowFromRecord(r *models.TokenRecord) *tokenRow {
	return &tokenRow{
		Signature:      r.Signature,
		Creator:        r.Creator,
		DetectedAt:     r.DetectedAt.UTC(),
		BaseAddress:    r.BaseAsset.Address,
		BaseDecimals:   r.BaseAsset.Decimals,
		BaseLiquidity:  r.BaseAsset.LiquidityAmount,
		QuoteAddress:   r.QuoteAsset.Address,
		QuoteDecimals:  r.QuoteAsset.Decimals,
		QuoteLiquidity: r.QuoteAsset.LiquidityAmount,
		RawLogLines:    r.RawLogLines,
		RiskReport:     r.RiskReport,
	}
}

func (row *tokenRow) record() models.TokenRecord {
	return models.TokenRecord{
		Signature:  row.Signature,
		Creator:    row.Creator,
		DetectedAt: row.DetectedAt.UTC(),
		BaseAsset: models.AssetInfo{
			Address:         row.BaseAddress,
			Decimals:        row.BaseDecimals,
			LiquidityAmount: row.BaseLiquidity,
		},
		QuoteAsset: models.AssetInfo{
			Address:         row.QuoteAddress,
			Decimals:        row.QuoteDecimals,
			LiquidityAmount: row.QuoteLiquidity,
		},
		RawLogLines: row.RawLogLines,
		RiskReport:  row.RiskReport,
	}
}

type PostgresDB struct {
	logger *logger.Logger
	now    func() time.Time

	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (*PostgresDB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)
	return NewPostgresDBFromDSN(dsn, logger)
}

func NewPostgresDBFromDSN(dsn string, logger *logger.Logger) (*PostgresDB, error) {
	// Only warnings and slow queries, never "record not found"
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.AutoMigrate(&tokenRow{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate token records: %w", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return &PostgresDB{Conn: db, logger: logger, now: time.Now}, nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

// Append inserts the record. The insert is its own transaction, so concurrent appends
// cannot overwrite each other.
func (db *PostgresDB) Append(ctx context.Context, record *models.TokenRecord) error {
	if record == nil {
		return fmt.Errorf("nil record")
	}
	if !record.Complete() {
		return fmt.Errorf("record %s is missing a pool side", record.Signature)
	}
	if err := db.Conn.WithContext(ctx).Create(rowFromRecord(record)).Error; err != nil {
		return fmt.Errorf("failed to insert token record: %w", err)
	}
	return nil
}

func (db *PostgresDB) Latest(ctx context.Context, limit int, maxAgeDays int) []models.TokenRecord {
	var rows []tokenRow
	err := db.Conn.WithContext(ctx).
		Where("detected_at >= ?", windowStart(db.now(), maxAgeDays)).
		Order("detected_at DESC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		db.logger.Warn("failed to query latest token records", "error", err)
		return nil
	}

	records := make([]models.TokenRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].record())
	}
	return records
}

func (db *PostgresDB) FindBySignature(ctx context.Context, signature string, maxAgeDays int) *models.TokenRecord {
	return db.first(ctx, "signature = ?", signature, maxAgeDays)
}

func (db *PostgresDB) FindByAssetAddress(ctx context.Context, address string, maxAgeDays int) *models.TokenRecord {
	return db.first(ctx, "base_address = ?", address, maxAgeDays)
}

func (db *PostgresDB) first(ctx context.Context, cond string, value string, maxAgeDays int) *models.TokenRecord {
	var row tokenRow
	err := db.Conn.WithContext(ctx).
		Where(cond, value).
		Where("detected_at >= ?", windowStart(db.now(), maxAgeDays)).
		Order("id ASC").
		First(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			db.logger.Warn("failed to look up token record", "condition", cond, "value", value, "error", err)
		}
		return nil
	}
	record := row.record()
	return &record
}
