package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quadlend/native/lending"
)

var (
	// ErrPathRequired is returned when the backing store DSN is missing.
	ErrPathRequired = errors.New("oracle: storage dsn must be configured")
	// ErrNoPrice is returned when a feed has never been recorded.
	ErrNoPrice = errors.New("oracle: no price recorded")
)

const defaultFilePragmas = "mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// PriceRecord is a single accepted observation for a feed.
type PriceRecord struct {
	ID         uint      `gorm:"primaryKey"`
	Feed       string    `gorm:"size:64;index:idx_feed_observed,priority:1"`
	Value      string    `gorm:"size:96;not null"`
	Decimals   uint8     `gorm:"not null"`
	Feeders    string    `gorm:"size:512"`
	ProofID    string    `gorm:"size:64"`
	ObservedAt time.Time `gorm:"index:idx_feed_observed,priority:2"`
	CreatedAt  time.Time
}

// Store persists feed observations and serves the latest value per feed.
type Store struct {
	db *gorm.DB

	mu     sync.RWMutex
	latest map[string]lending.Price
}

// FileDSN converts a filesystem path into an on-disk SQLite DSN.
func FileDSN(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", ErrPathRequired
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve storage path: %w", err)
	}
	return fmt.Sprintf("file:%s?%s", abs, defaultFilePragmas), nil
}

// Open connects to postgres when dsn is a postgres URL and to SQLite
// otherwise, then migrates the schema.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		dialector = postgres.Open(trimmed)
	default:
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an existing connection.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("oracle: database required")
	}
	if err := db.AutoMigrate(&PriceRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, latest: make(map[string]lending.Price)}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func normalizeFeed(feed string) string {
	return strings.ToUpper(strings.TrimSpace(feed))
}

// Record stores an observation and makes it the feed's current price when it
// is newer than what is cached.
func (s *Store) Record(ctx context.Context, feed string, value *big.Int, decimals uint8, feeders []string, proofID string, observed time.Time) error {
	if s == nil {
		return fmt.Errorf("oracle: storage not configured")
	}
	feed = normalizeFeed(feed)
	if feed == "" {
		return fmt.Errorf("oracle: feed required")
	}
	if value == nil || value.Sign() <= 0 {
		return fmt.Errorf("oracle: price must be positive")
	}
	rec := PriceRecord{
		Feed:       feed,
		Value:      value.String(),
		Decimals:   decimals,
		Feeders:    strings.Join(feeders, ","),
		ProofID:    proofID,
		ObservedAt: observed.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert price: %w", err)
	}
	price := lending.Price{Value: new(big.Int).Set(value), Decimals: decimals, UpdatedAt: unixSeconds(observed)}
	s.mu.Lock()
	if current, ok := s.latest[feed]; !ok || current.UpdatedAt <= price.UpdatedAt {
		s.latest[feed] = price
	}
	s.mu.Unlock()
	return nil
}

// Latest returns the newest observation for the feed.
func (s *Store) Latest(ctx context.Context, feed string) (PriceRecord, error) {
	var rec PriceRecord
	err := s.db.WithContext(ctx).
		Where("feed = ?", normalizeFeed(feed)).
		Order("observed_at DESC").Order("id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return rec, ErrNoPrice
	}
	if err != nil {
		return rec, fmt.Errorf("query price: %w", err)
	}
	return rec, nil
}

// History lists up to limit observations for the feed, newest first.
func (s *Store) History(ctx context.Context, feed string, limit int) ([]PriceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []PriceRecord
	err := s.db.WithContext(ctx).
		Where("feed = ?", normalizeFeed(feed)).
		Order("observed_at DESC").Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return out, nil
}

// Price implements lending.PriceOracle. Staleness is judged by the caller.
func (s *Store) Price(feed string) (lending.Price, error) {
	if s == nil {
		return lending.Price{}, fmt.Errorf("oracle: storage not configured")
	}
	key := normalizeFeed(feed)
	s.mu.RLock()
	cached, ok := s.latest[key]
	s.mu.RUnlock()
	if ok {
		return lending.Price{Value: new(big.Int).Set(cached.Value), Decimals: cached.Decimals, UpdatedAt: cached.UpdatedAt}, nil
	}
	rec, err := s.Latest(context.Background(), key)
	if err != nil {
		return lending.Price{}, err
	}
	value, ok := new(big.Int).SetString(rec.Value, 10)
	if !ok {
		return lending.Price{}, fmt.Errorf("oracle: corrupt price %q for %s", rec.Value, key)
	}
	price := lending.Price{Value: value, Decimals: rec.Decimals, UpdatedAt: unixSeconds(rec.ObservedAt)}
	s.mu.Lock()
	s.latest[key] = price
	s.mu.Unlock()
	return lending.Price{Value: new(big.Int).Set(value), Decimals: price.Decimals, UpdatedAt: price.UpdatedAt}, nil
}

func unixSeconds(ts time.Time) uint64 {
	if ts.Unix() < 0 {
		return 0
	}
	return uint64(ts.Unix())
}
