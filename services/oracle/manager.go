package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"quadlend/observability/metrics"
)

// Decimals is the fixed-point precision prices are recorded with.
const Decimals = 18

var wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Quote is a single source observation.
type Quote struct {
	Rate      *big.Rat
	Timestamp time.Time
}

// Source resolves a quote for a feed such as "WETH/QUSD".
type Source interface {
	Name() string
	Fetch(ctx context.Context, feed string) (Quote, error)
}

// Manager polls its sources and records the median per feed.
type Manager struct {
	logger   *slog.Logger
	store    *Store
	sources  []Source
	feeds    []string
	minFeeds int
	maxAge   time.Duration
	interval time.Duration
	nowFn    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.nowFn = now
		}
	}
}

// NewManager constructs a manager instance.
func NewManager(store *Store, sources []Source, feeds []string, interval, maxAge time.Duration, minFeeds int, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("storage required")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source required")
	}
	if len(feeds) == 0 {
		return nil, fmt.Errorf("at least one feed required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	if minFeeds <= 0 {
		minFeeds = 1
	}
	mgr := &Manager{
		logger:   slog.Default().With("component", "oracle"),
		store:    store,
		sources:  append([]Source{}, sources...),
		feeds:    append([]string{}, feeds...),
		interval: interval,
		maxAge:   maxAge,
		minFeeds: minFeeds,
		nowFn:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(mgr)
		}
	}
	return mgr, nil
}

// Run polls until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.logger.Info("oracle manager started", "sources", len(m.sources), "feeds", len(m.feeds))
	for {
		if err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("oracle tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one aggregation cycle. Every feed is attempted; the first error
// is returned.
func (m *Manager) Tick(ctx context.Context) error {
	var first error
	for _, feed := range m.feeds {
		if err := m.processFeed(ctx, feed); err != nil {
			metrics.Oracle().RecordFailure(feed)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (m *Manager) processFeed(ctx context.Context, feed string) error {
	feed = normalizeFeed(feed)
	if feed == "" {
		return fmt.Errorf("invalid feed configuration")
	}
	now := m.nowFn()
	rates := make([]*big.Rat, 0, len(m.sources))
	feeders := make([]string, 0, len(m.sources))
	for _, src := range m.sources {
		if src == nil {
			continue
		}
		quote, err := src.Fetch(ctx, feed)
		if err != nil {
			m.logger.Warn("oracle source failed", "source", src.Name(), "feed", feed, "error", err)
			continue
		}
		if quote.Rate == nil || quote.Rate.Sign() <= 0 {
			m.logger.Warn("oracle source returned invalid rate", "source", src.Name(), "feed", feed)
			continue
		}
		if quote.Timestamp.After(now.Add(5 * time.Second)) {
			m.logger.Warn("oracle source produced future timestamp", "source", src.Name(), "feed", feed)
			continue
		}
		if quote.Timestamp.Before(now.Add(-m.maxAge)) {
			m.logger.Warn("oracle source quote expired", "source", src.Name(), "feed", feed)
			continue
		}
		rates = append(rates, new(big.Rat).Set(quote.Rate))
		feeders = append(feeders, src.Name())
	}
	if len(rates) < m.minFeeds {
		return fmt.Errorf("insufficient oracle feeds for %s: %d < %d", feed, len(rates), m.minFeeds)
	}
	median := Median(rates)
	value := toFixed(median)
	if value.Sign() <= 0 {
		return fmt.Errorf("median computation failed for %s", feed)
	}
	proof := proofID(feed, feeders, now)
	if err := m.store.Record(ctx, feed, value, Decimals, feeders, proof, now); err != nil {
		return fmt.Errorf("record price: %w", err)
	}
	metrics.Oracle().RecordPrice(feed, value)
	return nil
}

// Median returns the middle rate, averaging the two central values for an
// even count.
func Median(rates []*big.Rat) *big.Rat {
	if len(rates) == 0 {
		return nil
	}
	sorted := make([]*big.Rat, len(rates))
	copy(sorted, rates)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Cmp(sorted[j]) < 0
	})
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return new(big.Rat).Set(sorted[mid])
	}
	sum := new(big.Rat).Add(sorted[mid-1], sorted[mid])
	return sum.Quo(sum, big.NewRat(2, 1))
}

func toFixed(rate *big.Rat) *big.Int {
	if rate == nil {
		return new(big.Int)
	}
	scaled := new(big.Int).Mul(rate.Num(), wad)
	return scaled.Quo(scaled, rate.Denom())
}

func proofID(feed string, feeders []string, ts time.Time) string {
	digest := sha256.New()
	digest.Write([]byte(feed))
	digest.Write([]byte(ts.UTC().Format(time.RFC3339Nano)))
	sorted := append([]string{}, feeders...)
	sort.Strings(sorted)
	for _, f := range sorted {
		digest.Write([]byte(strings.ToLower(strings.TrimSpace(f))))
	}
	return hex.EncodeToString(digest.Sum(nil))
}

// StaticSource serves fixed rates, parsed from decimal strings. It backs
// development deployments and tests.
type StaticSource struct {
	name  string
	rates map[string]*big.Rat
	nowFn func() time.Time
}

// NewStaticSource parses rates such as {"WETH/QUSD": "2500.5"}.
func NewStaticSource(name string, rates map[string]string, now func() time.Time) (*StaticSource, error) {
	parsed := make(map[string]*big.Rat, len(rates))
	for feed, raw := range rates {
		rate, ok := new(big.Rat).SetString(strings.TrimSpace(raw))
		if !ok {
			return nil, fmt.Errorf("oracle: invalid static rate %q for %s", raw, feed)
		}
		parsed[normalizeFeed(feed)] = rate
	}
	if now == nil {
		now = time.Now
	}
	return &StaticSource{name: name, rates: parsed, nowFn: now}, nil
}

func (s *StaticSource) Name() string { return s.name }

// Fetch returns the configured rate stamped with the current time.
func (s *StaticSource) Fetch(_ context.Context, feed string) (Quote, error) {
	rate, ok := s.rates[normalizeFeed(feed)]
	if !ok {
		return Quote{}, fmt.Errorf("oracle: %s has no rate for %s", s.name, feed)
	}
	return Quote{Rate: new(big.Rat).Set(rate), Timestamp: s.nowFn()}, nil
}
