package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn, err := FileDSN(filepath.Join(t.TempDir(), "oracle.db"))
	require.NoError(t, err)
	store, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRecordAndPrice(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.Price("WETH/QUSD")
	require.True(t, errors.Is(err, ErrNoPrice), "got %v", err)

	t0 := time.Unix(1_700_000_000, 0)
	require.NoError(t, store.Record(ctx, "weth/qusd", big.NewInt(2_000), 18, []string{"a"}, "p1", t0))
	require.NoError(t, store.Record(ctx, "WETH/QUSD", big.NewInt(2_100), 18, []string{"a", "b"}, "p2", t0.Add(time.Minute)))
	// an older observation arriving late does not replace the current price
	require.NoError(t, store.Record(ctx, "WETH/QUSD", big.NewInt(1_900), 18, nil, "p0", t0.Add(-time.Minute)))

	price, err := store.Price("WETH/QUSD")
	require.NoError(t, err)
	require.Equal(t, int64(2_100), price.Value.Int64())
	require.Equal(t, uint8(18), price.Decimals)
	require.Equal(t, uint64(t0.Add(time.Minute).Unix()), price.UpdatedAt)

	price.Value.SetInt64(1)
	again, err := store.Price("WETH/QUSD")
	require.NoError(t, err)
	require.Equal(t, int64(2_100), again.Value.Int64())

	history, err := store.History(ctx, "WETH/QUSD", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, "2100", history[0].Value)
	require.Equal(t, "a,b", history[0].Feeders)

	require.Error(t, store.Record(ctx, "WETH/QUSD", big.NewInt(0), 18, nil, "", t0))
	require.Error(t, store.Record(ctx, " ", big.NewInt(1), 18, nil, "", t0))
}

func TestStoreReloadsFromDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle.db")
	dsn, err := FileDSN(path)
	require.NoError(t, err)

	first, err := Open(dsn)
	require.NoError(t, err)
	require.NoError(t, first.Record(context.Background(), "WBTC/QUSD", big.NewInt(42), 18, nil, "", time.Unix(1_700_000_000, 0)))
	require.NoError(t, first.Close())

	second, err := Open(dsn)
	require.NoError(t, err)
	defer second.Close()
	price, err := second.Price("wbtc/qusd")
	require.NoError(t, err)
	require.Equal(t, int64(42), price.Value.Int64())
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open("  ")
	require.ErrorIs(t, err, ErrPathRequired)
	_, err = FileDSN("")
	require.ErrorIs(t, err, ErrPathRequired)
}

type stubSource struct {
	name string
	rate string
	age  time.Duration
	err  error
	now  func() time.Time
}

func (s stubSource) Name() string { return s.name }

func (s stubSource) Fetch(context.Context, string) (Quote, error) {
	if s.err != nil {
		return Quote{}, s.err
	}
	rate, _ := new(big.Rat).SetString(s.rate)
	return Quote{Rate: rate, Timestamp: s.now().Add(-s.age)}, nil
}

func TestManagerRecordsMedian(t *testing.T) {
	store := openTestStore(t)
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	sources := []Source{
		stubSource{name: "a", rate: "10", now: clock},
		stubSource{name: "b", rate: "12.5", now: clock},
		stubSource{name: "c", rate: "11", now: clock},
		stubSource{name: "stale", rate: "1", age: time.Hour, now: clock},
		stubSource{name: "down", err: fmt.Errorf("timeout"), now: clock},
	}
	mgr, err := NewManager(store, sources, []string{"WETH/QUSD"}, time.Second, time.Minute, 3, WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, mgr.Tick(context.Background()))

	price, err := store.Price("WETH/QUSD")
	require.NoError(t, err)
	want := new(big.Int).Mul(big.NewInt(11), wad)
	require.Zero(t, price.Value.Cmp(want), "price %s", price.Value)
	require.Equal(t, uint64(now.Unix()), price.UpdatedAt)
}

func TestManagerRequiresMinimumFeeds(t *testing.T) {
	store := openTestStore(t)
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	mgr, err := NewManager(store, []Source{stubSource{name: "a", rate: "10", now: clock}}, []string{"WETH/QUSD"}, time.Second, time.Minute, 2, WithClock(clock))
	require.NoError(t, err)
	require.Error(t, mgr.Tick(context.Background()))
	_, err = store.Price("WETH/QUSD")
	require.ErrorIs(t, err, ErrNoPrice)
}

func TestMedianAndStaticSource(t *testing.T) {
	rates := []*big.Rat{big.NewRat(4, 1), big.NewRat(1, 1), big.NewRat(3, 1), big.NewRat(2, 1)}
	require.Zero(t, Median(rates).Cmp(big.NewRat(5, 2)))
	require.Nil(t, Median(nil))

	src, err := NewStaticSource("static", map[string]string{"weth/qusd": "2500.25"}, nil)
	require.NoError(t, err)
	quote, err := src.Fetch(context.Background(), "WETH/QUSD")
	require.NoError(t, err)
	require.Zero(t, quote.Rate.Cmp(big.NewRat(250025, 100)))
	_, err = src.Fetch(context.Background(), "WBTC/QUSD")
	require.Error(t, err)

	_, err = NewStaticSource("bad", map[string]string{"X/Y": "abc"}, nil)
	require.Error(t, err)
}
