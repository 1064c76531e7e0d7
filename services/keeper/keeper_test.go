package keeper

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quadlend/crypto"
	"quadlend/native/lending"
)

type fakePool struct {
	needed    bool
	payload   []byte
	executed  []crypto.Address
	lenders   []crypto.Address
	batches   [][]crypto.Address
	failBatch int
	batchSize int

	// guard, when set, records reads made outside an Apply.
	guard   *countingStore
	outside []string
}

func (p *fakePool) read(name string) {
	if p.guard != nil && !p.guard.active {
		p.outside = append(p.outside, name)
	}
}

func (p *fakePool) CheckUpkeep() (bool, []byte, error) { return p.needed, p.payload, nil }

func (p *fakePool) PerformUpkeep(payload []byte) (*lending.UpkeepReport, error) {
	return &lending.UpkeepReport{Executed: p.executed, Skipped: []crypto.Address{{0xff}}}, nil
}

func (p *fakePool) Lenders() ([]crypto.Address, error) {
	p.read("lenders")
	return p.lenders, nil
}

func (p *fakePool) BatchCreditInterest(accounts []crypto.Address) (*lending.BatchReport, error) {
	p.batches = append(p.batches, accounts)
	if p.failBatch > 0 && len(p.batches) == p.failBatch {
		return nil, errors.New("boom")
	}
	return &lending.BatchReport{Processed: accounts}, nil
}

func (p *fakePool) Totals() (*lending.PoolTotals, error) {
	p.read("totals")
	return &lending.PoolTotals{TotalLent: big.NewInt(1), TotalBorrowed: big.NewInt(0), Cash: big.NewInt(1), BadDebt: big.NewInt(0)}, nil
}

func (p *fakePool) Config() lending.Config {
	p.read("config")
	cfg := lending.DefaultConfig()
	cfg.MaxBatchSize = p.batchSize
	return cfg
}

type countingStore struct {
	applied int
	failed  int
	active  bool
}

func (s *countingStore) Apply(fn func() error) error {
	s.active = true
	err := fn()
	s.active = false
	if err != nil {
		s.failed++
		return err
	}
	s.applied++
	return nil
}

func lenders(n int) []crypto.Address {
	out := make([]crypto.Address, n)
	for i := range out {
		out[i] = crypto.Address{byte(i + 1)}
	}
	return out
}

func TestTickRunsUpkeep(t *testing.T) {
	pool := &fakePool{needed: true, payload: []byte{0x01}, executed: []crypto.Address{{0x01}}, batchSize: 2}
	store := &countingStore{}
	k, err := New(pool, store, Config{Interval: time.Second}, nil)
	require.NoError(t, err)

	report, err := k.Tick(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)
	require.Equal(t, 1, report.Executed)
	require.Equal(t, 1, report.Skipped)
	require.Equal(t, []crypto.Address{{0x01}}, report.Liquidated)
	require.Equal(t, 2, store.applied)
	require.Empty(t, pool.batches)
}

func TestTickCreditsInChunks(t *testing.T) {
	pool := &fakePool{lenders: lenders(5), batchSize: 2}
	store := &countingStore{}
	k, err := New(pool, store, Config{Interval: time.Second, CreditEvery: 2}, nil)
	require.NoError(t, err)

	report, err := k.Tick(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Credited)

	report, err = k.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, report.Credited)
	require.Len(t, pool.batches, 3)
	require.Len(t, pool.batches[2], 1)
}

func TestCreditFailureIsolatedToChunk(t *testing.T) {
	pool := &fakePool{lenders: lenders(4), batchSize: 2, failBatch: 1}
	store := &countingStore{}
	k, err := New(pool, store, Config{Interval: time.Second, CreditEvery: 1}, nil)
	require.NoError(t, err)

	report, err := k.Tick(context.Background())
	require.Error(t, err)
	require.Equal(t, 2, report.Credited)
	require.Equal(t, 1, store.failed)
	require.Len(t, pool.batches, 2)
}

func TestRunStopsOnCancel(t *testing.T) {
	k, err := New(&fakePool{batchSize: 1}, &countingStore{}, Config{Interval: time.Millisecond}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, k.Run(ctx), context.DeadlineExceeded)

	_, err = New(nil, &countingStore{}, Config{Interval: time.Second}, nil)
	require.Error(t, err)
	_, err = New(&fakePool{}, &countingStore{}, Config{}, nil)
	require.Error(t, err)
}

func TestTickReadsPoolThroughStore(t *testing.T) {
	store := &countingStore{}
	pool := &fakePool{lenders: lenders(3), batchSize: 2, guard: store}
	k, err := New(pool, store, Config{Interval: time.Second, CreditEvery: 1}, nil)
	require.NoError(t, err)

	report, err := k.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Credited)
	if len(pool.outside) != 0 {
		t.Fatalf("pool read outside apply: %v", pool.outside)
	}
}
