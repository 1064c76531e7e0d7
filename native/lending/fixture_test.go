package lending

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"quadlend/core/events"
	"quadlend/crypto"
	"quadlend/native/bank"
	"quadlend/state"
	"quadlend/storage"
)

var (
	testTimelock = crypto.ModuleAddress("timelock")
	poolAddr     = crypto.ModuleAddress("lending")
	custodyAddr  = crypto.ModuleAddress("lending/collateral")
)

func units(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), Wad)
}

func addr(b byte) crypto.Address {
	var a crypto.Address
	a[19] = b
	return a
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func (c *testClock) unix() uint64 { return uint64(c.now.Unix()) }

type testOracle struct {
	clock  *testClock
	prices map[string]Price
	stale  bool
}

func (o *testOracle) Price(feed string) (Price, error) {
	p, ok := o.prices[feed]
	if !ok {
		return Price{}, errors.New("unknown feed")
	}
	p.UpdatedAt = o.clock.unix()
	if o.stale {
		p.UpdatedAt -= 7_200
	}
	return p, nil
}

func (o *testOracle) set(feed string, value *big.Int) {
	o.prices[feed] = Price{Value: value, Decimals: 18}
}

type recordingConfigStore struct {
	names []string
}

func (s *recordingConfigStore) PutJSON(name string, _ interface{}) error {
	s.names = append(s.names, name)
	return nil
}

type fixture struct {
	t      *testing.T
	store  *state.Store
	bank   *bank.Ledger
	engine *Engine
	clock  *testClock
	oracle *testOracle
	events *events.Recorder
	params *recordingConfigStore
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timelock = testTimelock
	cfg.AllowedCollateral = []string{"WETH"}
	cfg.PriceFeeds = map[string]string{"WETH": "WETH/QUSD"}
	return cfg
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}
	engine, err := NewEngine(poolAddr, custodyAddr, cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	store := state.NewStore(storage.NewMemDB())
	ledger := bank.NewLedger(store)
	clock := &testClock{now: time.Unix(1_700_000_000, 0).UTC()}
	oracle := &testOracle{clock: clock, prices: map[string]Price{}}
	oracle.set("WETH/QUSD", units(10))
	rec := &events.Recorder{}
	params := &recordingConfigStore{}

	engine.SetState(store)
	engine.SetVault(ledger)
	engine.SetOracle(oracle)
	engine.SetEmitter(rec)
	engine.SetNowFunc(clock.Now)
	engine.SetConfigStore(params)
	return &fixture{t: t, store: store, bank: ledger, engine: engine, clock: clock, oracle: oracle, events: rec, params: params}
}

func (f *fixture) mint(asset string, to crypto.Address, amount *big.Int) {
	f.t.Helper()
	if err := f.bank.Mint(asset, to, amount); err != nil {
		f.t.Fatalf("mint %s: %v", asset, err)
	}
}

func (f *fixture) score(account crypto.Address, score uint64) {
	f.t.Helper()
	if err := f.engine.SetCreditScore(testTimelock, account, score); err != nil {
		f.t.Fatalf("set score: %v", err)
	}
}

func (f *fixture) balance(asset string, account crypto.Address) *big.Int {
	f.t.Helper()
	bal, err := f.bank.BalanceOf(asset, account)
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return bal
}

// fundLender scores and funds a lender and deposits amount into the pool.
func (f *fixture) fundLender(lender crypto.Address, amount *big.Int) {
	f.t.Helper()
	f.score(lender, 80)
	f.mint("QUSD", lender, amount)
	if err := f.engine.DepositFunds(lender, amount); err != nil {
		f.t.Fatalf("deposit: %v", err)
	}
}

// openLoan gives borrower a score, posts collateral and borrows amount.
func (f *fixture) openLoan(borrower crypto.Address, score uint64, collateral, amount *big.Int) {
	f.t.Helper()
	f.score(borrower, score)
	f.mint("WETH", borrower, collateral)
	if err := f.engine.DepositCollateral(borrower, "WETH", collateral); err != nil {
		f.t.Fatalf("deposit collateral: %v", err)
	}
	if err := f.engine.Borrow(borrower, amount); err != nil {
		f.t.Fatalf("borrow: %v", err)
	}
}

// checkInvariants verifies the pool-wide accounting identities.
func (f *fixture) checkInvariants() {
	f.t.Helper()
	totals, err := f.engine.Totals()
	if err != nil {
		f.t.Fatalf("totals: %v", err)
	}
	sum, err := f.engine.sumActivePrincipal()
	if err != nil {
		f.t.Fatalf("sum principal: %v", err)
	}
	if totals.TotalLent.Cmp(sum) != 0 {
		f.t.Fatalf("total lent %s != principal sum %s", totals.TotalLent, sum)
	}
	if held := f.balance("QUSD", poolAddr); held.Cmp(totals.Cash) != 0 {
		f.t.Fatalf("pool holds %s but cash is %s", held, totals.Cash)
	}
	for _, v := range []*big.Int{totals.TotalLent, totals.TotalBorrowed, totals.Cash, totals.BadDebt} {
		if v.Sign() < 0 {
			f.t.Fatalf("negative total: %+v", totals)
		}
	}
}

// sumActivePrincipal totals principal across the index; used to reconcile
// TotalLent in assertions.
func (e *Engine) sumActivePrincipal() (*big.Int, error) {
	index, err := e.loadIndex(lenderIndexKey)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, addr := range index {
		pos, err := e.loadLender(addr)
		if err != nil {
			return nil, err
		}
		total.Add(total, pos.PrincipalBalance)
	}
	return total, nil
}
