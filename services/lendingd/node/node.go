// Package node assembles the ledger modules of a lending daemon over a single
// state store.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"quadlend/config"
	"quadlend/core/events"
	"quadlend/native/bank"
	"quadlend/native/governance"
	"quadlend/native/lending"
	"quadlend/native/params"
	"quadlend/native/timelock"
	"quadlend/native/votetoken"
	"quadlend/observability"
	"quadlend/services/keeper"
	"quadlend/services/oracle"
	"quadlend/state"
	"quadlend/storage"
)

const genesisParamKey = "node.genesis"

type genesisRecord struct {
	InitialisedAt int64 `json:"initialisedAt"`
	Allocations   int   `json:"allocations"`
}

// Options configures New. DB and OracleDSN override the locations derived
// from DataDir.
type Options struct {
	DataDir      string
	Protocol     *config.Protocol
	Logger       *slog.Logger
	Now          func() time.Time
	DB           storage.Database
	OracleDSN    string
	Credit       CreditVerifierConfig
	EventSink    events.Emitter
	SkipServices bool
}

// Node owns every module instance and the background services driving them.
type Node struct {
	DB         storage.Database
	Store      *state.Store
	Params     *params.Store
	Bank       *bank.Ledger
	Token      *votetoken.Token
	Timelock   *timelock.Engine
	Governance *governance.Engine
	Pool       *lending.Engine
	Prices     *oracle.Store
	Oracle     *oracle.Manager
	Keeper     *keeper.Keeper

	protocol *config.Protocol
	logger   *slog.Logger
	nowFn    func() time.Time
	ownsDB   bool
}

// New opens storage and wires the modules together. The first start against
// an empty store mints the configured token allocations and seeds the
// governance whitelist.
func New(opts Options) (*Node, error) {
	if opts.Protocol == nil {
		return nil, errors.New("node: protocol config required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	n := &Node{protocol: opts.Protocol, logger: logger.With("component", "node"), nowFn: now}

	if opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("node: create data dir: %w", err)
		}
	}
	db := opts.DB
	if db == nil {
		ldb, err := storage.NewLevelDB(filepath.Join(opts.DataDir, "state"))
		if err != nil {
			return nil, fmt.Errorf("node: open state db: %w", err)
		}
		db = ldb
		n.ownsDB = true
	}
	n.DB = db
	n.Store = state.NewStore(db)
	n.Params = params.NewStore(n.Store)
	emitter := observability.NewEmitter(opts.EventSink, logger.With("component", "events"))

	n.Bank = bank.NewLedger(n.Store)
	n.Bank.SetEmitter(emitter)

	n.Timelock = timelock.NewEngine(config.TimelockAddress, opts.Protocol.Timelock.MinDelaySeconds)
	n.Timelock.SetState(n.Store)
	n.Timelock.SetEmitter(emitter)
	n.Timelock.SetNowFunc(now)

	gov, err := governance.NewEngine(config.GovernanceAddress, opts.Protocol.Governance)
	if err != nil {
		n.Close()
		return nil, err
	}
	n.Governance = gov
	gov.SetState(n.Store)
	gov.SetEmitter(emitter)
	gov.SetLogger(logger)
	gov.SetNowFunc(now)
	gov.SetTimelock(n.Timelock)

	n.Token = votetoken.NewToken(config.TokenAddress, opts.Protocol.Minter())
	n.Token.SetState(n.Store)
	n.Token.SetEmitter(emitter)
	n.Token.SetNowFunc(now)
	n.Token.SetGovernance(config.GovernanceAddress, gov)
	gov.SetToken(n.Token, config.TokenAddress)

	pool, err := lending.NewEngine(config.PoolAddress, config.CustodyAddress, opts.Protocol.Lending)
	if err != nil {
		n.Close()
		return nil, err
	}
	n.Pool = pool
	pool.SetState(n.Store)
	pool.SetVault(n.Bank)
	pool.SetEmitter(emitter)
	pool.SetLogger(logger)
	pool.SetNowFunc(now)
	pool.SetConfigStore(n.Params)
	if verifier := NewCreditVerifier(opts.Credit, now); verifier != nil {
		pool.SetCreditVerifier(verifier)
	}
	if err := n.restoreLendingConfig(); err != nil {
		n.Close()
		return nil, err
	}

	n.Timelock.AddProposer(config.GovernanceAddress)
	n.Timelock.AddExecutor(config.GovernanceAddress)
	n.Timelock.RegisterTarget(config.PoolAddress, pool)
	n.Timelock.RegisterTarget(config.GovernanceAddress, gov)

	if err := n.openOracle(opts, now, logger); err != nil {
		n.Close()
		return nil, err
	}
	pool.SetOracle(n.Prices)

	if err := n.Store.Apply(func() error { return n.genesis(now) }); err != nil {
		n.Close()
		return nil, fmt.Errorf("node: genesis: %w", err)
	}

	if !opts.SkipServices && !opts.Protocol.Keeper.Disabled {
		k, err := keeper.New(pool, n.Store, keeper.Config{
			Interval:    opts.Protocol.KeeperInterval(),
			CreditEvery: opts.Protocol.Keeper.CreditEvery,
		}, logger)
		if err != nil {
			n.Close()
			return nil, err
		}
		n.Keeper = k
	}
	return n, nil
}

func (n *Node) openOracle(opts Options, now func() time.Time, logger *slog.Logger) error {
	dsn := opts.OracleDSN
	if dsn == "" {
		dsn = n.protocol.Oracle.DSN
	}
	if dsn == "" {
		fileDSN, err := oracle.FileDSN(filepath.Join(opts.DataDir, "oracle.db"))
		if err != nil {
			return err
		}
		dsn = fileDSN
	}
	prices, err := oracle.Open(dsn)
	if err != nil {
		return fmt.Errorf("node: open price store: %w", err)
	}
	n.Prices = prices
	if opts.SkipServices || len(n.protocol.Oracle.Static) == 0 {
		n.logger.Warn("no oracle sources configured; prices must be recorded externally")
		return nil
	}
	sources := make([]oracle.Source, 0, len(n.protocol.Oracle.Static))
	for name, rates := range n.protocol.Oracle.Static {
		src, err := oracle.NewStaticSource(name, rates, now)
		if err != nil {
			return fmt.Errorf("node: oracle source %s: %w", name, err)
		}
		sources = append(sources, src)
	}
	mgr, err := oracle.NewManager(prices, sources, n.protocol.Feeds(), n.protocol.OracleInterval(),
		n.protocol.OracleMaxAge(), n.protocol.Oracle.MinFeeds, oracle.WithLogger(logger), oracle.WithClock(now))
	if err != nil {
		return fmt.Errorf("node: oracle manager: %w", err)
	}
	n.Oracle = mgr
	return nil
}

// restoreLendingConfig prefers the configuration persisted by executed
// proposals over the file copy.
func (n *Node) restoreLendingConfig() error {
	var persisted lending.Config
	err := n.Params.GetJSON(lending.ParamsKeyConfig, &persisted)
	if errors.Is(err, params.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("node: load lending config: %w", err)
	}
	if err := n.Pool.RestoreConfig(persisted); err != nil {
		return fmt.Errorf("node: restore lending config: %w", err)
	}
	n.logger.Info("restored lending configuration from state")
	return nil
}

func (n *Node) genesis(now func() time.Time) error {
	var record genesisRecord
	err := n.Params.GetJSON(genesisParamKey, &record)
	if err == nil {
		return nil
	}
	if !errors.Is(err, params.ErrNotFound) {
		return err
	}
	minter := n.protocol.Minter()
	for _, alloc := range n.protocol.Token.Allocations {
		if err := n.Token.Mint(minter, alloc.Account, alloc.Amount); err != nil {
			return fmt.Errorf("mint %s: %w", alloc.Account, err)
		}
	}
	if err := n.Governance.SeedWhitelist(config.PoolAddress,
		lending.SigSetPaused,
		lending.SigSetCreditScore,
		lending.SigSetCollateralAllowed,
		lending.SigSetPriceFeed,
		lending.SigSetEarlyWithdrawalPenalty,
		lending.SigSetBaseRate,
		lending.SigSetStablecoinParams,
		lending.SigAddLenders,
	); err != nil {
		return err
	}
	if err := n.Governance.SeedWhitelist(config.GovernanceAddress,
		governance.SigSetQuorumBps,
		governance.SigPenalizeReputation,
		governance.SigRewardReputation,
	); err != nil {
		return err
	}
	record = genesisRecord{InitialisedAt: now().Unix(), Allocations: len(n.protocol.Token.Allocations)}
	if err := n.Params.PutJSON(genesisParamKey, record); err != nil {
		return err
	}
	n.logger.Info("genesis applied", "allocations", record.Allocations)
	return nil
}

// Now is the clock shared by every module.
func (n *Node) Now() time.Time { return n.nowFn() }

// Protocol returns the loaded protocol configuration.
func (n *Node) Protocol() *config.Protocol { return n.protocol }

// Apply runs fn as one atomic unit against the shared store. Reads use it too
// so they never observe another operation's staged writes.
func (n *Node) Apply(fn func() error) error {
	return n.Store.Apply(fn)
}

// Run drives the oracle manager and keeper until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	if n.Oracle != nil {
		group.Go(func() error { return n.Oracle.Run(ctx) })
	}
	if n.Keeper != nil {
		group.Go(func() error { return n.Keeper.Run(ctx) })
	}
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the price store and, when opened by New, the state database.
func (n *Node) Close() error {
	var errs []error
	if n.Prices != nil {
		errs = append(errs, n.Prices.Close())
	}
	if n.ownsDB && n.DB != nil {
		n.DB.Close()
	}
	return errors.Join(errs...)
}
