package metrics

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics tracks pool totals and liquidation activity.
type LendingMetrics struct {
	totalLent    prometheus.Gauge
	cash         prometheus.Gauge
	totalBorrows prometheus.Gauge
	badDebt      prometheus.Gauge
	liquidations *prometheus.CounterVec
	upkeepRuns   *prometheus.CounterVec
	credited     prometheus.Counter
}

// GovernanceMetrics tracks proposal lifecycle transitions.
type GovernanceMetrics struct {
	proposals *prometheus.CounterVec
	votes     *prometheus.CounterVec
}

// OracleMetrics tracks recorded prices and feed failures.
type OracleMetrics struct {
	price    *prometheus.GaugeVec
	failures *prometheus.CounterVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics

	governanceOnce     sync.Once
	governanceRegistry *GovernanceMetrics

	oracleOnce     sync.Once
	oracleRegistry *OracleMetrics
)

var wadFloat = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// toUnits renders an 18-decimal amount as a float for gauges.
func toUnits(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	value, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), wadFloat).Float64()
	return value
}

func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			totalLent: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "quadlend",
				Subsystem: "lending",
				Name:      "total_lent",
				Help:      "Principal currently deposited by lenders, in whole base units.",
			}),
			cash: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "quadlend",
				Subsystem: "lending",
				Name:      "cash",
				Help:      "Base asset held by the pool, in whole base units.",
			}),
			totalBorrows: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "quadlend",
				Subsystem: "lending",
				Name:      "total_borrows",
				Help:      "Outstanding borrower principal, in whole base units.",
			}),
			badDebt: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "quadlend",
				Subsystem: "lending",
				Name:      "bad_debt",
				Help:      "Debt written off by executed liquidations, in whole base units.",
			}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quadlend",
				Subsystem: "lending",
				Name:      "liquidations_total",
				Help:      "Liquidation transitions segmented by outcome.",
			}, []string{"outcome"}),
			upkeepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quadlend",
				Subsystem: "keeper",
				Name:      "runs_total",
				Help:      "Keeper upkeep runs segmented by result.",
			}, []string{"result"}),
			credited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "quadlend",
				Subsystem: "keeper",
				Name:      "interest_credited_total",
				Help:      "Lender positions credited by batch interest runs.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.totalLent,
			lendingRegistry.cash,
			lendingRegistry.totalBorrows,
			lendingRegistry.badDebt,
			lendingRegistry.liquidations,
			lendingRegistry.upkeepRuns,
			lendingRegistry.credited,
		)
	})
	return lendingRegistry
}

// ObservePool publishes the pool totals.
func (m *LendingMetrics) ObservePool(totalLent, cash, borrows, badDebt *big.Int) {
	if m == nil {
		return
	}
	m.totalLent.Set(toUnits(totalLent))
	m.cash.Set(toUnits(cash))
	m.totalBorrows.Set(toUnits(borrows))
	m.badDebt.Set(toUnits(badDebt))
}

func (m *LendingMetrics) ObserveLiquidations(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.liquidations.WithLabelValues(outcome).Add(float64(count))
}

func (m *LendingMetrics) ObserveUpkeep(result string) {
	if m == nil {
		return
	}
	m.upkeepRuns.WithLabelValues(result).Inc()
}

func (m *LendingMetrics) ObserveCredited(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.credited.Add(float64(count))
}

func Governance() *GovernanceMetrics {
	governanceOnce.Do(func() {
		governanceRegistry = &GovernanceMetrics{
			proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quadlend",
				Subsystem: "governance",
				Name:      "proposals_total",
				Help:      "Proposal lifecycle transitions segmented by stage.",
			}, []string{"stage"}),
			votes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quadlend",
				Subsystem: "governance",
				Name:      "votes_total",
				Help:      "Ballots cast segmented by support.",
			}, []string{"support"}),
		}
		prometheus.MustRegister(governanceRegistry.proposals, governanceRegistry.votes)
	})
	return governanceRegistry
}

func (m *GovernanceMetrics) ObserveStage(stage string) {
	if m == nil {
		return
	}
	m.proposals.WithLabelValues(strings.ToLower(strings.TrimSpace(stage))).Inc()
}

func (m *GovernanceMetrics) ObserveVote(support string) {
	if m == nil {
		return
	}
	if support == "" {
		support = "unknown"
	}
	m.votes.WithLabelValues(support).Inc()
}

func Oracle() *OracleMetrics {
	oracleOnce.Do(func() {
		oracleRegistry = &OracleMetrics{
			price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "quadlend",
				Subsystem: "oracle",
				Name:      "price",
				Help:      "Latest recorded median price per feed.",
			}, []string{"feed"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "quadlend",
				Subsystem: "oracle",
				Name:      "failures_total",
				Help:      "Aggregation cycles that failed per feed.",
			}, []string{"feed"}),
		}
		prometheus.MustRegister(oracleRegistry.price, oracleRegistry.failures)
	})
	return oracleRegistry
}

func (m *OracleMetrics) RecordPrice(feed string, value *big.Int) {
	if m == nil {
		return
	}
	m.price.WithLabelValues(feed).Set(toUnits(value))
}

func (m *OracleMetrics) RecordFailure(feed string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(feed).Inc()
}
