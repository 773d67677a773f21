// Package risk scores candidate payments against recent activity.
// Scoring is pure: callers fetch history and pass it in.
package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/BradenHooton/tappay/internal/models"
)

// Rule names reported in Assessment.Triggered
const (
	RuleLargeAmount       = "large_amount"
	RuleVelocity          = "velocity"
	RuleDailyAccumulation = "daily_accumulation"
	RuleDuplicate         = "duplicate"
)

// Status thresholds
const (
	DeclineThreshold = 80
	ReviewThreshold  = 50
	MaxScore         = 100
)

// DeclineReasonHighRisk is recorded on transactions declined by score
const DeclineReasonHighRisk = "High risk score"

type Config struct {
	LargeAmountThreshold decimal.Decimal
	LargeAmountWeight    int

	VelocityWindow time.Duration
	VelocityCount  int
	VelocityWeight int

	DailyThreshold decimal.Decimal
	DailyWeight    int

	DuplicateWindow    time.Duration
	DuplicateTolerance decimal.Decimal
	DuplicateWeight    int
}

func DefaultConfig() Config {
	return Config{
		LargeAmountThreshold: decimal.NewFromInt(500),
		LargeAmountWeight:    30,
		VelocityWindow:       5 * time.Minute,
		VelocityCount:        3,
		VelocityWeight:       40,
		DailyThreshold:       decimal.NewFromInt(1000),
		DailyWeight:          50,
		DuplicateWindow:      60 * time.Second,
		DuplicateTolerance:   decimal.RequireFromString("0.01"),
		DuplicateWeight:      70,
	}
}

// Candidate is the payment being scored
type Candidate struct {
	Amount     decimal.Decimal
	MerchantID string
	At         time.Time
}

// Assessment is the outcome of scoring one candidate
type Assessment struct {
	Score     int
	Triggered []string
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// HistoryWindow is how far back the caller should fetch history
func (e *Engine) HistoryWindow() time.Duration {
	if e.cfg.DuplicateWindow > e.cfg.VelocityWindow {
		return e.cfg.DuplicateWindow
	}
	return e.cfg.VelocityWindow
}

// Score evaluates every rule and sums the weights of those that fire, capped at MaxScore.
// approvedToday is the sum of the user's approved amounts since local midnight.
func (e *Engine) Score(c Candidate, history []*models.Transaction, approvedToday decimal.Decimal) Assessment {
	var a Assessment

	if c.Amount.GreaterThan(e.cfg.LargeAmountThreshold) {
		a.add(RuleLargeAmount, e.cfg.LargeAmountWeight)
	}

	if e.recentCount(c.At, history, e.cfg.VelocityWindow) >= e.cfg.VelocityCount {
		a.add(RuleVelocity, e.cfg.VelocityWeight)
	}

	if approvedToday.Add(c.Amount).GreaterThan(e.cfg.DailyThreshold) {
		a.add(RuleDailyAccumulation, e.cfg.DailyWeight)
	}

	if e.hasDuplicate(c, history) {
		a.add(RuleDuplicate, e.cfg.DuplicateWeight)
	}

	if a.Score > MaxScore {
		a.Score = MaxScore
	}
	return a
}

// Decide maps a score to a transaction status and, for declines, a reason
func Decide(score int) (string, *string) {
	switch {
	case score >= DeclineThreshold:
		reason := DeclineReasonHighRisk
		return models.TransactionStatusDeclined, &reason
	case score >= ReviewThreshold:
		return models.TransactionStatusPending, nil
	default:
		return models.TransactionStatusApproved, nil
	}
}

func (a *Assessment) add(rule string, weight int) {
	a.Score += weight
	a.Triggered = append(a.Triggered, rule)
}

func (e *Engine) recentCount(now time.Time, history []*models.Transaction, window time.Duration) int {
	cutoff := now.Add(-window)
	n := 0
	for _, t := range history {
		if !t.CreatedAt.Before(cutoff) && !t.CreatedAt.After(now) {
			n++
		}
	}
	return n
}

func (e *Engine) hasDuplicate(c Candidate, history []*models.Transaction) bool {
	cutoff := c.At.Add(-e.cfg.DuplicateWindow)
	for _, t := range history {
		if t.MerchantID != c.MerchantID {
			continue
		}
		if t.CreatedAt.Before(cutoff) || t.CreatedAt.After(c.At) {
			continue
		}
		if t.Amount.Sub(c.Amount).Abs().LessThanOrEqual(e.cfg.DuplicateTolerance) {
			return true
		}
	}
	return false
}
