package model

import "time"

// Action is the discrete decision derived from the combined score.
type Action string

const (
	ActionStrongBuy  Action = "STRONG_BUY"
	ActionBuy        Action = "BUY"
	ActionHold       Action = "HOLD"
	ActionSell       Action = "SELL"
	ActionStrongSell Action = "STRONG_SELL"
)

// IsBuy reports whether the action adds to a position.
func (a Action) IsBuy() bool { return a == ActionBuy || a == ActionStrongBuy }

// IsSell reports whether the action reduces a position.
func (a Action) IsSell() bool { return a == ActionSell || a == ActionStrongSell }

// TriggerType indicates what started an evaluation cycle.
type TriggerType string

const (
	TriggerScheduled TriggerType = "SCHEDULED"
	TriggerManual    TriggerType = "MANUAL"
	TriggerStartup   TriggerType = "STARTUP"
)

// Contribution is one rule's effect on a sub-score.
type Contribution struct {
	Component string
	Points    float64
	Note      string
}

// ScoreBreakdown holds the four sub-scores, each in [0, 100].
type ScoreBreakdown struct {
	Technical     float64
	Fundamental   float64
	Sentiment     float64
	RiskAdjusted  float64
	Contributions []Contribution
}

// Status records what the gate did with a recommendation.
type Status string

const (
	StatusComputed   Status = "computed"
	StatusSuppressed Status = "suppressed"
	StatusEmitted    Status = "emitted"
)

// Recommendation is the engine's decision for one ticker in one cycle.
// It is built once and never modified afterwards.
type Recommendation struct {
	ID            string
	CycleID       string
	PortfolioID   string
	Ticker        string
	Exchange      string
	Risk          RiskCategory
	Action        Action
	CombinedScore int
	Breakdown     ScoreBreakdown
	ShareDelta    int64
	StopLoss      float64
	StopCurrency  string
	Price         float64
	Currency      string
	Reasoning     string
	EvaluatedAt   time.Time
	Status        Status
	StatusReason  string
}

// TickerWarning explains why a ticker produced no recommendation in a cycle.
type TickerWarning struct {
	Ticker string
	Reason string
}

// ValuationSummary is the part of a valuation kept on the cycle report.
type ValuationSummary struct {
	BaseCurrency   string
	TotalBaseValue float64
	CashBaseTotal  float64
	Excluded       []string
}

// CycleReport is everything one evaluation cycle produced.
type CycleReport struct {
	ID              string
	PortfolioID     string
	Trigger         TriggerType
	StartedAt       time.Time
	FinishedAt      time.Time
	Valuation       ValuationSummary
	Recommendations []*Recommendation
	Warnings        []TickerWarning
}

// Count returns how many recommendations ended in the given status.
func (r *CycleReport) Count(s Status) int {
	n := 0
	for _, rec := range r.Recommendations {
		if rec.Status == s {
			n++
		}
	}
	return n
}
