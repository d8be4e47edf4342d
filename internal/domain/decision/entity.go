package decision

import (
	"time"

	"gapsentry/internal/domain/classifier"
	"gapsentry/internal/domain/gap"
)

// Status summarizes how a symbol's cycle ended
type Status string

const (
	StatusSkipped     Status = "skipped"      // precondition or data failure, nothing evaluated
	StatusNoSignal    Status = "no_signal"    // no gap straddles the mid price
	StatusDegenerate  Status = "degenerate"   // stop geometry leaves no risk
	StatusBlocked     Status = "blocked"      // classifier vetoed the trade
	StatusAllowed     Status = "allowed"      // trade allowed, no order requested
	StatusOrderPlaced Status = "order_placed" // trade allowed and order accepted
	StatusOrderFailed Status = "order_failed" // trade allowed but placement failed
)

// Decision is the full record of one symbol's evaluation cycle
type Decision struct {
	Symbol      string
	Status      Status
	Reason      string
	Gap         *gap.Gap
	Features    classifier.FeatureVector
	Probability float64
	Allowed     bool
	Plan        *gap.TradePlan
	OrderID     string
	OrderError  string
	Outcome     *gap.Outcome
	Learned     bool
	SampleCount int64
	Mid         float64
	SpreadTicks float64
	EvaluatedAt time.Time
}

// Acted reports whether a pattern was selected and scored this cycle
func (d Decision) Acted() bool {
	return d.Gap != nil && d.Plan != nil
}

// PersistenceEvent records one classifier state write or read
type PersistenceEvent struct {
	Operation   string // save | load
	Backend     string
	SampleCount int64
	Err         error
	At          time.Time
}

// OK reports whether the persistence call succeeded
func (e PersistenceEvent) OK() bool {
	return e.Err == nil
}
