package events

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"gapsentry/internal/domain/decision"
)

// Event type names carried in BaseEvent.Type
const (
	TypeDecision    = "gap.decision"
	TypePersistence = "classifier.persistence"
)

const schemaVersion = "1.0"

// BaseEvent is the envelope shared by every published event
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

func newBaseEvent(eventType, source string, at time.Time) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: at.UTC(),
		Source:    source,
		Version:   schemaVersion,
	}
}

// GapPayload describes the selected pattern
type GapPayload struct {
	Timeframe  string  `json:"timeframe"`
	Tier       string  `json:"tier"`
	Direction  string  `json:"direction"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

// PlanPayload describes the hypothetical trade
type PlanPayload struct {
	Entry  float64 `json:"entry"`
	Stop   float64 `json:"stop"`
	Target float64 `json:"target"`
}

// DecisionEvent is published once per evaluated symbol per cycle
type DecisionEvent struct {
	BaseEvent
	Symbol      string       `json:"symbol"`
	Status      string       `json:"status"`
	Reason      string       `json:"reason,omitempty"`
	Mid         float64      `json:"mid,omitempty"`
	SpreadTicks float64      `json:"spread_ticks,omitempty"`
	Gap         *GapPayload  `json:"gap,omitempty"`
	Features    []float64    `json:"features,omitempty"`
	Probability float64      `json:"probability,omitempty"`
	Allowed     bool         `json:"allowed"`
	Plan        *PlanPayload `json:"plan,omitempty"`
	OrderID     string       `json:"order_id,omitempty"`
	OrderError  string       `json:"order_error,omitempty"`
	Outcome     string       `json:"outcome,omitempty"`
	Learned     bool         `json:"learned"`
	SampleCount int64        `json:"sample_count"`
}

// NewDecisionEvent converts a cycle decision into its wire form
func NewDecisionEvent(source string, d decision.Decision) DecisionEvent {
	ev := DecisionEvent{
		BaseEvent:   newBaseEvent(TypeDecision, source, d.EvaluatedAt),
		Symbol:      d.Symbol,
		Status:      string(d.Status),
		Reason:      SanitizeUTF8(d.Reason),
		Mid:         d.Mid,
		SpreadTicks: d.SpreadTicks,
		Probability: d.Probability,
		Allowed:     d.Allowed,
		OrderID:     d.OrderID,
		OrderError:  SanitizeUTF8(d.OrderError),
		Learned:     d.Learned,
		SampleCount: d.SampleCount,
	}

	if d.Gap != nil {
		ev.Gap = &GapPayload{
			Timeframe:  d.Gap.Timeframe.Interval,
			Tier:       d.Gap.Timeframe.Tier.String(),
			Direction:  d.Gap.Direction.String(),
			LowerBound: d.Gap.LowerBound,
			UpperBound: d.Gap.UpperBound,
		}
		ev.Features = append([]float64(nil), d.Features[:]...)
	}
	if d.Plan != nil {
		ev.Plan = &PlanPayload{Entry: d.Plan.EntryPrice, Stop: d.Plan.StopPrice, Target: d.Plan.TargetPrice}
	}
	if d.Outcome != nil {
		ev.Outcome = d.Outcome.String()
	}
	return ev
}

// PersistenceEvent is published for every classifier state load or save
type PersistenceEvent struct {
	BaseEvent
	Operation   string `json:"operation"`
	Backend     string `json:"backend"`
	OK          bool   `json:"ok"`
	Error       string `json:"error,omitempty"`
	SampleCount int64  `json:"sample_count"`
}

// NewPersistenceEvent converts a persistence result into its wire form
func NewPersistenceEvent(source string, e decision.PersistenceEvent) PersistenceEvent {
	ev := PersistenceEvent{
		BaseEvent:   newBaseEvent(TypePersistence, source, e.At),
		Operation:   e.Operation,
		Backend:     e.Backend,
		OK:          e.OK(),
		SampleCount: e.SampleCount,
	}
	if e.Err != nil {
		ev.Error = SanitizeUTF8(e.Err.Error())
	}
	return ev
}

// SanitizeUTF8 drops invalid byte sequences. Exchange error bodies sometimes
// carry them and Kafka consumers decoding JSON reject them.
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
