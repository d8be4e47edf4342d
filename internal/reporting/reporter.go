package reporting

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"gapsentry/internal/domain/decision"
	"gapsentry/pkg/logger"
)

// Reporter is the human-facing channel for cycle decisions and persistence events.
// Implementations must not block the evaluation loop for long and never fail it.
type Reporter interface {
	ReportDecision(ctx context.Context, d decision.Decision)
	ReportPersistence(ctx context.Context, e decision.PersistenceEvent)
}

// FormatDecision renders one human readable line per decision
func FormatDecision(d decision.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", d.Symbol, d.Status)

	if d.Gap != nil {
		fmt.Fprintf(&b, " | %s gap %s [%s, %s]",
			d.Gap.Direction, d.Gap.Timeframe.Interval, price(d.Gap.LowerBound), price(d.Gap.UpperBound))
		fmt.Fprintf(&b, " | p=%.3f %s", d.Probability, allowedWord(d.Allowed))
	}
	if d.Plan != nil {
		fmt.Fprintf(&b, " | entry %s stop %s target %s",
			price(d.Plan.EntryPrice), price(d.Plan.StopPrice), price(d.Plan.TargetPrice))
	}
	if d.OrderID != "" {
		fmt.Fprintf(&b, " | order %s", d.OrderID)
	}
	if d.OrderError != "" {
		fmt.Fprintf(&b, " | order failed: %s", d.OrderError)
	}
	if d.Outcome != nil {
		fmt.Fprintf(&b, " | simulated %s", d.Outcome)
		if d.Learned {
			fmt.Fprintf(&b, " (learned, %s samples)", humanize.Comma(d.SampleCount))
		}
	}
	if d.Reason != "" {
		fmt.Fprintf(&b, " | %s", d.Reason)
	}
	return b.String()
}

// FormatPersistence renders one human readable line per persistence event
func FormatPersistence(e decision.PersistenceEvent) string {
	if e.OK() {
		return fmt.Sprintf("classifier %s via %s ok (%s samples)", e.Operation, e.Backend, humanize.Comma(e.SampleCount))
	}
	return fmt.Sprintf("classifier %s via %s FAILED: %v (in-memory state kept, %s samples)",
		e.Operation, e.Backend, e.Err, humanize.Comma(e.SampleCount))
}

func allowedWord(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "blocked"
}

func price(v float64) string {
	return humanize.CommafWithDigits(v, 8)
}

// LogReporter writes decision lines to the structured logger
type LogReporter struct {
	log *logger.Logger
}

// NewLogReporter creates a reporter backed by the global logger
func NewLogReporter() *LogReporter {
	return &LogReporter{log: logger.Get().With("component", "reporter")}
}

func (r *LogReporter) ReportDecision(_ context.Context, d decision.Decision) {
	r.log.Infow(FormatDecision(d),
		"symbol", d.Symbol,
		"status", string(d.Status),
		"probability", d.Probability,
		"allowed", d.Allowed,
	)
}

func (r *LogReporter) ReportPersistence(_ context.Context, e decision.PersistenceEvent) {
	if e.OK() {
		r.log.Infow(FormatPersistence(e), "operation", e.Operation, "backend", e.Backend)
		return
	}
	r.log.Warnw(FormatPersistence(e), "operation", e.Operation, "backend", e.Backend, "error", e.Err)
}

// Multi fans reports out to several reporters
type Multi []Reporter

func (m Multi) ReportDecision(ctx context.Context, d decision.Decision) {
	for _, r := range m {
		r.ReportDecision(ctx, d)
	}
}

func (m Multi) ReportPersistence(ctx context.Context, e decision.PersistenceEvent) {
	for _, r := range m {
		r.ReportPersistence(ctx, e)
	}
}
