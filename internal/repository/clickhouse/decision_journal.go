package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"gapsentry/internal/domain/classifier"
	"gapsentry/internal/domain/decision"
	"gapsentry/internal/metrics"
	"gapsentry/internal/reporting"
	chbatch "gapsentry/pkg/clickhouse"
	"gapsentry/pkg/errors"
	"gapsentry/pkg/logger"
)

// DecisionJournalSchema creates the per-cycle decision table
const DecisionJournalSchema = `
CREATE TABLE IF NOT EXISTS gap_decisions (
	evaluated_at  DateTime64(3, 'UTC'),
	symbol        LowCardinality(String),
	status        LowCardinality(String),
	reason        String,
	timeframe     LowCardinality(String),
	direction     LowCardinality(String),
	gap_lower     Float64,
	gap_upper     Float64,
	mid           Float64,
	spread_ticks  Float64,
	features      Array(Float64),
	probability   Float64,
	allowed       UInt8,
	entry_price   Float64,
	stop_price    Float64,
	target_price  Float64,
	order_id      String,
	order_error   String,
	outcome       LowCardinality(String),
	learned       UInt8,
	sample_count  Int64
) ENGINE = MergeTree
PARTITION BY toYYYYMM(evaluated_at)
ORDER BY (symbol, evaluated_at)`

// DecisionRow is one journal line
type DecisionRow struct {
	EvaluatedAt time.Time `ch:"evaluated_at"`
	Symbol      string    `ch:"symbol"`
	Status      string    `ch:"status"`
	Reason      string    `ch:"reason"`
	Timeframe   string    `ch:"timeframe"`
	Direction   string    `ch:"direction"`
	GapLower    float64   `ch:"gap_lower"`
	GapUpper    float64   `ch:"gap_upper"`
	Mid         float64   `ch:"mid"`
	SpreadTicks float64   `ch:"spread_ticks"`
	Features    []float64 `ch:"features"`
	Probability float64   `ch:"probability"`
	Allowed     uint8     `ch:"allowed"`
	EntryPrice  float64   `ch:"entry_price"`
	StopPrice   float64   `ch:"stop_price"`
	TargetPrice float64   `ch:"target_price"`
	OrderID     string    `ch:"order_id"`
	OrderError  string    `ch:"order_error"`
	Outcome     string    `ch:"outcome"`
	Learned     uint8     `ch:"learned"`
	SampleCount int64     `ch:"sample_count"`
}

// NewDecisionRow flattens a decision into a journal line
func NewDecisionRow(d decision.Decision) DecisionRow {
	row := DecisionRow{
		EvaluatedAt: d.EvaluatedAt,
		Symbol:      d.Symbol,
		Status:      string(d.Status),
		Reason:      d.Reason,
		Mid:         d.Mid,
		SpreadTicks: d.SpreadTicks,
		Features:    make([]float64, classifier.FeatureCount),
		Probability: d.Probability,
		Allowed:     boolToUInt8(d.Allowed),
		OrderID:     d.OrderID,
		OrderError:  d.OrderError,
		Learned:     boolToUInt8(d.Learned),
		SampleCount: d.SampleCount,
	}
	copy(row.Features, d.Features[:])

	if d.Gap != nil {
		row.Timeframe = d.Gap.Timeframe.Interval
		row.Direction = d.Gap.Direction.String()
		row.GapLower = d.Gap.LowerBound
		row.GapUpper = d.Gap.UpperBound
	}
	if d.Plan != nil {
		row.EntryPrice = d.Plan.EntryPrice
		row.StopPrice = d.Plan.StopPrice
		row.TargetPrice = d.Plan.TargetPrice
	}
	if d.Outcome != nil {
		row.Outcome = d.Outcome.String()
	}
	return row
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// Compile-time check
var _ reporting.Reporter = (*DecisionJournal)(nil)

// DecisionJournal appends every cycle decision to gap_decisions through a
// batch writer. It is a Reporter so it can sit in the reporting fan-out.
type DecisionJournal struct {
	conn   driver.Conn
	writer *chbatch.BatchWriter[DecisionRow]
	log    *logger.Logger
}

// JournalConfig sizes the journal's batches
type JournalConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// NewDecisionJournal creates a journal writing through conn
func NewDecisionJournal(conn driver.Conn, cfg JournalConfig) *DecisionJournal {
	j := &DecisionJournal{
		conn: conn,
		log:  logger.Get().With("component", "decision_journal"),
	}
	j.writer = chbatch.NewBatchWriter(chbatch.BatchWriterConfig[DecisionRow]{
		FlushFunc:    j.insert,
		TableName:    "gap_decisions",
		MaxBatchSize: cfg.BatchSize,
		MaxAge:       cfg.FlushInterval,
	})
	return j
}

// EnsureSchema creates gap_decisions if missing
func (j *DecisionJournal) EnsureSchema(ctx context.Context) error {
	return errors.Wrap(j.conn.Exec(ctx, DecisionJournalSchema), "create gap_decisions")
}

// Start begins periodic flushing until ctx ends
func (j *DecisionJournal) Start(ctx context.Context) {
	j.writer.Start(ctx)
}

// Stop flushes buffered rows
func (j *DecisionJournal) Stop(ctx context.Context) error {
	return j.writer.Stop(ctx)
}

// ReportDecision buffers the decision. Journal failures are logged, never returned.
func (j *DecisionJournal) ReportDecision(ctx context.Context, d decision.Decision) {
	if err := j.writer.Add(ctx, NewDecisionRow(d)); err != nil {
		j.log.Warnw("Journal write failed", "symbol", d.Symbol, "error", err)
	}
}

// ReportPersistence is not journaled
func (j *DecisionJournal) ReportPersistence(context.Context, decision.PersistenceEvent) {}

func (j *DecisionJournal) insert(ctx context.Context, rows []DecisionRow) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordDBQuery("clickhouse", "gap_decisions_insert", time.Since(start), err)
	}()

	batch, err := j.conn.PrepareBatch(ctx, "INSERT INTO gap_decisions")
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	for i := range rows {
		if err := batch.AppendStruct(&rows[i]); err != nil {
			return errors.Wrap(err, "failed to append decision")
		}
	}
	return batch.Send()
}
