package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// matchMetrics 매칭 카운터. MeterProvider가 설정되지 않았으면 no-op.
type matchMetrics struct {
	matches        metric.Int64Counter
	queued         metric.Int64Counter
	claimConflicts metric.Int64Counter
	skips          metric.Int64Counter
	ended          metric.Int64Counter
	purged         metric.Int64Counter
}

func newMatchMetrics() *matchMetrics {
	meter := otel.Meter("anonchat-matchmaking")

	m := &matchMetrics{}
	m.matches, _ = meter.Int64Counter("anonchat_matches_total",
		metric.WithDescription("Conversations created by the matcher"))
	m.queued, _ = meter.Int64Counter("anonchat_queued_total",
		metric.WithDescription("Join attempts that ended in the waiting pool"))
	m.claimConflicts, _ = meter.Int64Counter("anonchat_claim_conflicts_total",
		metric.WithDescription("Claims lost to a concurrent matcher"))
	m.skips, _ = meter.Int64Counter("anonchat_skips_total",
		metric.WithDescription("Skip requests"))
	m.ended, _ = meter.Int64Counter("anonchat_conversations_ended_total",
		metric.WithDescription("Conversations ended by skip, leave or timeout"))
	m.purged, _ = meter.Int64Counter("anonchat_entries_purged_total",
		metric.WithDescription("Stale waiting entries removed by the sweeper"))
	return m
}

func (m *matchMetrics) add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}
