// internal/eventlog/eventlog.go
package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"librocirc/internal/store"
)

// Event is one row of the append-only audit log. Rows are written inside
// the transaction that performed the state change, so the log never
// records a mutation that was rolled back.
type Event struct {
	ID            int64           `json:"id" db:"id"`
	AggregateID   uuid.UUID       `json:"aggregate_id" db:"aggregate_id"`
	AggregateType string          `json:"aggregate_type" db:"aggregate_type"`
	EventType     string          `json:"event_type" db:"event_type"`
	EventData     json.RawMessage `json:"event_data" db:"event_data"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// Log appends and reads domain events.
type Log struct {
	tracer trace.Tracer
}

func NewLog() *Log {
	return &Log{tracer: otel.Tracer("librocirc/eventlog")}
}

// Append records one event. q is typically the caller's open transaction.
func (l *Log) Append(ctx context.Context, q store.Querier, aggregateID uuid.UUID, aggregateType, eventType string, payload any) error {
	ctx, span := l.tracer.Start(ctx, "eventlog.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.String("event.type", eventType),
		),
	)
	defer span.End()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO events (aggregate_id, aggregate_type, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, aggregateID, aggregateType, eventType, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListByAggregate returns all events for one aggregate in append order.
func (l *Log) ListByAggregate(ctx context.Context, q store.Querier, aggregateID uuid.UUID) ([]Event, error) {
	events := []Event{}
	err := q.SelectContext(ctx, &events, `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, created_at
		FROM events
		WHERE aggregate_id = $1
		ORDER BY id
	`, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}
