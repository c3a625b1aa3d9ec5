// Package events fans task change notifications out to live subscribers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/taskdesk/internal/domain"
	"github.com/aryan0dhankhar/taskdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/taskdesk/internal/reliability/circuitbreaker"
)

// Channel is the Redis pub/sub channel task events travel on
const Channel = "taskdesk:task-events"

// Type of change
type Type string

const (
	TaskCreated Type = "task.created"
	TaskUpdated Type = "task.updated"
	TaskDeleted Type = "task.deleted"
)

// TaskEvent describes a change. It carries enough of the task for
// subscribers to re-run visibility checks, but never the report.
type TaskEvent struct {
	Type            Type              `json:"type"`
	TaskID          int64             `json:"task_id"`
	Title           string            `json:"title"`
	AssignedTo      int64             `json:"assigned_to"`
	AssigneeAdminID *int64            `json:"assignee_admin_id,omitempty"`
	Status          domain.TaskStatus `json:"status"`
	ActorID         int64             `json:"actor_id"`
	At              time.Time         `json:"at"`
}

// NewTaskEvent snapshots t for an event of the given type
func NewTaskEvent(typ Type, t *domain.Task, actorID int64) TaskEvent {
	return TaskEvent{
		Type:            typ,
		TaskID:          t.ID,
		Title:           t.Title,
		AssignedTo:      t.AssignedTo,
		AssigneeAdminID: t.AssigneeAdminID,
		Status:          t.Status,
		ActorID:         actorID,
		At:              time.Now().UTC(),
	}
}

// Task rebuilds the subset of the task needed for authorization checks
func (e TaskEvent) Task() *domain.Task {
	return &domain.Task{
		ID:              e.TaskID,
		Title:           e.Title,
		AssignedTo:      e.AssignedTo,
		AssigneeAdminID: e.AssigneeAdminID,
		Status:          e.Status,
	}
}

// Publisher is what the task service notifies after a committed change
type Publisher interface {
	Publish(ctx context.Context, event TaskEvent)
}

// Subscriber yields events until ctx is cancelled
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan TaskEvent, error)
}

// PubSub is the transport, satisfied by the Redis client
type PubSub interface {
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (<-chan string, error)
}

// Bus publishes and subscribes over a PubSub transport. Publishing is
// best effort: failures are logged and counted, never returned.
type Bus struct {
	transport PubSub
	breaker   *circuitbreaker.CircuitBreaker
	logger    *slog.Logger
}

// NewBus creates a bus guarded by a circuit breaker
func NewBus(transport PubSub, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	cb := circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
	cb.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("event bus circuit changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	return &Bus{transport: transport, breaker: cb, logger: logger}
}

// Publish implements Publisher
func (b *Bus) Publish(ctx context.Context, event TaskEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to encode task event", slog.String("error", err.Error()))
		return
	}

	err = b.breaker.Execute(func() error {
		return b.transport.Publish(ctx, Channel, string(payload))
	})
	if err != nil {
		metrics.ObserveEvent(string(event.Type), "error")
		b.logger.Warn("failed to publish task event",
			slog.String("type", string(event.Type)),
			slog.Int64("task_id", event.TaskID),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.ObserveEvent(string(event.Type), "ok")
}

// Subscribe implements Subscriber
func (b *Bus) Subscribe(ctx context.Context) (<-chan TaskEvent, error) {
	raw, err := b.transport.Subscribe(ctx, Channel)
	if err != nil {
		return nil, fmt.Errorf("subscribe task events: %w", err)
	}

	out := make(chan TaskEvent, 16)
	go func() {
		defer close(out)
		for payload := range raw {
			var event TaskEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				b.logger.Warn("discarding malformed task event", slog.String("error", err.Error()))
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Nop discards events. Used when live events are switched off.
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, TaskEvent) {}
