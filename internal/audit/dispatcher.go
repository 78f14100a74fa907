package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mes-execution-backend/internal/metrics"
	"mes-execution-backend/internal/model"
)

// Sink persists audit log rows.
type Sink interface {
	WriteAuditLog(ctx context.Context, entry *model.AuditLog) error
}

type job struct {
	record *Record
	event  *DomainEvent
}

// Dispatcher is an Emitter backed by a bounded queue and a pool of workers that
// write audit rows to the sink and hand domain events to the publisher.
type Dispatcher struct {
	size      int
	jobs      chan job
	sink      Sink
	publisher Publisher
	log       *zap.Logger
	timeout   time.Duration
}

// NewDispatcher creates a dispatcher with size workers and a queue of queueSize
// jobs.
func NewDispatcher(size, queueSize int, sink Sink, publisher Publisher, log *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &Dispatcher{
		size:      size,
		jobs:      make(chan job, queueSize),
		sink:      sink,
		publisher: publisher,
		log:       log,
		timeout:   5 * time.Second,
	}
}

// Start launches the worker goroutines. They stop when ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		go d.worker(ctx, i)
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	d.log.Debug("Audit worker started", zap.Int("worker", id))
	for {
		select {
		case j := <-d.jobs:
			d.handle(j)
		case <-ctx.Done():
			d.log.Debug("Audit worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Drain delivers the jobs still queued and returns how many it handled. Call it
// after the workers were stopped.
func (d *Dispatcher) Drain() int {
	n := 0
	for {
		select {
		case j := <-d.jobs:
			d.handle(j)
			n++
		default:
			return n
		}
	}
}

// Audit queues rec. The request context is not kept: delivery outlives the
// request.
func (d *Dispatcher) Audit(_ context.Context, rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	d.enqueue(job{record: &rec})
}

// Publish queues ev.
func (d *Dispatcher) Publish(_ context.Context, ev DomainEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	d.enqueue(job{event: &ev})
}

func (d *Dispatcher) enqueue(j job) {
	select {
	case d.jobs <- j:
	default:
		metrics.AuditDropped.WithLabelValues("queue_full").Inc()
		if j.record != nil {
			d.log.Warn("Audit queue full, dropping record",
				zap.String("action", j.record.Action),
				zap.String("entity_id", j.record.EntityID))
		} else {
			d.log.Warn("Audit queue full, dropping domain event",
				zap.String("type", j.event.Type),
				zap.String("tenant_id", j.event.TenantID))
		}
	}
}

func (d *Dispatcher) handle(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if j.record != nil {
		entry := ToAuditLog(*j.record)
		if err := d.sink.WriteAuditLog(ctx, entry); err != nil {
			metrics.AuditDropped.WithLabelValues("sink_error").Inc()
			d.log.Error("Failed to write audit log",
				zap.String("action", entry.Action),
				zap.String("entity_id", entry.EntityID),
				zap.Error(err))
		}
	}
	if j.event != nil {
		if err := d.publisher.Publish(ctx, *j.event); err != nil {
			metrics.AuditDropped.WithLabelValues("publish_error").Inc()
			d.log.Error("Failed to publish domain event",
				zap.String("type", j.event.Type),
				zap.String("tenant_id", j.event.TenantID),
				zap.Error(err))
		}
	}
}

// ToAuditLog converts rec into its persisted form.
func ToAuditLog(rec Record) *model.AuditLog {
	entry := &model.AuditLog{
		ID:          uuid.NewString(),
		TenantID:    rec.TenantID,
		Action:      rec.Action,
		EntityType:  rec.EntityType,
		EntityID:    rec.EntityID,
		OldValue:    encode(rec.Old),
		NewValue:    encode(rec.New),
		ActorUserID: rec.ActorUserID,
		Success:     rec.Success(),
		Timestamp:   rec.Timestamp,
	}
	if rec.Err != nil {
		entry.Error = rec.Err.Error()
	}
	return entry
}

func encode(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
