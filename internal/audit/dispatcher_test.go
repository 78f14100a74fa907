package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mes-execution-backend/internal/model"
)

type fakeSink struct {
	mu      sync.Mutex
	entries []*model.AuditLog
	err     error
}

func (s *fakeSink) WriteAuditLog(_ context.Context, entry *model.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []DomainEvent
}

func (p *fakePublisher) Publish(_ context.Context, ev DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestDispatcher_Delivers(t *testing.T) {
	sink := &fakeSink{}
	pub := &fakePublisher{}
	d := NewDispatcher(2, 16, sink, pub, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Audit(ctx, Record{
		TenantID:    "t1",
		Action:      "downtime.open",
		EntityType:  EntityDowntime,
		EntityID:    "D-1",
		New:         map[string]string{"equipmentId": "E1"},
		ActorUserID: "u1",
	})
	d.Publish(ctx, DomainEvent{Type: EventDowntimeOpened, TenantID: "t1", EquipmentID: "E1", DowntimeID: "D-1"})

	require.Eventually(t, func() bool { return sink.count() == 1 && pub.count() == 1 }, time.Second, 10*time.Millisecond)

	entry := sink.entries[0]
	assert.Equal(t, "t1", entry.TenantID)
	assert.Equal(t, "downtime.open", entry.Action)
	assert.True(t, entry.Success)
	assert.JSONEq(t, `{"equipmentId":"E1"}`, entry.NewValue)
	assert.Empty(t, entry.OldValue)
	assert.False(t, entry.Timestamp.IsZero())
	assert.False(t, pub.events[0].Timestamp.IsZero())
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	d := NewDispatcher(1, 1, &fakeSink{}, &fakePublisher{}, zap.NewNop())

	// No workers are started, so the second job cannot be queued.
	d.Audit(context.Background(), Record{Action: "a"})
	d.Audit(context.Background(), Record{Action: "b"})

	assert.Len(t, d.jobs, 1)
	j := <-d.jobs
	assert.Equal(t, "a", j.record.Action)
}

func TestDispatcher_Drain(t *testing.T) {
	sink := &fakeSink{}
	pub := &fakePublisher{}
	d := NewDispatcher(1, 4, sink, pub, zap.NewNop())

	d.Audit(context.Background(), Record{Action: "downtime.open"})
	d.Publish(context.Background(), DomainEvent{Type: EventDowntimeOpened})

	assert.Equal(t, 2, d.Drain())
	assert.Equal(t, 1, sink.count())
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, 0, d.Drain())
}

func TestDispatcher_SinkFailureIsSwallowed(t *testing.T) {
	sink := &fakeSink{err: errors.New("db down")}
	pub := &fakePublisher{}
	d := NewDispatcher(1, 4, sink, pub, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Audit(ctx, Record{Action: "workorder.create"})
	d.Publish(ctx, DomainEvent{Type: EventWorkOrderTransitioned})

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, sink.count())
}

func TestToAuditLog_Failure(t *testing.T) {
	entry := ToAuditLog(Record{
		TenantID:    "t1",
		Action:      "workresult.record",
		EntityType:  EntityWorkResult,
		ActorUserID: "u1",
		Err:         errors.New("validation: quantity mismatch"),
	})

	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Success)
	assert.Equal(t, "validation: quantity mismatch", entry.Error)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	m.Publish(context.Background(), DomainEvent{Type: EventDowntimeOpened})
	m.Publish(context.Background(), DomainEvent{Type: EventDowntimeResolved})
	m.Audit(context.Background(), Record{Action: "x"})

	assert.Len(t, m.EventsOfType(EventDowntimeResolved), 1)
	assert.Len(t, m.Records(), 1)
}
