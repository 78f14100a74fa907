package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher delivers domain events to subscribers outside the process.
type Publisher interface {
	Publish(ctx context.Context, ev DomainEvent) error
}

// RedisPublisher publishes domain events on a per-tenant pub/sub channel.
type RedisPublisher struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisPublisher creates a publisher writing to "<prefix>:<tenant>".
func NewRedisPublisher(client redis.UniversalClient, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel returns the channel events of the tenant are published on.
func (p *RedisPublisher) Channel(tenantID string) string {
	return p.prefix + ":" + tenantID
}

func (p *RedisPublisher) Publish(ctx context.Context, ev DomainEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Type, err)
	}
	if err := p.client.Publish(ctx, p.Channel(ev.TenantID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", ev.Type, err)
	}
	return nil
}

// LogPublisher writes domain events to the log. It is used when no Redis
// address is configured.
type LogPublisher struct {
	log *zap.Logger
}

// NewLogPublisher creates a log-only publisher.
func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, ev DomainEvent) error {
	p.log.Info("Domain event",
		zap.String("type", ev.Type),
		zap.String("tenant_id", ev.TenantID),
		zap.String("equipment_id", ev.EquipmentID),
		zap.String("downtime_id", ev.DowntimeID),
		zap.String("work_order_id", ev.WorkOrderID),
		zap.String("action", ev.Action),
		zap.String("from", ev.From),
		zap.String("to", ev.To),
		zap.Time("timestamp", ev.Timestamp),
	)
	return nil
}
