package audit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRedisPublisher_Channel(t *testing.T) {
	p := NewRedisPublisher(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "mes:events")
	assert.Equal(t, "mes:events:t1", p.Channel("t1"))
}

func TestRedisPublisher_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	p := NewRedisPublisher(client, "mes:events")
	err := p.Publish(context.Background(), DomainEvent{Type: EventDowntimeOpened, TenantID: "t1"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish DowntimeOpened event")
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(zap.NewNop())
	assert.NoError(t, p.Publish(context.Background(), DomainEvent{Type: EventWorkOrderTransitioned, TenantID: "t1"}))
}
