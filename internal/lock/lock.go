// Package lock serializes mutations per aggregate inside one process.
package lock

import (
	"github.com/EagleChen/mapmutex"

	"mes-execution-backend/internal/apperr"
)

// Config tunes the retry budget of TryLock. Delays are in nanoseconds, as
// mapmutex expects them.
type Config struct {
	MaxRetry  int
	MaxDelay  float64
	BaseDelay float64
	Factor    float64
	Jitter    float64
}

// DefaultConfig gives up after roughly two seconds of contention.
func DefaultConfig() Config {
	return Config{
		MaxRetry:  200,
		MaxDelay:  100000000, // 0.1s
		BaseDelay: 10,
		Factor:    1.1,
		Jitter:    0.2,
	}
}

// Keyed hands out per-key locks.
type Keyed struct {
	m *mapmutex.Mutex
}

// New creates a Keyed lock set.
func New(cfg Config) *Keyed {
	if cfg.MaxRetry <= 0 {
		cfg = DefaultConfig()
	}
	return &Keyed{m: mapmutex.NewCustomizedMapMutex(cfg.MaxRetry, cfg.MaxDelay, cfg.BaseDelay, cfg.Factor, cfg.Jitter)}
}

// WorkOrderKey is the lock key of a work order aggregate.
func WorkOrderKey(tenantID, workOrderID string) string {
	return "workorder/" + tenantID + "/" + workOrderID
}

// EquipmentKey is the lock key of an equipment's downtime ledger.
func EquipmentKey(tenantID, equipmentID string) string {
	return "equipment/" + tenantID + "/" + equipmentID
}

// Acquire takes the lock for key or fails with a retryable Conflict once the
// retry budget is spent. The returned func releases the lock.
func (k *Keyed) Acquire(key string) (func(), error) {
	if !k.m.TryLock(key) {
		return nil, apperr.Conflict("%s is busy, retry later", key)
	}
	return func() { k.m.Unlock(key) }, nil
}
