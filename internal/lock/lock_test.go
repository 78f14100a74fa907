package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mes-execution-backend/internal/apperr"
)

func TestAcquireSerializesSameKey(t *testing.T) {
	locks := New(DefaultConfig())
	key := WorkOrderKey("t1", "wo-1")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(key)
			if err != nil {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestAcquireFailsWithConflictWhenHeld(t *testing.T) {
	locks := New(Config{MaxRetry: 2, MaxDelay: 1000, BaseDelay: 10, Factor: 1.1, Jitter: 0.2})
	key := EquipmentKey("t1", "E1")

	release, err := locks.Acquire(key)
	require.NoError(t, err)

	_, err = locks.Acquire(key)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	release()
	release2, err := locks.Acquire(key)
	require.NoError(t, err)
	release2()

	other, err := locks.Acquire(EquipmentKey("t1", "E2"))
	require.NoError(t, err, "different keys do not contend")
	other()
}
