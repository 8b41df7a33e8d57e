package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDrainReverseOrder(t *testing.T) {
	r := New()
	var disposed []Kind
	var mu sync.Mutex
	record := func(k Kind) func(any) error {
		return func(any) error {
			mu.Lock()
			disposed = append(disposed, k)
			mu.Unlock()
			return nil
		}
	}

	kinds := []Kind{KindComputeProvider, KindInstance, KindSSH, KindSyncSession, KindTunnels, KindKeyMaterial}
	for _, k := range kinds {
		r.Register(k, string(k), nil, record(k))
	}

	handles := r.Drain()
	require.Len(t, handles, len(kinds))
	for i := range handles {
		assert.Equal(t, kinds[i], handles[i].Kind)
	}

	// Dispose in reverse as the Cleanup Coordinator does.
	for i := len(handles) - 1; i >= 0; i-- {
		require.NoError(t, handles[i].Dispose(handles[i].Payload))
	}
	for i, k := range kinds {
		assert.Equal(t, k, disposed[len(disposed)-1-i])
	}
}

func TestDrainIsEmptyAfterward(t *testing.T) {
	r := New()
	r.Register(KindSSH, "ssh", nil, func(any) error { return nil })
	require.Len(t, r.Drain(), 1)
	assert.Empty(t, r.Drain())
	assert.Equal(t, 0, r.Len())
}

func TestDuplicateKindSupersedes(t *testing.T) {
	r := New()
	r.Register(KindInstance, "first", nil, func(any) error { return nil })
	r.Register(KindInstance, "second", nil, func(any) error { return nil })
	handles := r.Drain()
	require.Len(t, handles, 1)
	assert.Equal(t, "second", handles[0].Label)
}

func TestConcurrentRegister(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Register(Kind(fmt.Sprintf("k%d", i)), "", nil, func(any) error { return nil })
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}
