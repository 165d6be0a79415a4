package envstate

import (
	"sync"
	"testing"

	"github.com/banshee-data/citysense/internal/events"
	"github.com/stretchr/testify/assert"
)

func TestNew_Initial(t *testing.T) {
	_, r := New(events.Tunnel)
	assert.Equal(t, events.Tunnel, r.Environment())
	assert.Zero(t, r.Light())
	assert.Zero(t, r.Transitions())
}

func TestWriter_SetCountsEdgesOnly(t *testing.T) {
	w, r := New(events.Outdoors)

	assert.False(t, w.Set(events.Outdoors), "same value is not a transition")
	assert.True(t, w.Set(events.Tunnel))
	assert.False(t, w.Set(events.Tunnel))
	assert.True(t, w.Set(events.Outdoors))

	assert.Equal(t, events.Outdoors, r.Environment())
	assert.Equal(t, uint64(2), r.Transitions())
}

func TestWriter_ReaderSharesCell(t *testing.T) {
	w, _ := New(events.Outdoors)
	r := w.Reader()

	w.PublishLight(3500)
	w.Set(events.Tunnel)

	snap := r.Snapshot()
	assert.Equal(t, events.Tunnel, snap.Environment)
	assert.Equal(t, "tunnel", snap.Label)
	assert.Equal(t, uint32(3500), snap.Light)
	assert.Equal(t, uint64(1), snap.Transitions)
}

// Run with -race: one writer toggling while several readers poll.
func TestConcurrentReaders(t *testing.T) {
	w, r := New(events.Outdoors)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = r.Environment()
					_ = r.Light()
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		w.PublishLight(uint32(i))
		w.Set(events.Environment(i%2 == 0))
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, uint64(1000), r.Transitions())
	assert.Equal(t, uint32(999), r.Light())
}
