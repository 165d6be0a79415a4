package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow(t *testing.T) {
	motion := MotionEvent{Magnitude: 18000, Severity: SeverityCritical, Light: 1200, At: 1500 * time.Millisecond}
	env := EnvironmentEvent{Light: 3500, At: 2 * time.Second}

	assert.Equal(t, LegacyRow{TimeMs: 1500, Shock: 18000, Light: 1200}, Row(motion))
	assert.Equal(t, LegacyRow{TimeMs: 2000, Shock: 0, Light: 3500}, Row(env))
	assert.Equal(t, "2000,0,3500", Row(env).String())
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(MotionEvent{Magnitude: 1, Severity: SeverityAlert}))
	assert.NoError(t, Validate(EnvironmentEvent{}))
	assert.Error(t, Validate(MotionEvent{Magnitude: 0, Severity: SeverityAlert}), "zero magnitude collides with the environment marker")
	assert.Error(t, Validate(MotionEvent{Magnitude: 10}), "severity required")
	assert.Error(t, Validate(nil))
}

func TestSeverityRoundTrip(t *testing.T) {
	for _, s := range []Severity{SeverityNone, SeverityAlert, SeverityCritical} {
		got, err := ParseSeverity(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseSeverity("catastrophic")
	assert.Error(t, err)
}

func TestEnvironmentStrings(t *testing.T) {
	assert.Equal(t, "tunnel", Tunnel.String())
	assert.Equal(t, "IN TUNNEL", Tunnel.Label())
	assert.Equal(t, "OUTDOORS", Outdoors.Label())

	got, err := ParseEnvironment("outdoors")
	require.NoError(t, err)
	assert.Equal(t, Outdoors, got)
	_, err = ParseEnvironment("cave")
	assert.Error(t, err)
}

func TestMemorySink(t *testing.T) {
	sink := &MemorySink{}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = sink.Append(ctx, MotionEvent{Magnitude: 9001, Severity: SeverityAlert})
		}()
		go func() {
			defer wg.Done()
			_ = sink.Append(ctx, EnvironmentEvent{Light: 3100})
		}()
	}
	wg.Wait()

	assert.Len(t, sink.Records(), 100)
	assert.Equal(t, 50, sink.Count(KindMotion))
	assert.Equal(t, 50, sink.Count(KindEnvironment))

	sink.Err = errors.New("disk full")
	assert.Error(t, sink.Append(ctx, EnvironmentEvent{}))
	assert.Error(t, sink.Append(ctx, MotionEvent{}), "invalid records are rejected before storage")
	assert.Len(t, sink.Records(), 100)
}
