// Package envstate is the single-writer cell through which the light loop
// publishes the ambient environment to the motion loop.
//
// New hands out a Writer and a Reader over the same cell. Only the Writer has
// mutating methods, so giving a task just the Reader makes it a reader by
// construction. Every field is an independent atomic word: a reader may see a
// new environment paired with the previous light level, which only affects
// the context tagged onto a record.
package envstate

import (
	"sync/atomic"

	"github.com/banshee-data/citysense/internal/events"
)

type cell struct {
	tunnel      atomic.Bool
	light       atomic.Uint32
	transitions atomic.Uint64
}

// Writer is the mutating half. Exactly one goroutine should hold it.
type Writer struct {
	c *cell
}

// Reader is the read-only half. It is a value type and may be copied freely.
type Reader struct {
	c *cell
}

// New creates a cell holding initial and returns its two halves.
func New(initial events.Environment) (*Writer, Reader) {
	c := &cell{}
	c.tunnel.Store(bool(initial))
	return &Writer{c: c}, Reader{c: c}
}

// Set stores the environment. It reports whether the stored value changed and
// counts the change as a transition.
func (w *Writer) Set(env events.Environment) bool {
	if w.c.tunnel.Swap(bool(env)) == bool(env) {
		return false
	}
	w.c.transitions.Add(1)
	return true
}

// PublishLight stores the most recent ambient light reading.
func (w *Writer) PublishLight(level uint32) {
	w.c.light.Store(level)
}

// Reader returns a read-only view of the same cell.
func (w *Writer) Reader() Reader {
	return Reader{c: w.c}
}

// Environment loads the current environment.
func (r Reader) Environment() events.Environment {
	return events.Environment(r.c.tunnel.Load())
}

// Light loads the last published light reading, 0 before the first one.
func (r Reader) Light() uint32 {
	return r.c.light.Load()
}

// Transitions returns how many times the environment has changed since New.
func (r Reader) Transitions() uint64 {
	return r.c.transitions.Load()
}

// Snapshot is a point-in-time copy for reporting.
type Snapshot struct {
	Environment events.Environment `json:"-"`
	Label       string             `json:"environment"`
	Light       uint32             `json:"light"`
	Transitions uint64             `json:"transitions"`
}

// Snapshot loads every field. The loads are not mutually atomic.
func (r Reader) Snapshot() Snapshot {
	env := r.Environment()
	return Snapshot{
		Environment: env,
		Label:       env.String(),
		Light:       r.Light(),
		Transitions: r.Transitions(),
	}
}
