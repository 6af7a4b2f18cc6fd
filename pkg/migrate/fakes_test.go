package migrate

import (
	"context"
	"fmt"
	"sync"

	"github.com/mbenali/docmigrate/pkg/progress"
	"github.com/mbenali/docmigrate/pkg/store"
)

// fakeContainer is an in-memory store.Container. Records are kept in
// insertion order so scans are deterministic.
type fakeContainer struct {
	name string
	key  string

	mu    sync.Mutex
	order []string
	recs  map[string]store.Record

	// upsertHook, when set, runs before each write and can veto it.
	upsertHook func(store.Record) error
}

func newFakeContainer(name string, ids ...string) *fakeContainer {
	c := &fakeContainer{
		name: name,
		key:  "fake/" + name,
		recs: make(map[string]store.Record),
	}
	for _, id := range ids {
		c.put(store.Record{"_id": id})
	}
	return c
}

// seq fills a container with n records id "0".."n-1".
func (c *fakeContainer) seq(n int) *fakeContainer {
	for i := 0; i < n; i++ {
		c.put(store.Record{"_id": fmt.Sprintf("%d", i)})
	}
	return c
}

func (c *fakeContainer) put(rec store.Record) {
	id := rec.ID()
	if _, ok := c.recs[id]; !ok {
		c.order = append(c.order, id)
	}
	c.recs[id] = rec
}

func (c *fakeContainer) Name() string { return c.name }
func (c *fakeContainer) Key() string  { return c.key }

func (c *fakeContainer) Count(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.recs)), nil
}

func (c *fakeContainer) Scan(ctx context.Context) (store.Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]store.Record, 0, len(c.order))
	for _, id := range c.order {
		snapshot = append(snapshot, c.recs[id])
	}
	return &fakeCursor{recs: snapshot}, nil
}

func (c *fakeContainer) Upsert(ctx context.Context, rec store.Record) error {
	c.mu.Lock()
	hook := c.upsertHook
	c.mu.Unlock()
	if hook != nil {
		if err := hook(rec); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(rec)
	return nil
}

type fakeCursor struct {
	recs []store.Record
	pos  int
	err  error
}

func (c *fakeCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	if c.pos >= len(c.recs) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Record() store.Record            { return c.recs[c.pos-1] }
func (c *fakeCursor) Err() error                      { return c.err }
func (c *fakeCursor) Close(ctx context.Context) error { return nil }

// captureReporter records every emitted event and can react to them, which
// is how the cancellation tests trip mid-run.
type captureReporter struct {
	mu      sync.Mutex
	events  []progress.Event
	onEvent func(progress.Event)
}

func (r *captureReporter) Emit(ev progress.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	hook := r.onEvent
	r.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
}

func (r *captureReporter) all() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

func (r *captureReporter) batches() []progress.BatchCompleted {
	var out []progress.BatchCompleted
	for _, ev := range r.all() {
		if b, ok := ev.(progress.BatchCompleted); ok {
			out = append(out, b)
		}
	}
	return out
}

func (r *captureReporter) errors() []progress.ErrorOccurred {
	var out []progress.ErrorOccurred
	for _, ev := range r.all() {
		if e, ok := ev.(progress.ErrorOccurred); ok {
			out = append(out, e)
		}
	}
	return out
}
