package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/newtron-network/routevnf/pkg/model"
	"github.com/newtron-network/routevnf/pkg/util"
)

// Batcher drains the mutation queue. Consecutive mutations of the same
// action are sent in one remote call; a batch is flushed when the action
// changes or the queue runs empty. Remote calls are made without the
// state lock, which is taken only to apply their results.
type Batcher struct {
	mgr    *Manager
	remote Remote
	lock   sync.Locker
	obs    Observer

	// issued maps mutation serials to the identifiers returned by create
	// flushes, so deletes queued before the create completed can name
	// their route. Only the Run goroutine touches it.
	issued map[uint64]string

	pending []Mutation
}

// NewBatcher creates a batcher for the manager's queue. lock is the state
// lock shared with the event consumer. obs may be nil.
func NewBatcher(mgr *Manager, remote Remote, lock sync.Locker, obs Observer) *Batcher {
	if obs == nil {
		obs = Observers(nil)
	}
	return &Batcher{
		mgr:    mgr,
		remote: remote,
		lock:   lock,
		obs:    obs,
		issued: make(map[uint64]string),
	}
}

// Run consumes the queue until ctx is done or a flush fails.
func (b *Batcher) Run(ctx context.Context) error {
	for {
		mut, err := b.mgr.queue.Pop(ctx)
		if err != nil {
			return err
		}
		if err := b.handle(ctx, mut); err != nil {
			return err
		}
	}
}

func (b *Batcher) handle(ctx context.Context, mut Mutation) error {
	if len(b.pending) > 0 && b.pending[0].Action != mut.Action {
		if err := b.flushPending(ctx); err != nil {
			return err
		}
	}
	b.pending = append(b.pending, mut)

	if b.mgr.queue.Len() == 0 {
		return b.flushPending(ctx)
	}
	return nil
}

func (b *Batcher) flushPending(ctx context.Context) error {
	batch := b.pending
	b.pending = nil
	return b.flush(ctx, batch)
}

func (b *Batcher) flush(ctx context.Context, batch []Mutation) error {
	if len(batch) == 0 {
		return nil
	}
	action := batch[0].Action
	start := time.Now()

	var (
		routes []model.Route
		err    error
	)
	switch action {
	case Create:
		routes, err = b.create(ctx, batch)
	case Delete:
		routes, err = b.delete(ctx, batch)
	default:
		err = fmt.Errorf("routing: unknown action %d", action)
	}

	report := Batch{Action: action, Routes: routes, Err: err, Duration: time.Since(start)}
	if err != nil {
		b.obs.BatchFlushed(report)
		return err
	}

	b.lock.Lock()
	err = b.apply(action, routes, batch)
	report.Installed, report.Missing = b.mgr.table.Counts()
	b.lock.Unlock()

	b.obs.BatchFlushed(report)
	return err
}

func (b *Batcher) create(ctx context.Context, batch []Mutation) ([]model.Route, error) {
	routes := make([]model.Route, len(batch))
	for i, mut := range batch {
		routes[i] = mut.Route.WithID("")
	}
	util.Infof("Creating %d routes", len(routes))

	created, err := b.remote.AddRoutes(ctx, routes)
	if err != nil {
		return routes, fmt.Errorf("routing: add %d routes: %w", len(routes), err)
	}
	if len(created) != len(routes) {
		return routes, fmt.Errorf("routing: add %d routes: controller returned %d ids: %w",
			len(routes), len(created), util.ErrRemote)
	}
	for i := range routes {
		routes[i] = routes[i].WithID(created[i].ID)
	}
	return routes, nil
}

func (b *Batcher) delete(ctx context.Context, batch []Mutation) ([]model.Route, error) {
	routes := make([]model.Route, len(batch))
	var send []model.Route
	for i, mut := range batch {
		r := mut.Route
		if r.ID == "" && mut.Serial != 0 {
			r = r.WithID(b.issued[mut.Serial])
		}
		routes[i] = r
		if r.ID == "" {
			util.WithField("route", r.String()).Warn("Route has no controller id, skipping remote delete")
			continue
		}
		send = append(send, r)
	}
	if len(send) == 0 {
		return routes, nil
	}
	util.Infof("Deleting %d routes", len(send))

	if err := b.remote.DeleteRoutes(ctx, send); err != nil {
		return routes, fmt.Errorf("routing: delete %d routes: %w", len(send), err)
	}
	return routes, nil
}

// apply records a successful flush in the table and runs the batch's
// callbacks. The state lock must be held.
func (b *Batcher) apply(action Action, routes []model.Route, batch []Mutation) error {
	for i, r := range routes {
		serial := batch[i].Serial
		switch action {
		case Create:
			if serial != 0 {
				b.issued[serial] = r.ID
			}
			b.mgr.created(r, serial)
		case Delete:
			delete(b.issued, serial)
			b.mgr.deleted(r, serial)
		}
	}

	for _, mut := range batch {
		if mut.Callback == nil {
			continue
		}
		if err := mut.Callback(); err != nil {
			return err
		}
	}
	return nil
}
