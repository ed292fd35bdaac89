package routing

import (
	"context"
	"time"

	"github.com/newtron-network/routevnf/pkg/model"
	"github.com/newtron-network/routevnf/pkg/util"
)

// Action is the kind of change a mutation asks the controller for.
type Action int

const (
	Create Action = iota
	Delete
)

func (a Action) String() string {
	switch a {
	case Create:
		return "create"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Mutation is one queued route change. Serial names the table slot's
// route instance the change belongs to; zero means the route is not in
// the table. Callback, if set, runs under the state lock after the batch
// holding the mutation has been flushed.
type Mutation struct {
	Route    model.Route
	Action   Action
	Serial   uint64
	Callback func() error
}

// Queue is the FIFO of pending mutations.
type Queue = util.Queue[Mutation]

// NewQueue creates an empty mutation queue.
func NewQueue() *Queue {
	return util.NewQueue[Mutation]()
}

// Remote is the part of the controller the routing core calls.
type Remote interface {
	Routes(ctx context.Context) ([]model.Route, error)
	AddRoutes(ctx context.Context, routes []model.Route) ([]model.Route, error)
	DeleteRoutes(ctx context.Context, routes []model.Route) error
	ClearRoutes(ctx context.Context) error
}

// Batch describes one flush.
type Batch struct {
	Action   Action
	Routes   []model.Route
	Err      error
	Duration time.Duration

	// Table counts taken after the flush was applied.
	Installed int
	Missing   int
}

// Observer follows the route table without touching it.
type Observer interface {
	// BatchFlushed is called after every remote call, failed or not,
	// without the state lock held.
	BatchFlushed(b Batch)
	// TableSynced is called with the whole table after bootstrap, with
	// the state lock held so that no batch result is applied before it
	// returns. It must not call back into the VNF.
	TableSynced(entries []Entry)
}

// Observers fans out to several observers.
type Observers []Observer

func (o Observers) BatchFlushed(b Batch) {
	for _, obs := range o {
		obs.BatchFlushed(b)
	}
}

func (o Observers) TableSynced(entries []Entry) {
	for _, obs := range o {
		obs.TableSynced(entries)
	}
}
