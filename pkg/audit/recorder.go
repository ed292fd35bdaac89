package audit

import (
	"os"
	"time"

	"github.com/newtron-network/routevnf/pkg/model"
	"github.com/newtron-network/routevnf/pkg/routing"
	"github.com/newtron-network/routevnf/pkg/util"
)

// Recorder writes route mutations to an audit logger. It follows the
// batcher as a routing.Observer.
type Recorder struct {
	logger     Logger
	user       string
	controller string
}

// NewRecorder creates a recorder for changes sent to the given controller.
func NewRecorder(logger Logger, controller string) *Recorder {
	return &Recorder{
		logger:     logger,
		user:       os.Getenv("USER"),
		controller: controller,
	}
}

// Record logs one remote mutation. Logging failures are reported but
// never returned.
func (r *Recorder) Record(operation string, routes []model.Route, err error, d time.Duration) {
	event := NewEvent(operation).
		WithUser(r.user).
		WithController(r.controller).
		WithRoutes(routes).
		WithDuration(d)
	if err != nil {
		event.WithError(err)
	} else {
		event.WithSuccess()
	}
	if err := r.logger.Log(event); err != nil {
		util.Warnf("audit: writing %s event: %v", operation, err)
	}
}

// BatchFlushed records a flushed batch.
func (r *Recorder) BatchFlushed(b routing.Batch) {
	op := OpCreate
	if b.Action == routing.Delete {
		op = OpDelete
	}
	r.Record(op, b.Routes, b.Err, b.Duration)
}

// TableSynced is a no-op; bootstrap changes are recorded batch by batch.
func (r *Recorder) TableSynced([]routing.Entry) {}
