// Package audit records every route change sent to the controller.
package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/newtron-network/routevnf/pkg/model"
)

// Operations recorded in the audit log.
const (
	OpCreate = "routes.create"
	OpDelete = "routes.delete"
	OpClear  = "routes.clear"
)

// RouteRecord is the audited form of a route
type RouteRecord struct {
	ID   string `json:"id,omitempty"`
	Src  string `json:"src"`
	Dst  string `json:"dst"`
	Path string `json:"path"`
}

// NewRouteRecord summarizes a route
func NewRouteRecord(r model.Route) RouteRecord {
	if len(r.Points) == 0 {
		return RouteRecord{ID: r.ID}
	}
	return RouteRecord{
		ID:   r.ID,
		Src:  r.Src().DeviceID,
		Dst:  r.Dst().DeviceID,
		Path: strings.Join(r.PathIDs(), " "),
	}
}

// Event represents one remote route mutation
type Event struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	User       string        `json:"user,omitempty"`
	Controller string        `json:"controller,omitempty"`
	Operation  string        `json:"operation"`
	Count      int           `json:"count"`
	Routes     []RouteRecord `json:"routes,omitempty"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Filter defines criteria for querying audit events. Route matches a
// route id or either end host. Limit keeps the newest events.
type Filter struct {
	Operation   string
	Route       string
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
}

// NewEvent creates a new audit event
func NewEvent(operation string) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		Operation: operation,
	}
}

// WithUser sets the user that started the process
func (e *Event) WithUser(user string) *Event {
	e.User = user
	return e
}

// WithController sets the controller the change was sent to
func (e *Event) WithController(url string) *Event {
	e.Controller = url
	return e
}

// WithRoutes sets the routes
func (e *Event) WithRoutes(routes []model.Route) *Event {
	e.Count = len(routes)
	e.Routes = make([]RouteRecord, len(routes))
	for i, r := range routes {
		e.Routes[i] = NewRouteRecord(r)
	}
	return e
}

// WithSuccess marks the event as successful
func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

// WithError marks the event as failed
func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithDuration sets the operation duration
func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

// HasRoute returns true if the event touched a route with the given id
// or endpoint.
func (e *Event) HasRoute(key string) bool {
	for _, r := range e.Routes {
		if r.ID == key || r.Src == key || r.Dst == key {
			return true
		}
	}
	return false
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
