package statedb

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/routevnf/pkg/model"
	"github.com/newtron-network/routevnf/pkg/routing"
	"github.com/newtron-network/routevnf/pkg/util"
)

func route(id string) model.Route {
	return model.Route{ID: id, Points: []model.ConnectPoint{
		model.DevicePoint("h1"),
		model.NewConnectPoint("s1", "3"),
		model.NewConnectPoint("s1", "1"),
		model.NewConnectPoint("s2", "1"),
		model.NewConnectPoint("s2", "2"),
		model.DevicePoint("h2"),
	}}
}

func TestRouteKey(t *testing.T) {
	if got := RouteKey(routing.NewPair("h2", "h1")); got != "VNF_ROUTE|h1|h2" {
		t.Errorf("RouteKey() = %q, want %q", got, "VNF_ROUTE|h1|h2")
	}
}

func TestRouteFields(t *testing.T) {
	want := map[string]string{
		"id":     "7",
		"path":   "h1,s1,s2,h2",
		"points": "h1,s1/3,s1/1,s2/1,s2/2,h2",
	}
	if diff := cmp.Diff(want, RouteFields(route("7"))); diff != "" {
		t.Errorf("RouteFields() mismatch (-want +got):\n%s", diff)
	}
}

func TestRouteFromFields(t *testing.T) {
	got, err := RouteFromFields(RouteFields(route("7")))
	if err != nil {
		t.Fatalf("RouteFromFields() failed: %v", err)
	}
	if diff := cmp.Diff(route("7"), got); diff != "" {
		t.Errorf("RouteFromFields() mismatch (-want +got):\n%s", diff)
	}

	bad := []map[string]string{
		{"id": "1"},
		{"id": "2", "points": "h1,s1/3,h2"},
		{"id": "3", "points": "h1/1,s1/3,s1/1,h2"},
	}
	for _, fields := range bad {
		if _, err := RouteFromFields(fields); !errors.Is(err, util.ErrInvalidRoute) {
			t.Errorf("RouteFromFields(%v) error = %v, want ErrInvalidRoute", fields, err)
		}
	}
}

func TestBatchChanges(t *testing.T) {
	tests := []struct {
		name  string
		batch routing.Batch
		want  []Change
	}{
		{
			name:  "create",
			batch: routing.Batch{Action: routing.Create, Routes: []model.Route{route("1")}},
			want:  []Change{{Key: "VNF_ROUTE|h1|h2", Fields: RouteFields(route("1"))}},
		},
		{
			name:  "delete",
			batch: routing.Batch{Action: routing.Delete, Routes: []model.Route{route("1")}},
			want:  []Change{{Key: "VNF_ROUTE|h1|h2"}},
		},
		{
			name:  "failed",
			batch: routing.Batch{Action: routing.Create, Routes: []model.Route{route("1")}, Err: errors.New("boom")},
			want:  nil,
		},
		{
			name:  "id only",
			batch: routing.Batch{Action: routing.Delete, Routes: []model.Route{{ID: "3"}}},
			want:  []Change{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, BatchChanges(tt.batch)); diff != "" {
				t.Errorf("BatchChanges() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTableChanges(t *testing.T) {
	installed := route("1")
	pending := route("")
	entries := []routing.Entry{
		{Pair: routing.NewPair("h1", "h2"), Route: &installed},
		{Pair: routing.NewPair("h1", "h3"), Route: &pending},
		{Pair: routing.NewPair("h2", "h3")},
	}

	got := TableChanges(entries)
	if len(got) != 1 {
		t.Fatalf("TableChanges() = %d changes, want 1", len(got))
	}
	if got[0].Key != "VNF_ROUTE|h1|h2" || got[0].Fields["id"] != "1" {
		t.Errorf("TableChanges()[0] = %+v", got[0])
	}
}
