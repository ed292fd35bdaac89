package topology

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/newtron-network/routevnf/pkg/model"
)

// line builds h1@(s1,3) - s1 -1/1- s2 - h2@(s2,2).
func line() *Mirror {
	m := NewMirror()
	m.AddDevice("s1")
	m.AddDevice("s2")
	m.AddLink("s1", "s2", "1", "1")
	m.AddLink("s2", "s1", "1", "1")
	m.AddHost("h1", "s1", "3")
	m.AddHost("h2", "s2", "2")
	return m
}

func TestMirror_AddHost(t *testing.T) {
	m := line()

	l, ok := m.Link("h1", "s1")
	if !ok {
		t.Fatal("Link(h1, s1) missing")
	}
	if l.SrcPort != "" || l.DstPort != "3" {
		t.Errorf("Link(h1, s1) ports = (%q, %q), want (\"\", \"3\")", l.SrcPort, l.DstPort)
	}
	l, ok = m.Link("s1", "h1")
	if !ok {
		t.Fatal("Link(s1, h1) missing")
	}
	if l.SrcPort != "3" || l.DstPort != "" {
		t.Errorf("Link(s1, h1) ports = (%q, %q), want (\"3\", \"\")", l.SrcPort, l.DstPort)
	}
}

func TestMirror_LinkDirections(t *testing.T) {
	m := NewMirror()
	m.AddLink("s1", "s2", "1", "2")

	if _, ok := m.Link("s1", "s2"); !ok {
		t.Error("Link(s1, s2) should exist")
	}
	if _, ok := m.Link("s2", "s1"); ok {
		t.Error("Link(s2, s1) should not exist without its own event")
	}
	if !m.HasNode("s2") {
		t.Error("AddLink should create missing endpoints")
	}
}

func TestMirror_AddLinkOverwrites(t *testing.T) {
	m := NewMirror()
	m.AddLink("s1", "s2", "1", "2")
	m.AddLink("s1", "s2", "5", "6")

	l, _ := m.Link("s1", "s2")
	if l.SrcPort != "5" || l.DstPort != "6" {
		t.Errorf("ports after overwrite = (%s, %s), want (5, 6)", l.SrcPort, l.DstPort)
	}
	if got := m.LinkCount(); got != 1 {
		t.Errorf("LinkCount() = %d, want 1", got)
	}
}

func TestMirror_SelfLinkIgnored(t *testing.T) {
	m := NewMirror()
	m.AddLink("s1", "s1", "1", "2")

	if m.HasNode("s1") {
		t.Error("self link should not create a node")
	}
	if got := m.LinkCount(); got != 0 {
		t.Errorf("LinkCount() = %d, want 0", got)
	}
}

func TestMirror_RemoveLinkIdempotent(t *testing.T) {
	m := line()
	m.RemoveLink("s1", "s2")
	before := m.Links()

	m.RemoveLink("s1", "s2")
	m.RemoveLink("nope", "s2")
	m.RemoveLink("s1", "nope")

	if diff := cmp.Diff(before, m.Links()); diff != "" {
		t.Errorf("second RemoveLink changed the mirror (-before +after):\n%s", diff)
	}
	if _, ok := m.Link("s2", "s1"); !ok {
		t.Error("RemoveLink(s1, s2) should leave the reverse edge")
	}
}

func TestMirror_RemoveDevice(t *testing.T) {
	m := line()
	m.RemoveDevice("s2")

	if m.HasNode("s2") {
		t.Error("s2 should be gone")
	}
	for _, l := range m.Links() {
		if l.Src == "s2" || l.Dst == "s2" {
			t.Errorf("edge %s->%s should have been removed with s2", l.Src, l.Dst)
		}
	}
	m.RemoveDevice("s2")
	if got := m.NodeCount(); got != 3 {
		t.Errorf("NodeCount() = %d, want 3", got)
	}
}

func TestMirror_RemoveHost(t *testing.T) {
	m := line()
	m.RemoveHost("h1")

	if m.HasNode("h1") {
		t.Error("h1 should be gone")
	}
	if _, ok := m.Link("s1", "h1"); ok {
		t.Error("attachment edge s1->h1 should be gone")
	}
	if got := m.LinkCount(); got != 4 {
		t.Errorf("LinkCount() = %d, want 4", got)
	}
}

func TestMirror_ShortestPath(t *testing.T) {
	tests := []struct {
		name   string
		build  func() *Mirror
		src    string
		dst    string
		want   []string
		wantOK bool
	}{
		{
			name:   "line",
			build:  line,
			src:    "h1",
			dst:    "h2",
			want:   []string{"h1", "s1", "s2", "h2"},
			wantOK: true,
		},
		{
			name: "shortcut preferred",
			build: func() *Mirror {
				m := line()
				m.AddLink("s1", "s3", "4", "1")
				m.AddLink("s3", "s2", "2", "4")
				return m
			},
			src:    "h1",
			dst:    "h2",
			want:   []string{"h1", "s1", "s2", "h2"},
			wantOK: true,
		},
		{
			name: "one direction missing",
			build: func() *Mirror {
				m := line()
				m.RemoveLink("s1", "s2")
				return m
			},
			src: "h1",
			dst: "h2",
		},
		{
			name:  "unknown source",
			build: line,
			src:   "h9",
			dst:   "h2",
		},
		{
			name:  "unknown destination",
			build: line,
			src:   "h1",
			dst:   "h9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.build().ShortestPath(tt.src, tt.dst)
			if ok != tt.wantOK {
				t.Fatalf("ShortestPath() ok = %v, want %v", ok, tt.wantOK)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ShortestPath() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMirror_ShortestPathsReuse(t *testing.T) {
	m := line()
	m.AddHost("h3", "s2", "3")

	tree := m.ShortestPaths("h1")
	for _, dst := range []string{"h2", "h3"} {
		p, ok := tree.To(dst)
		if !ok {
			t.Errorf("To(%s) unreachable", dst)
			continue
		}
		if len(p) != 4 {
			t.Errorf("To(%s) = %v, want 4 nodes", dst, p)
		}
	}
	if _, ok := tree.To("h1"); ok {
		t.Error("To(source) should not be a route")
	}
}

func TestMirror_IsSimplePath(t *testing.T) {
	m := line()
	tests := []struct {
		ids  []string
		want bool
	}{
		{[]string{"h1", "s1", "s2", "h2"}, true},
		{[]string{"h1", "s1"}, true},
		{[]string{"h1"}, false},
		{[]string{"h1", "s2", "h2"}, false},
		{[]string{"h1", "s1", "h1"}, false},
		{[]string{"h1", "s1", "s9"}, false},
	}

	for _, tt := range tests {
		if got := m.IsSimplePath(tt.ids); got != tt.want {
			t.Errorf("IsSimplePath(%v) = %v, want %v", tt.ids, got, tt.want)
		}
	}
}

func TestMirror_PortsFeedRoute(t *testing.T) {
	m := line()
	p, _ := m.ShortestPath("h1", "h2")

	r, err := model.RouteFromPath(m, p)
	if err != nil {
		t.Fatalf("RouteFromPath() error = %v", err)
	}
	if got, want := r.Key(), "h1|s1/3|s1/1|s2/1|s2/2|h2"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestMirror_NodesSorted(t *testing.T) {
	m := line()
	want := []string{"h1", "h2", "s1", "s2"}
	if diff := cmp.Diff(want, m.Nodes()); diff != "" {
		t.Errorf("Nodes() mismatch (-want +got):\n%s", diff)
	}
	links := m.Links()
	if len(links) != 6 {
		t.Fatalf("Links() = %d edges, want 6", len(links))
	}
	if links[0].Src != "h1" || links[0].Dst != "s1" {
		t.Errorf("Links()[0] = %s->%s, want h1->s1", links[0].Src, links[0].Dst)
	}
}
