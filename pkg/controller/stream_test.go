package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestStream_Recv(t *testing.T) {
	input := strings.Join([]string{
		": keepalive",
		"",
		"event: link",
		`data: {"type":"LINK_ADDED"}`,
		"",
		"event: topology",
		"data: [1,",
		"data: 2]",
		"id: 3",
		"",
		`data: {"plain":true}`,
		"",
	}, "\n") + "\n"

	s := NewStream(context.Background(), io.NopCloser(strings.NewReader(input)))
	want := []RawEvent{
		{Name: "link", Data: []byte(`{"type":"LINK_ADDED"}`)},
		{Name: "topology", Data: []byte("[1,\n2]")},
		{Name: "message", Data: []byte(`{"plain":true}`)},
	}
	for i, w := range want {
		got, err := s.Recv()
		if err != nil {
			t.Fatalf("Recv() #%d error = %v", i, err)
		}
		if got.Name != w.Name || string(got.Data) != string(w.Data) {
			t.Errorf("Recv() #%d = {%s %s}, want {%s %s}", i, got.Name, got.Data, w.Name, w.Data)
		}
	}

	if _, err := s.Recv(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Recv() at end error = %v, want ErrStreamClosed", err)
	}
}

func TestStream_DropsUnterminatedEvent(t *testing.T) {
	input := "event: link\ndata: {}\n\nevent: host\ndata: {\"cut\":true}\n"

	s := NewStream(context.Background(), io.NopCloser(strings.NewReader(input)))
	if ev, err := s.Recv(); err != nil || ev.Name != "link" {
		t.Fatalf("Recv() = %v, %v, want the link event", ev, err)
	}
	if ev, err := s.Recv(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Recv() = %v, %v, want ErrStreamClosed for an event without a blank line", ev, err)
	}
}

func TestStream_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStream(ctx, io.NopCloser(strings.NewReader("event: link\n")))
	if _, err := s.Recv(); !errors.Is(err, context.Canceled) {
		t.Errorf("Recv() error = %v, want context.Canceled", err)
	}
}

func TestClient_Events(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 2; i++ {
			fmt.Fprintf(w, "event: host\ndata: {\"n\":%d}\n\n", i)
		}
	})

	s, err := c.Events(context.Background())
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	defer s.Close()

	for i := 0; i < 2; i++ {
		ev, err := s.Recv()
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		if ev.Name != "host" || string(ev.Data) != fmt.Sprintf(`{"n":%d}`, i) {
			t.Errorf("Recv() = %s %s", ev.Name, ev.Data)
		}
	}
	if _, err := s.Recv(); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Recv() after server close error = %v, want ErrStreamClosed", err)
	}
}

func TestClient_EventsStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if _, err := c.Events(context.Background()); err == nil {
		t.Error("expected error for 503")
	}
}
