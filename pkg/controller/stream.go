package controller

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/newtron-network/routevnf/pkg/util"
)

// ErrStreamClosed is returned by Stream.Recv when the controller ends the
// event stream.
var ErrStreamClosed = fmt.Errorf("controller: event stream closed: %w", util.ErrRemote)

// maxEventSize bounds a single event; topology events carry every link
// reason of one change.
const maxEventSize = 4 << 20

// RawEvent is one server-sent event: its name and JSON payload.
type RawEvent struct {
	Name string
	Data []byte
}

// Stream is a non-restartable sequence of events.
type Stream interface {
	// Recv blocks until the next event arrives, the stream ends or its
	// context is done.
	Recv() (RawEvent, error)
	Close() error
}

// Events opens the controller's event stream. The stream lives until ctx
// is done or Close is called.
func (c *Client) Events(ctx context.Context) (Stream, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "events", nil)
	if err != nil {
		return nil, &RequestError{Method: http.MethodGet, Path: "events", Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{Method: http.MethodGet, Path: "events", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &StatusError{Method: http.MethodGet, Path: "events", Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	return NewStream(ctx, resp.Body), nil
}

// NewStream parses server-sent events from r.
func NewStream(ctx context.Context, r io.ReadCloser) Stream {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &sseStream{ctx: ctx, body: r, scanner: sc}
}

type sseStream struct {
	ctx     context.Context
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *sseStream) Recv() (RawEvent, error) {
	var (
		ev      RawEvent
		data    bytes.Buffer
		hasData bool
	)
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			if hasData {
				ev.Data = data.Bytes()
				if ev.Name == "" {
					ev.Name = "message"
				}
				return ev, nil
			}
			ev = RawEvent{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			ev.Name = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		}
	}

	if err := s.ctx.Err(); err != nil {
		return RawEvent{}, err
	}
	if err := s.scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return RawEvent{}, &RequestError{Method: http.MethodGet, Path: "events", Err: err}
	}
	return RawEvent{}, ErrStreamClosed
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
