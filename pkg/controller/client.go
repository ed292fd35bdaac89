// Package controller is the REST and event-stream client for the SDN
// controller's routing application.
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/newtron-network/routevnf/pkg/model"
	"github.com/newtron-network/routevnf/pkg/util"
	"github.com/newtron-network/routevnf/pkg/version"
)

// DefaultBaseURL is the routing application's address in the lab setup.
const DefaultBaseURL = "http://172.18.0.2:8181/onos/" + version.ControllerAPI + "/"

// StatusError is returned when the controller answers with an unexpected
// status code.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("controller: %s %s: status %d", e.Method, e.Path, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Unwrap() error {
	return util.ErrRemote
}

// RequestError is returned when a request could not be completed.
type RequestError struct {
	Method string
	Path   string
	Err    error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("controller: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *RequestError) Unwrap() []error {
	return []error{util.ErrRemote, e.Err}
}

// Client talks to the controller. Calls are bounded only by their
// context.
type Client struct {
	base     *url.URL
	username string
	password string
	http     *http.Client
}

// NewClient creates a client for the application rooted at baseURL.
func NewClient(baseURL, username, password string) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("controller: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("controller: base url %q must be http or https", baseURL)
	}
	return &Client{
		base:     u,
		username: username,
		password: password,
		http:     &http.Client{},
	}, nil
}

// BaseURL returns the application root the client talks to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("User-Agent", version.UserAgent())
	return req, nil
}

// do sends a request and decodes a JSON response into out if out is not
// nil. Any status other than want is an error.
func (c *Client) do(ctx context.Context, method, path string, in interface{}, want int, out interface{}) error {
	var body io.Reader
	contentType := ""
	switch v := in.(type) {
	case nil:
	case string:
		body = strings.NewReader(v)
		contentType = "text/plain"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("controller: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if out != nil {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Method: method, Path: path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Topology fetches the full topology snapshot.
func (c *Client) Topology(ctx context.Context) (*Topology, error) {
	var t Topology
	if err := c.do(ctx, http.MethodGet, "topology", nil, http.StatusOK, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Routes fetches every route the controller holds.
func (c *Client) Routes(ctx context.Context) ([]model.Route, error) {
	var dtos []RouteDTO
	if err := c.do(ctx, http.MethodGet, "routes", nil, http.StatusOK, &dtos); err != nil {
		return nil, err
	}
	routes := make([]model.Route, len(dtos))
	for i, dto := range dtos {
		routes[i] = RouteFromDTO(dto)
	}
	return routes, nil
}

func encodeRoutes(routes []model.Route, idOnly bool) ([]RouteDTO, error) {
	dtos := make([]RouteDTO, len(routes))
	for i, r := range routes {
		dto, err := RouteToDTO(r)
		if err != nil {
			return nil, fmt.Errorf("controller: %w", err)
		}
		if idOnly {
			dto.Points = nil
		}
		dtos[i] = dto
	}
	return dtos, nil
}

// AddRoutes creates routes and returns them in the same order with the
// identifiers the controller assigned.
func (c *Client) AddRoutes(ctx context.Context, routes []model.Route) ([]model.Route, error) {
	if len(routes) == 0 {
		return nil, nil
	}
	dtos, err := encodeRoutes(routes, false)
	if err != nil {
		return nil, err
	}
	var ids []RouteDTO
	if err := c.do(ctx, http.MethodPost, "routes", dtos, http.StatusCreated, &ids); err != nil {
		return nil, err
	}
	if len(ids) != len(routes) {
		return nil, &RequestError{Method: http.MethodPost, Path: "routes",
			Err: fmt.Errorf("sent %d routes, got %d ids", len(routes), len(ids))}
	}

	created := make([]model.Route, len(routes))
	for i, r := range routes {
		id := RouteFromDTO(ids[i]).ID
		created[i] = r.WithID(id)
	}
	return created, nil
}

// UpdateRoutes replaces the points of existing routes, matched by id.
func (c *Client) UpdateRoutes(ctx context.Context, routes []model.Route) error {
	if len(routes) == 0 {
		return nil
	}
	dtos, err := encodeRoutes(routes, false)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "routes", dtos, http.StatusOK, nil)
}

// DeleteRoutes deletes routes by id.
func (c *Client) DeleteRoutes(ctx context.Context, routes []model.Route) error {
	if len(routes) == 0 {
		return nil
	}
	dtos, err := encodeRoutes(routes, true)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "routes", dtos, http.StatusOK, nil)
}

// ClearRoutes deletes every route and its flow rules.
func (c *Client) ClearRoutes(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "routes/reset", "", http.StatusOK, nil)
}
