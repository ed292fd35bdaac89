// Package statedb mirrors the installed routes into a Redis database so
// that other tools can read the VNF's view without asking the controller.
//
// Each route is a hash at VNF_ROUTE|<hostA>|<hostB> with fields id, path
// and points. The exporter follows the batcher as a routing.Observer;
// write failures are logged and never reach the VNF.
package statedb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/routevnf/pkg/model"
	"github.com/newtron-network/routevnf/pkg/routing"
	"github.com/newtron-network/routevnf/pkg/settings"
	"github.com/newtron-network/routevnf/pkg/util"
)

// TableRoute is the table name of exported routes.
const TableRoute = "VNF_ROUTE"

const writeTimeout = 2 * time.Second

// Change is one exported hash. Nil Fields deletes the key.
type Change struct {
	Key    string
	Fields map[string]string
}

// RouteKey returns the Redis key of a host pair.
func RouteKey(p routing.Pair) string {
	return fmt.Sprintf("%s|%s|%s", TableRoute, p.A, p.B)
}

// RouteFields returns the hash fields of a route.
func RouteFields(r model.Route) map[string]string {
	points := make([]string, len(r.Points))
	for i, p := range r.Points {
		points[i] = p.String()
	}
	return map[string]string{
		"id":     r.ID,
		"path":   strings.Join(r.PathIDs(), ","),
		"points": strings.Join(points, ","),
	}
}

// RouteFromFields parses an exported hash back into a route.
func RouteFromFields(fields map[string]string) (model.Route, error) {
	r := model.Route{ID: fields["id"]}
	for _, s := range util.SplitCommaSeparated(fields["points"]) {
		dev, port, _ := strings.Cut(s, "/")
		r.Points = append(r.Points, model.NewConnectPoint(dev, port))
	}
	if err := r.Validate(); err != nil {
		return model.Route{}, fmt.Errorf("statedb: route %s: %w", r.ID, err)
	}
	return r, nil
}

func routePair(r model.Route) routing.Pair {
	return routing.NewPair(r.Src().DeviceID, r.Dst().DeviceID)
}

// BatchChanges returns the writes that follow a successful batch. Failed
// batches change nothing.
func BatchChanges(b routing.Batch) []Change {
	if b.Err != nil {
		return nil
	}
	changes := make([]Change, 0, len(b.Routes))
	for _, r := range b.Routes {
		if len(r.Points) < 2 {
			continue
		}
		c := Change{Key: RouteKey(routePair(r))}
		if b.Action == routing.Create {
			c.Fields = RouteFields(r)
		}
		changes = append(changes, c)
	}
	return changes
}

// TableChanges returns the writes that describe every installed route
// of a table.
func TableChanges(entries []routing.Entry) []Change {
	var changes []Change
	for _, e := range entries {
		if e.Route == nil || e.Route.ID == "" {
			continue
		}
		changes = append(changes, Change{Key: RouteKey(e.Pair), Fields: RouteFields(*e.Route)})
	}
	return changes
}

// Exporter writes routes to Redis.
type Exporter struct {
	client *redis.Client
	tunnel *SSHTunnel
}

// NewExporter creates an exporter for the Redis at addr.
func NewExporter(addr string, db int, password string) *Exporter {
	return &Exporter{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			DB:       db,
			Password: password,
		}),
	}
}

// Dial creates an exporter from settings, opening an SSH tunnel when
// one is configured, and checks that Redis answers.
func Dial(ctx context.Context, cfg *settings.StateDB) (*Exporter, error) {
	addr := cfg.Addr
	var tunnel *SSHTunnel
	if ssh := cfg.SSH; ssh != nil {
		var err error
		tunnel, err = NewSSHTunnel(ssh.Host, ssh.SSHPort(), ssh.User, ssh.Password, cfg.Addr)
		if err != nil {
			return nil, err
		}
		addr = tunnel.LocalAddr()
		util.WithField("ssh", ssh.Host).Infof("Tunneling state export to %s via %s", cfg.Addr, addr)
	}

	e := NewExporter(addr, cfg.DB, cfg.Password)
	e.tunnel = tunnel
	if err := e.Ping(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// Ping tests the connection.
func (e *Exporter) Ping(ctx context.Context) error {
	if err := e.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("statedb: ping: %w", err)
	}
	return nil
}

// Close closes the connection and the tunnel, if any.
func (e *Exporter) Close() error {
	err := e.client.Close()
	if e.tunnel != nil {
		if terr := e.tunnel.Close(); err == nil {
			err = terr
		}
	}
	return err
}

// Apply writes changes in one MULTI/EXEC transaction.
func (e *Exporter) Apply(ctx context.Context, changes []Change) error {
	if len(changes) == 0 {
		return nil
	}
	pipe := e.client.TxPipeline()
	for _, c := range changes {
		if c.Fields == nil {
			pipe.Del(ctx, c.Key)
			continue
		}
		args := make([]interface{}, 0, len(c.Fields)*2)
		for k, v := range c.Fields {
			args = append(args, k, v)
		}
		pipe.Del(ctx, c.Key)
		pipe.HSet(ctx, c.Key, args...)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("statedb: pipeline exec: %w", err)
	}
	return nil
}

// Replace deletes every exported route and writes changes, in one
// transaction.
func (e *Exporter) Replace(ctx context.Context, changes []Change) error {
	keys, err := e.keys(ctx)
	if err != nil {
		return err
	}
	pipe := e.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, key)
	}
	for _, c := range changes {
		if c.Fields == nil {
			continue
		}
		args := make([]interface{}, 0, len(c.Fields)*2)
		for k, v := range c.Fields {
			args = append(args, k, v)
		}
		pipe.HSet(ctx, c.Key, args...)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("statedb: replace routes: %w", err)
	}
	return nil
}

// Routes reads every exported route, keyed by Redis key.
func (e *Exporter) Routes(ctx context.Context) (map[string]map[string]string, error) {
	keys, err := e.keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(keys))
	for _, key := range keys {
		vals, err := e.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("statedb: reading %s: %w", key, err)
		}
		out[key] = vals
	}
	return out, nil
}

// ExportedRoutes returns the exported routes parsed back into model form.
// Unparseable hashes are skipped with a warning.
func (e *Exporter) ExportedRoutes(ctx context.Context) ([]model.Route, error) {
	raw, err := e.Routes(ctx)
	if err != nil {
		return nil, err
	}
	routes := make([]model.Route, 0, len(raw))
	for key, fields := range raw {
		r, err := RouteFromFields(fields)
		if err != nil {
			util.WithField("key", key).Warnf("statedb: %v", err)
			continue
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// keys lists exported route keys with cursor-based SCAN.
func (e *Exporter) keys(ctx context.Context) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, next, err := e.client.Scan(ctx, cursor, TableRoute+"|*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("statedb: scanning routes: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// BatchFlushed implements routing.Observer.
func (e *Exporter) BatchFlushed(b routing.Batch) {
	changes := BatchChanges(b)
	if len(changes) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := e.Apply(ctx, changes); err != nil {
		util.Warnf("Exporting %s batch of %d routes: %v", b.Action, len(changes), err)
	}
}

// TableSynced implements routing.Observer.
func (e *Exporter) TableSynced(entries []routing.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := e.Replace(ctx, TableChanges(entries)); err != nil {
		util.Warnf("Exporting route table: %v", err)
	}
}
