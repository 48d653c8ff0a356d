// Package testutil provides an in-memory database/sql driver that satisfies
// the snapshot persistence SQL without a running PostgreSQL server.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var driverSeq atomic.Uint64

// State is the shared backing store behind a stub connection. Tests inspect
// it after exercising the store under test.
type State struct {
	mu sync.Mutex

	// Buckets holds the rows of the state table keyed by bucket name.
	Buckets map[string][]byte
	// Execs records every statement executed, in order.
	Execs []string

	// FailPing makes the initial connectivity check fail.
	FailPing bool
	// FailExec makes every write statement fail.
	FailExec bool
}

// NewState returns an empty stub state.
func NewState() *State {
	return &State{Buckets: map[string][]byte{}}
}

// Seed stores a bucket payload as if a previous process had persisted it.
func (s *State) Seed(bucket string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Buckets[bucket] = append([]byte(nil), payload...)
}

// Bucket returns a copy of one bucket's payload.
func (s *State) Bucket(bucket string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.Buckets[bucket]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), payload...), true
}

// Statements returns a copy of the executed statement log.
func (s *State) Statements() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Execs...)
}

// Open registers a fresh stub driver bound to state and returns a database
// handle on it. Each call registers under a unique name because database/sql
// forbids re-registration.
func Open(state *State) (*sql.DB, error) {
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, stubDriver{state: state})
	return sql.Open(name, "stub")
}

type stubDriver struct {
	state *State
}

func (d stubDriver) Open(string) (driver.Conn, error) {
	return &stubConn{state: d.state}, nil
}

type stubConn struct {
	state *State
}

var (
	_ driver.Conn           = (*stubConn)(nil)
	_ driver.Pinger         = (*stubConn)(nil)
	_ driver.ConnBeginTx    = (*stubConn)(nil)
	_ driver.ExecerContext  = (*stubConn)(nil)
	_ driver.QueryerContext = (*stubConn)(nil)
)

func (c *stubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements unsupported")
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) Begin() (driver.Tx, error) {
	return stubTx{}, nil
}

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return stubTx{}, nil
}

func (c *stubConn) Ping(context.Context) error {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	if c.state.FailPing {
		return errors.New("stub ping refused")
	}
	return nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	c.state.Execs = append(c.state.Execs, query)
	if c.state.FailExec {
		return nil, errors.New("stub exec refused")
	}
	if strings.Contains(query, "INSERT INTO state") {
		if len(args) != 2 {
			return nil, fmt.Errorf("expected 2 args, got %d", len(args))
		}
		bucket, ok := args[0].Value.(string)
		if !ok {
			return nil, fmt.Errorf("bucket arg is %T", args[0].Value)
		}
		payload, ok := args[1].Value.([]byte)
		if !ok {
			return nil, fmt.Errorf("payload arg is %T", args[1].Value)
		}
		c.state.Buckets[bucket] = append([]byte(nil), payload...)
	}
	return driver.RowsAffected(1), nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	if !strings.Contains(query, "FROM state") {
		return nil, fmt.Errorf("unexpected query %q", query)
	}
	c.state.mu.Lock()
	defer c.state.mu.Unlock()
	buckets := make([]string, 0, len(c.state.Buckets))
	for bucket := range c.state.Buckets {
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)
	rows := &stubRows{}
	for _, bucket := range buckets {
		rows.rows = append(rows.rows, [2]driver.Value{bucket, append([]byte(nil), c.state.Buckets[bucket]...)})
	}
	return rows, nil
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct {
	rows [][2]driver.Value
	pos  int
}

func (r *stubRows) Columns() []string { return []string{"bucket", "payload"} }

func (r *stubRows) Close() error { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	dest[0] = r.rows[r.pos][0]
	dest[1] = r.rows[r.pos][1]
	r.pos++
	return nil
}
