package opsimdb_test

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
)

// fakeResult answers every query containing match.
type fakeResult struct {
	match string
	cols  []string
	rows  [][]driver.Value
	err   error
}

// fakeDriver serves canned results per data source name, so each test opens
// its own scenario with sql.Open("opsimfake", name).
type fakeDriver struct {
	mu        sync.Mutex
	scenarios map[string][]fakeResult
	queries   map[string][]string
}

var fake = &fakeDriver{
	scenarios: map[string][]fakeResult{},
	queries:   map[string][]string{},
}

func init() {
	sql.Register("opsimfake", fake)
}

func (f *fakeDriver) scenario(name string, results ...fakeResult) *sql.DB {
	f.mu.Lock()
	f.scenarios[name] = results
	f.queries[name] = nil
	f.mu.Unlock()
	db, err := sql.Open("opsimfake", name)
	if err != nil {
		panic(err)
	}
	return db
}

func (f *fakeDriver) seen(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries[name]...)
}

func (f *fakeDriver) Open(name string) (driver.Conn, error) {
	return &fakeConn{d: f, name: name}, nil
}

type fakeConn struct {
	d    *fakeDriver
	name string
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return &fakeStmt{c: c, query: query}, nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) Begin() (driver.Tx, error) {
	return nil, errors.New("opsimfake: transactions not supported")
}

type fakeStmt struct {
	c     *fakeConn
	query string
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec([]driver.Value) (driver.Result, error) {
	return nil, errors.New("opsimfake: exec not supported")
}

func (s *fakeStmt) Query([]driver.Value) (driver.Rows, error) {
	d := s.c.d
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries[s.c.name] = append(d.queries[s.c.name], s.query)
	for _, r := range d.scenarios[s.c.name] {
		if strings.Contains(s.query, r.match) {
			if r.err != nil {
				return nil, r.err
			}
			return &fakeRows{cols: r.cols, rows: r.rows}, nil
		}
	}
	return nil, errors.New("opsimfake: unexpected query " + s.query)
}

type fakeRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func (r *fakeRows) Columns() []string { return r.cols }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}
