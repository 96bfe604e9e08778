package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
)

// DryRunDatabase executes nothing. Every statement is recorded, and every
// invocation answers with a "[DRY-RUN]" status line in place of the routine's
// CREATED/SKIPPED message.
type DryRunDatabase struct {
	wrapped  Database
	dryRunDB *sql.DB
	recorder *statementRecorder
}

var registerDryRunDriver sync.Once

func NewDryRunDatabase(db Database) (*DryRunDatabase, error) {
	registerDryRunDriver.Do(func() {
		sql.Register("idxdef-dry-run", dryRunDriver{})
	})

	recorder := &statementRecorder{}
	connector := &dryRunConnector{recorder: recorder}
	return &DryRunDatabase{
		wrapped:  db,
		dryRunDB: sql.OpenDB(connector),
		recorder: recorder,
	}, nil
}

func (d *DryRunDatabase) ExportIndexes(ctx context.Context, tables []string) ([]Index, error) {
	return d.wrapped.ExportIndexes(ctx, tables)
}

func (d *DryRunDatabase) DB() *sql.DB {
	return d.dryRunDB
}

func (d *DryRunDatabase) GetConfig() Config {
	return d.wrapped.GetConfig()
}

// Statements returns what would have been executed, in order.
func (d *DryRunDatabase) Statements() []string {
	return d.recorder.list()
}

func (d *DryRunDatabase) Close() error {
	if err := d.dryRunDB.Close(); err != nil {
		return err
	}
	return d.wrapped.Close()
}

type statementRecorder struct {
	mu         sync.Mutex
	statements []string
}

func (r *statementRecorder) record(query string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statements = append(r.statements, query)
}

func (r *statementRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statements...)
}

// dryRunDriver exists so the driver name shows up in sql.Drivers(); connections
// are made through dryRunConnector.
type dryRunDriver struct{}

func (d dryRunDriver) Open(name string) (driver.Conn, error) {
	return &dryRunConn{recorder: &statementRecorder{}}, nil
}

type dryRunConnector struct {
	recorder *statementRecorder
}

func (c *dryRunConnector) Connect(ctx context.Context) (driver.Conn, error) {
	return &dryRunConn{recorder: c.recorder}, nil
}

func (c *dryRunConnector) Driver() driver.Driver {
	return dryRunDriver{}
}

type dryRunConn struct {
	recorder *statementRecorder
}

func (c *dryRunConn) Prepare(query string) (driver.Stmt, error) {
	return &dryRunStmt{query: query, recorder: c.recorder}, nil
}

func (c *dryRunConn) Close() error {
	return nil
}

func (c *dryRunConn) Begin() (driver.Tx, error) {
	return dryRunTx{}, nil
}

type dryRunTx struct{}

func (tx dryRunTx) Commit() error {
	return nil
}

func (tx dryRunTx) Rollback() error {
	return nil
}

type dryRunStmt struct {
	query    string
	recorder *statementRecorder
}

func (s *dryRunStmt) Close() error {
	return nil
}

func (s *dryRunStmt) NumInput() int {
	return -1
}

func (s *dryRunStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.recorder.record(s.query)
	return dryRunResult{}, nil
}

func (s *dryRunStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.recorder.record(s.query)
	return &dryRunRows{message: fmt.Sprintf("[DRY-RUN]: %s", strings.TrimSpace(s.query))}, nil
}

type dryRunResult struct{}

func (r dryRunResult) LastInsertId() (int64, error) {
	return 0, nil
}

func (r dryRunResult) RowsAffected() (int64, error) {
	return 0, nil
}

type dryRunRows struct {
	message string
	done    bool
}

func (r *dryRunRows) Columns() []string {
	return []string{"message"}
}

func (r *dryRunRows) Close() error {
	return nil
}

func (r *dryRunRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	dest[0] = r.message
	return nil
}
