package trace

import (
	"context"
	"database/sql/driver"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/ezpage/kit"
)

type tracingDriver struct {
	driver.Driver
}

func (d *tracingDriver) Open(name string) (driver.Conn, error) {
	conn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	return &tracingConn{Conn: conn}, nil
}

// tracingConn routes every statement through Prepare so that tracingStmt
// sees it.
type tracingConn struct {
	driver.Conn
}

func (c *tracingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *tracingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if pc, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = pc.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	if err != nil {
		record(ctx, "prepare", query, 0, err)
		return nil, err
	}
	return &tracingStmt{Stmt: stmt, query: query}, nil
}

func (c *tracingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bt, ok := c.Conn.(driver.ConnBeginTx); ok {
		return bt.BeginTx(ctx, opts)
	}
	return c.Conn.Begin()
}

type tracingStmt struct {
	driver.Stmt
	query string
}

func (s *tracingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	var (
		res driver.Result
		err error
	)
	if ec, ok := s.Stmt.(driver.StmtExecContext); ok {
		res, err = ec.ExecContext(ctx, args)
	} else {
		res, err = s.Stmt.Exec(values(args))
	}
	record(ctx, "exec", s.query, time.Since(start), err)
	return res, err
}

func (s *tracingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	var (
		rows driver.Rows
		err  error
	)
	if qc, ok := s.Stmt.(driver.StmtQueryContext); ok {
		rows, err = qc.QueryContext(ctx, args)
	} else {
		rows, err = s.Stmt.Query(values(args))
	}
	record(ctx, "query", s.query, time.Since(start), err)
	return rows, err
}

func record(ctx context.Context, op, query string, d time.Duration, err error) {
	log, slowAfter := settings()
	// Fast successful pragmas are connection setup noise.
	if err == nil && d < slowAfter && strings.HasPrefix(query, "PRAGMA ") {
		return
	}

	level := slog.LevelDebug
	switch {
	case err != nil:
		level = slog.LevelError
	case d >= slowAfter:
		level = slog.LevelWarn
	}
	if !log.Enabled(ctx, level) {
		return
	}

	attrs := append(kit.LogAttrs(ctx),
		"op", op,
		"query", strings.Join(strings.Fields(query), " "),
		"duration", d,
	)
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	log.Log(ctx, level, "trace: sql", attrs...)
}

func values(named []driver.NamedValue) []driver.Value {
	vals := make([]driver.Value, len(named))
	for i, nv := range named {
		vals[i] = nv.Value
	}
	return vals
}
