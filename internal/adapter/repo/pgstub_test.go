package repo

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type execCall struct {
	query string
	args  []any
}

// stubExecutor satisfies infra.SQLExecutor with canned responses.
type stubExecutor struct {
	execCalls []execCall
	execTag   pgconn.CommandTag
	execErr   error

	row          pgx.Row
	lastQueryRow execCall

	rows      pgx.Rows
	queryErr  error
	lastQuery execCall
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execCalls = append(s.execCalls, execCall{query: query, args: args})
	return s.execTag, s.execErr
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.lastQueryRow = execCall{query: query, args: args}
	if s.row == nil {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return s.row
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.lastQuery = execCall{query: query, args: args}
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if s.rows == nil {
		return &stubRows{}, nil
	}
	return s.rows, nil
}

// fakeRow yields one row of typed fields, nil meaning SQL NULL.
type fakeRow struct {
	fields []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assignAll(dest, r.fields)
}

// stubRows yields a fixed result set.
type stubRows struct {
	rows [][]any
	idx  int
	err  error
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return r.err }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	if r.idx < len(r.rows) {
		r.idx++
		return true
	}
	return false
}

func (r *stubRows) Scan(dest ...any) error {
	return assignAll(dest, r.rows[r.idx-1])
}

func assignAll(dest, fields []any) error {
	if len(dest) != len(fields) {
		return fmt.Errorf("scan: %d dest for %d fields", len(dest), len(fields))
	}
	for i, field := range fields {
		if field == nil {
			continue
		}
		dv := reflect.ValueOf(dest[i])
		if dv.Kind() != reflect.Pointer {
			return fmt.Errorf("scan: dest %d is not a pointer", i)
		}
		fv := reflect.ValueOf(field)
		if !fv.Type().AssignableTo(dv.Elem().Type()) {
			return fmt.Errorf("scan: dest %d wants %s, field is %s", i, dv.Elem().Type(), fv.Type())
		}
		dv.Elem().Set(fv)
	}
	return nil
}
