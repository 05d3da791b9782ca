// Package sink keeps traversed nodes in a SQLite database.
package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"go.nhat.io/otelsql"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"go.sour.is/gqlrelay/gql"
	"go.sour.is/gqlrelay/lg"
)

const table = "relay_node"

const schema = `create table if not exists relay_node (
	job       text    not null,
	traversal text    not null,
	seq       integer not null,
	node      text    not null,
	primary key (job, traversal, seq)
)`

type Row struct {
	Job       string
	Traversal string
	Seq       int
	Node      gql.Node
}

type Store struct {
	db *sql.DB
}

var (
	register   sync.Once
	driverName string
	driverErr  error
)

func openDB(dsn string) (*sql.DB, error) {
	register.Do(func() {
		driverName, driverErr = otelsql.Register("sqlite",
			otelsql.AllowRoot(),
			otelsql.TraceQueryWithoutArgs(),
			otelsql.TraceRowsClose(),
			otelsql.TraceRowsAffected(),
			otelsql.WithSystem(semconv.DBSystemSqlite),
		)
	})
	if driverErr != nil {
		return nil, driverErr
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer, and every :memory: connection is its own database.
	db.SetMaxOpenConns(1)

	if err := otelsql.RecordStats(db); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return db, nil
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	ctx, span := lg.Span(ctx)
	defer span.End()

	db, err := openDB(dsn)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		span.RecordError(err)
		return nil, multierr.Append(fmt.Errorf("create %s: %w", table, err), db.Close())
	}

	return &Store{db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes rows in one transaction.
func (s *Store) Put(ctx context.Context, rows ...Row) (err error) {
	ctx, span := lg.Span(ctx)
	defer span.End()
	span.SetAttributes(attribute.Int("rows", len(rows)))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
			span.RecordError(err)
		}
	}()

	for _, row := range rows {
		node, err := json.Marshal(row.Node)
		if err != nil {
			return err
		}

		_, err = sq.Insert(table).
			Columns("job", "traversal", "seq", "node").
			Values(row.Job, row.Traversal, row.Seq, string(node)).
			PlaceholderFormat(sq.Question).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// List returns the rows of job ordered by traversal then sequence.
func (s *Store) List(ctx context.Context, job string) ([]Row, error) {
	ctx, span := lg.Span(ctx)
	defer span.End()

	rows, err := sq.Select("job", "traversal", "seq", "node").
		From(table).
		Where(sq.Eq{"job": job}).
		OrderBy("traversal asc", "seq asc").
		PlaceholderFormat(sq.Question).
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer rows.Close()

	var lis []Row
	for rows.Next() {
		var row Row
		var node string
		if err := rows.Scan(&row.Job, &row.Traversal, &row.Seq, &node); err != nil {
			return lis, err
		}
		if err := json.Unmarshal([]byte(node), &row.Node); err != nil {
			return lis, err
		}
		lis = append(lis, row)
	}

	return lis, rows.Err()
}
