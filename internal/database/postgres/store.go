package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docshift/docshift/internal/engine"
)

// targetIDColumn is the auto-assigned primary key column every target table
// carries per the schema bootstrap contract
const targetIDColumn = "id"

// undefinedTable is the PostgreSQL error code raised when a referenced table
// is missing
const undefinedTable = "42P01"

// Store implements engine.TargetStore against a PostgreSQL target
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store writing through the given connection pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Begin opens one collection's transaction
func (s *Store) Begin(ctx context.Context) (engine.TargetTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	return &storeTx{tx: tx}, nil
}

type storeTx struct {
	tx pgx.Tx
}

// ExistingRows returns the target ids of rows already present for the given
// source ids
func (t *storeTx) ExistingRows(ctx context.Context, tableName string, sourceIDs []string) (map[string]int64, error) {
	if tableName == "" {
		return nil, fmt.Errorf("table name cannot be empty")
	}
	if len(sourceIDs) == 0 {
		return map[string]int64{}, nil
	}

	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ANY($1)",
		quoteIdentifier(engine.SourceIDField),
		quoteIdentifier(targetIDColumn),
		quoteIdentifier(tableName),
		quoteIdentifier(engine.SourceIDField))

	rows, err := t.tx.Query(ctx, query, sourceIDs)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
			return nil, fmt.Errorf("target table %s does not exist, schema bootstrap must run first: %w", tableName, err)
		}
		return nil, fmt.Errorf("error querying table %s: %w", tableName, err)
	}
	defer rows.Close()

	existing := make(map[string]int64)
	for rows.Next() {
		var sourceID string
		var targetID int64
		if err := rows.Scan(&sourceID, &targetID); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		existing[sourceID] = targetID
	}

	return existing, rows.Err()
}

// InsertRows performs a single batched insert and returns the assigned ids in
// input order
func (t *storeTx) InsertRows(ctx context.Context, tableName string, rows []engine.Row) ([]int64, error) {
	if tableName == "" {
		return nil, fmt.Errorf("table name cannot be empty")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columns := columnUnion(rows)
	query, values := buildInsert(tableName, columns, rows)
	query += fmt.Sprintf(" RETURNING %s", quoteIdentifier(targetIDColumn))

	result, err := t.tx.Query(ctx, query, values...)
	if err != nil {
		return nil, fmt.Errorf("error inserting into table %s: %w", tableName, err)
	}
	defer result.Close()

	targetIDs := make([]int64, 0, len(rows))
	for result.Next() {
		var targetID int64
		if err := result.Scan(&targetID); err != nil {
			return nil, fmt.Errorf("error scanning assigned id: %w", err)
		}
		targetIDs = append(targetIDs, targetID)
	}

	return targetIDs, result.Err()
}

// InsertLinks writes association rows. Duplicate keys are resolved by the link
// table's own uniqueness constraint: conflicting rows are not inserted and are
// reported back as conflicts rather than errors.
func (t *storeTx) InsertLinks(ctx context.Context, tableName string, rows []engine.Row) (int, int, error) {
	if tableName == "" {
		return 0, 0, fmt.Errorf("table name cannot be empty")
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}

	columns := columnUnion(rows)
	query, values := buildInsert(tableName, columns, rows)
	query += " ON CONFLICT DO NOTHING"

	result, err := t.tx.Exec(ctx, query, values...)
	if err != nil {
		return 0, 0, fmt.Errorf("error inserting into link table %s: %w", tableName, err)
	}

	inserted := int(result.RowsAffected())
	return inserted, len(rows) - inserted, nil
}

// Commit commits the transaction
func (t *storeTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback rolls the transaction back; after a commit it is a no-op
func (t *storeTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err == pgx.ErrTxClosed {
		return nil
	}
	return err
}

// columnUnion returns the sorted union of column names across a batch.
// Documents are schemaless, so rows of one batch may carry different fields.
func columnUnion(rows []engine.Row) []string {
	set := make(map[string]bool)
	for _, row := range rows {
		for column := range row {
			set[column] = true
		}
	}
	columns := make([]string, 0, len(set))
	for column := range set {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return columns
}

// buildInsert builds a multi-row INSERT with $n placeholders. Columns absent
// from a row are written as NULL.
func buildInsert(tableName string, columns []string, rows []engine.Row) (string, []interface{}) {
	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = quoteIdentifier(column)
	}

	values := make([]interface{}, 0, len(rows)*len(columns))
	tuples := make([]string, len(rows))
	for i, row := range rows {
		placeholders := make([]string, len(columns))
		for j, column := range columns {
			placeholders[j] = fmt.Sprintf("$%d", i*len(columns)+j+1)
			values = append(values, row[column])
		}
		tuples[i] = fmt.Sprintf("(%s)", strings.Join(placeholders, ", "))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteIdentifier(tableName),
		strings.Join(quoted, ", "),
		strings.Join(tuples, ", "))

	return query, values
}

// quoteIdentifier quotes a SQL identifier, escaping embedded quotes
func quoteIdentifier(name string) string {
	name = strings.Replace(name, `"`, `""`, -1)
	return fmt.Sprintf(`"%s"`, name)
}
