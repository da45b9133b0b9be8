package projection

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Statement is the materialized effect of one event on a projection table.
// Statements run inside the transaction that also advances the cursor.
type Statement struct {
	execute func(ctx context.Context, tx *sql.Tx) error
}

// Execute applies the statement. A nil or no-op statement succeeds without
// touching the database.
func (s *Statement) Execute(ctx context.Context, tx *sql.Tx) error {
	if s == nil || s.execute == nil {
		return nil
	}
	return s.execute(ctx, tx)
}

// Column is one projected column value.
type Column struct {
	Name  string
	Value any
}

func Col(name string, value any) Column {
	return Column{Name: name, Value: value}
}

// Condition restricts update and delete statements. Conditions are ANDed.
type Condition struct {
	Name  string
	Value any
}

func Cond(name string, value any) Condition {
	return Condition{Name: name, Value: value}
}

// NewNoOpStatement marks an event as handled without a table write. The
// cursor still advances.
func NewNoOpStatement() *Statement {
	return &Statement{}
}

// NewUpsertStatement inserts the row or replaces it when the key columns
// collide. keyColumns must be a prefix-free subset of columns covered by
// the table's primary key or a unique index.
func NewUpsertStatement(table string, keyColumns []string, columns []Column) *Statement {
	return &Statement{execute: func(ctx context.Context, tx *sql.Tx) error {
		names := make([]string, len(columns))
		placeholders := make([]string, len(columns))
		args := make([]any, len(columns))
		updates := make([]string, 0, len(columns))
		for i, col := range columns {
			names[i] = col.Name
			placeholders[i] = "?"
			args[i] = col.Value
			if !contains(keyColumns, col.Name) {
				updates = append(updates, col.Name+" = excluded."+col.Name)
			}
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
			table,
			strings.Join(names, ", "),
			strings.Join(placeholders, ", "),
			strings.Join(keyColumns, ", "),
			strings.Join(updates, ", "),
		)
		if len(updates) == 0 {
			query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
				table,
				strings.Join(names, ", "),
				strings.Join(placeholders, ", "),
				strings.Join(keyColumns, ", "),
			)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to upsert into %s: %w", table, err)
		}
		return nil
	}}
}

// NewUpdateStatement updates the rows matching the conditions. Updating
// zero rows is not an error: projections tolerate events for rows they
// never materialized.
func NewUpdateStatement(table string, columns []Column, conditions []Condition) *Statement {
	return &Statement{execute: func(ctx context.Context, tx *sql.Tx) error {
		sets := make([]string, len(columns))
		args := make([]any, 0, len(columns)+len(conditions))
		for i, col := range columns {
			sets[i] = col.Name + " = ?"
			args = append(args, col.Value)
		}
		where := make([]string, len(conditions))
		for i, cond := range conditions {
			where[i] = cond.Name + " = ?"
			args = append(args, cond.Value)
		}

		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
			table, strings.Join(sets, ", "), strings.Join(where, " AND "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update %s: %w", table, err)
		}
		return nil
	}}
}

// NewDeleteStatement deletes the rows matching the conditions.
func NewDeleteStatement(table string, conditions []Condition) *Statement {
	return &Statement{execute: func(ctx context.Context, tx *sql.Tx) error {
		where := make([]string, len(conditions))
		args := make([]any, len(conditions))
		for i, cond := range conditions {
			where[i] = cond.Name + " = ?"
			args[i] = cond.Value
		}

		query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, strings.Join(where, " AND "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
		return nil
	}}
}

// NewExecStatement runs raw SQL. For the occasional effect the typed
// constructors cannot express.
func NewExecStatement(query string, args ...any) *Statement {
	return &Statement{execute: func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to exec projection statement: %w", err)
		}
		return nil
	}}
}

// NewMultiStatement runs several statements in order inside the same
// transaction.
func NewMultiStatement(statements ...*Statement) *Statement {
	return &Statement{execute: func(ctx context.Context, tx *sql.Tx) error {
		for _, stmt := range statements {
			if err := stmt.Execute(ctx, tx); err != nil {
				return err
			}
		}
		return nil
	}}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
