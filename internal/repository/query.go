package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/joseph-ayodele/tradedocs/internal/common"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// query runs q and calls each for every row. Rows are closed before return.
func (c *Client) query(ctx context.Context, q string, args []any, each func(rowScanner) error) error {
	var rows entsql.Rows
	if err := c.conn.Query(ctx, q, args, &rows); err != nil {
		return common.NewAppError("DB_QUERY", "query failed", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	defer rows.Close()
	for rows.Next() {
		if err := each(&rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return common.NewAppError("DB_QUERY", "row iteration failed", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	return nil
}

// exec runs q and returns the number of affected rows.
func (c *Client) exec(ctx context.Context, q string, args []any) (int64, error) {
	var res sql.Result
	if err := c.conn.Exec(ctx, q, args, &res); err != nil {
		return 0, common.NewAppError("DB_EXEC", "statement failed", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func notFound(what string, id any) error {
	return common.NewAppError("NOT_FOUND", fmt.Sprintf("%s %v", what, id), common.ErrNotFound)
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", common.NewAppError("DB_ENCODE", "encode json column", err)
	}
	return string(b), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
