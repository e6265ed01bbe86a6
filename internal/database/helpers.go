package database

import (
	"context"

	"github.com/jmoiron/sqlx"
)

func sqlxGet(ctx context.Context, q sqlx.QueryerContext, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return sqlx.GetContext(ctx, q, dest, query, args...)
}

func sqlxSelect(ctx context.Context, q sqlx.QueryerContext, dest interface{}, query string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return sqlx.SelectContext(ctx, q, dest, query, args...)
}

// in expands a query with an IN (?) clause for a slice argument.
func in(q sqlx.ExtContext, query string, args ...interface{}) (string, []interface{}, error) {
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return q.Rebind(query), args, nil
}
