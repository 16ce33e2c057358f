package shared

import (
	"context"
	"database/sql"
	"errors"
)

// SqlConnection is a wrapper around Go native sql.DB.
// It also adds the DmlGenerator interface for use in components that output records to a database.
type SqlConnection struct {
	DbSql  *sql.DB
	Dml    DmlGenerator
	DbType string
}

func (c *SqlConnection) BeginTx(ctx context.Context) (Transacter, error) {
	if c.DbSql == nil {
		return nil, errors.New("SqlConnection was not configured correctly: DbSql is missing")
	}
	tx, err := c.DbSql.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &SqlTx{txSql: tx}, nil
}

func (c *SqlConnection) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return c.DbSql.ExecContext(ctx, query, args...)
}

func (c *SqlConnection) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.DbSql.QueryContext(ctx, query, args...)
}

func (c *SqlConnection) Conn(ctx context.Context) (*sql.Conn, error) {
	return c.DbSql.Conn(ctx)
}

func (c *SqlConnection) Close() {
	_ = c.DbSql.Close()
}

func (c *SqlConnection) GetDmlGenerator() DmlGenerator {
	return c.Dml
}

func (c *SqlConnection) GetType() string {
	return c.DbType
}

// Transacter:

type SqlTx struct {
	txSql *sql.Tx
}

func (t *SqlTx) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return t.txSql.PrepareContext(ctx, query)
}

func (t *SqlTx) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return t.txSql.ExecContext(ctx, query, args...)
}

func (t *SqlTx) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return t.txSql.QueryContext(ctx, query, args...)
}

func (t *SqlTx) Commit() error {
	return t.txSql.Commit()
}

func (t *SqlTx) Rollback() error {
	return t.txSql.Rollback()
}
