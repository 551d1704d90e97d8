package database

import (
	"context"
	"database/sql"
)

// Tx は 1 行分の挿入に使うトランザクションです。*sql.Tx はそのまま満たします。
type Tx interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	Commit() error
	Rollback() error
}

// DBConnection は起動 1 回分のデータベース接続です。
type DBConnection interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	PingContext(ctx context.Context) error
	Close() error
	// Dialect は接続先の SQL 方言を返します。
	Dialect() Dialect
}

// sqlConn は *sql.DB に方言を持たせた DBConnection です。
// PingContext と Close は *sql.DB のものをそのまま使います。
type sqlConn struct {
	*sql.DB
	dialect Dialect
}

// NewSQLDBAdapter は *sql.DB を DBConnection として包みます。
func NewSQLDBAdapter(db *sql.DB, dialect Dialect) DBConnection {
	return &sqlConn{DB: db, dialect: dialect}
}

func (c *sqlConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	tx, err := c.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (c *sqlConn) Dialect() Dialect { return c.dialect }
