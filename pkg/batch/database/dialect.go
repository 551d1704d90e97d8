package database

import (
	"fmt"
	"strings"
)

// Dialect はデータベースごとに異なる SQL の書き方を表します。
type Dialect interface {
	Name() string
	// Placeholders は n 個のバインドパラメータをカンマ区切りで返します。
	Placeholders(n int) string
}

// PostgresDialect は $1, $2, ... 形式のプレースホルダを使用します。Redshift も同じです。
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) Placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(ph, ", ")
}

// MySQLDialect は ? 形式のプレースホルダを使用します。
type MySQLDialect struct{}

func (MySQLDialect) Name() string { return "mysql" }

func (MySQLDialect) Placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ", ")
}

// DialectFor はデータベースタイプに対応する Dialect を返します。
// 未知のタイプの場合は PostgreSQL 方言を返します。
func DialectFor(dbType string) Dialect {
	switch strings.ToLower(dbType) {
	case "mysql":
		return MySQLDialect{}
	default:
		return PostgresDialect{}
	}
}
