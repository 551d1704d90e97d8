package connector

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql" // MySQL ドライバ

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/config"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/database"
)

// mysqlConnector はMySQLデータベースへの接続を確立するDBConnectorの実装です。
// MySQL ではスキーマ fw1 はデータベースとして扱われます。
type mysqlConnector struct{}

// Connect はMySQLデータベースへの接続を確立し、*sql.DBを返します。
func (c *mysqlConnector) Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	return openSQLDB(ctx, "mysql", "MySQL", cfg)
}

func (c *mysqlConnector) Dialect() database.Dialect { return database.MySQLDialect{} }

// init 関数でmysqlConnectorを登録します。
func init() {
	RegisterConnector("mysql", &mysqlConnector{})
}
