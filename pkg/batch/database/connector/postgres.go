package connector

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL ドライバ

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/config"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/database"
)

// postgresConnector はPostgreSQLデータベースへの接続を確立するDBConnectorの実装です。
type postgresConnector struct{}

// Connect はPostgreSQLデータベースへの接続を確立し、*sql.DBを返します。
func (c *postgresConnector) Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	return openSQLDB(ctx, "postgres", "PostgreSQL", cfg)
}

func (c *postgresConnector) Dialect() database.Dialect { return database.PostgresDialect{} }

// init 関数でpostgresConnectorを登録します。
func init() {
	RegisterConnector("postgres", &postgresConnector{})
}
