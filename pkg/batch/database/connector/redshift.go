package connector

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // Redshift は PostgreSQL と互換性があるため、pq ドライバを使用

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/config"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/database"
)

// redshiftConnector はRedshiftデータベースへの接続を確立するDBConnectorの実装です。
type redshiftConnector struct{}

// Connect はRedshiftデータベースへの接続を確立し、*sql.DBを返します。
func (c *redshiftConnector) Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	return openSQLDB(ctx, "postgres", "Redshift", cfg)
}

func (c *redshiftConnector) Dialect() database.Dialect { return database.PostgresDialect{} }

func init() {
	RegisterConnector("redshift", &redshiftConnector{})
}
