package connector

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/config"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/database"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/exception"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
)

// DBConnector は特定のデータベースタイプへの接続を確立するためのインターフェースです。
type DBConnector interface {
	Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error)
	Dialect() database.Dialect
}

var (
	mu sync.RWMutex
	// connectors は登録されたDBConnectorの実装を保持するマップです。
	connectors = make(map[string]DBConnector)
)

// RegisterConnector は指定されたタイプ名でDBConnectorを登録します。
// 既に登録されている場合は上書きします。
func RegisterConnector(dbType string, connector DBConnector) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := connectors[dbType]; exists {
		logger.Debugf("DBConnector '%s' は既に登録されています。上書きします。", dbType)
	}
	connectors[dbType] = connector
}

func lookup(dbType string) (DBConnector, error) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := connectors[strings.ToLower(dbType)]
	if !ok {
		return nil, exception.NewBatchErrorf("database", exception.KindConnectionFailed, "未対応のデータベースタイプ: %s", dbType)
	}
	return c, nil
}

// NewDBConnectionFromConfig は設定に基づいて適切なデータベース接続を確立します。
// 登録されたコネクタの中から適切なものを選択して接続します。
func NewDBConnectionFromConfig(ctx context.Context, cfg config.DatabaseConfig) (database.DBConnection, error) {
	c, err := lookup(cfg.Type)
	if err != nil {
		return nil, err
	}
	rawDB, err := c.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return database.NewSQLDBAdapter(rawDB, c.Dialect()), nil
}

// openSQLDB はドライバ共通の接続処理です。接続プール設定を適用し、Ping で疎通と認証を確認します。
func openSQLDB(ctx context.Context, driverName, label string, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(driverName, cfg.ConnectionString())
	if err != nil {
		return nil, exception.NewBatchError("database", exception.KindConnectionFailed, fmt.Sprintf("%s への接続に失敗しました", label), err, false)
	}

	// 接続プール設定を適用
	pool := cfg.ConnectionPool
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetimeSeconds) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		db.Close() // エラー時は接続を閉じる
		return nil, exception.NewBatchError("database", exception.KindConnectionFailed, fmt.Sprintf("%s への Ping に失敗しました", label), err, true)
	}

	logger.Debugf("%s に正常に接続しました。Host: %s, Database: %s, MaxOpenConns: %d, MaxIdleConns: %d, ConnMaxLifetime: %d秒",
		label, cfg.Host, cfg.Database, pool.MaxOpenConns, pool.MaxIdleConns, pool.ConnMaxLifetimeSeconds)
	return db, nil
}
