package database

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"    // MySQL ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL および Redshift ドライバを登録
	_ "github.com/golang-migrate/migrate/v4/source/file"       // ファイルソースドライバを登録
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/exception"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
)

// DefaultMigrationsTable はマイグレーション履歴を記録するテーブル名です。
const DefaultMigrationsTable = "forecast_schema_migrations"

// MigrationSource はマイグレーションファイルの取得元です。
// Path が指定されていればファイルシステム上のディレクトリを、そうでなければ FS 内の Dir を使用します。
type MigrationSource struct {
	Path string
	FS   fs.FS
	Dir  string
}

// MigrationURL は golang-migrate が期待するデータベースURL形式に接続文字列を変換します。
func MigrationURL(dbType, connectionString, migrationsTable string) (string, error) {
	if migrationsTable == "" {
		migrationsTable = DefaultMigrationsTable
	}
	databaseURL := connectionString
	switch strings.ToLower(dbType) {
	case "postgres", "redshift":
		// postgres://... の形式に x-migrations-table を追加
	case "mysql":
		// user:pass@tcp(host:port)/db を mysql:// スキームにし、複数ステートメントを許可
		databaseURL = "mysql://" + connectionString
		databaseURL = appendQuery(databaseURL, "multiStatements=true")
	default:
		return "", exception.NewBatchErrorf("migration", exception.KindConnectionFailed, "サポートされていないデータベースタイプ: %s", dbType)
	}
	return appendQuery(databaseURL, "x-migrations-table="+migrationsTable), nil
}

func appendQuery(u, kv string) string {
	if strings.Contains(u, "?") {
		return u + "&" + kv
	}
	return u + "?" + kv
}

// RunMigrations は指定されたデータベースにマイグレーションを実行します。
//
// dbType: データベースの種類 (例: "postgres", "mysql", "redshift")
// connectionString: データベースへの接続文字列 (config.DatabaseConfig.ConnectionString() から取得される形式)
// src: マイグレーションファイルの取得元
func RunMigrations(dbType, connectionString string, src MigrationSource, migrationsTable string) error {
	databaseURL, err := MigrationURL(dbType, connectionString, migrationsTable)
	if err != nil {
		return err
	}

	var m *migrate.Migrate
	if src.Path != "" {
		logger.Infof("データベースマイグレーションを開始します。DBタイプ: %s, マイグレーションパス: %s", dbType, src.Path)
		m, err = migrate.New(fmt.Sprintf("file://%s", src.Path), databaseURL)
	} else {
		logger.Infof("データベースマイグレーションを開始します。DBタイプ: %s, 埋め込みマイグレーション: %s", dbType, src.Dir)
		d, srcErr := iofs.New(src.FS, src.Dir)
		if srcErr != nil {
			return exception.NewBatchError("migration", exception.KindConnectionFailed, "埋め込みマイグレーションの読み込みに失敗しました", srcErr, false)
		}
		m, err = migrate.NewWithSourceInstance("iofs", d, databaseURL)
	}
	if err != nil {
		return exception.NewBatchError("migration", exception.KindConnectionFailed, "マイグレーションインスタンスの作成に失敗しました", err, true)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warnf("マイグレーションのクローズ中にエラーが発生しました: source=%v, database=%v", srcErr, dbErr)
		}
	}()

	// すべてのアップマイグレーションを実行
	if err = m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("マイグレーションは不要です。データベースは最新の状態です。")
			return nil // 変更がない場合はエラーではない
		}
		return exception.NewBatchError("migration", exception.KindConnectionFailed, "マイグレーションの実行に失敗しました", err, false)
	}

	logger.Infof("データベースマイグレーションが正常に完了しました。")
	return nil
}
