package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/database"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/database/connector"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/exception"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
	weather_config "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/config"
	weather_entity "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/domain/entity"
)

const module = "forecast_repository"

// ForecastTable は保存先のテーブルです。
const ForecastTable = "fw1.t_forecast"

// forecastColumns は INSERT 文の列順です。weather_entity.ForecastRow.Args と同じ順序です。
var forecastColumns = []string{
	"request_date",
	"forecast_date",
	"location_name",
	"temperature_min",
	"temperature_max",
	"cloud_cover_avg",
	"precip_probability_avg",
	"rain_intensity_avg",
	"weather_code_min",
	"weather_code_max",
}

// InsertSQL は方言に応じたパラメータ化された INSERT 文を返します。値を文字列連結することはありません。
func InsertSQL(dialect database.Dialect) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ForecastTable, strings.Join(forecastColumns, ", "), dialect.Placeholders(len(forecastColumns)))
}

// ForecastRepository は予報行の保存先です。
type ForecastRepository interface {
	// InsertAll は行を 1 行ずつ挿入してコミットし、コミットできた行数を返します。
	InsertAll(ctx context.Context, rows []weather_entity.ForecastRow) (int, error)
	// Close は接続を解放します。何度呼び出しても安全で、エラーは返しません。
	Close()
}

// RepositoryState はリポジトリの状態です。
// Unopened → Open → Closed と遷移し、Closed はどの状態からも到達できます。
type RepositoryState int

const (
	StateUnopened RepositoryState = iota
	StateOpen
	StateClosed
)

func (s RepositoryState) String() string {
	switch s {
	case StateUnopened:
		return "Unopened"
	case StateOpen:
		return "Open"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("RepositoryState(%d)", int(s))
	}
}

// SQLForecastRepository は database/sql 経由で fw1.t_forecast に書き込む ForecastRepository の実装です。
// 接続は 1 回の起動の間だけ保持し、プールとして再利用しません。
type SQLForecastRepository struct {
	config    weather_config.ForecastRepositoryConfig
	conn      database.DBConnection
	state     RepositoryState
	insertSQL string
}

// NewForecastRepository は未接続の SQLForecastRepository を作成します。
func NewForecastRepository(cfg weather_config.ForecastRepositoryConfig) *SQLForecastRepository {
	return &SQLForecastRepository{config: cfg, state: StateUnopened}
}

// NewForecastRepositoryWithConnection は確立済みの接続を使用する SQLForecastRepository を作成します。
func NewForecastRepositoryWithConnection(conn database.DBConnection) *SQLForecastRepository {
	return &SQLForecastRepository{
		conn:      conn,
		state:     StateOpen,
		insertSQL: InsertSQL(conn.Dialect()),
	}
}

// OpenForecastRepository はシークレットの接続情報で接続を確立したリポジトリを返します。
func OpenForecastRepository(ctx context.Context, cfg weather_config.ForecastRepositoryConfig, bundle weather_entity.SecretBundle) (*SQLForecastRepository, error) {
	r := NewForecastRepository(cfg)
	if err := r.Open(ctx, bundle); err != nil {
		return nil, err
	}
	return r, nil
}

// Open はデータベースへ接続し、Ping で疎通と認証を確認します。
func (r *SQLForecastRepository) Open(ctx context.Context, bundle weather_entity.SecretBundle) error {
	if r.state != StateUnopened {
		return exception.NewBatchErrorf(module, exception.KindConnectionFailed, "状態 %s のリポジトリは開けません", r.state)
	}

	dbCfg := bundle.DatabaseConfig(r.config.Database)
	conn, err := connector.NewDBConnectionFromConfig(ctx, dbCfg)
	if err != nil {
		logger.Errorf("データベース '%s' (%s:%d) への接続に失敗しました: %v", dbCfg.Database, dbCfg.Host, dbCfg.Port, err)
		if exception.KindOf(err) == exception.KindConnectionFailed {
			return err
		}
		return exception.NewBatchError(module, exception.KindConnectionFailed, "データベースへの接続に失敗しました", err, true)
	}

	r.conn = conn
	r.state = StateOpen
	r.insertSQL = InsertSQL(conn.Dialect())
	logger.Debugf("データベース '%s' に接続しました。", dbCfg.Database)
	return nil
}

// State は現在の状態を返します。
func (r *SQLForecastRepository) State() RepositoryState {
	return r.state
}

// InsertAll は各行を個別のトランザクションで挿入し、行ごとにコミットします。
// 途中の行で失敗した場合、その行をロールバックして InsertFailed を返し、以降の行は挿入しません。
// それまでにコミットされた行はそのまま残ります。
func (r *SQLForecastRepository) InsertAll(ctx context.Context, rows []weather_entity.ForecastRow) (int, error) {
	if r.state != StateOpen {
		return 0, exception.NewBatchErrorf(module, exception.KindInsertFailed, "状態 %s のリポジトリには挿入できません", r.state)
	}

	committed := 0
	for n, row := range rows {
		// ループ内でも Context の完了を定期的にチェック
		select {
		case <-ctx.Done():
			logger.Errorf("%d 行目の挿入前に中断されました: %v", n+1, ctx.Err())
			return committed, exception.NewBatchError(module, exception.KindInsertFailed, "挿入処理が中断されました", ctx.Err(), false)
		default:
		}

		if err := r.insertOne(ctx, row); err != nil {
			logger.Errorf("%s への %d 行目 (forecast_date: %s) の挿入に失敗しました。コミット済み: %d 行: %v",
				ForecastTable, n+1, row.ForecastDate, committed, err)
			return committed, exception.NewBatchError(module, exception.KindInsertFailed,
				fmt.Sprintf("%d 行目 (forecast_date: %s) の挿入に失敗しました", n+1, row.ForecastDate), err, false)
		}
		committed++
	}

	logger.Debugf("%s に予報 %d 行を保存しました。", ForecastTable, committed)
	return committed, nil
}

// insertOne は 1 行を挿入してコミットします。失敗時はロールバックし、ステートメントは常に解放します。
func (r *SQLForecastRepository) insertOne(ctx context.Context, row weather_entity.ForecastRow) (err error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Warnf("ロールバックに失敗しました: %v", rbErr)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, r.insertSQL)
	if err != nil {
		return fmt.Errorf("INSERT 文の準備に失敗しました: %w", err)
	}
	_, err = stmt.ExecContext(ctx, row.Args()...)
	if closeErr := stmt.Close(); closeErr != nil {
		logger.Warnf("ステートメントのクローズに失敗しました: %v", closeErr)
	}
	if err != nil {
		return fmt.Errorf("INSERT の実行に失敗しました: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗しました: %w", err)
	}
	return nil
}

// Close は接続を無条件に解放します。
// 接続が既に壊れている場合もエラーをログ出力して握りつぶします。
func (r *SQLForecastRepository) Close() {
	if r.state == StateClosed {
		return
	}
	prev := r.state
	r.state = StateClosed
	if r.conn == nil {
		logger.Debugf("未接続のリポジトリをクローズしました (状態: %s)。", prev)
		return
	}
	if err := r.conn.Close(); err != nil {
		logger.Warnf("データベース接続のクローズ中にエラーが発生しました: %v", err)
		return
	}
	logger.Debugf("データベース接続をクローズしました。")
}

var _ ForecastRepository = (*SQLForecastRepository)(nil)
