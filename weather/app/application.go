package app

import (
	"context"
	"io/fs"
	"net/http"
	"path"
	"time"
	_ "time/tzdata" // Lambda のランタイムにはタイムゾーンデータが無い場合がある

	godotenv "github.com/joho/godotenv"

	config "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/config"
	database "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/database"
	core "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/job/core"
	joblistener "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/job/listener"
	exception "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/exception"
	logger "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"

	weather_config "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/config"
	weather_entity "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/domain/entity"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/handler"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/repository"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/secret"
	forecastprocessor "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/step/processor"
	forecastreader "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/step/reader"
)

// MigrationsRoot は埋め込みマイグレーションのルートディレクトリです。方言ごとのサブディレクトリを持ちます。
const MigrationsRoot = "resources/migrations"

// Invoker は取り込み処理を 1 回実行します。
type Invoker interface {
	Handle(ctx context.Context) handler.Result
}

// Application は設定と組み立て済みの IngestionHandler を保持します。
type Application struct {
	Config     *config.Config
	Handler    *handler.IngestionHandler
	secrets    secret.SecretProvider
	migrations fs.FS
}

// LoadConfig は .env ファイルと埋め込み設定から設定をロードします。
func LoadConfig(envFilePath string, embeddedConfig []byte) (*config.Config, error) {
	// .env ファイルのロード
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env ファイル '%s' のロードをスキップしました (本番環境では環境変数を使用): %v", envFilePath, err)
		} else {
			logger.Infof(".env ファイル '%s' をロードしました。", envFilePath)
		}
	}

	cfg, err := config.NewBytesConfigLoader(embeddedConfig).Load()
	if err != nil {
		return nil, exception.NewBatchError("app", "", "設定のロードに失敗しました", err, false)
	}
	return cfg, nil
}

// ConfigureLogging はログレベルと出力形式を設定します。Lambda 上では常に JSON で出力します。
func ConfigureLogging(cfg *config.Config, lambdaMode bool) {
	logger.SetLogLevel(cfg.System.Logging.Level)
	format := cfg.System.Logging.Format
	if lambdaMode {
		format = "json"
	}
	logger.SetFormat(format)
}

// Location は system.timezone に対応する *time.Location を返します。不正な値の場合は UTC です。
func Location(cfg *config.Config) *time.Location {
	if cfg.System.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(cfg.System.Timezone)
	if err != nil {
		logger.Warnf("タイムゾーン '%s' をロードできません。UTC を使用します: %v", cfg.System.Timezone, err)
		return time.UTC
	}
	return loc
}

// NewApplication は設定から SecretProvider と IngestionHandler を組み立てます。
func NewApplication(ctx context.Context, cfg *config.Config, migrations fs.FS) (*Application, error) {
	secrets, err := secret.NewSecretProvider(ctx, weather_config.NewSecretProviderConfig(cfg))
	if err != nil {
		return nil, err
	}
	return &Application{
		Config:     cfg,
		Handler:    NewIngestionHandler(cfg, secrets),
		secrets:    secrets,
		migrations: migrations,
	}, nil
}

// NewIngestionHandler は本番用の協調オブジェクトで IngestionHandler を作成します。
// HTTP クライアントとデータベース接続は起動ごとに作成されます。
func NewIngestionHandler(cfg *config.Config, secrets secret.SecretProvider) *handler.IngestionHandler {
	readerCfg := weather_config.NewForecastReaderConfig(cfg)
	repoCfg := weather_config.NewForecastRepositoryConfig(cfg)
	loc := Location(cfg)

	return handler.NewIngestionHandler(cfg.Batch.JobName, cfg.Batch.SecretName, handler.Dependencies{
		Secrets: secrets,
		NewFetcher: func() handler.ForecastFetcher {
			return forecastreader.NewForecastReader(readerCfg, &http.Client{})
		},
		Transformer: forecastprocessor.NewForecastProcessor(),
		OpenRepository: func(ctx context.Context, bundle weather_entity.SecretBundle) (repository.ForecastRepository, error) {
			repo, err := repository.OpenForecastRepository(ctx, repoCfg, bundle)
			if err != nil {
				return nil, err
			}
			return repo, nil
		},
		Clock: func() time.Time { return time.Now().In(loc) },
		Listeners: []core.JobExecutionListener{
			joblistener.NewLoggingJobListener(),
		},
	})
}

// Migrate は batch.run_migrations が有効な場合に保存先テーブルのマイグレーションを実行します。
// 接続情報はシークレットから取得します。
func (a *Application) Migrate(ctx context.Context) error {
	if !a.Config.Batch.RunMigrations {
		logger.Debugf("マイグレーションは無効です。")
		return nil
	}

	bundle, err := a.secrets.Resolve(ctx, a.Config.Batch.SecretName)
	if err != nil {
		return err
	}
	dbCfg := bundle.DatabaseConfig(a.Config.Database)
	src := database.MigrationSource{
		Path: dbCfg.AppMigrationPath,
		FS:   a.migrations,
		Dir:  path.Join(MigrationsRoot, database.DialectFor(dbCfg.Type).Name()),
	}
	return database.RunMigrations(dbCfg.Type, dbCfg.ConnectionString(), src, database.DefaultMigrationsTable)
}

// RunOnce は取り込み処理を 1 回実行し、終了コードを返します。
func (a *Application) RunOnce(ctx context.Context) int {
	return ExitCode(a.Handler.Handle(ctx))
}

// ExitCode は結果から CLI の終了コードを決定します。
func ExitCode(result handler.Result) int {
	if result.StatusCode == http.StatusOK {
		return 0
	}
	return 1
}
