package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BytesConfigLoader はバイトスライス (main.go で埋め込んだ application.yaml) から設定をロードします。
type BytesConfigLoader struct {
	data []byte
}

// NewBytesConfigLoader は新しい BytesConfigLoader のインスタンスを作成します。
func NewBytesConfigLoader(data []byte) *BytesConfigLoader {
	return &BytesConfigLoader{data: data}
}

// Load は埋め込まれたバイトスライスから設定をロードします。
// デフォルト値 → YAML → 環境変数 の順に上書きします。
func (l *BytesConfigLoader) Load() (*Config, error) {
	cfg := NewConfig()

	if err := loadYamlConfig(l.data, cfg); err != nil {
		return nil, fmt.Errorf("YAML設定のパースに失敗しました: %w", err)
	}

	// 環境変数で個別の設定値を上書き
	loadEnvVars(cfg)

	return cfg, nil
}

// YAMLデータを Config 構造体にパースする関数
// YAML に存在しないキーは cfg の既存値 (デフォルト値) のまま残ります。
func loadYamlConfig(data []byte, cfg *Config) error {
	if len(data) == 0 {
		return nil
	}
	return yaml.Unmarshal(data, cfg)
}

// 環境変数で個別の設定値を上書きする関数
func loadEnvVars(cfg *Config) {
	// Database 設定
	if dbType := os.Getenv("DATABASE_TYPE"); dbType != "" {
		cfg.Database.Type = dbType
	}
	if dbSSLMode := os.Getenv("DATABASE_SSLMODE"); dbSSLMode != "" {
		cfg.Database.Sslmode = dbSSLMode
	}
	if migrationPath := os.Getenv("DATABASE_APP_MIGRATION_PATH"); migrationPath != "" {
		cfg.Database.AppMigrationPath = migrationPath
	}
	// コネクションプール設定
	setIntFromEnv("DATABASE_MAX_OPEN_CONNS", &cfg.Database.ConnectionPool.MaxOpenConns)
	setIntFromEnv("DATABASE_MAX_IDLE_CONNS", &cfg.Database.ConnectionPool.MaxIdleConns)
	setIntFromEnv("DATABASE_CONN_MAX_LIFETIME_SECONDS", &cfg.Database.ConnectionPool.ConnMaxLifetimeSeconds)

	// Batch 設定
	if jobName := os.Getenv("BATCH_JOB_NAME"); jobName != "" {
		cfg.Batch.JobName = jobName
	}
	if apiEndpoint := os.Getenv("BATCH_API_ENDPOINT"); apiEndpoint != "" {
		cfg.Batch.APIEndpoint = apiEndpoint
	}
	if secretName := os.Getenv("BATCH_SECRET_NAME"); secretName != "" {
		cfg.Batch.SecretName = secretName
	}
	if secretSource := os.Getenv("BATCH_SECRET_SOURCE"); secretSource != "" {
		cfg.Batch.SecretSource = secretSource
	}
	if secretDir := os.Getenv("BATCH_SECRET_DIR"); secretDir != "" {
		cfg.Batch.SecretDir = secretDir
	}
	if schedule := os.Getenv("BATCH_SCHEDULE"); schedule != "" {
		cfg.Batch.Schedule = schedule
	}
	if port := os.Getenv("BATCH_HTTP_PORT"); port != "" {
		cfg.Batch.HTTPPort = port
	}
	if runMigrations := os.Getenv("BATCH_RUN_MIGRATIONS"); runMigrations != "" {
		if v, err := strconv.ParseBool(runMigrations); err == nil {
			cfg.Batch.RunMigrations = v
		} else {
			fmt.Fprintf(os.Stderr, "警告: BATCH_RUN_MIGRATIONS の値 '%s' が無効です。設定ファイルの値を使用します。\n", runMigrations)
		}
	}

	// System 設定
	if tz := os.Getenv("SYSTEM_TIMEZONE"); tz != "" {
		cfg.System.Timezone = tz
	}
	if logLevel := os.Getenv("SYSTEM_LOGGING_LEVEL"); logLevel != "" {
		cfg.System.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("SYSTEM_LOGGING_FORMAT"); logFormat != "" {
		cfg.System.Logging.Format = strings.ToLower(logFormat)
	}
}

func setIntFromEnv(key string, dst *int) {
	raw := os.Getenv(key)
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "警告: %s の値 '%s' が無効です。デフォルト値または設定ファイルの値を使用します。\n", key, raw)
		return
	}
	*dst = v
}
