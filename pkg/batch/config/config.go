package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ConnectionPoolConfig はデータベースコネクションプールの設定を保持します。
type ConnectionPoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `yaml:"conn_max_lifetime_seconds"`
}

// DatabaseConfig はデータベース接続の設定です。
// 接続先ホストや認証情報はシークレットから解決されるため、YAML には型と接続オプションのみを記述します。
type DatabaseConfig struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"-"`
	Port     int    `yaml:"-"`
	Database string `yaml:"-"`
	User     string `yaml:"-"`
	Password string `yaml:"-"`
	Sslmode  string `yaml:"sslmode"`
	// アプリケーション固有のマイグレーションファイルのパス。空の場合は埋め込みのマイグレーションを使用します。
	AppMigrationPath string `yaml:"app_migration_path"`
	// コネクションプール設定
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

// ConnectionString はドライバに渡す DSN を返します。
func (c DatabaseConfig) ConnectionString() string {
	switch strings.ToLower(c.Type) {
	case "postgres", "redshift":
		// golang-migrate/migrate が期待する形式に合わせる
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
			Path:     "/" + c.Database,
			RawQuery: "sslmode=" + url.QueryEscape(c.Sslmode),
		}
		return u.String()
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.User, c.Password, c.Host, c.Port, c.Database)
	default:
		return ""
	}
}

// BatchConfig は取り込み処理そのものの設定です。
type BatchConfig struct {
	JobName       string `yaml:"job_name"`
	APIEndpoint   string `yaml:"api_endpoint"`
	SecretName    string `yaml:"secret_name"`
	SecretSource  string `yaml:"secret_source"` // "secretsmanager" または "file"
	SecretDir     string `yaml:"secret_dir"`    // SecretSource が "file" の場合のディレクトリ
	Schedule      string `yaml:"schedule"`      // schedule モードで使用する cron 式
	HTTPPort      string `yaml:"http_port"`     // serve モードで使用するポート
	RunMigrations bool   `yaml:"run_migrations"`
}

// LoggingConfig はログ出力の設定です。
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" または "json"
}

type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Batch    BatchConfig    `yaml:"batch"`
	System   SystemConfig   `yaml:"system"`
}

const (
	DefaultAPIEndpoint = "https://api.tomorrow.io/v4/weather/forecast"
	DefaultSecretName  = "fishing-secrets"
)

// NewConfig は Config の新しいインスタンスを返します。
func NewConfig() *Config {
	return &Config{
		System: SystemConfig{
			Timezone: "UTC", // デフォルト値を UTC に設定
			Logging:  LoggingConfig{Level: "INFO", Format: "text"},
		},
		Batch: BatchConfig{
			JobName:      "forecast_ingestion",
			APIEndpoint:  DefaultAPIEndpoint,
			SecretName:   DefaultSecretName,
			SecretSource: "secretsmanager",
			Schedule:     "0 * * * *",
			HTTPPort:     "8080",
		},
		Database: DatabaseConfig{
			Type:    "postgres",
			Sslmode: "require",
		},
	}
}
