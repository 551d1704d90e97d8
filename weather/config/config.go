package weather_config

import (
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/config"
)

// SecretProviderConfig は SecretProvider に必要な設定のみを持つ構造体です。
type SecretProviderConfig struct {
	Name   string
	Source string // "secretsmanager" または "file"
	Dir    string
}

// ForecastReaderConfig は ForecastReader に必要な設定のみを持つ構造体です。
type ForecastReaderConfig struct {
	APIEndpoint string
}

// ForecastRepositoryConfig は ForecastRepository に必要な設定のみを持つ構造体です。
// 接続先と認証情報はシークレットから補完されます。
type ForecastRepositoryConfig struct {
	Database config.DatabaseConfig
}

// NewSecretProviderConfig は全体設定から SecretProviderConfig を切り出します。
func NewSecretProviderConfig(cfg *config.Config) SecretProviderConfig {
	return SecretProviderConfig{
		Name:   cfg.Batch.SecretName,
		Source: cfg.Batch.SecretSource,
		Dir:    cfg.Batch.SecretDir,
	}
}

// NewForecastReaderConfig は全体設定から ForecastReaderConfig を切り出します。
func NewForecastReaderConfig(cfg *config.Config) ForecastReaderConfig {
	return ForecastReaderConfig{APIEndpoint: cfg.Batch.APIEndpoint}
}

// NewForecastRepositoryConfig は全体設定から ForecastRepositoryConfig を切り出します。
func NewForecastRepositoryConfig(cfg *config.Config) ForecastRepositoryConfig {
	return ForecastRepositoryConfig{Database: cfg.Database}
}
