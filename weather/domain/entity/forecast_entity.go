package weather_entity

import (
	"strconv"
	"time"

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/config"
)

// SecretBundle はシークレットストアから解決される 1 回の起動分の認証情報と設定です。
// 解決後は変更しません。
type SecretBundle struct {
	Host       string `mapstructure:"host" validate:"required"`
	Port       int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	DBName     string `mapstructure:"db_name" validate:"required"`
	DBUsername string `mapstructure:"db_username" validate:"required"`
	DBPassword string `mapstructure:"db_password" validate:"required"`
	APIKey     string `mapstructure:"tomorrow_io_apikey" validate:"required"`
	Location   string `mapstructure:"rt_location" validate:"required"`
	Units      string `mapstructure:"rt_units" validate:"required"`
}

// DatabaseConfig は接続オプション (base) にシークレットの接続先と認証情報を重ねた設定を返します。
func (b SecretBundle) DatabaseConfig(base config.DatabaseConfig) config.DatabaseConfig {
	base.Host = b.Host
	base.Port = b.Port
	base.Database = b.DBName
	base.User = b.DBUsername
	base.Password = b.DBPassword
	return base
}

// String は認証情報を伏せた文字列表現を返します。ログ出力用です。
func (b SecretBundle) String() string {
	return "SecretBundle{host=" + b.Host + ", port=" + strconv.Itoa(b.Port) + ", db_name=" + b.DBName +
		", db_username=" + b.DBUsername + ", location=" + b.Location + ", units=" + b.Units + "}"
}

// ForecastValues は tomorrow.io の日次予報の値です。
// API がキーを返さない場合があるため、すべてのフィールドはポインタで表現し、欠落は nil とします。
type ForecastValues struct {
	TemperatureMin              *float64 `json:"temperatureMin"`
	TemperatureMax              *float64 `json:"temperatureMax"`
	CloudCoverAvg               *float64 `json:"cloudCoverAvg"`
	PrecipitationProbabilityAvg *float64 `json:"precipitationProbabilityAvg"`
	RainIntensityAvg            *float64 `json:"rainIntensityAvg"`
	WeatherCodeMin              *int     `json:"weatherCodeMin"`
	WeatherCodeMax              *int     `json:"weatherCodeMax"`
}

// DailyEntry は 1 日分の予報です。Time は API が返した文字列のまま保持します。
type DailyEntry struct {
	Time   string         `json:"time"`
	Values ForecastValues `json:"values"`
}

// Timelines は API レスポンスの timelines です。日次以外のタイムラインは使用しません。
type Timelines struct {
	Daily []DailyEntry `json:"daily"`
}

// Location は API レスポンスの location です。
type Location struct {
	Name string `json:"name"`
}

// ForecastResponse は tomorrow.io から取得する生の天気予報データを表す構造体です。
type ForecastResponse struct {
	Location  Location  `json:"location"`
	Timelines Timelines `json:"timelines"`
}

// ForecastRow は fw1.t_forecast に保存する 1 行を表す構造体です。
// RequestDate は API の時刻ではなく起動時の壁時計時刻です。
type ForecastRow struct {
	RequestDate          time.Time
	ForecastDate         string
	LocationName         string
	TemperatureMin       *float64
	TemperatureMax       *float64
	CloudCoverAvg        *float64
	PrecipProbabilityAvg *float64
	RainIntensityAvg     *float64
	WeatherCodeMin       *int
	WeatherCodeMax       *int
}

// Args は INSERT 文のバインドパラメータを列順に返します。nil の値は SQL NULL になります。
func (r ForecastRow) Args() []any {
	return []any{
		r.RequestDate,
		r.ForecastDate,
		r.LocationName,
		nullable(r.TemperatureMin),
		nullable(r.TemperatureMax),
		nullable(r.CloudCoverAvg),
		nullable(r.PrecipProbabilityAvg),
		nullable(r.RainIntensityAvg),
		nullable(r.WeatherCodeMin),
		nullable(r.WeatherCodeMax),
	}
}

// 型付き nil ポインタはドライバによって扱いが異なるため、素の nil に変換します。
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
