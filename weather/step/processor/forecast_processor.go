package forecastprocessor

import (
	"time"

	weather_entity "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/domain/entity"
)

// ForecastProcessor は API の入れ子構造の日次予報をフラットな行に変換します。
// I/O を行わず、入力を変更しない純粋な変換です。
type ForecastProcessor struct{}

func NewForecastProcessor() *ForecastProcessor {
	return &ForecastProcessor{}
}

// ToRows は daily の各要素から 1 行ずつ、同じ順序で ForecastRow を作成します。
// requestTimestamp はこのバッチのすべての行で共有されます。
// daily が空の場合は空のスライスを返します。
func (p *ForecastProcessor) ToRows(forecast *weather_entity.ForecastResponse, requestTimestamp time.Time) []weather_entity.ForecastRow {
	if forecast == nil {
		return []weather_entity.ForecastRow{}
	}

	rows := make([]weather_entity.ForecastRow, 0, len(forecast.Timelines.Daily))
	for _, day := range forecast.Timelines.Daily {
		v := day.Values
		rows = append(rows, weather_entity.ForecastRow{
			RequestDate:          requestTimestamp,
			ForecastDate:         day.Time,
			LocationName:         forecast.Location.Name,
			TemperatureMin:       clone(v.TemperatureMin),
			TemperatureMax:       clone(v.TemperatureMax),
			CloudCoverAvg:        clone(v.CloudCoverAvg),
			PrecipProbabilityAvg: clone(v.PrecipitationProbabilityAvg),
			RainIntensityAvg:     clone(v.RainIntensityAvg),
			WeatherCodeMin:       clone(v.WeatherCodeMin),
			WeatherCodeMax:       clone(v.WeatherCodeMax),
		})
	}
	return rows
}

// clone は行がレスポンスとポインタを共有しないようにコピーします。
func clone[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
