package forecastprocessor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	weather_entity "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/domain/entity"
	forecastprocessor "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/step/processor"
)

func f64(v float64) *float64 { return &v }
func i(v int) *int           { return &v }

func sampleForecast(days int) *weather_entity.ForecastResponse {
	daily := make([]weather_entity.DailyEntry, days)
	for n := range daily {
		daily[n] = weather_entity.DailyEntry{
			Time: time.Date(2024, 5, 1+n, 10, 0, 0, 0, time.UTC).Format(time.RFC3339),
			Values: weather_entity.ForecastValues{
				TemperatureMin:              f64(float64(n)),
				TemperatureMax:              f64(float64(n) + 10),
				CloudCoverAvg:               f64(50),
				PrecipitationProbabilityAvg: f64(5),
				RainIntensityAvg:            f64(0.2),
				WeatherCodeMin:              i(1000),
				WeatherCodeMax:              i(1100 + n),
			},
		}
	}
	return &weather_entity.ForecastResponse{
		Location:  weather_entity.Location{Name: "Boston"},
		Timelines: weather_entity.Timelines{Daily: daily},
	}
}

func TestForecastProcessor_ToRows_CountOrderAndSharedFields(t *testing.T) {
	ts := time.Date(2024, 5, 1, 6, 30, 0, 0, time.UTC)
	for _, days := range []int{1, 2, 6, 15} {
		forecast := sampleForecast(days)
		rows := forecastprocessor.NewForecastProcessor().ToRows(forecast, ts)

		require.Len(t, rows, days)
		for n, row := range rows {
			assert.Equal(t, forecast.Timelines.Daily[n].Time, row.ForecastDate, "行の順序は daily の順序と一致する")
			assert.Equal(t, "Boston", row.LocationName)
			assert.Equal(t, ts, row.RequestDate)
			assert.Equal(t, float64(n), *row.TemperatureMin)
			assert.Equal(t, 1100+n, *row.WeatherCodeMax)
		}
	}
}

func TestForecastProcessor_ToRows_MissingValuesAreNil(t *testing.T) {
	forecast := &weather_entity.ForecastResponse{
		Location: weather_entity.Location{Name: "Boston"},
		Timelines: weather_entity.Timelines{Daily: []weather_entity.DailyEntry{
			{Time: "2024-05-01", Values: weather_entity.ForecastValues{TemperatureMin: f64(0), WeatherCodeMin: i(0)}},
		}},
	}

	rows := forecastprocessor.NewForecastProcessor().ToRows(forecast, time.Now())
	require.Len(t, rows, 1)
	row := rows[0]

	// 0 は値として保持され、欠落は nil のまま
	require.NotNil(t, row.TemperatureMin)
	assert.Equal(t, 0.0, *row.TemperatureMin)
	require.NotNil(t, row.WeatherCodeMin)
	assert.Equal(t, 0, *row.WeatherCodeMin)
	assert.Nil(t, row.TemperatureMax)
	assert.Nil(t, row.CloudCoverAvg)
	assert.Nil(t, row.PrecipProbabilityAvg)
	assert.Nil(t, row.RainIntensityAvg)
	assert.Nil(t, row.WeatherCodeMax)

	args := row.Args()
	require.Len(t, args, 10)
	assert.Nil(t, args[4], "欠落値は SQL NULL としてバインドされる")
	assert.Equal(t, 0.0, args[3])
}

func TestForecastProcessor_ToRows_Empty(t *testing.T) {
	p := forecastprocessor.NewForecastProcessor()

	rows := p.ToRows(&weather_entity.ForecastResponse{Location: weather_entity.Location{Name: "x"}}, time.Now())
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	assert.Empty(t, p.ToRows(nil, time.Now()))
}

func TestForecastProcessor_ToRows_PureAndDeterministic(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	forecast := sampleForecast(3)
	p := forecastprocessor.NewForecastProcessor()

	first := p.ToRows(forecast, ts)
	second := p.ToRows(forecast, ts)
	assert.Equal(t, first, second)

	// 出力を変更しても入力には影響しない
	*first[0].TemperatureMin = 99
	assert.Equal(t, 0.0, *forecast.Timelines.Daily[0].Values.TemperatureMin)
	assert.Equal(t, "Boston", forecast.Location.Name)
}
