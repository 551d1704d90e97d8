package handler_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/database"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/job/core"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/exception"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
	weather_config "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/config"
	weather_entity "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/domain/entity"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/handler"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/repository"
	forecastprocessor "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/step/processor"
	forecastreader "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/step/reader"
)

const twoDayResponse = `{
  "timelines": {
    "daily": [
      {"time": "2024-05-01", "values": {"temperatureMin": 8.5, "temperatureMax": 17.25, "cloudCoverAvg": 40, "precipitationProbabilityAvg": 10, "rainIntensityAvg": 0.1, "weatherCodeMin": 1000, "weatherCodeMax": 1100}},
      {"time": "2024-05-02", "values": {"temperatureMin": 9, "temperatureMax": 18, "precipitationProbabilityAvg": 0, "rainIntensityAvg": 0, "weatherCodeMin": 1001, "weatherCodeMax": 1001}}
    ]
  },
  "location": {"name": "Boston"}
}`

const expectedInsert = "INSERT INTO fw1.t_forecast (request_date, forecast_date, location_name, temperature_min, temperature_max, cloud_cover_avg, precip_probability_avg, rain_intensity_avg, weather_code_min, weather_code_max) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)"

var (
	fixedNow   = time.Date(2024, 5, 1, 6, 30, 0, 0, time.UTC)
	testBundle = weather_entity.SecretBundle{
		Host: "db", Port: 5432, DBName: "fishing", DBUsername: "ingest", DBPassword: "pw",
		APIKey: "key-123", Location: "42.3478,-71.0466", Units: "imperial",
	}
)

// MockSecretProvider は secret.SecretProvider のモック実装です。
type MockSecretProvider struct {
	mock.Mock
}

func (m *MockSecretProvider) Resolve(ctx context.Context, name string) (weather_entity.SecretBundle, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(weather_entity.SecretBundle), args.Error(1)
}

// MockRepository は repository.ForecastRepository のモック実装です。
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) InsertAll(ctx context.Context, rows []weather_entity.ForecastRow) (int, error) {
	args := m.Called(ctx, rows)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) Close() {
	m.Called()
}

// recordingListener は通知された JobExecution を記録します。
type recordingListener struct {
	before []core.JobStatus
	after  []*core.JobExecution
}

func (l *recordingListener) BeforeJob(ctx context.Context, je *core.JobExecution) {
	l.before = append(l.before, je.Status)
}

func (l *recordingListener) AfterJob(ctx context.Context, je *core.JobExecution) {
	l.after = append(l.after, je)
}

// fakeFetcher は固定の結果を返す ForecastFetcher です。
type fakeFetcher struct {
	forecast *weather_entity.ForecastResponse
	err      error
	calls    *int32
	closed   *int32
	panics   bool
}

func (f fakeFetcher) FetchForecast(ctx context.Context, bundle weather_entity.SecretBundle) (*weather_entity.ForecastResponse, error) {
	atomic.AddInt32(f.calls, 1)
	if f.panics {
		panic("decoder bug")
	}
	return f.forecast, f.err
}

func (f fakeFetcher) Close() { atomic.AddInt32(f.closed, 1) }

func newForecastServer(t *testing.T, status int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func readerFactory(endpoint string) func() handler.ForecastFetcher {
	return func() handler.ForecastFetcher {
		return forecastreader.NewForecastReader(weather_config.ForecastReaderConfig{APIEndpoint: endpoint}, &http.Client{})
	}
}

func TestIngestionHandler_EndToEnd_TwoDays(t *testing.T) {
	server, apiCalls := newForecastServer(t, http.StatusOK, twoDayResponse)

	db, dbMock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	dbMock.ExpectBegin()
	dbMock.ExpectPrepare(expectedInsert).ExpectExec().
		WithArgs(fixedNow, "2024-05-01", "Boston", 8.5, 17.25, 40.0, 10.0, 0.1, 1000, 1100).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectCommit()
	dbMock.ExpectBegin()
	dbMock.ExpectPrepare(expectedInsert).ExpectExec().
		WithArgs(fixedNow, "2024-05-02", "Boston", 9.0, 18.0, nil, 0.0, 0.0, 1001, 1001).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectCommit()
	dbMock.ExpectClose()

	secrets := new(MockSecretProvider)
	secrets.On("Resolve", mock.Anything, "fishing-secrets").Return(testBundle, nil).Once()

	var opened weather_entity.SecretBundle
	listener := &recordingListener{}
	h := handler.NewIngestionHandler("forecast_ingestion", "fishing-secrets", handler.Dependencies{
		Secrets:     secrets,
		NewFetcher:  readerFactory(server.URL),
		Transformer: forecastprocessor.NewForecastProcessor(),
		OpenRepository: func(ctx context.Context, bundle weather_entity.SecretBundle) (repository.ForecastRepository, error) {
			opened = bundle
			return repository.NewForecastRepositoryWithConnection(database.NewSQLDBAdapter(db, database.PostgresDialect{})), nil
		},
		Clock:     func() time.Time { return fixedNow },
		Listeners: []core.JobExecutionListener{listener},
	})

	result := h.Handle(context.Background())

	assert.Equal(t, handler.Result{StatusCode: 200, Body: "Weather data successfully inserted!"}, result)
	assert.Equal(t, int32(1), atomic.LoadInt32(apiCalls))
	assert.Equal(t, testBundle, opened)
	assert.NoError(t, dbMock.ExpectationsWereMet(), "2 行の挿入とクローズが行われる")
	secrets.AssertExpectations(t)

	require.Len(t, listener.after, 1)
	je := listener.after[0]
	assert.Equal(t, []core.JobStatus{core.BatchStatusStarting}, listener.before)
	assert.Equal(t, core.BatchStatusCompleted, je.Status)
	assert.Equal(t, 2, je.WriteCount)
	assert.Empty(t, je.FailedStepName)
	assert.NotEmpty(t, je.ID)
}

func TestIngestionHandler_SecretFailure(t *testing.T) {
	var fetchCalls, closed int32
	opened := false
	secrets := new(MockSecretProvider)
	secrets.On("Resolve", mock.Anything, "fishing-secrets").
		Return(weather_entity.SecretBundle{}, exception.NewBatchErrorf("secret", exception.KindSecretUnavailable, "not found")).Once()

	listener := &recordingListener{}
	h := handler.NewIngestionHandler("forecast_ingestion", "fishing-secrets", handler.Dependencies{
		Secrets:     secrets,
		NewFetcher:  func() handler.ForecastFetcher { return fakeFetcher{calls: &fetchCalls, closed: &closed} },
		Transformer: forecastprocessor.NewForecastProcessor(),
		OpenRepository: func(ctx context.Context, bundle weather_entity.SecretBundle) (repository.ForecastRepository, error) {
			opened = true
			return nil, errors.New("unexpected")
		},
		Listeners: []core.JobExecutionListener{listener},
	})

	result := h.Handle(context.Background())

	assert.Equal(t, handler.Result{StatusCode: 500, Body: "Internal Server Error!"}, result)
	assert.Zero(t, atomic.LoadInt32(&fetchCalls), "API は呼び出されない")
	assert.False(t, opened, "データベースには接続しない")
	secrets.AssertExpectations(t)

	require.Len(t, listener.after, 1)
	assert.Equal(t, core.BatchStatusFailed, listener.after[0].Status)
	assert.Equal(t, handler.StepResolveSecret, listener.after[0].FailedStepName)
	require.Len(t, listener.after[0].Failures, 1)
	assert.ErrorIs(t, listener.after[0].Failures[0], exception.ErrSecretUnavailable)
}

func TestIngestionHandler_WeatherFailures_NeverOpenDatabase(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{name: "Server Error", status: http.StatusInternalServerError, body: `{"code":500}`, kind: exception.ErrUpstreamUnavailable},
		{name: "Unauthorized", status: http.StatusUnauthorized, body: `{"code":401001}`, kind: exception.ErrUpstreamUnavailable},
		{name: "Malformed Body", status: http.StatusOK, body: `{"timelines":`, kind: exception.ErrUpstreamMalformed},
		{name: "Missing Location", status: http.StatusOK, body: `{"timelines":{"daily":[]}}`, kind: exception.ErrUpstreamMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newForecastServer(t, tt.status, tt.body)
			secrets := new(MockSecretProvider)
			secrets.On("Resolve", mock.Anything, mock.Anything).Return(testBundle, nil)

			opened := false
			listener := &recordingListener{}
			h := handler.NewIngestionHandler("forecast_ingestion", "fishing-secrets", handler.Dependencies{
				Secrets:     secrets,
				NewFetcher:  readerFactory(server.URL),
				Transformer: forecastprocessor.NewForecastProcessor(),
				OpenRepository: func(ctx context.Context, bundle weather_entity.SecretBundle) (repository.ForecastRepository, error) {
					opened = true
					return nil, errors.New("unexpected")
				},
				Listeners: []core.JobExecutionListener{listener},
			})

			result := h.Handle(context.Background())

			assert.Equal(t, 500, result.StatusCode)
			assert.Equal(t, "Internal Server Error!", result.Body)
			assert.False(t, opened)
			require.Len(t, listener.after, 1)
			assert.Equal(t, handler.StepFetchForecast, listener.after[0].FailedStepName)
			assert.ErrorIs(t, listener.after[0].Failures[0], tt.kind)
		})
	}
}

func TestIngestionHandler_ConnectionFailure(t *testing.T) {
	var fetchCalls, closed int32
	secrets := new(MockSecretProvider)
	secrets.On("Resolve", mock.Anything, mock.Anything).Return(testBundle, nil)

	listener := &recordingListener{}
	h := handler.NewIngestionHandler("forecast_ingestion", "fishing-secrets", handler.Dependencies{
		Secrets: secrets,
		NewFetcher: func() handler.ForecastFetcher {
			return fakeFetcher{forecast: &weather_entity.ForecastResponse{Location: weather_entity.Location{Name: "Boston"}}, calls: &fetchCalls, closed: &closed}
		},
		Transformer: forecastprocessor.NewForecastProcessor(),
		OpenRepository: func(ctx context.Context, bundle weather_entity.SecretBundle) (repository.ForecastRepository, error) {
			return nil, exception.NewBatchErrorf("forecast_repository", exception.KindConnectionFailed, "password authentication failed")
		},
		Listeners: []core.JobExecutionListener{listener},
	})

	result := h.Handle(context.Background())

	assert.Equal(t, 500, result.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetchCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&closed), "HTTP クライアントは解放される")
	require.Len(t, listener.after, 1)
	assert.Equal(t, handler.StepOpenRepository, listener.after[0].FailedStepName)
	assert.ErrorIs(t, listener.after[0].Failures[0], exception.ErrConnectionFailed)
}

func TestIngestionHandler_InsertFailure_ClosesRepository(t *testing.T) {
	var fetchCalls, closed int32
	forecast := &weather_entity.ForecastResponse{
		Location:  weather_entity.Location{Name: "Boston"},
		Timelines: weather_entity.Timelines{Daily: []weather_entity.DailyEntry{{Time: "2024-05-01"}, {Time: "2024-05-02"}}},
	}
	secrets := new(MockSecretProvider)
	secrets.On("Resolve", mock.Anything, mock.Anything).Return(testBundle, nil)

	repo := new(MockRepository)
	repo.On("InsertAll", mock.Anything, mock.MatchedBy(func(rows []weather_entity.ForecastRow) bool {
		return len(rows) == 2 && rows[0].RequestDate.Equal(fixedNow) && rows[1].RequestDate.Equal(fixedNow)
	})).Return(1, exception.NewBatchErrorf("forecast_repository", exception.KindInsertFailed, "2 行目の挿入に失敗しました")).Once()
	repo.On("Close").Return().Once()

	listener := &recordingListener{}
	h := handler.NewIngestionHandler("forecast_ingestion", "fishing-secrets", handler.Dependencies{
		Secrets:     secrets,
		NewFetcher:  func() handler.ForecastFetcher { return fakeFetcher{forecast: forecast, calls: &fetchCalls, closed: &closed} },
		Transformer: forecastprocessor.NewForecastProcessor(),
		OpenRepository: func(ctx context.Context, bundle weather_entity.SecretBundle) (repository.ForecastRepository, error) {
			return repo, nil
		},
		Clock:     func() time.Time { return fixedNow },
		Listeners: []core.JobExecutionListener{listener},
	})

	result := h.Handle(context.Background())

	assert.Equal(t, handler.Result{StatusCode: 500, Body: "Internal Server Error!"}, result)
	repo.AssertExpectations(t)
	require.Len(t, listener.after, 1)
	assert.Equal(t, handler.StepInsertRows, listener.after[0].FailedStepName)
	assert.Equal(t, 1, listener.after[0].WriteCount, "コミット済みの行数が記録される")
}

func TestIngestionHandler_PanicBecomesFailure(t *testing.T) {
	secrets := new(MockSecretProvider)
	secrets.On("Resolve", mock.Anything, mock.Anything).Return(testBundle, nil)

	repo := new(MockRepository)
	repo.On("InsertAll", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("driver bug") })
	repo.On("Close").Return().Once()

	var fetchCalls, closed int32
	listener := &recordingListener{}
	h := handler.NewIngestionHandler("forecast_ingestion", "fishing-secrets", handler.Dependencies{
		Secrets: secrets,
		NewFetcher: func() handler.ForecastFetcher {
			return fakeFetcher{forecast: &weather_entity.ForecastResponse{Location: weather_entity.Location{Name: "Boston"}}, calls: &fetchCalls, closed: &closed}
		},
		Transformer: forecastprocessor.NewForecastProcessor(),
		OpenRepository: func(ctx context.Context, bundle weather_entity.SecretBundle) (repository.ForecastRepository, error) {
			return repo, nil
		},
		Listeners: []core.JobExecutionListener{listener},
	})

	var result handler.Result
	assert.NotPanics(t, func() { result = h.Handle(context.Background()) })
	assert.Equal(t, 500, result.StatusCode)
	repo.AssertCalled(t, "Close")
	require.Len(t, listener.after, 1)
	assert.Equal(t, core.BatchStatusFailed, listener.after[0].Status)
	assert.Equal(t, handler.StepInsertRows, listener.after[0].FailedStepName)
}

func TestIngestionHandler_FetcherPanic_ReleasesClient(t *testing.T) {
	var fetchCalls, closed int32
	secrets := new(MockSecretProvider)
	secrets.On("Resolve", mock.Anything, mock.Anything).Return(testBundle, nil)

	opened := false
	listener := &recordingListener{}
	h := handler.NewIngestionHandler("forecast_ingestion", "fishing-secrets", handler.Dependencies{
		Secrets: secrets,
		NewFetcher: func() handler.ForecastFetcher {
			return fakeFetcher{calls: &fetchCalls, closed: &closed, panics: true}
		},
		Transformer: forecastprocessor.NewForecastProcessor(),
		OpenRepository: func(ctx context.Context, bundle weather_entity.SecretBundle) (repository.ForecastRepository, error) {
			opened = true
			return nil, errors.New("should not be called")
		},
		Listeners: []core.JobExecutionListener{listener},
	})

	var result handler.Result
	assert.NotPanics(t, func() { result = h.Handle(context.Background()) })
	assert.Equal(t, 500, result.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&closed), "パニック時も HTTP クライアントは解放される")
	assert.False(t, opened)
	require.Len(t, listener.after, 1)
	assert.Equal(t, handler.StepFetchForecast, listener.after[0].FailedStepName)
}

func TestIngestionHandler_FailureLogIncludesKindAndTemporary(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf, "json")
	defer logger.SetOutput(os.Stderr, "text")

	var fetchCalls, closed int32
	secrets := new(MockSecretProvider)
	secrets.On("Resolve", mock.Anything, mock.Anything).Return(testBundle, nil)

	h := handler.NewIngestionHandler("forecast_ingestion", "fishing-secrets", handler.Dependencies{
		Secrets: secrets,
		NewFetcher: func() handler.ForecastFetcher {
			return fakeFetcher{
				err:    exception.NewBatchError("forecast_reader", exception.KindUpstreamUnavailable, "API に接続できません", errors.New("dial tcp: i/o timeout"), true),
				calls:  &fetchCalls,
				closed: &closed,
			}
		},
		Transformer: forecastprocessor.NewForecastProcessor(),
	})

	result := h.Handle(context.Background())

	assert.Equal(t, 500, result.StatusCode)
	out := buf.String()
	assert.Contains(t, out, string(exception.KindUpstreamUnavailable))
	assert.Contains(t, out, "temporary=true")
	assert.Contains(t, out, handler.StepFetchForecast)
}
