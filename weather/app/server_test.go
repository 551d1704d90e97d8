package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/app"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/handler"
)

// stubInvoker は固定の結果を返し、呼び出し回数を数えます。
type stubInvoker struct {
	result handler.Result
	calls  int32
}

func (s *stubInvoker) Handle(ctx context.Context) handler.Result {
	atomic.AddInt32(&s.calls, 1)
	return s.result
}

func TestServer_Routes(t *testing.T) {
	tests := []struct {
		name       string
		result     handler.Result
		method     string
		path       string
		statusCode int
		response   string
		calls      int32
	}{
		{
			name:       "Invoke Success",
			result:     handler.Result{StatusCode: 200, Body: handler.SuccessBody},
			method:     http.MethodPost,
			path:       "/invoke",
			statusCode: http.StatusOK,
			response:   `{"statusCode":200,"body":"Weather data successfully inserted!"}`,
			calls:      1,
		},
		{
			name:       "Invoke Failure",
			result:     handler.Result{StatusCode: 500, Body: handler.FailureBody},
			method:     http.MethodPost,
			path:       "/invoke",
			statusCode: http.StatusInternalServerError,
			response:   `{"statusCode":500,"body":"Internal Server Error!"}`,
			calls:      1,
		},
		{
			name:       "Health",
			method:     http.MethodGet,
			path:       "/health",
			statusCode: http.StatusOK,
			response:   `{"status":"ok"}`,
		},
		{
			name:       "Invoke With GET",
			method:     http.MethodGet,
			path:       "/invoke",
			statusCode: http.StatusMethodNotAllowed,
		},
		{
			name:       "Invalid Route",
			method:     http.MethodGet,
			path:       "/invalid",
			statusCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoker := &stubInvoker{result: tt.result}
			srv := app.NewServer(invoker, "0")

			req := httptest.NewRequest(tt.method, tt.path, nil)
			rr := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rr, req)

			assert.Equal(t, tt.statusCode, rr.Code)
			if tt.response != "" {
				assert.JSONEq(t, tt.response, rr.Body.String())
				assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			}
			assert.Equal(t, tt.calls, atomic.LoadInt32(&invoker.calls))
		})
	}
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.NewServer(&stubInvoker{}, "0").Run(ctx)
	}()

	cancel()
	assert.NoError(t, <-done)
}
