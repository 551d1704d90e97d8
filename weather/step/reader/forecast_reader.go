package forecastreader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/exception"
	logger "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
	weather_config "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/config"
	weather_entity "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/domain/entity"
)

const module = "forecast_reader"

// ForecastReader は tomorrow.io の予報 API から天気予報データを読み込む Reader です。
// 1 回の起動で 1 回だけ GET を発行し、リトライやページングは行いません。
type ForecastReader struct {
	config weather_config.ForecastReaderConfig
	client *http.Client
}

// NewForecastReader は ForecastReader を作成します。
// client は起動ごとに呼び出し側が用意し、nil の場合はトランスポートのデフォルト設定の Client を使用します。
func NewForecastReader(cfg weather_config.ForecastReaderConfig, client *http.Client) *ForecastReader {
	if client == nil {
		client = &http.Client{}
	}
	return &ForecastReader{config: cfg, client: client}
}

// FetchForecast は apikey, location, units の 3 つのクエリパラメータをシークレットの値そのままで付与して予報を取得します。
func (r *ForecastReader) FetchForecast(ctx context.Context, bundle weather_entity.SecretBundle) (*weather_entity.ForecastResponse, error) {
	req, err := r.newRequest(ctx, bundle)
	if err != nil {
		// URL 不正は設定の誤りであり、到達できないものとして扱う
		logger.Errorf("HTTPリクエストの作成に失敗しました: %v", err)
		return nil, exception.NewBatchError(module, exception.KindUpstreamUnavailable, "HTTPリクエストの作成に失敗しました", err, false)
	}

	logger.Debugf("天気予報 API を呼び出します。endpoint: %s, location: %s, units: %s", r.config.APIEndpoint, bundle.Location, bundle.Units)
	resp, err := r.client.Do(req)
	if err != nil {
		logger.Errorf("APIへのリクエストに失敗しました: %v", redact(err, bundle.APIKey))
		return nil, exception.NewBatchError(module, exception.KindUpstreamUnavailable, "API呼び出しエラー", redact(err, bundle.APIKey), true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Errorf("APIレスポンスの読み込みに失敗しました: %v", err)
		return nil, exception.NewBatchError(module, exception.KindUpstreamUnavailable, "APIレスポンスの読み込みに失敗しました", err, true)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Errorf("APIからエラーレスポンスが返されました: ステータスコード %d, ボディ: %s", resp.StatusCode, truncate(body, 512))
		return nil, exception.NewBatchErrorf(module, exception.KindUpstreamUnavailable, "APIからエラーレスポンスが返されました: ステータスコード %d", resp.StatusCode)
	}

	return decodeForecast(body)
}

// Close は起動ごとの HTTP クライアントが保持するアイドル接続を解放します。
func (r *ForecastReader) Close() {
	r.client.CloseIdleConnections()
}

func (r *ForecastReader) newRequest(ctx context.Context, bundle weather_entity.SecretBundle) (*http.Request, error) {
	u, err := url.Parse(r.config.APIEndpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("apikey", bundle.APIKey)
	q.Set("location", bundle.Location)
	q.Set("units", bundle.Units)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// rawForecast は必須キーの有無を判定するためのデコード用の型です。
type rawForecast struct {
	Location *struct {
		Name *string `json:"name"`
	} `json:"location"`
	Timelines *struct {
		Daily *[]weather_entity.DailyEntry `json:"daily"`
	} `json:"timelines"`
}

// decodeForecast はレスポンスボディをデコードし、location.name と timelines.daily の存在を確認します。
// daily が空配列の場合は正常なレスポンスとして扱います。
func decodeForecast(body []byte) (*weather_entity.ForecastResponse, error) {
	var raw rawForecast
	if err := json.Unmarshal(body, &raw); err != nil {
		logger.Errorf("APIレスポンスのデコードに失敗しました: %v", err)
		return nil, exception.NewBatchError(module, exception.KindUpstreamMalformed, "APIレスポンスのデコードに失敗しました", err, false)
	}
	if raw.Location == nil || raw.Location.Name == nil {
		logger.Errorf("APIレスポンスに location.name がありません。")
		return nil, exception.NewBatchErrorf(module, exception.KindUpstreamMalformed, "APIレスポンスに %s がありません", "location.name")
	}
	if raw.Timelines == nil || raw.Timelines.Daily == nil {
		logger.Errorf("APIレスポンスに timelines.daily がありません。")
		return nil, exception.NewBatchErrorf(module, exception.KindUpstreamMalformed, "APIレスポンスに %s がありません", "timelines.daily")
	}

	forecast := &weather_entity.ForecastResponse{
		Location:  weather_entity.Location{Name: *raw.Location.Name},
		Timelines: weather_entity.Timelines{Daily: *raw.Timelines.Daily},
	}
	logger.Debugf("API から %d 日分の予報を取得しました。location: %s", len(forecast.Timelines.Daily), forecast.Location.Name)
	return forecast, nil
}

// redact は *url.Error に含まれる URL から API キーを取り除きます。
func redact(err error, apiKey string) error {
	if apiKey == "" {
		return err
	}
	if ue, ok := err.(*url.Error); ok {
		if u, perr := url.Parse(ue.URL); perr == nil {
			q := u.Query()
			if q.Has("apikey") {
				q.Set("apikey", "REDACTED")
				u.RawQuery = q.Encode()
			}
			return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
		}
	}
	return err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s...(%d bytes)", b[:n], len(b))
}
