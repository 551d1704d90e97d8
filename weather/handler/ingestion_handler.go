package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/job/core"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/exception"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
	weather_entity "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/domain/entity"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/repository"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/secret"
)

const (
	SuccessBody = "Weather data successfully inserted!"
	FailureBody = "Internal Server Error!"
)

// ステップ名
const (
	StepResolveSecret  = "resolve_secret"
	StepFetchForecast  = "fetch_forecast"
	StepOpenRepository = "open_repository"
	StepTransform      = "transform"
	StepInsertRows     = "insert_rows"
)

// Result は起動 1 回分の結果です。Lambda のレスポンスとしてそのまま JSON に変換されます。
// エラーの詳細が含まれることはありません。
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

func success() Result { return Result{StatusCode: 200, Body: SuccessBody} }
func failure() Result { return Result{StatusCode: 500, Body: FailureBody} }

// ForecastFetcher は天気予報 API の呼び出しを行います。
type ForecastFetcher interface {
	FetchForecast(ctx context.Context, bundle weather_entity.SecretBundle) (*weather_entity.ForecastResponse, error)
	// Close は起動ごとに確保したトランスポート資源を解放します。
	Close()
}

// RowTransformer は API レスポンスを保存用の行に変換します。
type RowTransformer interface {
	ToRows(forecast *weather_entity.ForecastResponse, requestTimestamp time.Time) []weather_entity.ForecastRow
}

// RepositoryOpener はシークレットの接続情報で保存先を開きます。
type RepositoryOpener func(ctx context.Context, bundle weather_entity.SecretBundle) (repository.ForecastRepository, error)

// Dependencies は IngestionHandler の協調オブジェクトです。
type Dependencies struct {
	Secrets        secret.SecretProvider
	NewFetcher     func() ForecastFetcher // 起動ごとに新しい HTTP クライアントで作成する
	Transformer    RowTransformer
	OpenRepository RepositoryOpener
	Clock          func() time.Time
	Listeners      []core.JobExecutionListener
}

// IngestionHandler はシークレット取得、予報取得、接続、変換、挿入、クローズを順に実行します。
type IngestionHandler struct {
	jobName    string
	secretName string
	deps       Dependencies
}

// NewIngestionHandler は IngestionHandler を作成します。Clock が nil の場合は time.Now を使用します。
func NewIngestionHandler(jobName, secretName string, deps Dependencies) *IngestionHandler {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &IngestionHandler{jobName: jobName, secretName: secretName, deps: deps}
}

// Handle は起動 1 回分の取り込み処理を実行し、結果を返します。
// どの段階で失敗しても残りの段階は実行せず、接続が開かれていれば必ずクローズします。
func (h *IngestionHandler) Handle(ctx context.Context) (result Result) {
	je := core.NewJobExecution(h.jobName)
	log := logger.With("invocation_id", je.ID)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("パニックが発生しました: %v", r)
			log.Errorf("ステップ '%s' で %v", je.CurrentStepName, err)
			je.MarkAsFailed(h.deps.Clock(), err)
			h.afterJob(ctx, je)
			result = failure()
		}
	}()

	for _, l := range h.deps.Listeners {
		l.BeforeJob(ctx, je)
	}

	requestTimestamp := h.deps.Clock()
	je.MarkAsStarted(requestTimestamp)

	if err := h.run(ctx, je, requestTimestamp, log); err != nil {
		je.MarkAsFailed(h.deps.Clock(), err)
		logFailure(log, je, err)
		h.afterJob(ctx, je)
		return failure()
	}

	je.MarkAsCompleted(h.deps.Clock())
	h.afterJob(ctx, je)
	return success()
}

func (h *IngestionHandler) afterJob(ctx context.Context, je *core.JobExecution) {
	for _, l := range h.deps.Listeners {
		l.AfterJob(ctx, je)
	}
}

func (h *IngestionHandler) run(ctx context.Context, je *core.JobExecution, requestTimestamp time.Time, log *logger.Logger) error {
	je.EnterStep(StepResolveSecret)
	bundle, err := h.deps.Secrets.Resolve(ctx, h.secretName)
	if err != nil {
		return err
	}
	log.Debugf("シークレットを取得しました: %s", bundle)

	je.EnterStep(StepFetchForecast)
	forecast, err := h.fetch(ctx, bundle)
	if err != nil {
		return err
	}
	log.Infof("'%s' の予報 %d 日分を取得しました。", forecast.Location.Name, len(forecast.Timelines.Daily))

	je.EnterStep(StepOpenRepository)
	repo, err := h.deps.OpenRepository(ctx, bundle)
	if err != nil {
		return err
	}
	defer repo.Close()

	je.EnterStep(StepTransform)
	rows := h.deps.Transformer.ToRows(forecast, requestTimestamp)

	je.EnterStep(StepInsertRows)
	n, err := repo.InsertAll(ctx, rows)
	je.WriteCount = n
	return err
}

// fetch は起動ごとのクライアントで予報を取得します。パニック時もクライアントは解放されます。
func (h *IngestionHandler) fetch(ctx context.Context, bundle weather_entity.SecretBundle) (*weather_entity.ForecastResponse, error) {
	fetcher := h.deps.NewFetcher()
	defer fetcher.Close()
	return fetcher.FetchForecast(ctx, bundle)
}

// logFailure は失敗したステップと BatchError の詳細をログ出力します。
func logFailure(log *logger.Logger, je *core.JobExecution, err error) {
	log.Errorf("Job '%s' のステップ '%s' でエラーが発生しました (%s, temporary=%t): %v",
		je.JobName, je.FailedStepName, exception.KindOf(err), exception.IsTemporary(err), err)

	var be *exception.BatchError
	if errors.As(err, &be) {
		log.Errorf("BatchError 詳細: Module=%s, Message=%s, OriginalErr=%v", be.Module, be.Message, be.OriginalErr)
		if be.StackTrace != "" {
			log.Debugf("BatchError StackTrace:\n%s", be.StackTrace)
		}
	}
}
