package listener

import (
	"context"

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/job/core"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
)

// LoggingJobListener はジョブの開始と終了をログ出力する JobExecutionListener の実装です。
// 出力先と形式は logger パッケージの設定に従います。
type LoggingJobListener struct{}

func NewLoggingJobListener() *LoggingJobListener {
	return &LoggingJobListener{}
}

func (l *LoggingJobListener) BeforeJob(ctx context.Context, je *core.JobExecution) {
	logger.With("invocation_id", je.ID).Infof("Job '%s' の実行を開始します。", je.JobName)
}

func (l *LoggingJobListener) AfterJob(ctx context.Context, je *core.JobExecution) {
	log := logger.With("invocation_id", je.ID)
	if je.Status == core.BatchStatusFailed {
		log.Errorf("Job '%s' はステップ '%s' で失敗しました (所要時間: %s)。", je.JobName, je.FailedStepName, je.Duration())
		for i, f := range je.Failures {
			log.Errorf("  - 失敗 %d: %v", i+1, f)
		}
		return
	}
	log.Infof("Job '%s' の実行が正常に完了しました。書き込み件数: %d, 所要時間: %s", je.JobName, je.WriteCount, je.Duration())
}

var _ core.JobExecutionListener = (*LoggingJobListener)(nil)
