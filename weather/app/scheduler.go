package app

import (
	"context"
	"strings"
	"time"

	"github.com/go-co-op/gocron"

	logger "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
)

// Scheduler は cron 式に従って取り込み処理を起動します。
// 起動同士の排他は行わず、前回の起動が終わっていなくても次の起動を開始します。
type Scheduler struct {
	scheduler *gocron.Scheduler
	invoker   Invoker
	expr      string
}

// NewScheduler は Scheduler を作成します。
// expr は 5 フィールドの cron 式で、6 フィールドの場合は先頭を秒として扱います。
func NewScheduler(invoker Invoker, expr string, loc *time.Location) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(loc),
		invoker:   invoker,
		expr:      strings.TrimSpace(expr),
	}
}

// Start はジョブを登録してスケジューラを非同期に開始します。
func (s *Scheduler) Start(ctx context.Context) error {
	var sched *gocron.Scheduler
	if len(strings.Fields(s.expr)) == 6 {
		sched = s.scheduler.CronWithSeconds(s.expr)
	} else {
		sched = s.scheduler.Cron(s.expr)
	}

	_, err := sched.Do(func() {
		logger.Debugf("スケジュール '%s' により取り込み処理を起動します。", s.expr)
		result := s.invoker.Handle(ctx)
		logger.Infof("スケジュール起動が終了しました: statusCode=%d", result.StatusCode)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	logger.Infof("スケジューラを開始しました。cron: %s", s.expr)
	return nil
}

// Stop はスケジューラを停止します。
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	logger.Infof("スケジューラを停止しました。")
}
