package app

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"

	logger "github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/handler"
)

// Mode は起動方法です。
type Mode string

const (
	ModeLambda   Mode = "lambda"
	ModeOnce     Mode = "once"
	ModeServe    Mode = "serve"
	ModeSchedule Mode = "schedule"
)

// ResolveMode はフラグ、RUN_MODE、AWS_LAMBDA_RUNTIME_API の順に起動方法を決定します。
// いずれも無い場合は once です。
func ResolveMode(flagValue string) (Mode, error) {
	v := flagValue
	if v == "" {
		v = os.Getenv("RUN_MODE")
	}
	if v == "" {
		if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
			return ModeLambda, nil
		}
		return ModeOnce, nil
	}
	switch m := Mode(strings.ToLower(v)); m {
	case ModeLambda, ModeOnce, ModeServe, ModeSchedule:
		return m, nil
	default:
		return "", fmt.Errorf("不明な起動モードです: %s", v)
	}
}

// RunApplication はアプリケーションのメインロジックを実行し、終了コードを返します。
func RunApplication(ctx context.Context, mode Mode, envFilePath string, embeddedConfig []byte, migrations fs.FS) int {
	cfg, err := LoadConfig(envFilePath, embeddedConfig)
	if err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	ConfigureLogging(cfg, mode == ModeLambda)
	logger.Infof("起動モード: %s, Job: '%s'", mode, cfg.Batch.JobName)

	application, err := NewApplication(ctx, cfg, migrations)
	if err != nil {
		logger.Errorf("アプリケーションの初期化に失敗しました: %v", err)
		return 1
	}
	if err := application.Migrate(ctx); err != nil {
		logger.Errorf("マイグレーションに失敗しました: %v", err)
		return 1
	}

	switch mode {
	case ModeLambda:
		// Lambda ランタイムのループは戻らない
		lambda.StartWithOptions(func(ctx context.Context) (handler.Result, error) {
			return application.Handler.Handle(ctx), nil
		}, lambda.WithContext(ctx))
		return 0
	case ModeServe:
		if err := NewServer(application.Handler, cfg.Batch.HTTPPort).Run(ctx); err != nil {
			logger.Errorf("HTTP サーバーが異常終了しました: %v", err)
			return 1
		}
		return 0
	case ModeSchedule:
		scheduler := NewScheduler(application.Handler, cfg.Batch.Schedule, Location(cfg))
		if err := scheduler.Start(ctx); err != nil {
			logger.Errorf("スケジューラの開始に失敗しました: %v", err)
			return 1
		}
		<-ctx.Done()
		scheduler.Stop()
		return 0
	default:
		return application.RunOnce(ctx)
	}
}
