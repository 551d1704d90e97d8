package main

import (
	"context"
	"embed"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/pkg/batch/util/logger"
	"github.com/r-carrier/LambdaPostgreSQLWeatherForecast/weather/app"
)

//go:embed resources/application.yaml
var embeddedConfig []byte // application.yaml の内容をバイトスライスとして埋め込む

//go:embed resources/migrations
var embeddedMigrations embed.FS

func main() {
	modeFlag := flag.String("mode", "", "起動モード: lambda, once, serve, schedule")
	flag.Parse()

	mode, err := app.ResolveMode(*modeFlag)
	if err != nil {
		logger.Fatalf("%v", err)
	}

	// Context の設定 (キャンセル可能にする)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング (Ctrl+C などで安全に終了するため)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Warnf("シグナル '%v' を受信しました。停止します...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env" // デフォルトのパス
	}

	exitCode := app.RunApplication(ctx, mode, envFilePath, embeddedConfig, embeddedMigrations)
	cancel()
	os.Exit(exitCode)
}
