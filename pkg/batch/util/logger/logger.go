package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// LogLevel はログのレベルを表す型です。
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// slog には FATAL が無いため ERROR より上の独自レベルを使います。
const slogLevelFatal = slog.Level(12)

var (
	logLevel = LevelInfo
	level    = new(slog.LevelVar)
	std      = &Logger{l: slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.DateTime}))}
)

// Logger は printf 形式のレベル付きロガーです。
// 属性 (invocation_id など) を持たせた派生ロガーを With で作成できます。
type Logger struct {
	l *slog.Logger
}

// SetLogLevel はログレベルを設定します。
func SetLogLevel(lv string) {
	switch strings.ToUpper(lv) {
	case "DEBUG":
		logLevel = LevelDebug
		level.Set(slog.LevelDebug)
	case "INFO":
		logLevel = LevelInfo
		level.Set(slog.LevelInfo)
	case "WARN":
		logLevel = LevelWarn
		level.Set(slog.LevelWarn)
	case "ERROR":
		logLevel = LevelError
		level.Set(slog.LevelError)
	case "FATAL":
		logLevel = LevelFatal
		level.Set(slogLevelFatal)
	default:
		fmt.Fprintf(os.Stderr, "警告: 不明なログレベル '%s' が指定されました。INFO レベルで続行します。\n", lv)
		logLevel = LevelInfo
		level.Set(slog.LevelInfo)
	}
}

// GetLogLevel は現在のログレベルを返します。
func GetLogLevel() LogLevel {
	return logLevel
}

// SetFormat は出力形式を切り替えます。
// "json" は CloudWatch などの収集基盤向け、それ以外は tint による人間向けの形式です。
func SetFormat(format string) {
	SetOutput(os.Stderr, format)
}

// SetOutput は出力先と形式を切り替えます。テストでの出力捕捉にも使用します。
func SetOutput(w io.Writer, format string) {
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		h = tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.DateTime, NoColor: w != os.Stderr})
	}
	std = &Logger{l: slog.New(h)}
}

// With は属性を付与した派生ロガーを返します。
func With(args ...any) *Logger {
	return std.With(args...)
}

// With は属性を付与した派生ロガーを返します。
func (lg *Logger) With(args ...any) *Logger {
	return &Logger{l: lg.l.With(args...)}
}

func (lg *Logger) logf(lv slog.Level, format string, v ...any) {
	ctx := context.Background()
	if !lg.l.Enabled(ctx, lv) {
		return
	}
	lg.l.Log(ctx, lv, fmt.Sprintf(format, v...))
}

// Debugf は DEBUG レベルのログを出力します。
func (lg *Logger) Debugf(format string, v ...any) { lg.logf(slog.LevelDebug, format, v...) }

// Infof は INFO レベルのログを出力します。
func (lg *Logger) Infof(format string, v ...any) { lg.logf(slog.LevelInfo, format, v...) }

// Warnf は WARN レベルのログを出力します。
func (lg *Logger) Warnf(format string, v ...any) { lg.logf(slog.LevelWarn, format, v...) }

// Errorf は ERROR レベルのログを出力します。
func (lg *Logger) Errorf(format string, v ...any) { lg.logf(slog.LevelError, format, v...) }

// Debugf は DEBUG レベルのログを出力します。
func Debugf(format string, v ...any) { std.Debugf(format, v...) }

// Infof は INFO レベルのログを出力します。
func Infof(format string, v ...any) { std.Infof(format, v...) }

// Warnf は WARN レベルのログを出力します。
func Warnf(format string, v ...any) { std.Warnf(format, v...) }

// Errorf は ERROR レベルのログを出力します。
func Errorf(format string, v ...any) { std.Errorf(format, v...) }

// Fatalf は FATAL レベルのログを出力し、プログラムを終了します。
func Fatalf(format string, v ...any) {
	std.l.Log(context.Background(), slogLevelFatal, fmt.Sprintf(format, v...))
	os.Exit(1)
}
