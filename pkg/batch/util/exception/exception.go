package exception

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorKind は取り込み処理で発生するエラーの分類です。
// 分類は閉じた集合で、最上位のハンドラはこの分類だけを見て結果を決定します。
type ErrorKind string

const (
	KindSecretUnavailable   ErrorKind = "SecretUnavailable"
	KindUpstreamUnavailable ErrorKind = "UpstreamUnavailable"
	KindUpstreamMalformed   ErrorKind = "UpstreamMalformed"
	KindConnectionFailed    ErrorKind = "ConnectionFailed"
	KindInsertFailed        ErrorKind = "InsertFailed"
)

// errors.Is で分類を判定するためのセンチネルエラーです。
var (
	ErrSecretUnavailable   = &BatchError{Kind: KindSecretUnavailable, Message: "シークレットを取得できません"}
	ErrUpstreamUnavailable = &BatchError{Kind: KindUpstreamUnavailable, Message: "天気予報 API に到達できません"}
	ErrUpstreamMalformed   = &BatchError{Kind: KindUpstreamMalformed, Message: "天気予報 API のレスポンスが不正です"}
	ErrConnectionFailed    = &BatchError{Kind: KindConnectionFailed, Message: "データベースへの接続に失敗しました"}
	ErrInsertFailed        = &BatchError{Kind: KindInsertFailed, Message: "データベースへの挿入に失敗しました"}
)

// BatchError は取り込み処理中に発生するカスタムエラー型です。
// エラーの発生元モジュール、分類、メッセージ、ラップされた元のエラー、
// そしてリトライ可能かどうかのフラグを保持します。
// リトライ可能フラグは情報として記録されるだけで、自動リトライは行いません。
type BatchError struct {
	Module      string    // エラーが発生したモジュール (例: "secret", "forecast_reader", "forecast_repository")
	Kind        ErrorKind // エラーの分類
	Message     string    // エラーの簡潔な説明
	OriginalErr error     // ラップされた元のエラー
	isRetryable bool      // 呼び出し元が起動全体を再実行してよいか
	StackTrace  string    // スタックトレース (デバッグ用)
}

// NewBatchError は新しい BatchError のインスタンスを作成します。
func NewBatchError(module string, kind ErrorKind, message string, originalErr error, isRetryable bool) *BatchError {
	// スタックトレースをキャプチャ (デバッグ用途)
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &BatchError{
		Module:      module,
		Kind:        kind,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		StackTrace:  string(buf[:n]),
	}
}

// NewBatchErrorf はフォーマット文字列を使用して新しい BatchError を作成します。
// 元のエラーを持たないエラー (検証失敗など) に使用します。
func NewBatchErrorf(module string, kind ErrorKind, format string, a ...any) *BatchError {
	return NewBatchError(module, kind, fmt.Sprintf(format, a...), nil, false)
}

// Error は error インターフェースの実装です。
func (e *BatchError) Error() string {
	prefix := e.Module
	if prefix == "" {
		prefix = string(e.Kind)
	}
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", prefix, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", prefix, e.Message)
}

// Unwrap は errors.Unwrap のために元のエラーを返します。
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// Is は同じ分類の BatchError を等しいとみなします。
// これにより errors.Is(err, exception.ErrInsertFailed) のように判定できます。
func (e *BatchError) Is(target error) bool {
	var t *BatchError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind != "" && t.Kind == e.Kind
}

// IsRetryable はこのエラーがリトライ可能かどうかを返します。
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// KindOf はエラーチェーンから最初に見つかった BatchError の分類を返します。
// BatchError を含まない場合は空文字列を返します。
func KindOf(err error) ErrorKind {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsTemporary は一時的なエラーかどうかを判定します。
// 外部依存先への到達失敗は、起動全体を再実行すれば回復する可能性があります。
func IsTemporary(err error) bool {
	var be *BatchError
	if errors.As(err, &be) {
		return be.IsRetryable()
	}
	return false
}
