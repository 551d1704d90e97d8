package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobStatus は取り込み処理 1 回分の実行状態を表します。
type JobStatus string

const (
	BatchStatusStarting  JobStatus = "STARTING"
	BatchStatusStarted   JobStatus = "STARTED"
	BatchStatusCompleted JobStatus = "COMPLETED"
	BatchStatusFailed    JobStatus = "FAILED"
)

// IsFinished は JobStatus が終了状態かどうかを判定するヘルパーメソッドです。
func (s JobStatus) IsFinished() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// JobExecution は取り込み処理の単一の実行 (起動 1 回) を表す構造体です。
// 永続化はせず、ログ出力とリスナーへの通知にのみ使用します。
type JobExecution struct {
	ID              string
	JobName         string
	StartTime       time.Time
	EndTime         time.Time
	Status          JobStatus
	CurrentStepName string
	FailedStepName  string
	WriteCount      int
	Failures        []error
}

// NewJobExecution は新しい JobExecution を STARTING 状態で作成します。
func NewJobExecution(jobName string) *JobExecution {
	return &JobExecution{
		ID:      uuid.NewString(),
		JobName: jobName,
		Status:  BatchStatusStarting,
	}
}

// MarkAsStarted は実行開始を記録します。
func (je *JobExecution) MarkAsStarted(now time.Time) {
	je.StartTime = now
	je.Status = BatchStatusStarted
}

// EnterStep は現在実行中のステップ名を記録します。
func (je *JobExecution) EnterStep(name string) {
	je.CurrentStepName = name
}

// MarkAsCompleted は正常終了を記録します。
func (je *JobExecution) MarkAsCompleted(now time.Time) {
	je.EndTime = now
	je.Status = BatchStatusCompleted
	je.CurrentStepName = ""
}

// MarkAsFailed は失敗を記録します。失敗したステップは CurrentStepName から取得します。
func (je *JobExecution) MarkAsFailed(now time.Time, err error) {
	je.EndTime = now
	je.Status = BatchStatusFailed
	je.FailedStepName = je.CurrentStepName
	if err != nil {
		je.Failures = append(je.Failures, err)
	}
}

// Duration は実行時間を返します。終了していない場合は 0 を返します。
func (je *JobExecution) Duration() time.Duration {
	if je.EndTime.IsZero() || je.StartTime.IsZero() {
		return 0
	}
	return je.EndTime.Sub(je.StartTime)
}

// JobExecutionListener はジョブ実行の前後に呼び出されるリスナーです。
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *JobExecution)
	AfterJob(ctx context.Context, jobExecution *JobExecution)
}
