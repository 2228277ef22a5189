// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// セッションストアはDeleteExpiredを実装していればよく、memory / postgres / redis のいずれでも動作する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule は既定の実行スケジュール。
const DefaultSchedule = "@every 1h"

// ExpiredSessionDeleter は期限切れセッションを削除するストア。
// repository.SessionRepositoryが満たす。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Recorder は削除件数を記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordSessionsCleaned(count int64)
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 削除対象がない場合もエラーにならず、何度実行しても結果は変わらない。
type CleanupJob struct {
	sessions ExpiredSessionDeleter
	logger   *slog.Logger
	recorder Recorder
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(sessions ExpiredSessionDeleter, logger *slog.Logger, recorder Recorder) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		sessions: sessions,
		logger:   logger,
		recorder: recorder,
	}
}

// Run は期限切れセッションを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordSessionsCleaned(deleted)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Scheduler はcron式に従ってCleanupJobを実行する。
type Scheduler struct {
	cron    *cron.Cron
	job     *CleanupJob
	timeout time.Duration
}

// NewScheduler はスケジューラを生成する。scheduleが空の場合はDefaultScheduleを使う。
// cron式が不正な場合はエラーを返す。
func NewScheduler(job *CleanupJob, schedule string) (*Scheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		job:     job,
		timeout: time.Minute,
	}
	if _, err := s.cron.AddFunc(schedule, s.runOnce); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return s, nil
}

// runOnce はタイムアウト付きでジョブを1回実行する。エラーはジョブ側でログ出力済み。
func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_ = s.job.Run(ctx)
}

// Start は起動直後に1回実行したうえでスケジュール実行を開始する。
func (s *Scheduler) Start() {
	s.runOnce()
	s.cron.Start()
}

// Stop はスケジュールを停止し、実行中のジョブの完了を待つ。
// ctxが先に終了した場合はその時点で戻る。
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
