package threadpool

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// State はワーカーの動作状態を表す
type State string

const (
	StateRunning    State = "running"    // メッセージを待機中またはジョブを実行中
	StateTerminated State = "terminated" // 終了シグナルを受信して停止済み
)

// WorkerInfo はワーカーの状態のスナップショット
type WorkerInfo struct {
	ID         int    `json:"id"`
	State      State  `json:"state"`
	JobsRun    uint64 `json:"jobs_run"`
	JobsPanics uint64 `json:"jobs_panicked"`
}

// JoinError はワーカーのループ自体が panic で終了したことを表す
type JoinError struct {
	WorkerID int
	Value    any
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("ワーカー %d が panic で終了しました: %v", e.WorkerID, e.Value)
}

// Worker はプールが所有する1つの実行スレッド
type Worker struct {
	id      int
	logger  logrus.FieldLogger
	metrics *Metrics

	// done はループ終了時に close される（join ハンドル）
	done chan struct{}
	// loopPanic は done の close 前に一度だけ書かれる
	loopPanic any

	terminated atomic.Bool
	jobsRun    atomic.Uint64
	jobsPanics atomic.Uint64
}

// newWorker はワーカーを作成し、受信ループを開始する
func newWorker(id int, ch *channel, logger logrus.FieldLogger, metrics *Metrics) *Worker {
	w := &Worker{
		id:      id,
		logger:  logger.WithField("worker", id),
		metrics: metrics,
		done:    make(chan struct{}),
	}

	go w.run(ch)
	return w
}

// ID はワーカーの識別子を返す
func (w *Worker) ID() int {
	return w.id
}

// Info は現在の状態を返す
func (w *Worker) Info() WorkerInfo {
	state := StateRunning
	if w.terminated.Load() {
		state = StateTerminated
	}

	return WorkerInfo{
		ID:         w.ID(),
		State:      state,
		JobsRun:    w.jobsRun.Load(),
		JobsPanics: w.jobsPanics.Load(),
	}
}

// run は終了シグナルを受け取るまでメッセージを処理し続ける
func (w *Worker) run(ch *channel) {
	exited := false
	defer func() {
		r := recover()
		if r == nil && !exited {
			// ジョブが runtime.Goexit を呼んだ場合はゴルーチンを作り直して処理を続ける
			w.logger.Error("ジョブがゴルーチンを終了させました。ワーカーを再開します")
			go w.run(ch)
			return
		}

		w.loopPanic = r
		w.terminated.Store(true)
		close(w.done)
	}()

	for {
		msg := ch.recv()

		switch msg.kind {
		case kindJob:
			w.logger.Debug("ジョブを受信しました。実行します")
			w.execute(msg.job)
		case kindTerminate:
			w.logger.Info("終了シグナルを受信しました")
			exited = true
			return
		default:
			panic(fmt.Sprintf("不明なメッセージ種別: %d", msg.kind))
		}
	}
}

// execute はジョブを同期的に実行する
// ジョブ内の panic はここで回収し、ワーカーは動作を続ける
func (w *Worker) execute(job Job) {
	start := time.Now()
	w.metrics.jobStarted()

	panicked := true
	defer func() {
		w.jobsRun.Add(1)
		w.metrics.jobFinished(time.Since(start), panicked)
		if !panicked {
			return
		}

		w.jobsPanics.Add(1)
		if r := recover(); r != nil {
			w.logger.WithField("panic", r).Error("ジョブが panic しました")
		} else {
			w.logger.Error("ジョブが runtime.Goexit を呼びました")
		}
	}()

	job()
	panicked = false
}

// join はワーカーのループ終了を待つ
func (w *Worker) join(ctx context.Context) error {
	select {
	case <-w.done:
	case <-ctx.Done():
		return fmt.Errorf("ワーカー %d の終了待ちを中断: %w", w.id, ctx.Err())
	}

	if w.loopPanic != nil {
		return &JoinError{WorkerID: w.id, Value: w.loopPanic}
	}
	return nil
}
