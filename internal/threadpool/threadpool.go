package threadpool

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Job はプールに投入される1回限りの処理
type Job func()

var (
	// ErrInvalidSize はサイズ0以下のプールを作成しようとしたことを表す
	ErrInvalidSize = errors.New("スレッドプールのサイズは1以上である必要があります")
	// ErrPoolClosed は停止済みのプールを使用したことを表す
	ErrPoolClosed = errors.New("スレッドプールは既に停止しています")
	// ErrNilJob は nil のジョブを投入したことを表す
	ErrNilJob = errors.New("ジョブがnilです")
)

// ThreadPool は固定数のワーカーと共有キューの送信側を所有する
type ThreadPool struct {
	workers []*Worker
	ch      *channel
	logger  logrus.FieldLogger
	metrics *Metrics
}

// Option はプール生成時の設定
type Option func(*ThreadPool)

// WithLogger はプールとワーカーが使うロガーを設定する
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *ThreadPool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics はプールのメトリクスを設定する
func WithMetrics(metrics *Metrics) Option {
	return func(p *ThreadPool) {
		p.metrics = metrics
	}
}

// New は size 個のワーカーを持つプールを作成する
// size が0以下の場合は goroutine を起動する前に panic する
func New(size int, opts ...Option) *ThreadPool {
	if size <= 0 {
		panic(fmt.Errorf("%w: %d", ErrInvalidSize, size))
	}

	p := &ThreadPool{
		ch:     newChannel(),
		logger: discardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics != nil {
		p.ch.onDepth = p.metrics.setQueueDepth
	}

	p.workers = make([]*Worker, 0, size)
	for id := 0; id < size; id++ {
		p.workers = append(p.workers, newWorker(id, p.ch, p.logger, p.metrics))
	}

	p.logger.WithField("size", size).Info("スレッドプールを作成しました")
	return p
}

// Execute はジョブをキューに積む
// 空きワーカーもジョブの完了も待たない
func (p *ThreadPool) Execute(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	if err := p.ch.send(message{kind: kindJob, job: job}); err != nil {
		return err
	}

	p.metrics.submitted()
	return nil
}

// Size はワーカー数を返す
func (p *ThreadPool) Size() int {
	return len(p.workers)
}

// Pending はまだどのワーカーにも取り出されていないメッセージ数を返す
func (p *ThreadPool) Pending() int {
	return p.ch.len()
}

// Workers は全ワーカーの状態をインデックス順に返す
func (p *ThreadPool) Workers() []WorkerInfo {
	infos := make([]WorkerInfo, 0, len(p.workers))
	for _, w := range p.workers {
		infos = append(infos, w.Info())
	}
	return infos
}

// Shutdown はプールを停止する
//
// 新規の投入を締め切り、ワーカー数と同じ数の終了シグナルを既存ジョブの後ろに積んでから、
// 各ワーカーをインデックス順に join する。キューはFIFOなので、
// 締め切り前に受け付けたジョブは全て実行される。
// 2回目以降の呼び出しは ErrPoolClosed を返す。
func (p *ThreadPool) Shutdown(ctx context.Context) error {
	terminates := make([]message, len(p.workers))
	for i := range terminates {
		terminates[i] = message{kind: kindTerminate}
	}

	if !p.ch.closeWith(terminates...) {
		return ErrPoolClosed
	}

	p.logger.Info("全ワーカーを終了します")

	var errs []error
	for _, w := range p.workers {
		p.logger.WithField("worker", w.id).Info("ワーカーをシャットダウンしています")

		if err := w.join(ctx); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("スレッドプールの停止に失敗: %w", errors.Join(errs...))
	}

	p.logger.Info("スレッドプールを停止しました")
	return nil
}

// Close は Shutdown を完了まで待つ
func (p *ThreadPool) Close() error {
	return p.Shutdown(context.Background())
}

var _ io.Closer = (*ThreadPool)(nil)

// discardLogger は出力を捨てるロガーを返す
func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
