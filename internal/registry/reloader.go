package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

// Reloader は一覧ファイルを定期的に読み直す
type Reloader struct {
	scheduler *gocron.Scheduler
	registry  *Registry
	logger    logrus.FieldLogger
}

// NewReloader は interval ごとに reg を読み直す Reloader を作成する
func NewReloader(reg *Registry, interval time.Duration, logger logrus.FieldLogger) (*Reloader, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("無効な再読み込み間隔: %s", interval)
	}

	r := &Reloader{
		scheduler: gocron.NewScheduler(time.UTC),
		registry:  reg,
		logger:    logger.WithField("registry", reg.Path()),
	}

	if _, err := r.scheduler.Every(interval).SingletonMode().Do(r.reload); err != nil {
		return nil, fmt.Errorf("再読み込みのスケジュールに失敗: %w", err)
	}
	return r, nil
}

// Start はスケジューラを開始する
func (r *Reloader) Start() {
	r.scheduler.StartAsync()
	r.logger.Info("ファイル一覧の定期再読み込みを開始しました")
}

// Stop はスケジューラを停止する
func (r *Reloader) Stop() {
	r.scheduler.Stop()
	r.logger.Info("ファイル一覧の定期再読み込みを停止しました")
}

func (r *Reloader) reload() {
	err := r.registry.Reload()
	if errors.Is(err, ErrRegistryMissing) {
		r.logger.WithError(err).Warn("ファイル一覧が削除されました。前回の一覧で認可を続けます")
		return
	}
	if err != nil {
		r.logger.WithError(err).Error("ファイル一覧の再読み込みに失敗しました")
		return
	}
	r.logger.WithField("enabled", r.registry.Enabled()).Debug("ファイル一覧を再読み込みしました")
}
