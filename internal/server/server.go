package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"webserver/internal/config"
	"webserver/internal/registry"
	"webserver/internal/threadpool"
)

// Server はファイル配信サーバーを管理する構造体
type Server struct {
	config   *config.Config
	logger   logrus.FieldLogger
	registry *registry.Registry
	handler  *connHandler

	promRegistry *prometheus.Registry
	metrics      *threadpool.Metrics

	ready        chan struct{}
	shutdownOnce sync.Once
	shutdownErr  error

	mu         sync.RWMutex
	listener   net.Listener
	pool       *threadpool.ThreadPool
	admin      *http.Server
	adminLn    net.Listener
	reloader   *registry.Reloader
	acceptDone chan struct{}
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, logger logrus.FieldLogger, reg *registry.Registry) *Server {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Server{
		config:   cfg,
		logger:   logger,
		registry: reg,
		handler: &connHandler{
			root:        cfg.Files.WebRoot,
			registry:    reg,
			logger:      logger,
			readTimeout: cfg.Server.ReadTimeout,
		},
		promRegistry: promRegistry,
		metrics:      threadpool.NewMetrics("webserver", promRegistry),
		ready:        make(chan struct{}),
	}
}

// Ready はサーバーが接続を受け付け始めると close されるチャンネルを返す
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr はファイル配信のリッスンアドレスを返す
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// AdminAddr は管理APIのリッスンアドレスを返す（無効な場合は nil）
func (s *Server) AdminAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.adminLn == nil {
		return nil
	}
	return s.adminLn.Addr()
}

// Pool はスレッドプールを返す
func (s *Server) Pool() *threadpool.ThreadPool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}

// Start はサーバーを起動する
// コンテキストのキャンセル、シグナル受信、受付の失敗のいずれかまでブロックする
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ServerAddress())
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}

	pool := threadpool.New(s.config.Pool.Size,
		threadpool.WithLogger(s.logger),
		threadpool.WithMetrics(s.metrics),
	)

	s.mu.Lock()
	s.listener = ln
	s.pool = pool
	s.mu.Unlock()

	// 受付ループのエラー用のチャンネル
	fatalCh := make(chan error, 2)

	if err := s.startAdmin(fatalCh); err != nil {
		_ = s.Shutdown()
		return err
	}

	if err := s.startReloader(); err != nil {
		_ = s.Shutdown()
		return err
	}

	s.mu.Lock()
	s.acceptDone = make(chan struct{})
	s.mu.Unlock()
	go s.acceptLoop(ln, pool, fatalCh)

	s.logger.WithFields(logrus.Fields{
		"addr":    ln.Addr().String(),
		"workers": pool.Size(),
	}).Info("ファイル配信サーバーを起動しました")
	close(s.ready)

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.WithField("signal", sig.String()).Info("シグナルを受信しました")
	case err := <-fatalCh:
		s.logger.WithError(err).Error("サーバーを停止します")
		return errors.Join(err, s.Shutdown())
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// acceptLoop は接続を受け付け、1接続につき1ジョブをプールに投入する
func (s *Server) acceptLoop(ln net.Listener, pool *threadpool.ThreadPool, fatalCh chan<- error) {
	defer close(s.acceptDone)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}

			fatalCh <- fmt.Errorf("接続の受付に失敗: %w", err)
			return
		}

		if err := pool.Execute(func() { s.handler.Handle(conn) }); err != nil {
			// 停止後のプールへの投入はプログラムの誤り
			conn.Close()
			fatalCh <- fmt.Errorf("ジョブの投入に失敗: %w", err)
			return
		}
	}
}

// startAdmin は管理APIを起動する（ポート0の場合は何もしない）
func (s *Server) startAdmin(fatalCh chan<- error) error {
	if s.config.Admin.Port == 0 {
		return nil
	}

	ln, err := net.Listen("tcp", s.config.AdminAddress())
	if err != nil {
		return fmt.Errorf("管理APIの起動に失敗: %w", err)
	}

	admin := &http.Server{
		Handler:     s.newAdminRouter(),
		ReadTimeout: s.config.Server.ReadTimeout,
	}

	s.mu.Lock()
	s.admin = admin
	s.adminLn = ln
	s.mu.Unlock()

	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("管理APIを起動しています")
		if err := admin.Serve(ln); err != nil && err != http.ErrServerClosed {
			fatalCh <- fmt.Errorf("管理APIの起動に失敗: %w", err)
		}
	}()

	return nil
}

// startReloader はファイル一覧の定期再読み込みを開始する
func (s *Server) startReloader() error {
	interval := s.config.Files.RegistryReloadInterval
	if interval == 0 || s.registry.Path() == "" {
		return nil
	}

	reloader, err := registry.NewReloader(s.registry, interval, s.logger)
	if err != nil {
		return err
	}
	reloader.Start()

	s.mu.Lock()
	s.reloader = reloader
	s.mu.Unlock()
	return nil
}

// Shutdown はサーバーをグレースフルにシャットダウンする
// 受付を止めてから、投入済みの全ジョブの完了を待ってワーカーを停止する
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown()
	})
	return s.shutdownErr
}

func (s *Server) shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています...")

	timeout := s.config.Server.ShutdownTimeout
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s.mu.RLock()
	ln, acceptDone, admin, reloader, pool := s.listener, s.acceptDone, s.admin, s.reloader, s.pool
	s.mu.RUnlock()

	var errs []error

	// 新規接続の受付を停止
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("リスナーのクローズに失敗: %w", err))
		}
	}
	// 受付ループは起動済みの場合だけ待つ
	if acceptDone != nil {
		select {
		case <-acceptDone:
		case <-ctx.Done():
		}
	}

	if admin != nil {
		if err := admin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("管理APIのシャットダウンに失敗: %w", err))
		}
	}

	if reloader != nil {
		reloader.Stop()
	}

	if pool != nil {
		if err := pool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", errors.Join(errs...))
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}
