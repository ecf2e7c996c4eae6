package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"webserver/internal/registry"
	"webserver/internal/threadpool"
)

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerInfo はファイル配信サーバーの情報
type ServerInfo struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	WebRoot string `json:"web_root"`
}

// PoolStatus はスレッドプールの状態
type PoolStatus struct {
	Size    int                     `json:"size"`
	Pending int                     `json:"pending"`
	Workers []threadpool.WorkerInfo `json:"workers"`
}

// RegistryStatus はファイル一覧の状態
type RegistryStatus struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	Entries int    `json:"entries"`
}

// StatusResponse はシステム状態のレスポンス
type StatusResponse struct {
	Status    string         `json:"status"`
	Server    ServerInfo     `json:"server"`
	Pool      PoolStatus     `json:"pool"`
	Registry  RegistryStatus `json:"registry"`
	Timestamp time.Time      `json:"timestamp"`
}

// FilesResponse はファイル一覧のレスポンス
type FilesResponse struct {
	Enabled bool               `json:"enabled"`
	Files   []registry.WebFile `json:"files"`
}

// ErrorResponse はエラーレスポンス
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// newAdminRouter は管理APIのルーティングを設定する
func (s *Server) newAdminRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.logger))

	// ヘルスチェックエンドポイント
	router.GET("/health", s.handleHealth)

	// APIエンドポイント
	api := router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/files", s.handleListFiles)
	api.PUT("/files", s.handleSetFile)
	api.POST("/files/reload", s.handleReloadFiles)

	// Prometheus メトリクス
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{})))

	return router
}

// requestLogger は管理APIへのリクエストをログに記録する
func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		}).Debug("管理APIリクエスト")
	}
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はステータス確認エンドポイント
func (s *Server) handleStatus(c *gin.Context) {
	response := StatusResponse{
		Status: "running",
		Server: ServerInfo{
			Host:    s.config.Server.Host,
			Port:    s.config.Server.Port,
			WebRoot: s.config.Files.WebRoot,
		},
		Registry: RegistryStatus{
			Enabled: s.registry.Enabled(),
			Path:    s.registry.Path(),
			Entries: len(s.registry.Files()),
		},
		Timestamp: time.Now(),
	}

	if pool := s.Pool(); pool != nil {
		response.Pool = PoolStatus{
			Size:    pool.Size(),
			Pending: pool.Pending(),
			Workers: pool.Workers(),
		}
	}

	c.JSON(http.StatusOK, response)
}

// handleListFiles はファイル一覧取得エンドポイント
func (s *Server) handleListFiles(c *gin.Context) {
	c.JSON(http.StatusOK, FilesResponse{
		Enabled: s.registry.Enabled(),
		Files:   s.registry.Files(),
	})
}

// handleSetFile はファイル一覧のエントリを追加・更新する
func (s *Server) handleSetFile(c *gin.Context) {
	var entry registry.WebFile
	if err := c.ShouldBindJSON(&entry); err != nil || entry.Path == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:     "invalid_request",
			Message:   "path と public を指定してください",
			Timestamp: time.Now(),
		})
		return
	}

	if err := s.registry.Set(entry.Path, entry.Public); err != nil {
		s.logger.WithError(err).Error("ファイル一覧の更新に失敗しました")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "registry_update_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	s.handleListFiles(c)
}

// handleReloadFiles はファイル一覧を読み直す
func (s *Server) handleReloadFiles(c *gin.Context) {
	if err := s.registry.Reload(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:     "registry_reload_failed",
			Message:   err.Error(),
			Timestamp: time.Now(),
		})
		return
	}

	s.handleListFiles(c)
}
