// Package main はファイル配信サーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"webserver/internal/config"
	"webserver/internal/logging"
	"webserver/internal/registry"
	"webserver/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		configPath = flag.String("config", config.DefaultPath, "設定ファイルのパス")
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 127.0.0.1)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 7878)")
		workers    = flag.Int("workers", 0, "ワーカー数 (デフォルト: 5)")
		adminPort  = flag.Int("admin-port", -1, "管理APIのポート (0で無効)")
		logLevel   = flag.String("log-level", "", "ログレベル (debug, info, warn, error)")
		stderr     = flag.Bool("stderr", false, "ログを標準エラー出力にも書く")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("WebServer")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	_ = godotenv.Load()

	// 設定を読み込む
	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *workers != 0 {
		cfg.Pool.Size = *workers
	}
	if *adminPort >= 0 {
		cfg.Admin.Port = *adminPort
	}
	if *logLevel != "" {
		cfg.Files.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定が無効です: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Path:     cfg.Files.LogFile,
		Level:    cfg.Files.LogLevel,
		Truncate: true,
		Stderr:   *stderr,
	})
	if err != nil {
		log.Fatalf("ログの初期化に失敗しました: %v", err)
	}
	defer logger.Close()

	reg, err := registry.Open(cfg.Files.Registry, cfg.Files.WebRoot)
	if err != nil {
		logger.WithError(err).Error("ファイル一覧の読み込みに失敗しました")
		return
	}

	srv := server.New(cfg, logger, reg)

	// サーバーを起動
	log.Printf("WebServer を起動します: %s (ワーカー数 %d)", cfg.ServerAddress(), cfg.Pool.Size)
	if err := srv.Start(context.Background()); err != nil {
		logger.WithError(err).Error("サーバーの起動に失敗しました")
		log.Printf("サーバーの起動に失敗しました: %v", err)
	}
}
