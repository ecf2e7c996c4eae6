package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"webserver/internal/config"
	"webserver/internal/logging"
	"webserver/internal/registry"
	"webserver/internal/server"
)

func main() {
	// .env があれば読み込む
	if err := godotenv.Load(); err != nil {
		log.Println(".envファイルが見つからないため、環境変数のみを使用します")
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// ログファイルは起動ごとに作り直す
	logger, err := logging.New(logging.Options{
		Path:     cfg.Files.LogFile,
		Level:    cfg.Files.LogLevel,
		Truncate: true,
	})
	if err != nil {
		log.Fatalf("ログの初期化に失敗しました: %v", err)
	}
	defer logger.Close()

	// ファイル一覧を読み込む
	reg, err := registry.Open(cfg.Files.Registry, cfg.Files.WebRoot)
	if err != nil {
		logger.WithError(err).Error("ファイル一覧の読み込みに失敗しました")
		return
	}

	// サーバーを作成
	srv := server.New(cfg, logger, reg)

	// サーバーを起動
	if err := srv.Start(context.Background()); err != nil {
		logger.WithError(err).Error("サーバーの起動に失敗しました")
		log.Printf("サーバーの起動に失敗しました: %v", err)
	}
}
