// Package logging はプロセス全体で使う追記専用のログ出力を提供する
//
// main で一度だけ New を呼び、得た Logger を各コンポーネントに渡す。
// 終了時に Close でログファイルを閉じる。
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// DefaultPath はログファイルのデフォルトパス
const DefaultPath = "log.txt"

// Options はロガーの設定
type Options struct {
	Path     string // ログファイルのパス（空なら DefaultPath）
	Level    string // ログレベル（空なら info）
	Truncate bool   // 起動時に既存のログファイルを消す
	Stderr   bool   // 標準エラー出力にも書く
}

// Logger はログファイルを所有する logrus ロガー
type Logger struct {
	*logrus.Logger
	file *os.File
}

// New はログファイルを追記モードで開き、ロガーを作成する
func New(opts Options) (*Logger, error) {
	path := opts.Path
	if path == "" {
		path = DefaultPath
	}

	level := logrus.InfoLevel
	if opts.Level != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("無効なログレベル: %w", err)
		}
		level = parsed
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if opts.Truncate {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("ログファイルを開けません: %w", err)
	}

	var out io.Writer = file
	if opts.Stderr {
		out = io.MultiWriter(file, os.Stderr)
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		DisableColors:    true,
		DisableSorting:   false,
		QuoteEmptyFields: true,
	})

	return &Logger{Logger: logger, file: file}, nil
}

// Close はログファイルを閉じる
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
