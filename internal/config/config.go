package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath は設定ファイルのデフォルトパス
const DefaultPath = "config.txt"

// defaultFileContent は設定ファイルが無い場合に書き出す内容
const defaultFileContent = `#Config for WebServer
Port: 7878
ThreadPoolSize: 5
`

// Config はアプリケーション全体の設定を保持する構造体
// 設定ファイルはフラットな "Key: value" 形式なので各セクションは inline で展開する
type Config struct {
	Server ServerConfig `yaml:",inline"`
	Pool   PoolConfig   `yaml:",inline"`
	Files  FilesConfig  `yaml:",inline"`
	Admin  AdminConfig  `yaml:",inline"`
}

// ServerConfig はファイル配信サーバーの設定
type ServerConfig struct {
	Host string `yaml:"Host"` // リッスンするホスト
	Port int    `yaml:"Port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"ReadTimeout"`     // リクエスト読み込みタイムアウト
	ShutdownTimeout time.Duration `yaml:"ShutdownTimeout"` // シャットダウン待ちの上限
}

// PoolConfig はスレッドプールの設定
type PoolConfig struct {
	Size int `yaml:"ThreadPoolSize"` // ワーカー数
}

// FilesConfig は配信ファイルとログの設定
type FilesConfig struct {
	WebRoot                string        `yaml:"WebRoot"`                // 配信ルートディレクトリ
	Registry               string        `yaml:"FileRegistry"`           // 公開ファイル一覧 (JSON)
	RegistryReloadInterval time.Duration `yaml:"RegistryReloadInterval"` // 一覧の再読み込み間隔 (0で無効)
	LogFile                string        `yaml:"LogFile"`                // ログファイル
	LogLevel               string        `yaml:"LogLevel"`               // ログレベル
}

// AdminConfig は管理用HTTP APIの設定
type AdminConfig struct {
	Host string `yaml:"AdminHost"`
	Port int    `yaml:"AdminPort"` // 0で無効
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            7878,
			ReadTimeout:     5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Pool: PoolConfig{
			Size: 5,
		},
		Files: FilesConfig{
			WebRoot:  "www",
			Registry: "files.json",
			LogFile:  "log.txt",
			LogLevel: "info",
		},
		Admin: AdminConfig{
			Host: "127.0.0.1",
			Port: 0,
		},
	}
}

// Load はデフォルトパスの設定ファイルを読み込む
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile は設定ファイルを読み込む
// ファイルが存在しない場合はデフォルトの設定ファイルを書き出してから読み込む
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := WriteDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// 環境変数で上書き
	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Parse は設定ファイルの内容をデフォルト設定の上に読み込む
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
	}
	return cfg, nil
}

// WriteDefault はデフォルトの設定ファイルを書き出す
func WriteDefault(path string) error {
	if err := os.WriteFile(path, []byte(defaultFileContent), 0o644); err != nil {
		return fmt.Errorf("設定ファイルの作成に失敗: %w", err)
	}
	return nil
}

// applyEnv は環境変数が設定されている項目を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Pool.Size = getEnvAsIntOrDefault("THREAD_POOL_SIZE", c.Pool.Size)
	c.Admin.Port = getEnvAsIntOrDefault("ADMIN_PORT", c.Admin.Port)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("タイムアウトに負の値は指定できません")
	}

	// プール設定の検証
	if c.Pool.Size < 1 {
		return fmt.Errorf("無効なスレッドプールサイズ: %d", c.Pool.Size)
	}

	// ファイル設定の検証
	if c.Files.WebRoot == "" {
		return fmt.Errorf("配信ルートディレクトリが設定されていません")
	}
	if c.Files.RegistryReloadInterval < 0 {
		return fmt.Errorf("無効な再読み込み間隔: %s", c.Files.RegistryReloadInterval)
	}

	// 管理APIの検証（0は無効化）
	if c.Admin.Port < 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("無効な管理APIポート番号: %d", c.Admin.Port)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AdminAddress は管理APIのリッスンアドレスを返す
func (c *Config) AdminAddress() string {
	return fmt.Sprintf("%s:%d", c.Admin.Host, c.Admin.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
