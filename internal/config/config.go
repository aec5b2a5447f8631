package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"spapreview/internal/rewrite"
)

// DefaultPort は開発用プレビューサーバーの標準ポート
const DefaultPort = 3000

// Config はアプリケーション全体の設定を保持する構造体
// Load した後は変更しない
type Config struct {
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Static  StaticConfig  `yaml:"static" toml:"static"`
	Browser BrowserConfig `yaml:"browser" toml:"browser"`
	Watch   WatchConfig   `yaml:"watch" toml:"watch"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host" toml:"host"` // リッスンするホスト（空なら全インターフェース）
	Port int    `yaml:"port" toml:"port"` // リッスンするポート番号（0 はエフェメラル）

	// ポートが使用中の場合に Port+1 で一度だけ再試行する
	PortFallback bool `yaml:"port_fallback" toml:"port_fallback"`

	// タイムアウト設定
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" toml:"read_header_timeout"` // ヘッダー読み込みタイムアウト
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`       // グレースフルシャットダウンの上限
}

// StaticConfig は静的ファイル配信の設定
type StaticConfig struct {
	Root            string `yaml:"root" toml:"root"`                         // 配信するディレクトリ
	EntryDocument   string `yaml:"entry_document" toml:"entry_document"`     // SPAエントリドキュメント
	LandingDocument string `yaml:"landing_document" toml:"landing_document"` // ルートで返すランディングドキュメント
	NoCache         bool   `yaml:"no_cache" toml:"no_cache"`                 // Cache-Control: no-cache を付与する
}

// BrowserConfig は起動後のブラウザ自動起動の設定
type BrowserConfig struct {
	Open bool `yaml:"open" toml:"open"`
}

// WatchConfig はファイル変更監視の設定
type WatchConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "",
			Port:              DefaultPort,
			PortFallback:      true,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Static: StaticConfig{
			Root:            executableDir(),
			EntryDocument:   rewrite.DefaultEntryDocument,
			LandingDocument: rewrite.DefaultLandingDocument,
			NoCache:         true,
		},
		Browser: BrowserConfig{Open: true},
	}
}

// Override は読み込み後、検証前に設定を書き換える関数
type Override func(c *Config)

// Load は設定を読み込む
// デフォルト値 → 設定ファイル（path が空でなければ）→ 環境変数 → overrides の順に上書きする
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// loadFile は拡張子に応じてYAMLまたはTOMLの設定ファイルを読み込む
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("YAMLの解析に失敗 (%s): %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("TOMLの解析に失敗 (%s): %w", path, err)
		}
	default:
		return fmt.Errorf("未対応の設定ファイル形式: %s", path)
	}

	return nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SPAPREVIEW_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Server.Port = getEnvAsIntOrDefault("SPAPREVIEW_PORT", c.Server.Port)
	c.Static.Root = getEnvOrDefault("SPAPREVIEW_DIR", c.Static.Root)
	if getEnvAsBoolOrDefault("SPAPREVIEW_NO_BROWSER", false) {
		c.Browser.Open = false
	}
}

// Normalize は配信ディレクトリを絶対パスに解決する
func (c *Config) Normalize() error {
	if c.Static.Root == "" {
		c.Static.Root = "."
	}
	abs, err := filepath.Abs(c.Static.Root)
	if err != nil {
		return fmt.Errorf("配信ディレクトリの解決に失敗: %w", err)
	}
	c.Static.Root = abs
	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証（0 はエフェメラルポート）
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}
	if c.Server.PortFallback && c.Server.Port == 65535 {
		return errors.New("ポート 65535 では代替ポートを使用できません")
	}
	if c.Server.ReadHeaderTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return errors.New("タイムアウトに負の値は指定できません")
	}

	// 静的ファイル設定の検証
	info, err := os.Stat(c.Static.Root)
	if err != nil {
		return fmt.Errorf("配信ディレクトリが見つかりません: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("配信ディレクトリではありません: %s", c.Static.Root)
	}
	for _, doc := range []string{c.Static.EntryDocument, c.Static.LandingDocument} {
		if !strings.HasPrefix(doc, "/") {
			return fmt.Errorf("ドキュメントのパスは / で始まる必要があります: %q", doc)
		}
	}

	return nil
}

// Rules は設定から書き換えルールを組み立てる
func (c *Config) Rules() rewrite.Rules {
	return rewrite.Default(c.Static.EntryDocument, c.Static.LandingDocument)
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return addr(c.Server.Host, c.Server.Port)
}

// URL は指定ポートでブラウザから開くURLを返す
func (c *Config) URL(port int) string {
	host := c.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + addr(host, port)
}

func addr(host string, port int) string {
	if strings.Contains(host, ":") {
		return fmt.Sprintf("[%s]:%d", host, port)
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// executableDir は実行ファイルのあるディレクトリを返す
// 取得できない場合はカレントディレクトリ
func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
