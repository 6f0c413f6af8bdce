// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AuthMode は起動時に1回だけ解決される認証情報のバリアント。
type AuthMode string

const (
	// AuthModeOAuth2 はGoogle OAuth2クライアント認証情報を使う標準構成。
	AuthModeOAuth2 AuthMode = "oauth2"
	// AuthModeFirebase はFirebase Admin SDKのサービスアカウントで
	// 発行済みIDトークンを検証する旧構成。
	AuthModeFirebase AuthMode = "firebase"
)

const (
	// EnvProduction は本番環境を表すAPP_ENVの値。
	EnvProduction = "production"
	// EnvDevelopment は開発環境を表すAPP_ENVの値。
	EnvDevelopment = "development"

	minSessionSecretLen = 32
)

// ConfigError は必須設定の欠落または不正を表す。起動時にのみ返され、回復しない。
type ConfigError struct {
	Missing []string
	Invalid map[string]string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("required environment variables are not set: %v", e.Missing))
	}
	for _, key := range sortedKeys(e.Invalid) {
		parts = append(parts, fmt.Sprintf("%s: %s", key, e.Invalid[key]))
	}
	return "invalid configuration: " + strings.Join(parts, "; ")
}

func (e *ConfigError) empty() bool {
	return len(e.Missing) == 0 && len(e.Invalid) == 0
}

func (e *ConfigError) missing(key string) {
	e.Missing = append(e.Missing, key)
}

func (e *ConfigError) invalid(key, reason string) {
	if e.Invalid == nil {
		e.Invalid = make(map[string]string)
	}
	e.Invalid[key] = reason
}

// ServiceAccount はFirebase Admin SDK用のサービスアカウント認証情報。
// Rawは検証済みのJSONドキュメントで、SDKへそのまま渡す。
type ServiceAccount struct {
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`

	Raw []byte `json:"-"`
}

// LogValue は秘密鍵をログに出さないためのslog.LogValuer実装。
func (s ServiceAccount) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("project_id", s.ProjectID),
		slog.String("client_email", s.ClientEmail),
	)
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	AppEnv string
	AppID  string

	// Database
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	StoreTimeout   time.Duration

	// Auth
	AuthMode            AuthMode
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRedirectURL   string
	FirebaseCredentials *ServiceAccount
	AuthProviderTimeout time.Duration

	// Session
	SessionSecret          string
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitAuth    int

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	BaseURL     string
	FrontendURL string

	// Cookie
	CookieDomain string
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// CookieSecure はCookieにSecure属性を付与すべきかどうかを返す。
// 本番環境では常に付与し、それ以外ではBASE_URLがhttpsの場合のみ付与する。
func (c *Config) CookieSecure() bool {
	return c.IsProduction() || strings.HasPrefix(c.BaseURL, "https://")
}

// LogValue は秘密情報を除いた設定をログ出力用に返す。
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("app_env", c.AppEnv),
		slog.String("app_id", c.AppID),
		slog.String("auth_mode", string(c.AuthMode)),
		slog.String("port", c.ServerPort),
		slog.String("base_url", c.BaseURL),
		slog.String("frontend_url", c.FrontendURL),
		slog.Int("session_max_age", c.SessionMaxAge),
	)
}

// LoadDotEnv はカレントディレクトリの.envを読み込む。
// ファイルが存在しない場合は何もしない。既存の環境変数は上書きしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数の欠落や不正値がある場合は*ConfigErrorを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	cerr := &ConfigError{}

	require := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			cerr.missing(key)
		}
		return v
	}

	// Required fields
	cfg.DatabaseURL = require("DATABASE_URL")
	cfg.FrontendURL = strings.TrimRight(require("FRONTEND_URL"), "/")
	cfg.AppID = require("APP_ID")
	cfg.SessionSecret = require("SESSION_SECRET")
	cfg.BaseURL = strings.TrimRight(require("BASE_URL"), "/")

	if cfg.SessionSecret != "" && len(cfg.SessionSecret) < minSessionSecretLen {
		cerr.invalid("SESSION_SECRET", fmt.Sprintf("must be at least %d bytes", minSessionSecretLen))
	}

	cfg.AppEnv = getEnvString("APP_ENV", EnvDevelopment)
	if cfg.AppEnv != EnvProduction && cfg.AppEnv != EnvDevelopment {
		cerr.invalid("APP_ENV", fmt.Sprintf("unsupported value %q", cfg.AppEnv))
	}

	// 認証情報のバリアント
	cfg.AuthMode = AuthMode(getEnvString("AUTH_MODE", string(AuthModeOAuth2)))
	switch cfg.AuthMode {
	case AuthModeOAuth2:
		cfg.GoogleClientID = require("GOOGLE_CLIENT_ID")
		cfg.GoogleClientSecret = require("GOOGLE_CLIENT_SECRET")
		cfg.GoogleRedirectURL = require("GOOGLE_REDIRECT_URL")
	case AuthModeFirebase:
		if raw := require("FIREBASE_CONFIG"); raw != "" {
			sa, err := ParseServiceAccount(raw)
			if err != nil {
				cerr.invalid("FIREBASE_CONFIG", err.Error())
			}
			cfg.FirebaseCredentials = sa
		}
	default:
		cerr.invalid("AUTH_MODE", fmt.Sprintf("unsupported value %q (want oauth2 or firebase)", cfg.AuthMode))
	}

	// Optional fields with defaults
	// 値がある場合は解析と範囲を検証し、不正なら起動を中止する。
	positiveInt := func(key string, defaultVal int) int {
		v, err := getEnvInt(key, defaultVal)
		if err != nil {
			cerr.invalid(key, err.Error())
			return defaultVal
		}
		if v <= 0 {
			cerr.invalid(key, fmt.Sprintf("must be positive, got %d", v))
		}
		return v
	}
	positiveDuration := func(key string, defaultVal time.Duration) time.Duration {
		d, err := getEnvDuration(key, defaultVal)
		if err != nil {
			cerr.invalid(key, err.Error())
			return defaultVal
		}
		if d <= 0 {
			cerr.invalid(key, fmt.Sprintf("must be positive, got %s", d))
		}
		return d
	}

	cfg.SessionMaxAge = positiveInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = positiveDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.AuthProviderTimeout = positiveDuration("AUTH_PROVIDER_TIMEOUT", 10*time.Second)
	cfg.StoreTimeout = positiveDuration("STORE_TIMEOUT", 5*time.Second)
	cfg.DBMaxOpenConns = positiveInt("DB_MAX_OPEN_CONNS", 20)
	cfg.DBMaxIdleConns = positiveInt("DB_MAX_IDLE_CONNS", 5)
	cfg.RateLimitGeneral = positiveInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = positiveInt("RATE_LIMIT_AUTH", 20)

	if !cerr.empty() {
		return nil, cerr
	}

	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	return cfg, nil
}

// ParseServiceAccount はサービスアカウントJSONを解析する。
// 生のJSON文字列とbase64エンコードされたJSON文字列の両方を受け付ける。
func ParseServiceAccount(raw string) (*ServiceAccount, error) {
	raw = strings.TrimSpace(raw)
	doc := []byte(raw)

	if !strings.HasPrefix(raw, "{") {
		decoded, err := decodeBase64(raw)
		if err != nil {
			return nil, fmt.Errorf("neither JSON nor base64-encoded JSON: %w", err)
		}
		doc = decoded
	}

	var sa ServiceAccount
	if err := json.Unmarshal(doc, &sa); err != nil {
		return nil, fmt.Errorf("failed to parse service account JSON: %w", err)
	}

	var missing []string
	if sa.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if sa.ClientEmail == "" {
		missing = append(missing, "client_email")
	}
	if sa.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("service account is missing fields: %v", missing)
	}

	sa.Raw = doc
	return &sa, nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("invalid base64")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", v)
	}
	return i, nil
}

// getEnvDuration は"30s"や"1h"のような単位付きの値のみ受け付ける。
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("not a duration (e.g. 5s, 1h): %q", v)
	}
	return d, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
