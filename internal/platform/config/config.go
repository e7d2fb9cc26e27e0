package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	pkgerrors "pipesync/internal/pkg/errors"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Security  SecurityConfig  `mapstructure:"security"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
	Merge     MergeConfig     `mapstructure:"merge"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	Environment  string        `mapstructure:"environment"` // local, staging, production
	WebhookPath  string        `mapstructure:"webhook_path"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// SecurityConfig holds the three webhook sub-policies. Each is independently
// toggled; an enabled sub-policy with empty required values fails closed.
type SecurityConfig struct {
	BasicAuth   BasicAuthConfig   `mapstructure:"basic_auth"`
	IPAllowList IPAllowListConfig `mapstructure:"ip_allowlist"`
	Signature   SignatureConfig   `mapstructure:"signature"`
}

type BasicAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type IPAllowListConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Patterns []string `mapstructure:"patterns"` // exact IPs or CIDR ranges
}

type SignatureConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
	Header  string `mapstructure:"header"`
}

type OAuthConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	RedirectURL  string        `mapstructure:"redirect_url"`
	AuthURL      string        `mapstructure:"auth_url"`
	TokenURL     string        `mapstructure:"token_url"`
	APIBaseURL   string        `mapstructure:"api_base_url"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
}

// Configured reports whether all values needed to start an authorization flow
// are present.
func (c OAuthConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != ""
}

type MergeConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Window  time.Duration `mapstructure:"window"`
}

type DashboardConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	Users      []UserConfig  `mapstructure:"users"`
}

// UserConfig is a dashboard login. PasswordHash is a bcrypt hash; plaintext
// passwords are never kept in config.
type UserConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.environment", "production")
	viper.SetDefault("server.webhook_path", "/webhook")
	viper.SetDefault("security.signature.header", "X-Pipedrive-Signature")
	viper.SetDefault("oauth.auth_url", "https://oauth.pipedrive.com/oauth/authorize")
	viper.SetDefault("oauth.token_url", "https://oauth.pipedrive.com/oauth/token")
	viper.SetDefault("oauth.api_base_url", "https://api.pipedrive.com/v1")
	viper.SetDefault("oauth.http_timeout", 15*time.Second)
	viper.SetDefault("merge.enabled", true)
	viper.SetDefault("merge.window", 30*time.Second)
	viper.SetDefault("dashboard.session_ttl", 12*time.Hour)
	viper.SetDefault("database.max_connections", 5)
}

// Validate runs once at startup. Behavior toggles are never re-read per
// request, so a bad combination must be caught here.
func (c *Config) Validate() error {
	if c.Security.BasicAuth.Enabled && (c.Security.BasicAuth.Username == "" || c.Security.BasicAuth.Password == "") {
		return &pkgerrors.ConfigError{Reason: "security.basic_auth enabled but username/password not set"}
	}
	if c.Security.Signature.Enabled && c.Security.Signature.Secret == "" {
		return &pkgerrors.ConfigError{Reason: "security.signature enabled but secret not set"}
	}
	// A partially configured OAuth section is a misconfiguration; fully empty
	// just means the integration is not connected yet.
	oauthSet := 0
	for _, v := range []string{c.OAuth.ClientID, c.OAuth.ClientSecret, c.OAuth.RedirectURL} {
		if v != "" {
			oauthSet++
		}
	}
	if oauthSet > 0 && oauthSet < 3 {
		return &pkgerrors.ConfigError{Reason: "oauth requires client_id, client_secret and redirect_url to all be set"}
	}
	if len(c.Dashboard.Users) > 0 && c.Dashboard.JWTSecret == "" {
		return &pkgerrors.ConfigError{Reason: "dashboard.jwt_secret required when dashboard users are configured"}
	}
	if c.Database.Path == "" {
		return &pkgerrors.ConfigError{Reason: "database.path not set"}
	}
	return nil
}
