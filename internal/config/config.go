package config

import (
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	AppURL      string `env:"APP_URL" envDefault:"http://localhost:8080"`

	TokenSecret string `env:"TOKEN_SECRET,required,notEmpty"`
	DevMode     bool   `env:"DEV_MODE" envDefault:"false"`

	SingleUserMode bool   `env:"SINGLE_USER_MODE" envDefault:"false"`
	AdminUsername  string `env:"ADMIN_USERNAME" envDefault:"me"`

	APIKeyHeader    string `env:"API_KEY_HEADER" envDefault:"X-FeedGears-Api-Key"`
	APISecretHeader string `env:"API_SECRET_HEADER" envDefault:"X-FeedGears-Api-Secret"`

	OpenPaths            []string `env:"OPEN_PATHS" envSeparator:"," envDefault:"/authenticate,/register,/pw_reset,/apikey/recover,/oauth2/callback,/health"`
	OpenPathPrefixes     []string `env:"OPEN_PATH_PREFIXES" envSeparator:"," envDefault:"/verify/,/pw_reset/,/swagger/,/v3/api-docs"`
	CurrentUserPath      string   `env:"CURRENT_USER_PATH" envDefault:"/currentuser/tokens"`
	PasswordUpdatePrefix string   `env:"PASSWORD_UPDATE_PREFIX" envDefault:"/update/password"`

	AppAuthMaxAge        time.Duration `env:"APP_AUTH_MAX_AGE" envDefault:"1h"`
	AppAuthRefreshMaxAge time.Duration `env:"APP_AUTH_REFRESH_MAX_AGE" envDefault:"720h"`
	PwAuthMaxAge         time.Duration `env:"PW_AUTH_MAX_AGE" envDefault:"15m"`
	PwResetMaxAge        time.Duration `env:"PW_RESET_MAX_AGE" envDefault:"15m"`
	VerificationMaxAge   time.Duration `env:"VERIFICATION_MAX_AGE" envDefault:"24h"`

	RateLimitCapacity  int `env:"RATE_LIMIT_CAPACITY" envDefault:"20"`
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"20"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"FeedGears"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
