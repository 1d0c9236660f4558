package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Log      LogConfig      `mapstructure:"log"`
	QA       QAConfig       `mapstructure:"qa"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type RedisConfig struct {
	// empty host disables redis; transition locks fall back to in-process
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type MinIOConfig struct {
	// empty endpoint stores evidence on local disk under LocalDir
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	LocalDir  string `mapstructure:"local_dir"`
}

type JWTConfig struct {
	Secret            string        `mapstructure:"secret"`
	AccessTokenExpire time.Duration `mapstructure:"access_token_expire"`
	Issuer            string        `mapstructure:"issuer"`
}

type NotifyConfig struct {
	// empty URL logs notifications instead of delivering them
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// QAConfig workflow policy knobs
type QAConfig struct {
	DefaultRegion           string        `mapstructure:"default_region"`
	MinNoticeDays           int           `mapstructure:"min_notice_days"`
	HoldPointApprovalPolicy string        `mapstructure:"holdpoint_approval_policy"`
	QMRoles                 []string      `mapstructure:"qm_roles"`
	QMIncludesAdmin         bool          `mapstructure:"qm_includes_admin"`
	LockTTL                 time.Duration `mapstructure:"lock_ttl"`
	RoleCacheTTL            time.Duration `mapstructure:"role_cache_ttl"`
}

// EffectiveQMRoles QMRoles plus admin when enabled
func (c QAConfig) EffectiveQMRoles() []string {
	roles := append([]string{}, c.QMRoles...)
	if c.QMIncludesAdmin {
		for _, r := range roles {
			if r == "admin" {
				return roles
			}
		}
		roles = append(roles, "admin")
	}
	return roles
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no config file, env only
	}

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "siteqa")
	v.SetDefault("database.dbname", "siteqa")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 10*time.Minute)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("minio.bucket", "siteqa-evidence")
	v.SetDefault("minio.local_dir", "./uploads")

	v.SetDefault("jwt.access_token_expire", 12*time.Hour)
	v.SetDefault("jwt.issuer", "siteqa")

	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("notify.max_elapsed", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("qa.default_region", "NSW")
	v.SetDefault("qa.min_notice_days", 1)
	v.SetDefault("qa.holdpoint_approval_policy", "any")
	v.SetDefault("qa.qm_roles", []string{"quality_manager"})
	v.SetDefault("qa.qm_includes_admin", false)
	v.SetDefault("qa.lock_ttl", 10*time.Second)
	v.SetDefault("qa.role_cache_ttl", 5*time.Minute)
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// MinIO
	v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("minio.bucket", "MINIO_BUCKET")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Notify
	v.BindEnv("notify.webhook_url", "NOTIFY_WEBHOOK_URL")

	// Log
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.format", "LOG_FORMAT")

	// QA
	v.BindEnv("qa.default_region", "QA_DEFAULT_REGION")
	v.BindEnv("qa.min_notice_days", "QA_MIN_NOTICE_DAYS")
	v.BindEnv("qa.holdpoint_approval_policy", "QA_HOLDPOINT_APPROVAL_POLICY")
	v.BindEnv("qa.qm_includes_admin", "QA_QM_INCLUDES_ADMIN")
}

// allowedNoticeDays selectable minimum notice periods
var allowedNoticeDays = map[int]bool{0: true, 1: true, 2: true, 3: true, 5: true}

// Validate rejects settings the workflow cannot honour
func (c *Config) Validate() error {
	if !allowedNoticeDays[c.QA.MinNoticeDays] {
		return fmt.Errorf("qa.min_notice_days must be one of 0,1,2,3,5 (got %d)", c.QA.MinNoticeDays)
	}
	switch c.QA.HoldPointApprovalPolicy {
	case "any", "superintendent":
	default:
		return fmt.Errorf("qa.holdpoint_approval_policy must be any or superintendent (got %q)", c.QA.HoldPointApprovalPolicy)
	}
	if len(c.QA.QMRoles) == 0 && !c.QA.QMIncludesAdmin {
		return fmt.Errorf("qa.qm_roles must name at least one role")
	}
	return nil
}

// GetEnvOrDefault env var or fallback
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
