package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Bcrypt   BcryptConfig   `mapstructure:"bcrypt"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Janitor  JanitorConfig  `mapstructure:"janitor"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	Swagger         bool          `mapstructure:"swagger"`
}

// Addr 返回监听地址
func (s ServerConfig) Addr() string { return fmt.Sprintf(":%d", s.Port) }

// IsRelease 生产模式下 cookie 需要 Secure
func (s ServerConfig) IsRelease() bool { return s.Mode == "release" }

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres, sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PostTTL  time.Duration `mapstructure:"post_ttl"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expire time.Duration `mapstructure:"expire"` // 0 表示不过期
	// RevokeTTL 不过期 token 被注销后在黑名单中保留的时间
	RevokeTTL time.Duration `mapstructure:"revoke_ttl"`
}

type BcryptConfig struct {
	Cost int `mapstructure:"cost"`
}

type UploadConfig struct {
	Driver     string           `mapstructure:"driver"` // cloudinary, s3
	Timeout    time.Duration    `mapstructure:"timeout"`
	Cloudinary CloudinaryConfig `mapstructure:"cloudinary"`
	S3         S3Config         `mapstructure:"s3"`
}

type CloudinaryConfig struct {
	CloudName string `mapstructure:"cloud_name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	Folder    string `mapstructure:"folder"`
	// UploadPrefix 覆盖 API 地址（测试或私有网关）
	UploadPrefix string `mapstructure:"upload_prefix"`
}

type S3Config struct {
	Bucket        string `mapstructure:"bucket"`
	Region        string `mapstructure:"region"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	PathStyle     bool   `mapstructure:"path_style"`
}

type JanitorConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type CORSConfig struct {
	AllowOrigin string        `mapstructure:"allow_origin"`
	MaxAge      time.Duration `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// legacyEnv 兼容旧部署使用的环境变量名
var legacyEnv = map[string]string{
	"server.port":                  "PORT",
	"database.dsn":                 "DATABASE",
	"cors.allow_origin":            "REQ_URL",
	"jwt.secret":                   "HASH_SECRET",
	"upload.cloudinary.cloud_name": "CLOUD_NAME",
	"upload.cloudinary.api_key":    "API_KEY",
	"upload.cloudinary.api_secret": "API_SECRET",
}

// Load 加载配置：默认值 < 配置文件 < 环境变量
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	if os.Getenv("NODE_ENV") == "production" {
		v.Set("server.mode", "release")
	}
	// release 模式默认输出 json 日志，显式配置优先
	if v.GetString("server.mode") == "release" && !v.InConfig("log.format") && os.Getenv("LOG_FORMAT") == "" {
		v.Set("log.format", "json")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查启动必需项
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Upload.Driver {
	case "cloudinary", "s3":
	default:
		return fmt.Errorf("unsupported upload driver %q", c.Upload.Driver)
	}
	// release 模式下封面地址必须是 https
	if c.Server.IsRelease() && c.Upload.Driver == "s3" {
		base := c.Upload.S3.PublicBaseURL
		if base == "" {
			base = c.Upload.S3.Endpoint
		}
		if base != "" && !strings.HasPrefix(strings.ToLower(base), "https://") {
			return fmt.Errorf("upload.s3.public_base_url must be https in release mode, got %q", base)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.swagger", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "blog.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.post_ttl", 30*time.Second)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expire", 24*time.Hour)
	v.SetDefault("jwt.revoke_ttl", 7*24*time.Hour)

	v.SetDefault("bcrypt.cost", 10)

	v.SetDefault("upload.driver", "cloudinary")
	v.SetDefault("upload.timeout", 30*time.Second)
	v.SetDefault("upload.cloudinary.cloud_name", "")
	v.SetDefault("upload.cloudinary.api_key", "")
	v.SetDefault("upload.cloudinary.api_secret", "")
	v.SetDefault("upload.cloudinary.folder", "")
	v.SetDefault("upload.cloudinary.upload_prefix", "")
	v.SetDefault("upload.s3.bucket", "")
	v.SetDefault("upload.s3.region", "us-east-1")
	v.SetDefault("upload.s3.endpoint", "")
	v.SetDefault("upload.s3.access_key", "")
	v.SetDefault("upload.s3.secret_key", "")
	v.SetDefault("upload.s3.public_base_url", "")
	v.SetDefault("upload.s3.path_style", true)

	v.SetDefault("janitor.workers", 2)
	v.SetDefault("janitor.queue_size", 1000)

	v.SetDefault("cors.allow_origin", "http://localhost:3000")
	v.SetDefault("cors.max_age", 12*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "gin-blog")
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_ratio", 1.0)
}
