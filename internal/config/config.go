package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	GeneralParams    GeneralParams
	HttpServerParams HttpServerParams
	StorageParams    StorageParams
	MainDBParams     MainDBParams
	RedisParams      RedisParams
	S3Params         S3Params
	PresenceParams   PresenceParams
	RateLimitParams  RateLimitParams
}

type GeneralParams struct {
	Env      string
	LogLevel string
}

type HttpServerParams struct {
	Address        string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// StorageParams picks the room store: "postgres" or "memory"
type StorageParams struct {
	Driver  string
	Migrate bool
}

type MainDBParams struct {
	Username string
	Password string
	Name     string
	Port     int
	Host     string
	Timeout  int
}

type RedisParams struct {
	Enabled    bool
	Address    string
	Password   string
	DB         int
	SessionKey string
}

type S3Params struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	URLExpiry       time.Duration
}

type PresenceParams struct {
	OnlineTimeout   time.Duration
	StaleTimeout    time.Duration
	CleanupInterval time.Duration
	SessionTimeout  time.Duration
}

type RateLimitParams struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

type ConfigManager struct {
	v      *viper.Viper
	config *Config
}

// NewConfigManager loads .env (when present) into the environment, then
// reads the yaml config. APP_ prefixed env vars override yaml keys, with
// dots replaced by underscores: APP_MAIN_DB_PARAMS_DB_HOST
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cm := &ConfigManager{v: v}

	if err := cm.loadConfig(); err != nil {
		return nil, err
	}

	return cm, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general_params.env", "dev")
	v.SetDefault("general_params.log_level", "")

	v.SetDefault("http_server_params.http_server_address", "0.0.0.0")
	v.SetDefault("http_server_params.http_server_port", "8080")
	v.SetDefault("http_server_params.read_timeout", "10s")
	v.SetDefault("http_server_params.write_timeout", "10s")
	v.SetDefault("http_server_params.idle_timeout", "60s")
	v.SetDefault("http_server_params.request_timeout", "5s")
	v.SetDefault("http_server_params.allowed_origins", []string{"*"})

	v.SetDefault("storage_params.driver", "postgres")
	v.SetDefault("storage_params.migrate", true)

	v.SetDefault("main_db_params.db_port", 5432)
	v.SetDefault("main_db_params.db_timeout", 5)

	v.SetDefault("redis_params.enabled", false)
	v.SetDefault("redis_params.address", "localhost:6379")
	v.SetDefault("redis_params.db", 0)
	v.SetDefault("redis_params.session_key", "cofi:sessions")

	v.SetDefault("s3_params.enabled", false)
	v.SetDefault("s3_params.bucket_name", "cofi-sounds")
	v.SetDefault("s3_params.url_expiry", "1h")

	v.SetDefault("presence_params.online_timeout", "30s")
	v.SetDefault("presence_params.stale_timeout", "60s")
	v.SetDefault("presence_params.cleanup_interval", "1m")
	v.SetDefault("presence_params.session_timeout", "30s")

	v.SetDefault("rate_limit_params.enabled", true)
	v.SetDefault("rate_limit_params.requests", 10)
	v.SetDefault("rate_limit_params.window", "1m")
}

// Extracting data from yaml file and loading into Config
func (cm *ConfigManager) loadConfig() error {
	cm.config = &Config{
		GeneralParams: GeneralParams{
			Env:      cm.v.GetString("general_params.env"),
			LogLevel: cm.v.GetString("general_params.log_level"),
		},
		HttpServerParams: HttpServerParams{
			Address:        cm.v.GetString("http_server_params.http_server_address"),
			Port:           cm.v.GetString("http_server_params.http_server_port"),
			ReadTimeout:    cm.v.GetDuration("http_server_params.read_timeout"),
			WriteTimeout:   cm.v.GetDuration("http_server_params.write_timeout"),
			IdleTimeout:    cm.v.GetDuration("http_server_params.idle_timeout"),
			RequestTimeout: cm.v.GetDuration("http_server_params.request_timeout"),
			AllowedOrigins: cm.v.GetStringSlice("http_server_params.allowed_origins"),
		},
		StorageParams: StorageParams{
			Driver:  cm.v.GetString("storage_params.driver"),
			Migrate: cm.v.GetBool("storage_params.migrate"),
		},
		MainDBParams: MainDBParams{
			Username: cm.v.GetString("main_db_params.db_username"),
			Password: cm.v.GetString("main_db_params.db_password"),
			Name:     cm.v.GetString("main_db_params.db_name"),
			Port:     cm.v.GetInt("main_db_params.db_port"),
			Host:     cm.v.GetString("main_db_params.db_host"),
			Timeout:  cm.v.GetInt("main_db_params.db_timeout"),
		},
		RedisParams: RedisParams{
			Enabled:    cm.v.GetBool("redis_params.enabled"),
			Address:    cm.v.GetString("redis_params.address"),
			Password:   cm.v.GetString("redis_params.password"),
			DB:         cm.v.GetInt("redis_params.db"),
			SessionKey: cm.v.GetString("redis_params.session_key"),
		},
		S3Params: S3Params{
			Enabled:         cm.v.GetBool("s3_params.enabled"),
			Endpoint:        cm.v.GetString("s3_params.endpoint"),
			AccessKeyID:     cm.v.GetString("s3_params.access_key_id"),
			SecretAccessKey: cm.v.GetString("s3_params.secret_access_key"),
			UseSSL:          cm.v.GetBool("s3_params.use_ssl"),
			BucketName:      cm.v.GetString("s3_params.bucket_name"),
			URLExpiry:       cm.v.GetDuration("s3_params.url_expiry"),
		},
		PresenceParams: PresenceParams{
			OnlineTimeout:   cm.v.GetDuration("presence_params.online_timeout"),
			StaleTimeout:    cm.v.GetDuration("presence_params.stale_timeout"),
			CleanupInterval: cm.v.GetDuration("presence_params.cleanup_interval"),
			SessionTimeout:  cm.v.GetDuration("presence_params.session_timeout"),
		},
		RateLimitParams: RateLimitParams{
			Enabled:  cm.v.GetBool("rate_limit_params.enabled"),
			Requests: cm.v.GetInt("rate_limit_params.requests"),
			Window:   cm.v.GetDuration("rate_limit_params.window"),
		},
	}
	return nil
}

// Geting config instance
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// Compiling a string to connect to main_db
func (db *MainDBParams) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=%d&sslmode=disable",
		db.Username,
		db.Password,
		db.Host,
		db.Port,
		db.Name,
		db.Timeout,
	)
}

func (h *HttpServerParams) GetAddress() string {
	return fmt.Sprintf(
		"%s:%s",
		h.Address,
		h.Port,
	)
}

func (c *Config) Validate() error {
	// Checking out enviroment variable
	switch c.GeneralParams.Env {
	case "dev", "prod", "test":
	default:
		return fmt.Errorf("env parameter is invalid: %s. try dev/prod/test instead", c.GeneralParams.Env)
	}

	// Checking http server parameters
	if c.HttpServerParams.Address == "" {
		return fmt.Errorf("http server address is required")
	}
	if c.HttpServerParams.Port == "" {
		return fmt.Errorf("http server port is required")
	}
	if c.HttpServerParams.RequestTimeout <= 0 {
		return fmt.Errorf("http server request_timeout must be positive")
	}

	// Checking storage driver and MainDB params
	switch c.StorageParams.Driver {
	case "memory":
	case "postgres":
		if c.MainDBParams.Host == "" {
			return fmt.Errorf("MainDB: host is required")
		}
		if c.MainDBParams.Username == "" {
			return fmt.Errorf("MainDB: username is required")
		}
		if c.MainDBParams.Password == "" {
			return fmt.Errorf("MainDB: password is requred")
		}
		if c.MainDBParams.Name == "" {
			return fmt.Errorf("MainDB: db name is required")
		}
		if c.MainDBParams.Port <= 0 || c.MainDBParams.Port > 65535 {
			return fmt.Errorf("MainDB: port %d is invalid", c.MainDBParams.Port)
		}
	default:
		return fmt.Errorf("storage driver is invalid: %q. try postgres/memory instead", c.StorageParams.Driver)
	}

	// Checking Redis params
	if c.RedisParams.Enabled && c.RedisParams.Address == "" {
		return fmt.Errorf("redis address is required when redis is enabled")
	}

	// Checking S3 params
	if c.S3Params.Enabled {
		if c.S3Params.Endpoint == "" {
			return fmt.Errorf("S3 endpoint is required")
		}
		if c.S3Params.AccessKeyID == "" {
			return fmt.Errorf("S3 access_key id is required")
		}
		if c.S3Params.SecretAccessKey == "" {
			return fmt.Errorf("S3 secret_access_key is required")
		}
		if c.S3Params.BucketName == "" {
			return fmt.Errorf("S3 bucket name is required")
		}
	}

	// Checking presence timeouts
	p := c.PresenceParams
	if p.OnlineTimeout <= 0 {
		return fmt.Errorf("presence online_timeout must be positive")
	}
	if p.StaleTimeout < p.OnlineTimeout {
		return fmt.Errorf("presence stale_timeout (%s) must not be shorter than online_timeout (%s)", p.StaleTimeout, p.OnlineTimeout)
	}
	if p.CleanupInterval <= 0 {
		return fmt.Errorf("presence cleanup_interval must be positive")
	}

	if c.RateLimitParams.Enabled && (c.RateLimitParams.Requests <= 0 || c.RateLimitParams.Window <= 0) {
		return fmt.Errorf("rate limit requests and window must be positive when enabled")
	}

	return nil
}
