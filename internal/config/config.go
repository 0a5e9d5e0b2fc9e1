package config

import (
    "fmt"
    "strings"
    "time"

    "github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
    App        AppConfig        `mapstructure:"app"`
    Database   DatabaseConfig   `mapstructure:"database"`
    Redis      RedisConfig      `mapstructure:"redis"`
    Allocator  AllocatorConfig  `mapstructure:"allocator"`
    API        APIConfig        `mapstructure:"api"`
    Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// AppConfig holds application-level configuration
type AppConfig struct {
    Name        string `mapstructure:"name"`
    Version     string `mapstructure:"version"`
    Environment string `mapstructure:"environment"`
    Debug       bool   `mapstructure:"debug"`
}

// DatabaseConfig holds Pool Store (MySQL) configuration
type DatabaseConfig struct {
    Driver          string        `mapstructure:"driver"`
    Host            string        `mapstructure:"host"`
    Port            int           `mapstructure:"port"`
    Username        string        `mapstructure:"username"`
    Password        string        `mapstructure:"password"`
    Database        string        `mapstructure:"database"`
    MaxOpenConns    int           `mapstructure:"max_open_conns"`
    MaxIdleConns    int           `mapstructure:"max_idle_conns"`
    ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
    RetryAttempts   int           `mapstructure:"retry_attempts"`
    RetryDelay      time.Duration `mapstructure:"retry_delay"`
    Charset         string        `mapstructure:"charset"`
}

// RedisConfig holds Coordination Store (Redis) configuration
type RedisConfig struct {
    Host         string        `mapstructure:"host"`
    Port         int           `mapstructure:"port"`
    Password     string        `mapstructure:"password"`
    DB           int           `mapstructure:"db"`
    PoolSize     int           `mapstructure:"pool_size"`
    MinIdleConns int           `mapstructure:"min_idle_conns"`
    MaxRetries   int           `mapstructure:"max_retries"`
    DialTimeout  time.Duration `mapstructure:"dial_timeout"`
    ReadTimeout  time.Duration `mapstructure:"read_timeout"`
    WriteTimeout time.Duration `mapstructure:"write_timeout"`
    KeyPrefix    string        `mapstructure:"key_prefix"`
}

// AllocatorConfig holds the core engine's tunables (spec §6)
type AllocatorConfig struct {
    ReservationTTL          time.Duration `mapstructure:"reservation_ttl"`
    AgentRateLimitPerMinute int           `mapstructure:"agent_rate_limit_per_minute"`
    CandidateScanLimit      int           `mapstructure:"candidate_scan_limit"`
    DefaultHourlyCap        int           `mapstructure:"default_hourly_cap"`
    DefaultDailyCap         int           `mapstructure:"default_daily_cap"`
    RequestDeadline         time.Duration `mapstructure:"request_deadline"`
    StrictAreaCode          bool          `mapstructure:"strict_area_code"`
    LocalRateLimiterBurst   int           `mapstructure:"local_rate_limiter_burst"`
}

// APIConfig holds the HTTP admin/allocate surface configuration
type APIConfig struct {
    Enabled      bool          `mapstructure:"enabled"`
    ListenAddr   string        `mapstructure:"listen_address"`
    Port         int           `mapstructure:"port"`
    ReadTimeout  time.Duration `mapstructure:"read_timeout"`
    WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MonitoringConfig holds monitoring and observability configuration
type MonitoringConfig struct {
    Metrics MetricsConfig `mapstructure:"metrics"`
    Health  HealthConfig  `mapstructure:"health"`
    Logging LoggingConfig `mapstructure:"logging"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
    Enabled   bool   `mapstructure:"enabled"`
    Port      int    `mapstructure:"port"`
    Path      string `mapstructure:"path"`
    Namespace string `mapstructure:"namespace"`
    Subsystem string `mapstructure:"subsystem"`
}

// HealthConfig holds health check configuration
type HealthConfig struct {
    Enabled       bool   `mapstructure:"enabled"`
    Port          int    `mapstructure:"port"`
    LivenessPath  string `mapstructure:"liveness_path"`
    ReadinessPath string `mapstructure:"readiness_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
    Level  string                 `mapstructure:"level"`
    Format string                 `mapstructure:"format"`
    Output string                 `mapstructure:"output"`
    File   FileLogConfig          `mapstructure:"file"`
    Fields map[string]interface{} `mapstructure:"fields"`
}

// FileLogConfig holds file-based logging configuration
type FileLogConfig struct {
    Enabled    bool   `mapstructure:"enabled"`
    Path       string `mapstructure:"path"`
    MaxSize    int    `mapstructure:"max_size"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAge     int    `mapstructure:"max_age"`
    Compress   bool   `mapstructure:"compress"`
}

// Load loads configuration from file and environment
func Load(configFile string) (*Config, error) {
    if configFile != "" {
        viper.SetConfigFile(configFile)
    } else {
        viper.SetConfigName("config")
        viper.SetConfigType("yaml")
        viper.AddConfigPath("./configs")
        viper.AddConfigPath("/etc/callerid-pool")
        viper.AddConfigPath(".")
    }

    viper.SetEnvPrefix("CIDPOOL")
    viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    viper.AutomaticEnv()

    setDefaults()

    if err := viper.ReadInConfig(); err != nil {
        if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
            return nil, fmt.Errorf("failed to read config file: %w", err)
        }
    }

    var config Config
    if err := viper.Unmarshal(&config); err != nil {
        return nil, fmt.Errorf("failed to unmarshal config: %w", err)
    }

    if err := config.Validate(); err != nil {
        return nil, fmt.Errorf("invalid configuration: %w", err)
    }

    return &config, nil
}

func setDefaults() {
    viper.SetDefault("app.name", "callerid-pool")
    viper.SetDefault("app.version", "1.0.0")
    viper.SetDefault("app.environment", "development")
    viper.SetDefault("app.debug", false)

    viper.SetDefault("database.driver", "mysql")
    viper.SetDefault("database.host", "localhost")
    viper.SetDefault("database.port", 3306)
    viper.SetDefault("database.username", "callerid")
    viper.SetDefault("database.password", "callerid")
    viper.SetDefault("database.database", "callerid_pool")
    viper.SetDefault("database.max_open_conns", 25)
    viper.SetDefault("database.max_idle_conns", 5)
    viper.SetDefault("database.conn_max_lifetime", "5m")
    viper.SetDefault("database.retry_attempts", 3)
    viper.SetDefault("database.retry_delay", "1s")
    viper.SetDefault("database.charset", "utf8mb4")

    viper.SetDefault("redis.host", "localhost")
    viper.SetDefault("redis.port", 6379)
    viper.SetDefault("redis.db", 0)
    viper.SetDefault("redis.pool_size", 20)
    viper.SetDefault("redis.min_idle_conns", 5)
    viper.SetDefault("redis.max_retries", 3)
    viper.SetDefault("redis.dial_timeout", "5s")
    viper.SetDefault("redis.read_timeout", "3s")
    viper.SetDefault("redis.write_timeout", "3s")
    viper.SetDefault("redis.key_prefix", "cidpool")

    // Allocator defaults (spec §6)
    viper.SetDefault("allocator.reservation_ttl", "300s")
    viper.SetDefault("allocator.agent_rate_limit_per_minute", 100)
    viper.SetDefault("allocator.candidate_scan_limit", 50)
    viper.SetDefault("allocator.default_hourly_cap", 20)
    viper.SetDefault("allocator.default_daily_cap", 200)
    viper.SetDefault("allocator.request_deadline", "2s")
    viper.SetDefault("allocator.strict_area_code", false)
    viper.SetDefault("allocator.local_rate_limiter_burst", 10)

    viper.SetDefault("api.enabled", true)
    viper.SetDefault("api.listen_address", "0.0.0.0")
    viper.SetDefault("api.port", 8082)
    viper.SetDefault("api.read_timeout", "10s")
    viper.SetDefault("api.write_timeout", "10s")

    viper.SetDefault("monitoring.metrics.enabled", true)
    viper.SetDefault("monitoring.metrics.port", 9090)
    viper.SetDefault("monitoring.metrics.path", "/metrics")
    viper.SetDefault("monitoring.metrics.namespace", "callerid")
    viper.SetDefault("monitoring.metrics.subsystem", "allocator")
    viper.SetDefault("monitoring.health.enabled", true)
    viper.SetDefault("monitoring.health.port", 8080)
    viper.SetDefault("monitoring.health.liveness_path", "/health/live")
    viper.SetDefault("monitoring.health.readiness_path", "/health/ready")
    viper.SetDefault("monitoring.logging.level", "info")
    viper.SetDefault("monitoring.logging.format", "json")
    viper.SetDefault("monitoring.logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
    if c.Database.Host == "" {
        return fmt.Errorf("database host is required")
    }
    if c.Database.Port <= 0 || c.Database.Port > 65535 {
        return fmt.Errorf("invalid database port: %d", c.Database.Port)
    }
    if c.Database.Username == "" {
        return fmt.Errorf("database username is required")
    }
    if c.Database.Database == "" {
        return fmt.Errorf("database name is required")
    }

    if c.Redis.Host != "" {
        if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
            return fmt.Errorf("invalid Redis port: %d", c.Redis.Port)
        }
    }

    if c.Allocator.ReservationTTL <= 0 {
        return fmt.Errorf("allocator reservation_ttl must be positive")
    }
    if c.Allocator.AgentRateLimitPerMinute <= 0 {
        return fmt.Errorf("allocator agent_rate_limit_per_minute must be positive")
    }
    if c.Allocator.CandidateScanLimit <= 0 {
        return fmt.Errorf("allocator candidate_scan_limit must be positive")
    }
    if c.Allocator.RequestDeadline <= 0 {
        return fmt.Errorf("allocator request_deadline must be positive")
    }
    if c.Allocator.DefaultHourlyCap > c.Allocator.DefaultDailyCap {
        return fmt.Errorf("allocator default_hourly_cap must not exceed default_daily_cap")
    }

    if c.API.Enabled {
        if c.API.Port <= 0 || c.API.Port > 65535 {
            return fmt.Errorf("invalid API port: %d", c.API.Port)
        }
    }

    if c.Monitoring.Metrics.Enabled {
        if c.Monitoring.Metrics.Port <= 0 || c.Monitoring.Metrics.Port > 65535 {
            return fmt.Errorf("invalid metrics port: %d", c.Monitoring.Metrics.Port)
        }
    }
    if c.Monitoring.Health.Enabled {
        if c.Monitoring.Health.Port <= 0 || c.Monitoring.Health.Port > 65535 {
            return fmt.Errorf("invalid health port: %d", c.Monitoring.Health.Port)
        }
    }

    return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
    charset := c.Charset
    if charset == "" {
        charset = "utf8mb4"
    }

    return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=UTC",
        c.Username,
        c.Password,
        c.Host,
        c.Port,
        c.Database,
        charset,
    )
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
    return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
    return strings.ToLower(c.Environment) == "production"
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
    return strings.ToLower(c.Environment) == "development"
}
