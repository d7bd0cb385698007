package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	JWT        JWTConfig
	Admin      AdminConfig
	Activation ActivationConfig
	Worker     WorkerConfig
	CORS       CORSConfig
}

type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout    time.Duration `mapstructure:"idleTimeout"`
	ShutdownPeriod time.Duration `mapstructure:"shutdownPeriod"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
	Issuer string        `mapstructure:"issuer"`
}

type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"passwordHash"`
}

type ActivationConfig struct {
	DefaultGraceDays      int `mapstructure:"defaultGraceDays"`
	DefaultMaxDevices     int `mapstructure:"defaultMaxDevices"`
	DefaultTermMonths     int `mapstructure:"defaultTermMonths"`
	KeyGenerationAttempts int `mapstructure:"keyGenerationAttempts"`
}

type WorkerConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Concurrency       int    `mapstructure:"concurrency"`
	GraceScanSchedule string `mapstructure:"graceScanSchedule"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allowOrigins"`
}

func LoadConfig(configPath string) (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading it, relying on environment variables and config file")
	}

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.readTimeout", 5*time.Second)
	viper.SetDefault("server.writeTimeout", 10*time.Second)
	viper.SetDefault("server.idleTimeout", 120*time.Second)
	viper.SetDefault("server.shutdownPeriod", 15*time.Second)

	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.maxOpenConns", 25)
	viper.SetDefault("database.maxIdleConns", 25)
	viper.SetDefault("database.connMaxLifetime", 5*time.Minute)

	viper.SetDefault("redis.db", "0")

	viper.SetDefault("log.level", "info")

	viper.SetDefault("jwt.ttl", 12*time.Hour)
	viper.SetDefault("jwt.issuer", "device-license-service")

	viper.SetDefault("admin.username", "admin")

	viper.SetDefault("activation.defaultGraceDays", 7)
	viper.SetDefault("activation.defaultMaxDevices", 1)
	viper.SetDefault("activation.defaultTermMonths", 12)
	viper.SetDefault("activation.keyGenerationAttempts", 5)

	viper.SetDefault("worker.enabled", true)
	viper.SetDefault("worker.concurrency", 5)
	viper.SetDefault("worker.graceScanSchedule", "@every 1h")

	viper.SetDefault("cors.allowOrigins", []string{"http://localhost:3000"})

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AllowEmptyEnv(true)

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			log.Printf("Warning: could not read config file: %s. Error: %v\n", configPath, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
