package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Queue  QueueConfig  `mapstructure:"queue"`
	Store  StoreConfig  `mapstructure:"store"`
	Net    NetConfig    `mapstructure:"net"`
	Remote RemoteConfig `mapstructure:"remote"`
	S3     S3Config     `mapstructure:"s3"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Auth   AuthConfig   `mapstructure:"auth"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

type QueueConfig struct {
	RetryCeiling   int           `mapstructure:"retry_ceiling"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	SafetyInterval time.Duration `mapstructure:"safety_interval"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	UploadFolder   string        `mapstructure:"upload_folder"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type NetConfig struct {
	ProbeURL      string        `mapstructure:"probe_url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

type RemoteConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	DeviceToken string `mapstructure:"device_token"`
}

type S3Config struct {
	Region        string `mapstructure:"region"`
	Endpoint      string `mapstructure:"endpoint"`
	Bucket        string `mapstructure:"bucket"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("FIELDSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.environment", "dev")
	viper.SetDefault("server.port", ":8780")
	viper.SetDefault("queue.retry_ceiling", 3)
	viper.SetDefault("queue.retry_delay", 30*time.Second)
	viper.SetDefault("queue.safety_interval", 60*time.Second)
	viper.SetDefault("queue.attempt_timeout", 30*time.Second)
	viper.SetDefault("queue.upload_folder", "receipts")
	viper.SetDefault("store.path", "fieldsync.db")
	viper.SetDefault("net.probe_interval", 15*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}
