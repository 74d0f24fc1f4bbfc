package config

import (
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Env       string `mapstructure:"env"`
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type ChatConfig struct {
	EditWindowMinutes int   `mapstructure:"edit_window_minutes"`
	MaxTextLength     int   `mapstructure:"max_text_length"`
	MaxImageBytes     int64 `mapstructure:"max_image_bytes"`
	MaxAudioBytes     int64 `mapstructure:"max_audio_bytes"`
	MaxReactionLength int   `mapstructure:"max_reaction_length"`
}

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	MaxMessageSize       int64 `mapstructure:"max_message_size"`
}

type Config struct {
	App   AppConfig   `mapstructure:"app"`
	Mongo MongoConfig `mapstructure:"mongodb"`
	Redis RedisConfig `mapstructure:"redis"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	Chat  ChatConfig  `mapstructure:"chat"`
	WS    WSConfig    `mapstructure:"ws"`

	// Derived
	EditWindow    time.Duration
	PingInterval  time.Duration
	WriteDeadline time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	applyDefaults(&c)
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.App.Port == 0 {
		c.App.Port = 8084
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "chatdb"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "chat"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "chat.events"
	}
	if c.Chat.EditWindowMinutes == 0 {
		c.Chat.EditWindowMinutes = 15
	}
	if c.Chat.MaxTextLength == 0 {
		c.Chat.MaxTextLength = 4000
	}
	if c.Chat.MaxImageBytes == 0 {
		c.Chat.MaxImageBytes = 10 << 20
	}
	if c.Chat.MaxAudioBytes == 0 {
		c.Chat.MaxAudioBytes = 20 << 20
	}
	if c.Chat.MaxReactionLength == 0 {
		c.Chat.MaxReactionLength = 32
	}
	if c.WS.PingIntervalSeconds == 0 {
		c.WS.PingIntervalSeconds = 30
	}
	if c.WS.WriteDeadlineSeconds == 0 {
		c.WS.WriteDeadlineSeconds = 10
	}
	if c.WS.MaxMessageSize == 0 {
		c.WS.MaxMessageSize = 64 * 1024
	}
	c.EditWindow = time.Duration(c.Chat.EditWindowMinutes) * time.Minute
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
}
