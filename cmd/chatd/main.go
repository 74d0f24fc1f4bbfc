package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/chat-core/internal/api"
	"github.com/fathima-sithara/chat-core/internal/auth"
	"github.com/fathima-sithara/chat-core/internal/cache"
	"github.com/fathima-sithara/chat-core/internal/chat"
	cfgpkg "github.com/fathima-sithara/chat-core/internal/config"
	"github.com/fathima-sithara/chat-core/internal/events"
	"github.com/fathima-sithara/chat-core/internal/gateway"
	"github.com/fathima-sithara/chat-core/internal/logger"
	"github.com/fathima-sithara/chat-core/internal/repository"
	"github.com/fathima-sithara/chat-core/internal/ws"
)

func main() {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(cfg.App.Env)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	mongoStore, err := repository.NewMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	cancel()
	if err != nil {
		zlog.Fatalw("mongo init", "err", err)
	}
	defer func() { _ = mongoStore.Disconnect(context.Background()) }()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	var pub events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		pub = kp
	}

	stores := mongoStore.Stores()
	stores.Presence = repository.NewRedisPresence(rdb, cfg.Redis.Prefix)

	verifier := auth.NewJWTVerifier(cfg.App.JWTSecret)
	hub := ws.NewHub()
	gw := gateway.New(hub, verifier, zlog, gateway.Options{
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSize,
	})

	limits := chat.DefaultLimits()
	limits.EditWindow = cfg.EditWindow
	limits.MaxTextLength = cfg.Chat.MaxTextLength
	limits.MaxImageBytes = cfg.Chat.MaxImageBytes
	limits.MaxAudioBytes = cfg.Chat.MaxAudioBytes
	limits.MaxReactionLength = cfg.Chat.MaxReactionLength

	conversations := chat.NewConversationStore(stores, gw, pub, zlog)
	participants := chat.NewParticipantRegistry(stores, gw, zlog)
	messages := chat.NewMessageStore(stores, gw, pub, cache.NewRecent(rdb), limits, zlog)
	reactions := chat.NewReactionIndex(stores, gw, pub, limits, zlog)
	presence := chat.NewPresenceTracker(stores.Presence, gw, zlog)
	gw.Bind(conversations, presence)

	app := api.NewServer(api.Deps{
		Conversations: conversations,
		Participants:  participants,
		Messages:      messages,
		Reactions:     reactions,
		Presence:      presence,
		Gateway:       gw,
		Verifier:      verifier,
		Log:           zlog,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		zlog.Infow("chat-core listening", "addr", addr)
		if err := app.Listen(addr); err != nil {
			zlog.Fatalw("server listen", "err", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = app.ShutdownWithContext(shutdownCtx)
	zlog.Info("chat-core stopped")
}
