package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zradj/geets-backend/internal/auth"
	"github.com/zradj/geets-backend/internal/broker"
	"github.com/zradj/geets-backend/internal/config"
	"github.com/zradj/geets-backend/internal/crypto"
	"github.com/zradj/geets-backend/internal/db"
	"github.com/zradj/geets-backend/internal/handlers"
	"github.com/zradj/geets-backend/internal/middleware"
	"github.com/zradj/geets-backend/internal/observability"
	"github.com/zradj/geets-backend/internal/repositories"
	"github.com/zradj/geets-backend/internal/services"
	"github.com/zradj/geets-backend/internal/ws"
)

const version = "1.0.0"

func main() {
	cfg := config.MustLoad()
	setupLogging(cfg)

	ctx := context.Background()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	if err := ws.ValidateOperations(); err != nil {
		log.Fatal().Err(err).Msg("operation table incomplete")
	}

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	box, err := crypto.NewBox(cfg.DataEncryptionKeys)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid encryption keys")
	}

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database, box)
	receiptRepo := repositories.NewReceiptRepo(database)

	pipeline := services.NewMessaging(conversationRepo, messageRepo, receiptRepo)
	registry := ws.NewRegistry()
	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	publisher, consumer := connectBroker(ctx, cfg)
	defer publisher.Close()

	bridge := broker.NewBridge(registry, conversationRepo)
	if consumer != nil {
		if err := consumer.Start(bridge.HandleEvent); err != nil {
			log.Fatal().Err(err).Msg("failed to start broker consumer")
		}
	}

	wsHandler := ws.NewHandler(registry, pipeline, verifier, publisher, cfg.IdleTimeout, cfg.WatchdogTick)
	conversationHandler := handlers.NewConversationHandler(conversationRepo, pipeline)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.POST("/conversations", authMiddleware, conversationHandler.CreateConversation)
	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.POST("/groups", authMiddleware, conversationHandler.CreateGroup)
	router.GET("/conversations/:conversation_id/messages", authMiddleware, conversationHandler.GetMessages)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("broker", cfg.BrokerDriver).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Stop accepting broker messages and drain in-flight fan-out before the
	// broker connection goes away.
	if consumer != nil {
		if err := consumer.Stop(stopCtx); err != nil {
			log.Warn().Err(err).Msg("consumer stop failed")
		}
	}
	if err := server.Shutdown(stopCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownOTel(stopCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown failed")
	}
}

func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// connectBroker wires the configured transport. RabbitMQ degrades to a noop
// publisher and no consumer when unreachable; Redis is all or nothing.
func connectBroker(ctx context.Context, cfg config.Config) (broker.Publisher, broker.Consumer) {
	switch cfg.BrokerDriver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		consumer, err := broker.NewRedisConsumer(ctx, rdb)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		return broker.NewRedisPublisher(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})), consumer
	default:
		publisher := broker.NewPublisher(cfg.AMQPURL, cfg.Exchange)
		consumer, err := broker.NewAMQPConsumer(cfg.AMQPURL, cfg.Exchange, ws.EventKinds())
		if err != nil {
			log.Warn().Err(err).Msg("broker consumer unavailable, running without cross-instance fan-out")
			return publisher, nil
		}
		return publisher, consumer
	}
}
