package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/enkapcm/payment-service/internal/config"
	"github.com/enkapcm/payment-service/internal/database"
	"github.com/enkapcm/payment-service/internal/handlers"
	"github.com/enkapcm/payment-service/internal/jobs"
	"github.com/enkapcm/payment-service/internal/logging"
	"github.com/enkapcm/payment-service/internal/routes"
	"github.com/enkapcm/payment-service/internal/services/payment/enkap"
)

func main() {
	cfg := config.LoadConfig()

	log, err := logging.New(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer logging.Sync(log)

	db, err := database.InitDB(cfg.Database)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	repo := database.NewTransactionRepository(db)
	locker := enkap.NewRedisLocker(redisClient)
	engine := enkap.NewEngine(repo, locker, log)
	gateway := enkap.NewClient(cfg.Enkap, log)
	verifier := enkap.NewSignatureVerifier(cfg.Enkap.WebhookSecret, log)

	enkapHandler := handlers.NewEnkapHandler(engine, verifier, gateway, repo, cfg.FrontendURL, log)
	paymentHandler := handlers.NewPaymentHandler(repo, gateway, cfg.BaseURL, log)

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	routes.SetupRoutes(router, cfg, enkapHandler, paymentHandler)

	scheduler := gocron.NewScheduler(time.UTC)
	sweep := jobs.NewStatusSweepJob(repo, gateway, engine, log)
	if err := sweep.Register(scheduler, 5); err != nil {
		log.Fatal("failed to schedule status sweep", zap.Error(err))
	}
	scheduler.StartAsync()
	defer scheduler.Stop()

	log.Info("enKap payment service listening", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
