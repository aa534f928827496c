package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"reconciliation-service/config"
	"reconciliation-service/database"
	"reconciliation-service/gateway"
	kafkax "reconciliation-service/kafka"
	"reconciliation-service/logger"
	"reconciliation-service/repository"
	"reconciliation-service/routes"
	"reconciliation-service/services"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Initialize(cfg.Env)
	defer logger.Sync()

	// Enrollment store
	redisClient := database.NewRedisClient(cfg.RedisURL)
	enrollmentRepo := repository.NewEnrollmentRepository(redisClient, logger.Log)

	// Payment gateway client
	gatewayClient := gateway.NewClient(cfg, logger.Log)

	// Audit trail producer
	auditProducer := kafkax.NewAuditProducer(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
	defer auditProducer.Close()

	reconciliationService := services.NewReconciliationService(gatewayClient, enrollmentRepo, cfg.FetchTimeout, logger.Log)
	enrollmentService := services.NewEnrollmentService(enrollmentRepo, auditProducer, logger.Log)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	routes.RegisterRoutes(router, reconciliationService, enrollmentService, gatewayClient, logger.Log)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Reconciliation Service is running on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server shutdown complete.")
}
