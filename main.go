package main

import (
	"context"
	"log"

	api "fcm-push-backend/cmd/api"
	authdomain "fcm-push-backend/internal/auth/domain"
	authRepo "fcm-push-backend/internal/auth/repository"
	authUsecase "fcm-push-backend/internal/auth/usecase"
	"fcm-push-backend/internal/events"
	pushdomain "fcm-push-backend/internal/push/domain"
	pushDelivery "fcm-push-backend/internal/push/delivery"
	pushRepo "fcm-push-backend/internal/push/repository"
	pushUsecase "fcm-push-backend/internal/push/usecase"
	"fcm-push-backend/pkg/config"
	"fcm-push-backend/pkg/database"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(&authdomain.User{}, &pushdomain.Device{}, &pushdomain.NotificationLog{}, &pushdomain.Settings{}); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	userRepo := authRepo.NewUserRepository(db)
	deviceRepo := pushRepo.NewDeviceRepository(db)
	logRepo := pushRepo.NewLogRepository(db)
	settingsRepo := pushRepo.NewSettingsRepository(db)

	// Initialize use cases
	settingsProvider := pushUsecase.NewSettingsProvider(settingsRepo)
	dispatcher := pushUsecase.NewDispatcher(
		deviceRepo,
		logRepo,
		pushUsecase.NewSenderFactory(),
		cfg.DispatchWorkers,
		cfg.DispatchTimeout,
		cfg.AppBaseURL,
	)
	pushService := pushUsecase.NewPushService(settingsProvider, dispatcher)
	authUsecaseInstance := authUsecase.NewAuthUsecase(userRepo, cfg.JWTSecret)

	// Initialize Pub/Sub event ingestion (optional)
	if cfg.GoogleProjectID != "" {
		subscriber, err := events.NewSubscriber(cfg.GoogleProjectID, cfg.PubSubTopic, pushService)
		if err != nil {
			log.Printf("[WARN] Failed to initialize event subscriber: %v", err)
		} else {
			go subscriber.Start(context.Background())
		}
	} else {
		log.Printf("[WARN] GOOGLE_PROJECT_ID not configured, event ingestion disabled")
	}

	// Initialize HTTP handler
	pushHandler := pushDelivery.NewPushHandler(pushService, deviceRepo, logRepo, settingsProvider)
	handler := api.NewHandler(authUsecaseInstance, pushHandler, cfg)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
