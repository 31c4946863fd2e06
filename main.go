package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"phixall-server/config"
	"phixall-server/database"
	"phixall-server/jobs"
	"phixall-server/middleware"
	"phixall-server/models"
	"phixall-server/routes"
	"phixall-server/services"
	ws "phixall-server/websocket"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if cfg.Server.GinMode == "release" {
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetLevel(logrus.DebugLevel)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	hub := ws.NewHub(log)
	go hub.Run()

	blobs, err := services.NewCloudinaryStore(cfg.Cloudinary)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize blob store")
	}

	tokens := services.NewTokenService(cfg.JWT)
	gateway := services.NewHTTPPaymentGateway(cfg.Payment)
	notifier := services.NewDispatcher(db, hub, log)
	lifecycle := services.NewLifecycleService(db, hub, log)
	completions := services.NewCompletionService(db, lifecycle, blobs, notifier, log)
	approvals := services.NewApprovalService(db, lifecycle, gateway, notifier, cfg.Workflow.MinApprovalAmount, log)
	materials := services.NewMaterialService(db, blobs, notifier, log)

	settlementJob := jobs.NewSettlementJob(approvals, cfg.Workflow.SettlementRetryInterval, cfg.Workflow.SettlementGracePeriod, log)
	settlementJob.Start()
	defer settlementJob.Stop()

	limiter := middleware.NewRateLimiter()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limiter.Cleanup()
		}
	}()

	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.InputValidationMiddleware())
	router.Use(middleware.RateLimitMiddleware(limiter))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	jobHandler := routes.NewJobHandler(lifecycle)
	completionHandler := routes.NewCompletionHandler(completions, approvals)
	materialHandler := routes.NewMaterialHandler(materials)
	notificationHandler := routes.NewNotificationHandler(db)

	auth := middleware.AuthMiddleware(tokens, db, log)

	api := router.Group("/api/v1")

	jobGroup := api.Group("/jobs")
	jobGroup.Use(auth)
	jobHandler.Register(jobGroup)
	completionHandler.RegisterArtisan(jobGroup)
	materialHandler.RegisterArtisan(jobGroup)

	adminGroup := api.Group("/admin")
	adminGroup.Use(auth, middleware.RequireRole(models.RoleAdmin))
	completionHandler.RegisterAdmin(adminGroup)
	materialHandler.RegisterAdmin(adminGroup)

	notificationGroup := api.Group("/notifications")
	notificationGroup.Use(auth)
	notificationHandler.Register(notificationGroup)

	wsGroup := router.Group("/ws")
	wsGroup.Use(middleware.WebSocketAuthMiddleware(tokens, db, log))
	wsGroup.GET("/", func(c *gin.Context) {
		userID := c.GetUint("user_id")
		role, _ := c.Get("role")
		ws.ServeWebSocket(hub, c.Writer, c.Request, userID, string(role.(models.UserRole)))
	})

	log.WithField("port", cfg.Server.Port).Info("Phixall server listening")
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}
