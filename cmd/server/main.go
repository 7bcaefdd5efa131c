package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/janseva/gateway/internal/authz"
	"github.com/janseva/gateway/internal/config"
	"github.com/janseva/gateway/internal/database"
	"github.com/janseva/gateway/internal/handlers"
	mW "github.com/janseva/gateway/internal/middleware"
	"github.com/janseva/gateway/internal/services"
	"github.com/janseva/gateway/internal/vault"
)

// @title JanSeva Identity Gateway API
// @version 1.0
// @description Identity verification and session security core for the citizen services platform
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("vault.master_key", "VAULT_MASTER_KEY")
	viper.BindEnv("vault.salt", "VAULT_SALT")
	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.SetDefault("argon2.time", 3)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	if viper.GetString("jwt.secret_key") == "" {
		log.Fatal("JWT_SECRET_KEY is required")
	}

	authCfg := config.LoadAuthConfig()
	faceCfg := config.LoadFaceConfig()
	kycCfg := config.LoadKycConfig()

	// Initialize storage
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	defer redisClient.Close()

	fieldVault, err := vault.New(vault.Config{
		MasterKey: viper.GetString("vault.master_key"),
		Salt:      []byte(viper.GetString("vault.salt")),
	})
	if err != nil {
		log.Fatalf("Failed to initialize field vault: %v", err)
	}

	// Initialize services
	otpIssuer := services.NewOtpIssuer(redisClient, authCfg)
	tokenService := services.NewTokenService(db, authCfg)
	passwordChecker := services.NewPasswordChecker(services.NewHIBPClient(authCfg))
	faceService := services.NewFaceService(db, redisClient, fieldVault,
		services.NewHTTPFaceMatcher(faceCfg), faceCfg)

	var provider services.IdentityProvider = services.SandboxIdentityProvider{}
	if os.Getenv("ENV") == "production" {
		log.Fatal("No production identity provider configured; refusing to start with the sandbox")
	}

	kycService := services.NewKycService(db, redisClient, fieldVault, provider, kycCfg)

	var sender services.OtpSender = services.LogOtpSender{}
	authService := services.NewAuthService(db, redisClient, otpIssuer, tokenService,
		passwordChecker, faceService, sender, authCfg)

	kycHandler := handlers.NewKycHandler(kycService)
	faceHandler := handlers.NewFaceHandler(faceService, tokenService)
	adminHandler := handlers.NewAdminHandler(db, tokenService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/openapi/openapi.json"),
	))
	r.Handle("/openapi/*", http.StripPrefix("/openapi/", mW.APISpecServer("./api")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (the login flow authenticates step by step)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/verify-login-otp", authService.VerifyLoginOtp)
		r.Post("/auth/resend-otp", authService.ResendLoginOtp)
		r.Post("/auth/complete-face-auth", authService.CompleteFaceLogin)
		r.Post("/auth/refresh", authService.Refresh)
		r.Post("/auth/logout", authService.Logout)
		if faceCfg.Enabled {
			r.Post("/face/verify", faceHandler.Verify)
		}

		// Protected endpoints (access token required)
		r.Group(func(r chi.Router) {
			r.Use(mW.Authenticate(tokenService))

			r.Get("/auth/me", authService.GetMe)
			r.Put("/auth/password", authService.ChangePassword)

			r.Post("/kyc/initiate", kycHandler.Initiate)
			r.Post("/kyc/verify", kycHandler.Verify)
			r.Get("/kyc/status", kycHandler.Status)

			if faceCfg.Enabled {
				// Biometric enrollment binds to an identity-verified account.
				r.With(mW.RequireKycLevel(2)).Post("/face/register", faceHandler.Enroll)
				r.Get("/face/status", faceHandler.Status)
				r.Delete("/face/enrollment", faceHandler.Disable)
			}
		})

		// Sector staff listings: managers for their own sector, officials anywhere
		r.Route("/sectors/{sector}", func(r chi.Router) {
			r.Use(mW.Authenticate(tokenService))
			r.Use(mW.RequireRoles(authz.RoleSectorManager, authz.RoleGovernmentOfficial))
			r.Use(mW.RequireSectorAccess)

			r.Get("/staff", adminHandler.SectorStaff)
		})

		// System administration
		r.Route("/admin", func(r chi.Router) {
			r.Use(mW.Authenticate(tokenService))
			r.Use(mW.RequireRoles(authz.RoleSystemAdmin))

			r.Get("/accounts/{accountId}/sessions", adminHandler.Sessions)
			r.Put("/accounts/{accountId}/disable", adminHandler.DisableAccount)
			r.Put("/accounts/{accountId}/reinstate", adminHandler.ReinstateAccount)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
