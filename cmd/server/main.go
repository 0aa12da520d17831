package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/identity-service/internal/cache"
	"github.com/iliyamo/identity-service/internal/config"
	"github.com/iliyamo/identity-service/internal/database"
	"github.com/iliyamo/identity-service/internal/handler"
	"github.com/iliyamo/identity-service/internal/middleware"
	"github.com/iliyamo/identity-service/internal/queue"
	"github.com/iliyamo/identity-service/internal/repository"
	"github.com/iliyamo/identity-service/internal/router"
	"github.com/iliyamo/identity-service/internal/service"
	"github.com/iliyamo/identity-service/internal/task"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := database.EnsureSchema(context.Background(), db); err != nil {
		log.Fatalf("database: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Fatal("redis: connection failed, OTP and session caching need it")
	}
	defer rdb.Close()
	store := cache.NewRedis(rdb)

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	roles := repository.NewRoleRepo(db)
	perms := repository.NewPermissionRepo(db)
	if err := perms.Seed(context.Background()); err != nil {
		log.Fatalf("seed permissions: %v", err)
	}
	if err := service.Bootstrap(context.Background(), cfg, roles, users); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	cacheCfg := config.LoadProfileCacheConfig()
	var profileStore cache.Cache = store
	if !cacheCfg.Enabled {
		profileStore = cache.Null{}
	}
	profiles := service.NewProfileCache(profileStore, users, cacheCfg.TTL)

	emails := service.NewEmailPublisher(cfg.RabbitURL)
	verification := service.NewVerificationService(store, users, emails, cfg.OTPTTL, cfg.OTPCooldown)
	resolver := service.NewPermissionResolver(perms)
	sessions := service.NewSessionService(cfg, users, tokens, resolver, profiles, verification)

	authH := handler.NewAuthHandler(sessions, verification)
	var oauthH *handler.OAuthHandler
	if cfg.GoogleClientID != "" {
		oauthH = handler.NewOAuthHandler(cfg, sessions, store)
	}
	userH := handler.NewUserHandler(users, roles, tokens, profiles, cfg.BcryptCost)
	roleH := handler.NewRoleHandler(roles, perms)
	permH := handler.NewPermissionHandler(perms)

	var limiter echo.MiddlewareFunc
	if rl := config.LoadRateLimitConfig(); rl.Enabled {
		limiter = middleware.NewTokenBucket(rl, rdb)
	}

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, oauthH, cfg.JWTSecret, profiles, limiter)
	router.RegisterAdmin(e, userH, roleH, permH, cfg.JWTSecret, profiles)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go task.NewJanitor(tokens, users, cfg.TokenSweepInterval, cfg.UnverifiedSweepAge).Run(ctx)
	go func() {
		if err := queue.StartEmailConsumer(cfg.RabbitURL); err != nil {
			log.Printf("email consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
