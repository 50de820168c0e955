package main

import (
	"crypto/tls"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskpilot-api/api"
	"taskpilot-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	usersTableName := os.Getenv("USERS_TABLE")
	tasksTableName := os.Getenv("TASKS_TABLE")
	activityQueueName := os.Getenv("ACTIVITY_QUEUE")
	if connStr == "" || usersTableName == "" || tasksTableName == "" || activityQueueName == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, usersTableName, tasksTableName, activityQueueName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("missing JWT_SECRET")
	}
	tokenTTL := 720 * time.Hour
	if v := os.Getenv("JWT_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Fatalf("invalid JWT_TTL: %v", err)
		}
		tokenTTL = d
	}
	auth := api.NewAuth([]byte(secret), tokenTTL)

	if jwksURL := os.Getenv("AUTH_JWKS_URL"); jwksURL != "" {
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth.JWKS = jwks
		auth.Audience = os.Getenv("AUTH_AUDIENCE")
		auth.Issuer = os.Getenv("AUTH_ISSUER")
	}

	var limiter api.LoginLimiter
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		redisOpts, err := redis.ParseURL(redisConn)
		if err != nil {
			parts := strings.Split(redisConn, ",")
			redisOpts = &redis.Options{Addr: parts[0]}
			for _, p := range parts[1:] {
				kv := strings.SplitN(p, "=", 2)
				if len(kv) != 2 {
					continue
				}
				switch strings.ToLower(kv[0]) {
				case "password":
					redisOpts.Password = kv[1]
				case "ssl":
					if strings.ToLower(kv[1]) == "true" {
						redisOpts.TLSConfig = &tls.Config{}
					}
				}
			}
		}
		rc := redis.NewClient(redisOpts)

		maxAttempts := 5
		if v := os.Getenv("LOGIN_MAX_ATTEMPTS"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				log.Fatalf("invalid LOGIN_MAX_ATTEMPTS: %v", err)
			}
			maxAttempts = n
		}
		window := 15 * time.Minute
		if v := os.Getenv("LOGIN_ATTEMPT_WINDOW"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				log.Fatalf("invalid LOGIN_ATTEMPT_WINDOW: %v", err)
			}
			window = d
		}
		limiter = api.NewRedisLoginLimiter(rc, maxAttempts, window)
	}

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.File("/", "web/index.html")

	logger := log.New()
	api.Register(e, store, auth, limiter, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	log.Infof("starting %s server on %s", environment, listenAddr)
	e.Logger.Fatal(e.Start(listenAddr))
}
