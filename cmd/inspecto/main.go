package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"

	"github.com/inspecto-app/inspecto/app/repository"
	"github.com/inspecto-app/inspecto/internal/pkg/auth"
	"github.com/inspecto-app/inspecto/internal/pkg/billing"
	"github.com/inspecto-app/inspecto/internal/pkg/cache"
	"github.com/inspecto-app/inspecto/internal/pkg/constants"
	"github.com/inspecto-app/inspecto/internal/pkg/database"
	"github.com/inspecto-app/inspecto/internal/pkg/env"
	"github.com/inspecto-app/inspecto/internal/pkg/mail"
	"github.com/inspecto-app/inspecto/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	fiberlog.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	if env.IsDev() {
		fiberlog.SetLevel(fiberlog.LevelDebug)
	}
	db := database.SetupDatabase()
	redisClient := cache.SetupCache()
	repository.InitializeFactory(db)

	catalog, err := billing.CatalogFromEnv()
	if err != nil {
		panic(err)
	}
	opts := []billing.Option{
		billing.WithSnapshotCache(billing.NewRedisSnapshotCache(redisClient, env.GetDuration("BILLING_SNAPSHOT_TTL", 30*time.Second))),
		billing.WithNotifier(billing.NewRedisNotifier(redisClient)),
		billing.WithCheckoutWait(env.GetDuration("BILLING_CHECKOUT_WAIT", 20*time.Second)),
	}
	if mailer := mail.NewSMTPMailerFromEnv(); mailer != nil {
		opts = append(opts, billing.WithMailer(mailer))
	}
	billingService := billing.NewServiceFromDB(
		db,
		billing.NewStripeProcessorFromEnv(),
		catalog,
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		opts...,
	)

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/inspecto to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	engine := html.New(basePath+"views", ".html")
	engine.Reload(env.IsDev())

	// init fiber app
	app := fiber.New(fiber.Config{
		Views:     engine,
		BodyLimit: 1 << 20, // webhooks and JSON bodies only
		AppName:   "inspecto",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// prometheus metrics
	router.InstallMetrics(app, router.MetricsConfig{
		User:     env.GetEnv("METRICS_USER", "metrics"),
		Password: env.GetEnv("METRICS_PASSWORD", ""),
		Dev:      env.IsDev(),
	})

	// static files
	app.Static("/", basePath+"public/assets", fiber.Static{
		CacheDuration: 15 * time.Second,
		Compress:      true,
	})

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: constants.APIDocsRoute + "/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Billing:        billingService,
		Repositories:   repository.GetGlobalFactory().GetRepositories(),
		JWTSecret:      auth.Secret(),
		TokenTTL:       env.GetDuration("JWT_TTL", 24*time.Hour),
		PublicURL:      env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"),
		LimiterStorage: cache.LimiterStorage(),
	})

	fiberlog.Infof("[App] billing ready (snapshot ttl=%s)", env.GetDuration("BILLING_SNAPSHOT_TTL", 30*time.Second))
	return app
}
