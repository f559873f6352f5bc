package routes

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ledgerpay/ledgerpay/internal/account"
	"github.com/ledgerpay/ledgerpay/internal/audit"
	"github.com/ledgerpay/ledgerpay/internal/cache"
	"github.com/ledgerpay/ledgerpay/internal/config"
	"github.com/ledgerpay/ledgerpay/internal/events"
	"github.com/ledgerpay/ledgerpay/internal/middleware"
	"github.com/ledgerpay/ledgerpay/internal/transaction"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg       config.Config
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Setup configures middlewares and all application routes. When no
// database is wired (development, tests) the in-memory stores back the
// ledger instead.
func Setup(app *fiber.App, d Deps) error {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	var snapshots cache.Cache = cache.Noop{}
	if d.Cache != nil {
		snapshots = cache.NewRedis(d.Cache)
	}

	publisher := d.Publisher
	if publisher == nil {
		publisher = events.NewLogger(d.Logger)
	}

	var accountStore account.Store
	var transactionStore transaction.Store
	if d.DB != nil {
		accountStore = account.NewPostgresStore(d.DB)
		transactionStore = transaction.NewPostgresStore(d.DB)
	} else {
		memAccounts := account.NewMemoryStore(audit.NewMemoryLog())
		accountStore = memAccounts
		transactionStore = transaction.NewMemoryStore(memAccounts)
	}

	accountSvc := account.NewService(accountStore, snapshots, publisher, d.Logger, d.Cfg.CacheTTL)
	engine := transaction.NewEngine(transactionStore, accountSvc, snapshots, publisher, d.Logger)

	accountHandler := account.NewHandler(accountSvc)
	transactionHandler := transaction.NewHandler(engine)

	api := app.Group("/api/v1", middleware.Auth(d.Cfg.JWTSecret))
	RegisterAccountRoutes(api, accountHandler, transactionHandler)
	RegisterTransactionRoutes(api, transactionHandler)

	return nil
}
