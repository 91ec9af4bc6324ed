// Package app assembles the HTTP service from configuration and its backing stores.
package app

import (
	"context"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/autolead/internal/config"
	"github.com/example/autolead/internal/diagnostics"
	"github.com/example/autolead/internal/drafts"
	"github.com/example/autolead/internal/flow"
	"github.com/example/autolead/internal/handlers"
	"github.com/example/autolead/internal/notify"
	"github.com/example/autolead/internal/pricing"
	"github.com/example/autolead/internal/repository"
	"github.com/example/autolead/internal/routes"
	"github.com/example/autolead/internal/services"
	"github.com/example/autolead/internal/verification"
)

// Overrides swaps collaborators in tests. Zero values keep the configured defaults.
type Overrides struct {
	SMS     verification.Dispatcher
	Notify  []notify.Notifier
	Catalog services.CatalogFeed
}

// App is the assembled service.
type App struct {
	Fiber       *fiber.App
	FanOut      *notify.FanOut
	Diagnostics *diagnostics.Ring
	Syncer      *services.CatalogSyncer
	Verifier    *verification.Manager
	log         *zap.Logger
}

// New wires repositories, stores, flows and routes. rdb may be nil, in which case codes and
// drafts live in process memory.
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, log *zap.Logger, o Overrides) *App {
	users := repository.NewUserRepository(db)
	quotes := repository.NewQuotationRepository(db)
	listings := repository.NewListingRepository(db)
	cars := repository.NewCarRepository(db)

	var (
		challenges                verification.ChallengeStore
		sessionCache, deviceCache drafts.Cache
	)
	if rdb != nil {
		challenges = verification.NewRedisStore(rdb)
		sessionCache = drafts.NewRedisCache(rdb)
		deviceCache = sessionCache
	} else {
		log.Warn("redis not configured, verification codes and drafts are process-local")
		challenges = verification.NewMemoryStore()
		sessionCache = drafts.NewMemoryCache()
		deviceCache = drafts.NewMemoryCache()
	}

	var sms verification.Dispatcher = services.NewSMSService(cfg.SMSAPIURL, cfg.SMSAPIKey, log)
	if o.SMS != nil {
		sms = o.SMS
	}
	manager := verification.NewManager(challenges, sms, users, verification.Settings{
		CodeTTL:        cfg.OTPTTL,
		ResendCooldown: cfg.OTPResendCooldown,
		GraceWindow:    cfg.VerificationGrace,
		TestBypass:     cfg.OTPTestBypass && !cfg.IsProduction(),
		TestPhone:      cfg.OTPTestPhone,
	}, log)

	ring := diagnostics.NewRing(cfg.DiagnosticsCapacity)
	notifiers := o.Notify
	if notifiers == nil {
		notifiers = defaultNotifiers(cfg, log)
	}
	fanOut := notify.NewFanOut(cfg.NotifyTimeout, ring, log, notifiers...)

	deps := flow.Deps{
		Users:    users,
		Verifier: manager,
		Drafts:   drafts.NewStore(sessionCache, deviceCache, cfg.SessionDraftTTL, cfg.DurableDraftTTL, log),
		Notifier: fanOut,
		Log:      log,
	}
	quoteFlow := flow.NewQuoteFlow(deps, quotes, cfg.LoanAnnualRate)
	valuationFlow := flow.NewValuationFlow(deps, listings, pricing.NewEstimator(cfg.ValuationReferenceYear))

	var syncer *services.CatalogSyncer
	feed := o.Catalog
	if feed == nil && cfg.CatalogFeedURL != "" {
		feed = services.NewCatalogService(cfg.CatalogFeedURL, cfg.CatalogFeedAPIKey)
	}
	if feed != nil {
		syncer = services.NewCatalogSyncer(feed, cars, cfg.CatalogRegistrationType, cfg.CatalogMinYear, log)
	}

	tokens := handlers.Tokens{
		Secret:          cfg.JWTSecret,
		SessionTTL:      cfg.TokenExpires,
		VerificationTTL: cfg.VerificationTokenTTL,
	}
	h := routes.Handlers{
		Auth:          handlers.NewAuthHandler(users, tokens),
		PasswordReset: handlers.NewPasswordResetHandler(users, manager, tokens),
		Profile:       handlers.NewProfileHandler(users, listings),
		Quotes:        handlers.NewQuoteHandler(quoteFlow, cars, tokens),
		Valuations:    handlers.NewValuationHandler(valuationFlow, tokens),
		Cars:          handlers.NewCarHandler(cars),
		Users:         handlers.NewUserHandler(users),
		Admin: handlers.NewAdminHandler(handlers.Counters{
			Users:      users.Count,
			Quotations: quotes.CountVerified,
			Listings:   listings.CountByStatus,
			Cars:       cars.Count,
		}, ring, adminSyncer(syncer), log),
	}

	f := fiber.New(fiber.Config{
		AppName:      "Autolead Backend",
		ErrorHandler: handlers.ErrorHandler(log),
	})
	f.Use(recover.New())
	if !cfg.IsProduction() {
		f.Use(fiberlogger.New())
	}
	routes.Register(f, h, cfg)

	return &App{
		Fiber:       f,
		FanOut:      fanOut,
		Diagnostics: ring,
		Syncer:      syncer,
		Verifier:    manager,
		log:         log,
	}
}

// adminSyncer keeps a typed nil out of the handler's interface field.
func adminSyncer(s *services.CatalogSyncer) handlers.Syncer {
	if s == nil {
		return nil
	}
	return s
}

func defaultNotifiers(cfg *config.Config, log *zap.Logger) []notify.Notifier {
	out := []notify.Notifier{notify.NewWebhook(cfg.WebhookURL, cfg.WebhookMode)}
	if cfg.EmailAPIURL != "" {
		out = append(out, notify.NewEmail(services.NewEmailService(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailRetryCount, log)))
	}
	if tg := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, log); tg.Enabled() {
		out = append(out, notify.NewTelegram(tg))
	}
	return out
}

// Shutdown stops accepting requests and then waits for in-flight notifications.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.Fiber.ShutdownWithContext(ctx); err != nil {
		return err
	}
	if err := a.FanOut.Wait(ctx); err != nil {
		a.log.Warn("notifications still in flight at shutdown", zap.Error(err))
		return err
	}
	return nil
}
