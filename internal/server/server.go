// Package server assembles the ledger core from configuration: storage,
// gateway, engines and the HTTP router shared by the binaries in cmd/.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dispatchly/ledger-api/internal/config"
	"github.com/dispatchly/ledger-api/internal/domain/payment"
	"github.com/dispatchly/ledger-api/internal/domain/paymentmethod"
	"github.com/dispatchly/ledger-api/internal/domain/transaction"
	"github.com/dispatchly/ledger-api/internal/domain/wallet"
	"github.com/dispatchly/ledger-api/internal/domain/withdrawal"
	"github.com/dispatchly/ledger-api/internal/middleware"
	"github.com/dispatchly/ledger-api/internal/pkg/database"
	"github.com/dispatchly/ledger-api/internal/pkg/email"
	"github.com/dispatchly/ledger-api/internal/pkg/events"
	"github.com/dispatchly/ledger-api/internal/pkg/jwt"
	"github.com/dispatchly/ledger-api/internal/pkg/metrics"
	"github.com/dispatchly/ledger-api/internal/pkg/paystack"
	pkgresponse "github.com/dispatchly/ledger-api/internal/pkg/response"
	"github.com/dispatchly/ledger-api/internal/pkg/storage"
	"github.com/dispatchly/ledger-api/migrations"
)

const version = "1.0.0"

// Server owns every long-lived dependency of the ledger core.
type Server struct {
	cfg        *config.Config
	db         *sqlx.DB
	redis      *redis.Client
	dispatcher *events.Dispatcher
	mailer     *email.Service

	Services   *Services
	Reconciler *payment.Reconciler
	jwt        *jwt.Service
}

// Services are the engines behind the HTTP handlers.
type Services struct {
	Ledger      *wallet.Ledger
	Registrar   *transaction.Registrar
	Vault       *paymentmethod.Vault
	Withdrawals *withdrawal.Service
	Payments    *payment.Engine
}

// New connects to Postgres (and Redis when events go there) and wires the
// engines. Close releases everything New opened.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg, jwt: jwt.NewService(cfg.JWTSecret, 15*time.Minute)}

	db, err := database.NewPostgres(cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s.db = db

	if cfg.AutoMigrate {
		if err := database.Migrate(ctx, db, migrations.FS); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	publisher, err := s.newPublisher()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.dispatcher = events.NewDispatcher(publisher, 0)

	var notifier events.Notifier = s.dispatcher
	if cfg.SendGridAPIKey != "" {
		s.mailer = email.NewService(email.NewSendGridClient(email.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}), s.dispatcher)
		notifier = s.mailer
	} else {
		log.Warn().Msg("SENDGRID_API_KEY not set; withdrawal codes are published with the event")
	}

	archive, err := newArchiveStorage(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	gateway := paystack.NewClient(paystack.Config{
		BaseURL:   cfg.PaystackBaseURL,
		SecretKey: cfg.PaystackSecretKey,
		Timeout:   cfg.PaystackTimeout,
	})

	s.Services = NewServices(database.NewTransactor(db), Repositories{
		Wallets:        wallet.NewRepository(db),
		Transactions:   transaction.NewRepository(db),
		PaymentMethods: paymentmethod.NewRepository(db),
		OTPs:           withdrawal.NewOTPRepository(db),
	}, gateway, notifier, archive, cfg)

	s.Reconciler = payment.NewReconciler(s.Services.Payments, s.Services.Registrar, payment.ReconcilerConfig{
		Interval: cfg.ReconcileInterval,
		Grace:    cfg.ReconcileGrace,
		Expiry:   cfg.ReconcileExpiry,
	})

	return s, nil
}

// Repositories are the storage ports the engines run on.
type Repositories struct {
	Wallets        wallet.Store
	Transactions   transaction.Repository
	PaymentMethods paymentmethod.Repository
	OTPs           withdrawal.OTPRepository
}

// Gateway is everything the engines need from the payment provider.
type Gateway interface {
	payment.Gateway
	withdrawal.Gateway
}

// NewServices wires the engines. archive may be nil.
func NewServices(
	tx database.Transactor,
	repos Repositories,
	gateway Gateway,
	notifier events.Notifier,
	archive storage.Storage,
	cfg *config.Config,
) *Services {
	ledger := wallet.NewLedger(repos.Wallets)
	registrar := transaction.NewRegistrar(repos.Transactions)
	vault := paymentmethod.NewVault(tx, repos.PaymentMethods)

	withdrawals := withdrawal.NewService(tx, ledger, registrar, repos.OTPs, gateway, notifier, withdrawal.Config{
		OTPThreshold:      cfg.WithdrawalOTPThreshold,
		OTPTTL:            cfg.WithdrawalOTPTTL,
		OTPResendInterval: cfg.WithdrawalOTPResendInterval,
	})

	payments := payment.NewEngine(tx, ledger, registrar, vault, gateway, notifier, payment.Config{
		WebhookSecret: cfg.PaystackSecretKey,
		CallbackURL:   cfg.PaystackCallbackURL,
	}).WithTransferSettler(withdrawals)
	if archive != nil {
		payments.WithArchiver(payment.NewArchiver(archive, ""))
	}

	return &Services{
		Ledger:      ledger,
		Registrar:   registrar,
		Vault:       vault,
		Withdrawals: withdrawals,
		Payments:    payments,
	}
}

func (s *Server) newPublisher() (events.Publisher, error) {
	switch s.cfg.EventsBackend {
	case "redis":
		rdb, err := database.NewRedis(s.cfg.RedisURL, "events")
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.redis = rdb
		return events.NewRedisPublisher(rdb, s.cfg.EventsChannel), nil
	case "kafka":
		return events.NewKafkaPublisher(s.cfg.KafkaBrokers, s.cfg.KafkaTopic), nil
	case "none", "":
		return events.Nop{}, nil
	}
	return nil, fmt.Errorf("unknown events backend %q", s.cfg.EventsBackend)
}

func newArchiveStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.ArchiveBackend {
	case "s3":
		st, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 archive: %w", err)
		}
		return st, nil
	case "local":
		st, err := storage.NewLocalStorage(cfg.ArchiveLocalPath)
		if err != nil {
			return nil, fmt.Errorf("create local archive: %w", err)
		}
		return st, nil
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown archive backend %q", cfg.ArchiveBackend)
}

// Router returns the HTTP API.
func (s *Server) Router() http.Handler {
	return NewRouter(s.Services, middleware.Auth(s.jwt), s.cfg.AllowedOrigins)
}

// NewRouter mounts the API on top of services.
func NewRouter(svc *Services, authMiddleware func(http.Handler) http.Handler, allowedOrigins []string) chi.Router {
	walletHandler := wallet.NewHandler(svc.Ledger)
	transactionHandler := transaction.NewHandler(svc.Registrar)
	paymentHandler := payment.NewHandler(svc.Payments)
	withdrawalHandler := withdrawal.NewHandler(svc.Withdrawals)
	paymentMethodHandler := paymentmethod.NewHandler(svc.Vault)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(allowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/wallet", walletHandler.Routes(authMiddleware))
		r.Mount("/transactions", transactionHandler.Routes(authMiddleware))
		r.Mount("/payments", paymentHandler.Routes(authMiddleware))
		r.Mount("/withdrawals", withdrawalHandler.Routes(authMiddleware))
		r.Mount("/payment-methods", paymentMethodHandler.Routes(authMiddleware))
	})

	r.Mount("/webhooks", paymentHandler.WebhookRoutes())

	return r
}

// Close flushes queued events and closes connections.
func (s *Server) Close() {
	if s.Reconciler != nil {
		s.Reconciler.Stop()
	}
	if s.mailer != nil {
		s.mailer.Close()
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close event publisher")
		}
	}
	if s.redis != nil {
		database.CloseRedis(s.redis)
	}
	if s.db != nil {
		database.ClosePostgres(s.db)
	}
}
