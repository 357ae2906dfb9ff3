package di

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/jam3a-shop/api/internal/payments"
	"github.com/jam3a-shop/api/internal/platform/auth"
	"github.com/jam3a-shop/api/internal/platform/config"
	pfirestore "github.com/jam3a-shop/api/internal/platform/firestore"
	"github.com/jam3a-shop/api/internal/platform/idempotency"
	"github.com/jam3a-shop/api/internal/platform/jobs"
	"github.com/jam3a-shop/api/internal/platform/observability"
	"github.com/jam3a-shop/api/internal/platform/storage"
	"github.com/jam3a-shop/api/internal/repositories"
	fsrepo "github.com/jam3a-shop/api/internal/repositories/firestore"
	"github.com/jam3a-shop/api/internal/services"
)

const (
	envPubSubEmulator  = "PUBSUB_EMULATOR_HOST"
	healthProbeTimeout = 2 * time.Second
)

// Services bundles the service-layer contracts the handlers rely upon.
type Services struct {
	Catalog   services.CatalogService
	Sessions  services.SessionService
	Admission services.AdmissionService
	Wizard    services.WizardService
	System    services.SystemService
}

// Container wires repositories, services, and platform infrastructure for runtime use.
type Container struct {
	Config        config.Config
	Logger        *zap.Logger
	Services      Services
	Authenticator *auth.Authenticator
	Payments      *payments.Manager
	Idempotency   idempotency.Store
	Images        *storage.ImageURLClient

	firestore *pfirestore.Provider
	pubsub    *pubsub.Client
	topic     *pubsub.Topic
}

// NewContainer assembles the runtime dependencies from configuration.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{Config: cfg, Logger: logger}

	c.firestore = pfirestore.NewProvider(cfg.Firestore)
	client, err := c.firestore.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore: %w", err)
	}

	publisher, err := c.buildPublisher(ctx, cfg)
	if err != nil {
		c.closeQuietly(ctx)
		return nil, err
	}

	authn, err := buildAuthenticator(ctx, cfg)
	if err != nil {
		c.closeQuietly(ctx)
		return nil, err
	}
	c.Authenticator = authn

	manager, err := buildPaymentManager(cfg.PSP, logger)
	if err != nil {
		c.closeQuietly(ctx)
		return nil, err
	}
	c.Payments = manager

	catalogRepo, err := fsrepo.NewCatalogRepository(c.firestore)
	if err != nil {
		c.closeQuietly(ctx)
		return nil, fmt.Errorf("build catalog repository: %w", err)
	}
	sessionRepo, err := fsrepo.NewSessionRepository(c.firestore)
	if err != nil {
		c.closeQuietly(ctx)
		return nil, fmt.Errorf("build session repository: %w", err)
	}
	wizardRepo, err := fsrepo.NewWizardRepository(c.firestore)
	if err != nil {
		c.closeQuietly(ctx)
		return nil, fmt.Errorf("build wizard repository: %w", err)
	}

	healthRepo, err := c.buildHealthRepository(ctx)
	if err != nil {
		c.closeQuietly(ctx)
		return nil, fmt.Errorf("build health repository: %w", err)
	}

	svc, err := buildServices(servicesDeps{
		catalog:   catalogRepo,
		sessions:  sessionRepo,
		wizard:    wizardRepo,
		health:    healthRepo,
		publisher: publisher,
		payments:  manager,
		policy:    cfg.GroupBuy,
	})
	if err != nil {
		c.closeQuietly(ctx)
		return nil, err
	}
	c.Services = svc

	c.Idempotency = idempotency.NewFirestoreStore(client)

	images, err := buildImageURLClient(cfg.Storage, logger)
	if err != nil {
		c.closeQuietly(ctx)
		return nil, err
	}
	c.Images = images

	return c, nil
}

func buildImageURLClient(cfg config.StorageConfig, logger *zap.Logger) (*storage.ImageURLClient, error) {
	bucket := strings.TrimSpace(cfg.AssetsBucket)
	key := strings.TrimSpace(cfg.SignedURLKey)
	if bucket == "" || key == "" {
		logger.Info("assets bucket not configured, image uploads disabled")
		return nil, nil
	}
	signer, err := storage.NewServiceAccountSignerFromJSON([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("parse storage signer key: %w", err)
	}
	client, err := storage.NewImageURLClient(signer, bucket)
	if err != nil {
		return nil, fmt.Errorf("build image url client: %w", err)
	}
	return client, nil
}

// Close releases the Firestore and Pub/Sub clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.topic != nil {
		c.topic.Stop()
	}
	if c.pubsub != nil {
		if err := c.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub: %w", err))
		}
	}
	if c.firestore != nil {
		if err := c.firestore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close firestore: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *Container) closeQuietly(ctx context.Context) {
	if err := c.Close(ctx); err != nil && c.Logger != nil {
		c.Logger.Warn("container cleanup failed", zap.Error(err))
	}
}

func (c *Container) buildPublisher(ctx context.Context, cfg config.Config) (services.SessionEventPublisher, error) {
	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	if projectID == "" {
		// Session events degrade to log-only when fan-out is unconfigured.
		c.Logger.Info("pubsub project not configured, session events disabled")
		return nil, nil
	}

	if host := strings.TrimSpace(cfg.PubSub.EmulatorHost); host != "" && os.Getenv(envPubSubEmulator) == "" {
		_ = os.Setenv(envPubSubEmulator, host)
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub: %w", err)
	}
	c.pubsub = client
	c.topic = client.Topic(cfg.PubSub.SessionEventsTopic)

	publisher, err := jobs.NewPubSubSessionEventPublisher(c.topic)
	if err != nil {
		return nil, fmt.Errorf("build session event publisher: %w", err)
	}
	return publisher, nil
}

func (c *Container) buildHealthRepository(ctx context.Context) (repositories.HealthRepository, error) {
	checks := []repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: healthProbeTimeout,
			Check: func(ctx context.Context) error {
				client, err := c.firestore.Client(ctx)
				if err != nil {
					return err
				}
				it := client.Collections(ctx)
				if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
					return err
				}
				return nil
			},
		},
	}

	if c.topic != nil {
		topic := c.topic
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: healthProbeTimeout,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		})
	}

	return repositories.NewDependencyHealthRepository(checks)
}

func buildAuthenticator(ctx context.Context, cfg config.Config) (*auth.Authenticator, error) {
	if strings.TrimSpace(cfg.Firebase.ProjectID) == "" {
		return nil, errors.New("firebase project id is required")
	}
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		return nil, fmt.Errorf("build firebase verifier: %w", err)
	}
	return auth.NewAuthenticator(verifier), nil
}

func buildPaymentManager(cfg config.PSPConfig, logger *zap.Logger) (*payments.Manager, error) {
	providers := make(map[string]payments.Provider)
	eventLog := observability.EventLogger()

	if strings.TrimSpace(cfg.MoyasarAPIKey) != "" {
		moyasar, err := payments.NewMoyasarProvider(payments.MoyasarProviderConfig{
			APIKey:  cfg.MoyasarAPIKey,
			BaseURL: cfg.MoyasarBaseURL,
			Logger:  payments.MoyasarLogger(eventLog),
		})
		if err != nil {
			return nil, fmt.Errorf("build moyasar provider: %w", err)
		}
		providers["moyasar"] = moyasar
	}

	if strings.TrimSpace(cfg.StripeAPIKey) != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.StripeAPIKey,
			Logger: payments.StripeLogger(eventLog),
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		providers["stripe"] = stripe
	}

	if len(providers) == 0 {
		logger.Warn("no payment providers configured, checkout disabled")
		return nil, nil
	}

	return payments.NewManager(providers, payments.WithCurrencyRoutes(map[string]string{
		"SAR": "moyasar",
	}))
}

type servicesDeps struct {
	catalog   repositories.CatalogRepository
	sessions  repositories.SessionRepository
	wizard    repositories.WizardRepository
	health    repositories.HealthRepository
	publisher services.SessionEventPublisher
	payments  *payments.Manager
	policy    config.GroupBuyConfig
}

func buildServices(deps servicesDeps) (Services, error) {
	eventLog := observability.EventLogger()

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Catalog: deps.catalog,
		Clock:   time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}

	sessionSvc, err := services.NewSessionService(services.SessionServiceDeps{
		Sessions:  deps.sessions,
		Catalog:   deps.catalog,
		Publisher: deps.publisher,
		Policy:    deps.policy,
		Clock:     time.Now,
		Logger:    eventLog,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build session service: %w", err)
	}

	admissionDeps := services.AdmissionServiceDeps{
		Sessions:  deps.sessions,
		Publisher: deps.publisher,
		Clock:     time.Now,
		Logger:    eventLog,
	}
	if deps.payments != nil {
		admissionDeps.Payments = deps.payments
	}
	admissionSvc, err := services.NewAdmissionService(admissionDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build admission service: %w", err)
	}

	wizardDeps := services.WizardServiceDeps{
		Drafts:   deps.wizard,
		Catalog:  deps.catalog,
		Sessions: sessionSvc,
		Policy:   deps.policy,
		Clock:    time.Now,
		Logger:   eventLog,
	}
	if deps.payments != nil {
		wizardDeps.Checkout = deps.payments
	}
	wizardSvc, err := services.NewWizardService(wizardDeps)
	if err != nil {
		return Services{}, fmt.Errorf("build wizard service: %w", err)
	}

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: deps.health,
		Clock:            time.Now,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}

	return Services{
		Catalog:   catalogSvc,
		Sessions:  sessionSvc,
		Admission: admissionSvc,
		Wizard:    wizardSvc,
		System:    systemSvc,
	}, nil
}
