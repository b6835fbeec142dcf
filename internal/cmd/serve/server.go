package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/chirino/solace-bridge/internal/bridge"
	"github.com/chirino/solace-bridge/internal/config"
	"github.com/chirino/solace-bridge/internal/crypto/envelope"
	"github.com/chirino/solace-bridge/internal/exclusion"
	"github.com/chirino/solace-bridge/internal/metrics"
	"github.com/chirino/solace-bridge/internal/plugin/route/exclusions"
	"github.com/chirino/solace-bridge/internal/plugin/route/messages"
	"github.com/chirino/solace-bridge/internal/plugin/route/storage"
	routesystem "github.com/chirino/solace-bridge/internal/plugin/route/system"
	registryblob "github.com/chirino/solace-bridge/internal/registry/blob"
	registrybroker "github.com/chirino/solace-bridge/internal/registry/broker"
	registrykeywrap "github.com/chirino/solace-bridge/internal/registry/keywrap"
	registryroute "github.com/chirino/solace-bridge/internal/registry/route"
	"github.com/chirino/solace-bridge/internal/store"
	"github.com/chirino/solace-bridge/internal/transform"
)

// Server holds the running server and its subsystems.
type Server struct {
	Config    *config.Config
	Router    *gin.Engine
	Bridge    *bridge.Bridge
	Records   *store.Records
	Exclusion *exclusion.Engine

	httpServer  *http.Server
	broker      registrybroker.Gateway
	pipeline    *transform.Pipeline
	dlqListener *transform.DLQListener
}

// Shutdown stops accepting work and drains in this order: HTTP first so no
// new sends arrive, then the consumers, then the async store queue, and the
// broker connection last.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.pipeline != nil {
		if err := s.pipeline.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.dlqListener != nil {
		if err := s.dlqListener.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Bridge != nil {
		s.Bridge.Close()
	}
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartServer initializes all subsystems and starts the HTTP server.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting solace bridge",
		"httpPort", cfg.Port,
		"broker", cfg.BrokerType,
		"blobStore", cfg.BlobType,
		"encryption", cfg.EncryptionEnabled,
		"keywrap", cfg.KeywrapType,
	)

	// Initialize Prometheus metrics with configured constant labels.
	metricsLabels, err := metrics.ParseLabels(cfg.MetricsLabels)
	if err != nil {
		return nil, fmt.Errorf("invalid --metrics-labels: %w", err)
	}
	metrics.Init(metricsLabels)

	// Initialize encryption. The envelope constructor probes the keywrap
	// provider with a wrap/unwrap round trip so a misconfigured master key
	// fails startup instead of corrupting stored records.
	var crypto *envelope.Service
	if cfg.EncryptionEnabled {
		kwPlugin, err := registrykeywrap.Select(cfg.KeywrapType)
		if err != nil {
			return nil, err
		}
		provider, err := kwPlugin.Loader(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize keywrap provider %q: %w", cfg.KeywrapType, err)
		}
		crypto, err = envelope.New(ctx, provider)
		if err != nil {
			return nil, fmt.Errorf("encryption startup probe failed: %w", err)
		}
		log.Info("Envelope encryption enabled", "keywrap", cfg.KeywrapType, "keyId", provider.KeyID())
	} else {
		log.Warn("Envelope encryption disabled, records stored in plaintext")
	}

	// Initialize the blob store and the record layer over it.
	blobPlugin, err := registryblob.Select(cfg.BlobType)
	if err != nil {
		return nil, err
	}
	blobs, err := blobPlugin.Loader(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize blob store %q: %w", cfg.BlobType, err)
	}
	records := store.New(blobs, crypto)

	// Initialize the broker gateway.
	brokerPlugin, err := registrybroker.Select(cfg.BrokerType)
	if err != nil {
		return nil, err
	}
	gateway, err := brokerPlugin.Loader(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize broker %q: %w", cfg.BrokerType, err)
	}

	engine := exclusion.New()
	b := bridge.New(gateway, records, engine, cfg.StoreWorkers, cfg.StoreQueueCapacity)

	srv := &Server{
		Config:    cfg,
		Bridge:    b,
		Records:   records,
		Exclusion: engine,
		broker:    gateway,
	}

	if cfg.TransformEnabled {
		pipeline, err := transform.New(gateway, records, cfg)
		if err != nil {
			return nil, err
		}
		if err := pipeline.Start(ctx); err != nil {
			return nil, err
		}
		srv.pipeline = pipeline
	}
	if cfg.DLQListenerEnabled {
		listener := transform.NewDLQListener(gateway, records, cfg)
		if err := listener.Start(ctx); err != nil {
			return nil, err
		}
		srv.dlqListener = listener
	}

	// Set up gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware())

	for _, loader := range registryroute.Loaders() {
		if err := loader(router); err != nil {
			return nil, fmt.Errorf("failed to load routes: %w", err)
		}
	}
	messages.MountRoutes(router, b)
	storage.MountRoutes(router, records, b)
	exclusions.MountRoutes(router, engine)
	srv.Router = router

	srv.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	go func() {
		if err := srv.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "err", err)
		}
	}()

	routesystem.MarkReady()
	log.Info("Bridge started", "port", cfg.Port)
	return srv, nil
}
