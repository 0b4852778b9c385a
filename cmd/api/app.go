package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/credentials"

	"github.com/PaulBabatuyi/relaychat/internal/auth"
	"github.com/PaulBabatuyi/relaychat/internal/chat"
	"github.com/PaulBabatuyi/relaychat/internal/config"
	"github.com/PaulBabatuyi/relaychat/internal/data"
	"github.com/PaulBabatuyi/relaychat/internal/data/mongostore"
	"github.com/PaulBabatuyi/relaychat/internal/data/pebblestore"
	"github.com/PaulBabatuyi/relaychat/internal/data/sqlstore"
	"github.com/PaulBabatuyi/relaychat/internal/media"
	"github.com/PaulBabatuyi/relaychat/internal/middleware"
	"github.com/PaulBabatuyi/relaychat/internal/push"
	"github.com/PaulBabatuyi/relaychat/internal/retention"
	"github.com/PaulBabatuyi/relaychat/internal/server"
)

// app holds everything built from a Config.
type app struct {
	store data.Store
	svc   *chat.Service
	hub   *push.Hub // nil in gateway mode
	media *media.Store
}

func (a *app) Close() {
	ctx, cancel := shutdownContext()
	defer cancel()
	if err := a.store.Close(ctx); err != nil {
		log.Error().Err(err).Msg("close store")
	}
}

func openStore(ctx context.Context, cfg *config.Config) (data.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPebble:
		return pebblestore.Open(cfg.PebblePath)
	case config.DriverMongo:
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case config.DriverPostgres:
		return sqlstore.Open(cfg.DatabaseDSN)
	}
	return nil, errors.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func newVerifier(cfg *config.Config) (*auth.Verifier, error) {
	vc := auth.VerifierConfig{
		Issuer:    cfg.IDPIssuer,
		Audience:  cfg.IDPAudience,
		ClockSkew: cfg.IDPClockSkew,
	}
	if cfg.IDPHMACSecret != "" {
		vc.HMACSecret = []byte(cfg.IDPHMACSecret)
	}
	if cfg.IDPPublicKeysFile != "" {
		keys, err := auth.LoadPublicKeys(cfg.IDPPublicKeysFile)
		if err != nil {
			return nil, err
		}
		vc.PublicKeys = keys
	}
	return auth.NewVerifier(vc)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	verifier, err := newVerifier(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "identity verifier")
	}
	images, err := media.New(cfg.MediaDir, cfg.MediaMaxBytes)
	if err != nil {
		return nil, errors.Wrap(err, "media store")
	}

	a := &app{media: images}
	var dispatcher push.Dispatcher
	switch cfg.PushMode {
	case config.PushGateway:
		dispatcher = push.NewGateway(cfg.PushGatewayURL, &http.Client{Timeout: 10 * time.Second})
	default:
		a.hub = push.NewHub()
		dispatcher = a.hub
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store", cfg.StoreDriver)
	}
	a.store = store
	a.svc = chat.New(store, verifier, auth.NewIssuer(cfg.AppSecret), dispatcher)

	log.Info().
		Str("store", cfg.StoreDriver).
		Str("push", cfg.PushMode).
		Str("media_dir", cfg.MediaDir).
		Msg("application wired")
	return a, nil
}

// serve runs the HTTP and gRPC servers until ctx is cancelled or either
// server fails, then drains both.
func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// small burst to allow a couple of quick retries
	limiter := middleware.NewLimiterStore(cfg.RateLimitRPM, 3, time.Minute)
	defer limiter.Stop()

	var creds credentials.TransportCredentials
	if cfg.TLSCert != "" {
		creds, err = credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return errors.Wrap(err, "load TLS certs")
		}
	}

	grpcServer, healthServer := newGRPCServer(a.svc, limiter, creds)
	httpServer := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: server.SetupRouter(server.Deps{
			Service: a.svc,
			Media:   a.media,
			Hub:     a.hub,
			Limiter: limiter,
			Env:     cfg.Env,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.SweepEnabled {
		stopSweep, err := retention.Start(ctx, cfg.SweepCron, a.svc)
		if err != nil {
			return err
		}
		defer stopSweep()
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", cfg.GRPCAddr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.GRPCAddr).Bool("tls", creds != nil).Msg("gRPC server listening")
		return errors.Wrap(grpcServer.Serve(lis), "gRPC server")
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Bool("tls", cfg.TLSCert != "").Msg("HTTP server listening")
		var err error
		if cfg.TLSCert != "" {
			err = httpServer.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server")
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		sctx, cancel := shutdownContext()
		defer cancel()
		return httpServer.Shutdown(sctx)
	})
	return g.Wait()
}
