// main is the entry point of the Warden authority service.
// It initializes the configuration, logger, database, peer endpoint and HTTP server,
// and runs them together with the expiry sweeper until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/warden/internal/authz"
	"github.com/woozymasta/warden/internal/config"
	"github.com/woozymasta/warden/internal/directory"
	"github.com/woozymasta/warden/internal/dispatch"
	"github.com/woozymasta/warden/internal/fake"
	"github.com/woozymasta/warden/internal/geoip"
	"github.com/woozymasta/warden/internal/logger"
	"github.com/woozymasta/warden/internal/maintenance"
	"github.com/woozymasta/warden/internal/punish"
	"github.com/woozymasta/warden/internal/registry"
	"github.com/woozymasta/warden/internal/server"
	"github.com/woozymasta/warden/internal/storage"
	"github.com/woozymasta/warden/internal/transport"
	"github.com/woozymasta/warden/internal/vars"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Parse()

	logger.Setup(cfg.Logger)
	info := vars.Info()
	log.Info().Str("version", info.Version).Str("commit", vars.CommitShort()).Msg("Starting warden service...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	repo, err := storage.New(cfg.Storage.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	publisher := directory.NewPublisher(cfg.Directory.Path)
	store := punish.NewStore(repo, directory.New(publisher))
	if err := store.Load(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load database")
	}

	// data generation or database maintenance
	if cfg.Storage.GenerateCount > 0 {
		fake.GenerateData(store, cfg.Storage.GenerateCount)
		return
	}
	if ran, err := maintenance.Run(cfg, store, os.Stdout); ran {
		if err != nil {
			log.Error().Err(err).Msg("Maintenance task failed")
			os.Exit(1)
		}
		return
	}

	if publisher != nil {
		if err := publisher.Clear(); err != nil {
			log.Error().Err(err).Str("path", publisher.Path()).Msg("Failed to reset server directory file")
		}
	}

	// GeoIP Update
	opts := dispatch.Options{
		Address:            cfg.Server.PublicAddress,
		TrustSenderAddress: cfg.Server.TrustSenderAddress,
	}
	log.Info().Msg("Checking GeoIP database...")
	if err := geoip.EnsureDB(ctx, cfg.GeoIP.Path, cfg.GeoIP.URL, cfg.GeoIP.Interval); err != nil {
		log.Error().Err(err).Msg("Failed to download GeoIP database")
	}
	if geoProvider, err := geoip.Open(cfg.GeoIP.Path); err != nil {
		log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
	} else {
		opts.Geo = geoProvider
		defer func() {
			if err := geoProvider.Close(); err != nil {
				log.Error().Err(err).Msg("Error closing GeoIP provider")
			}
		}()
	}

	// Connection key
	key, generated, err := transport.EnsureConnectionKey(cfg.Server.ConnectionKey, cfg.Server.KeyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare connection key")
	}
	if generated {
		log.Info().Str("path", cfg.Server.KeyFile).Msg("Generated connection key")
	}

	// Peers
	reg := registry.New(store, cfg.RateLimit.PacketRate, cfg.RateLimit.PacketBurst)
	engine := authz.New(store, reg, cfg.Server.PublicAddress)
	dispatcher := dispatch.New(ctx, store, reg, engine, opts)
	endpoint := transport.NewEndpoint(ctx, dispatcher, transport.Options{
		ConnectionKey: key,
		MaxFrameSize:  cfg.Server.MaxFrameSize,
	})

	srvHandler := server.New(store, reg, endpoint, cfg)
	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srvHandler.Run(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweeper := punish.NewSweeper(store, cfg.Sweep.Interval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("address", cfg.Server.Address).Str("public", cfg.Server.PublicAddress).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		srvHandler.Close()
		endpoint.Wait()

		return nil
	})

	runErr := g.Wait()
	if runErr != nil {
		log.Error().Err(runErr).Msg("Service stopped with error")
	}

	// Exit hook
	if publisher != nil {
		if err := publisher.Clear(); err != nil {
			log.Error().Err(err).Msg("Failed to reset server directory file")
		}
	}
	if generated {
		if err := transport.RemoveKeyFile(cfg.Server.KeyFile); err != nil {
			log.Error().Err(err).Msg("Failed to remove connection key file")
		}
	}

	log.Info().Msg("Server exited")

	if runErr != nil {
		stop()
		_ = repo.Close()
		os.Exit(1)
	}
}
