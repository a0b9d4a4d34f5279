// Command polyview-hostd runs a demonstration host: a simulated
// engine runtime behind the real store, controller, HTTP inspection
// API, and TCP console.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/polyview-dev/polyview/internal/api"
	"github.com/polyview-dev/polyview/internal/config"
	"github.com/polyview-dev/polyview/internal/display"
	"github.com/polyview-dev/polyview/internal/logging"
	"github.com/polyview-dev/polyview/internal/server"
	"github.com/polyview-dev/polyview/internal/store"
	"github.com/polyview-dev/polyview/internal/vault"
	"github.com/polyview-dev/polyview/pkg/host"
)

func main() {
	// A missing .env is fine; the config has defaults for everything.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("POLYVIEW_CONFIG"))
	if err != nil {
		panic(err)
	}

	log := logging.New(cfg.App.Env, cfg.App.LogLevel)
	defer log.Sync()

	reg := prometheus.NewRegistry()
	st := store.New(
		store.WithLogger(log),
		store.WithMetrics(store.NewMetrics(reg)),
	)

	var snap *store.Snapshotter
	if cfg.Snapshot.Dir != "" {
		snap, err = store.NewSnapshotter(cfg.Snapshot.Dir)
		if err != nil {
			log.Fatal("snapshot dir unusable", zap.Error(err))
		}
		if err := snap.Restore(cfg.Snapshot.Name, st); err != nil {
			if !os.IsNotExist(err) {
				log.Warn("could not restore snapshot", zap.Error(err))
			}
		} else {
			log.Info("state restored from snapshot", zap.String("dir", cfg.Snapshot.Dir))
		}
	}

	provider := display.NewStaticProvider(cfg.MultiDisplay.Displays)
	runtime := newSimRuntime(log)

	h := host.New(runtime, provider, host.WithLogger(log), host.WithStore(st))
	if err := h.SetupMultiDisplay(cfg.MultiDisplay.Entrypoints, cfg.MultiDisplay.PortBased); err != nil {
		log.Warn("some displays failed to attach", zap.Error(err))
	}
	h.OnHostStart()

	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	handler := &api.Handler{Host: h, Provider: provider}
	handler.Register(r.Group("/api"))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	console := server.NewConsole(st, log)
	if cfg.Server.ConsoleTLS {
		cert, err := vault.GenerateSelfSignedCert()
		if err != nil {
			log.Fatal("could not generate console certificate", zap.Error(err))
		}
		console.SetCertificate(cert)
		log.Info("console TLS enabled")
	}

	httpSrv := &http.Server{Addr: ":" + cfg.Server.HTTPPort, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP inspection API listening", zap.String("port", cfg.Server.HTTPPort))
		if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("console listening", zap.String("port", cfg.Server.ConsolePort))
		return console.Listen(cfg.Server.ConsolePort)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
		console.Stop()

		h.OnHostStop()
		if snap != nil {
			if err := snap.Save(cfg.Snapshot.Name, st); err != nil {
				log.Warn("snapshot save failed", zap.Error(err))
			} else {
				log.Info("state snapshot saved")
			}
		}
		h.OnHostDetach()
		h.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("exiting")
}
