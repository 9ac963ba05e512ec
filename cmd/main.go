package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lead-console/config"
	"lead-console/internal/app"
	"lead-console/internal/handlers"
	"lead-console/internal/metrics"
	"lead-console/internal/utils"
)

// @title Lead Console API
// @version 1.0
// @description Call-center console: lead datasets, call dispositions and appointment reminders
// @host localhost:8081
// @BasePath /api/v1
func main() {
	configPath := flag.String("config", os.Getenv("LEADCONSOLE_CONFIG"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	logger, err := utils.InitLogger(cfg.Log.Level, cfg.Log.Format, "lead-console")
	if err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("error starting console", zap.Error(err))
	}

	if cfg.WhatsApp.Enabled {
		messageHandler := handlers.NewMessageHandler(console.Console, console.Connections, logger)
		console.Connections.OnInbound(messageHandler.HandleInbound)
		if _, err := console.Connections.GetConnection(); err != nil {
			logger.Error("whatsapp unavailable, retry through /api/v1/qrcode", zap.Error(err))
		}
	}

	httpHandler := handlers.NewHTTPHandler(console.Console, console.Datasets, console.Exports, console.Connections)
	router := mux.NewRouter().PathPrefix("/api/v1").Subrouter()
	httpHandler.Register(router)

	fs := http.FileServer(http.Dir("./docs"))
	router.PathPrefix("/swagger/").Handler(http.StripPrefix("/api/v1/swagger/", fs))
	router.PathPrefix("/swagger-ui/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/api/v1/swagger/swagger.json"),
		httpSwagger.DeepLinking(true),
	))

	mainRouter := mux.NewRouter()
	mainRouter.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mainRouter.PathPrefix("/api/v1").Handler(router)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           c.Handler(mainRouter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server is running", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return console.Scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
	if err := console.Close(); err != nil {
		logger.Error("error closing stores", zap.Error(err))
	}
	logger.Info("server stopped successfully")
}
