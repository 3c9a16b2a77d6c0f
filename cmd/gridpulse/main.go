package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/urbanmesh/gridpulse/internal/api"
	"github.com/urbanmesh/gridpulse/internal/catalog"
	"github.com/urbanmesh/gridpulse/internal/cities"
	"github.com/urbanmesh/gridpulse/internal/config"
	"github.com/urbanmesh/gridpulse/internal/costs"
	"github.com/urbanmesh/gridpulse/internal/engine"
	"github.com/urbanmesh/gridpulse/internal/ingest"
	"github.com/urbanmesh/gridpulse/internal/logging"
	"github.com/urbanmesh/gridpulse/internal/providers"
	"github.com/urbanmesh/gridpulse/internal/scenario"
	"github.com/urbanmesh/gridpulse/internal/scheduler"
	"github.com/urbanmesh/gridpulse/internal/store"
	"github.com/urbanmesh/gridpulse/internal/websocket"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	flagPort     int
	flagLogLevel string
	flagEnvFile  string
)

var rootCmd = &cobra.Command{
	Use:     "gridpulse",
	Short:   "GridPulse - urban grid telemetry and decision-support backend",
	Long:    `GridPulse fuses weather, air quality, traffic, and civic signal streams into per-zone grid state, alerts, cost rollups, and an evidence-grounded scenario agent.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("GridPulse %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Flags().IntVar(&flagPort, "port", 0, "HTTP listen port (overrides GRIDPULSE_PORT)")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log level (overrides GRIDPULSE_LOG_LEVEL)")
	rootCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "path to an env file loaded before the environment")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	// baseline logger for early startup
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "gridpulse"})

	cfg, err := config.Load(flagEnvFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if flagPort != 0 {
		cfg.Port = flagPort
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "gridpulse"})
	log.Info().Str("version", Version).Msg("Starting GridPulse backend")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer st.Close()

	datasets := providers.LoadDatasets(cfg.DatasetDir)
	go datasets.WatchDatasets(ctx)

	weather := providers.NewWeather(cfg.WeatherAPIURL, cfg.WeatherAPIKey, datasets)
	airQual := providers.NewAirQuality(cfg.AQIAPIURL, cfg.AQIAPIKey, datasets)
	traffic := providers.NewTraffic(cfg.TrafficAPIURL, cfg.TrafficAPIKey)
	tariffs := providers.NewElectricity(cfg.TariffAPIURL, datasets, cfg.DefaultPriceKWH)

	hub := websocket.NewHub()

	eng := engine.New(engine.Config{
		Store:    st,
		Weather:  weather,
		AirQual:  airQual,
		Traffic:  traffic,
		Notifier: hub,
		MaxZones: cfg.MaxZones,
	})

	sched := scheduler.New(eng, cfg.CycleInterval)
	if city, err := cities.Get(cfg.DefaultCity); err != nil {
		log.Warn().Err(err).Str("city", cfg.DefaultCity).Msg("Default city unknown; scheduler idle until selection")
	} else {
		sched.Start(city, cfg.CycleInterval)
	}

	ingester := ingest.New(st)
	consumer := ingest.NewConsumer(ingester, cfg.BusBrokers, cfg.BusGroupID)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumer.Run(ctx)
	}()

	router := api.New(api.Config{
		Store:        st,
		Engine:       eng,
		Orchestrator: scenario.New(st, catalog.New(st)),
		Costs: costs.New(st, tariffs, costs.Pricing{
			CarbonPricePerTon: cfg.CarbonPricePerTon,
			AQIPointPrice:     cfg.AQIPointPrice,
			IncidentPrice:     cfg.IncidentPrice,
		}),
		Scheduler: sched,
		Hub:       hub,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("HTTP server listening")
		serverErr <- server.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("Shutting down")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}

	sched.Stop()
	cancel()
	select {
	case <-consumerDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Bus consumer did not stop in time")
	}

	log.Info().Msg("GridPulse stopped")
}
