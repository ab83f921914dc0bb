package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"signalrelay/internal/cfg"
	"signalrelay/internal/journal"
	"signalrelay/internal/logging"
	"signalrelay/internal/metrics"
	"signalrelay/internal/orders"
	"signalrelay/internal/regime"
	"signalrelay/internal/state"
	"signalrelay/internal/venue"
	"signalrelay/internal/webhook"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	logging.Init(c.LogFormat, c.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	st, err := state.New(c.RedisAddr, c.RedisPassword, c.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("redis state store connection failed")
	}
	defer st.Close()

	var j *journal.Store
	if c.DataPath != "" {
		j, err = journal.New(c.DataPath)
		if err != nil {
			log.Warn().Err(err).Msg("journal initialization failed, continuing without audit trail")
		} else {
			defer j.Close()
		}
	}

	venueClient := venue.New(c.Key, c.Secret, c.BaseURL, c.RESTTimeout, c.SpotVenue)

	regimeClassifier := regime.New(venueClient, venueClient, "ETH/USDT:USDT", "BTC/USDT:USDT", "ETH/USDT:USDT", c.FundingAbsMax, c.VixURL, c.VixMax)

	engine := orders.New(venueClient, st, j)

	handler := webhook.New(&c, st, venueClient, regimeClassifier, engine, mw)

	router := handler.Router(promhttp.Handler())
	apiServer := &http.Server{
		Addr:         c.ListenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", c.ListenAddr).Msg("relay server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("relay server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context cancelled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("relay server shutdown did not complete cleanly")
	}
}
