package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/peerlink/internal/adapters/capture"
	router "github.com/dkeye/peerlink/internal/adapters/http"
	"github.com/dkeye/peerlink/internal/adapters/rtc"
	sig "github.com/dkeye/peerlink/internal/adapters/signal"
	"github.com/dkeye/peerlink/internal/app/session"
	"github.com/dkeye/peerlink/internal/config"
	"github.com/dkeye/peerlink/internal/domain"
	"github.com/dkeye/peerlink/internal/logging"
	"github.com/dkeye/peerlink/internal/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Console logger until the configured one is set up, so config.Load can log.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		log.Error().Err(err).Msg("invalid arguments")
		return 1
	}

	cfg, err := config.Load(flags)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return 1
	}
	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Error().Err(err).Msg("failed to set up logging")
		return 1
	}
	defer closer.Close()

	sid := domain.NewSessionID()
	m := metrics.New()
	connector := rtc.NewConnector(
		rtc.WithSessionID(sid),
		rtc.WithLoggerFactory(logging.NewPionFactory(log.Logger, cfg.Log.PionLevel)),
	)

	var acceptor *sig.Acceptor
	if cfg.Signaling.Transport == config.TransportWebSocket && cfg.Signaling.Listen {
		acceptor = sig.NewAcceptor(cfg.Signaling.WriteTimeout)
		defer acceptor.Close()
	}

	runner := session.NewRunner(cfg, session.Deps{
		Driver: capture.NewDriver(capture.Config{
			VideoBitRate: cfg.Media.VideoBitRate,
			AudioBitRate: cfg.Media.AudioBitRate,
		}),
		Connector: connector,
		Metrics:   m,
		SessionID: sid,
		Acceptor:  acceptor,
	})

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: router.SetupRouter(cfg, runner, m, acceptor),
		}
		go func() {
			log.Info().Str("addr", cfg.HTTP.Addr).Msg("status server started")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("server error")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Server forced to shutdown")
			}
		}()
	}

	log.Info().Str("sid", string(sid)).Str("signal", cfg.Signaling.Transport).Bool("offer", cfg.Negotiation.Initiate).Msg("peerlink started")
	if err := runner.Run(ctx); err != nil {
		code, _ := domain.CodeOf(err)
		log.Error().Err(err).Str("code", string(code)).Msg("session failed")
		return 1
	}
	return 0
}
