// Command authd is the PlatePal identity daemon: the REST and WebSocket
// surface over the auth engine, configured from the environment.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/platepal/authcore"
	"github.com/platepal/authcore/httpapi"
	"github.com/platepal/authcore/mailer"
)

type serviceConfig struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`
	RedisPass string `env:"REDIS_PASSWORD"`

	// Base64 raw ed25519 keys. Leaving them empty generates an ephemeral
	// pair; issued tokens then die with the process.
	JWTPrivateKey string `env:"JWT_PRIVATE_KEY"`
	JWTPublicKey  string `env:"JWT_PUBLIC_KEY"`

	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ExposeMetrics   bool          `env:"EXPOSE_METRICS" envDefault:"true"`
}

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := env.ParseAs[serviceConfig]()
	if err != nil {
		logger.Fatal().Err(err).Msg("parse environment")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	priv, pub, err := loadKeys(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load signing keys")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPass,
	})
	defer client.Close()

	mailCfg, err := mailer.ConfigFromEnv()
	if err != nil {
		logger.Fatal().Err(err).Msg("parse mailer environment")
	}
	mail, err := mailer.New(mailCfg, logger.With().Str("component", "mailer").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("build mailer")
	}

	engineCfg := authcore.DefaultConfig()
	engineCfg.JWT.PrivateKey = priv
	engineCfg.JWT.PublicKey = pub
	engineCfg.Metrics.Enabled = true

	engine, err := authcore.New().
		WithConfig(engineCfg).
		WithRedis(client).
		WithUserProvider(newRedisUsers(client)).
		WithMailer(mail).
		WithLogger(logger.With().Str("component", "engine").Logger()).
		Build()
	if err != nil {
		logger.Fatal().Err(err).Msg("build engine")
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	rtt, err := engine.Ping(ctx)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("redis unreachable")
	}
	logger.Info().Dur("rtt", rtt).Msg("redis reachable")

	api := httpapi.NewServer(engine, httpapi.Config{
		ExposeMetrics: cfg.ExposeMetrics,
	}, logger.With().Str("component", "http").Logger())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown incomplete")
	}
}

func loadKeys(cfg serviceConfig) (priv, pub []byte, err error) {
	if cfg.JWTPrivateKey == "" && cfg.JWTPublicKey == "" {
		pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, err
		}
		return privKey, pubKey, nil
	}

	priv, err = base64.StdEncoding.DecodeString(cfg.JWTPrivateKey)
	if err != nil {
		return nil, nil, errors.New("JWT_PRIVATE_KEY is not valid base64")
	}
	pub, err = base64.StdEncoding.DecodeString(cfg.JWTPublicKey)
	if err != nil {
		return nil, nil, errors.New("JWT_PUBLIC_KEY is not valid base64")
	}
	return priv, pub, nil
}
