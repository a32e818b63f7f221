// Command accountd serves the account backend: signup, activation, login,
// password reset, and session refresh over JSON HTTP, with a redis-backed
// email queue drained by an in-process worker pool.
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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rooftopdev/accountd/internal/auth"
	"github.com/rooftopdev/accountd/internal/cache"
	"github.com/rooftopdev/accountd/internal/config"
	"github.com/rooftopdev/accountd/internal/httpapi"
	"github.com/rooftopdev/accountd/internal/logging"
	"github.com/rooftopdev/accountd/internal/mailer"
	"github.com/rooftopdev/accountd/internal/mailqueue"
	"github.com/rooftopdev/accountd/internal/password"
	"github.com/rooftopdev/accountd/internal/store"
	"github.com/rooftopdev/accountd/internal/token"
)

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logging.New(cfg.AppName, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	tokens, err := token.New(token.Config{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        cfg.AppName,
	})
	if err != nil {
		return fmt.Errorf("tokens: %w", err)
	}

	sessions := cache.NewSessions(rdb, log, tokens.RefreshTTL())
	counters := cache.NewCounters(rdb)
	users := store.NewPostgres(pool)

	svc := auth.New(users, sessions, tokens, password.New(cfg.BcryptCost), log, auth.Config{
		FrontendURL:     cfg.FrontendURL,
		AccountTokenTTL: cfg.AccountTokenTTL,
	})

	sender, err := newSender(cfg, log)
	if err != nil {
		return fmt.Errorf("mailer: %w", err)
	}

	queue := mailqueue.NewQueue(rdb, log)
	worker := mailqueue.NewWorker(queue, mailqueue.HandlerFunc(
		func(ctx context.Context, job mailqueue.Job) error {
			msg, err := mailer.Render(job)
			if err != nil {
				return err
			}
			return sender.Send(ctx, msg)
		}), log, cfg.EmailQueueWorkers)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	api := httpapi.NewServer(svc, queue, tokens, sessions, counters, log, httpapi.Options{
		AppName:         cfg.AppName,
		Production:      cfg.IsProduction(),
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		RateLimitWindow: cfg.RateLimitWindow,
		RateLimitMax:    cfg.RateLimitMax,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("env", cfg.Environment).Msg("listening")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error().Err(err).Msg("server shutdown")
	}
	<-workerDone
	return nil
}

// newSender picks the delivery backend: Postmark when configured, the log
// sender otherwise so development never needs provider credentials.
func newSender(cfg *config.Config, log zerolog.Logger) (mailer.Sender, error) {
	if cfg.PostmarkServerToken != "" {
		return mailer.NewPostmark(cfg.PostmarkServerToken, cfg.PostmarkAccountToken, cfg.SenderEmail)
	}
	if cfg.IsProduction() {
		return nil, errors.New("postmark tokens are required in production")
	}
	return mailer.LogSender{Log: log}, nil
}
