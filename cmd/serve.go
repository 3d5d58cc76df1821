package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/Vasu1712/buddychat/internal/api/chat"
	"github.com/Vasu1712/buddychat/internal/auth"
	"github.com/Vasu1712/buddychat/internal/messaging"
	"github.com/Vasu1712/buddychat/internal/metrics"
	"github.com/Vasu1712/buddychat/internal/middleware"
	"github.com/Vasu1712/buddychat/internal/profiles"
	"github.com/Vasu1712/buddychat/internal/storage"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP and WebSocket server",
		Action: func(c *cli.Context) error {
			cfg, log, err := setup(c)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := storage.Open(ctx, cfg.Store, log)
			if err != nil {
				return err
			}
			defer store.Close()

			authenticator, err := auth.NewAuthenticator(cfg.Auth.JWTSecret)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			if err := metrics.Register(reg); err != nil {
				return err
			}

			dir := profiles.NewDirectory(store)
			coord := messaging.NewCoordinator(store, dir, log, messaging.Options{
				BatchFanout:       cfg.Messaging.BatchFanout,
				PreviewRetries:    cfg.Messaging.PreviewRetries,
				DefaultSenderName: cfg.Messaging.DefaultSenderName,
			})

			chatHandler := chat.NewChatHandler(coord, dir, cfg.HTTP.AllowedOrigin, log)
			go chatHandler.Hub.Run(ctx)

			limiter := middleware.NewUserRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst, log)
			go limiter.Cleanup(ctx)

			r := mux.NewRouter()
			r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			}).Methods(http.MethodGet)
			r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
			chat.RegisterChatRoutes(r, chatHandler, middleware.Auth(authenticator, log), limiter.Handler)

			srv := &http.Server{
				Addr:         cfg.HTTP.Addr,
				Handler:      middleware.CORS(cfg.HTTP.AllowedOrigin)(middleware.Logging(log)(r)),
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Infow("server started", "addr", cfg.HTTP.Addr, "store", cfg.Store.Driver)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
