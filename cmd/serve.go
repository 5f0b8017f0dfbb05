package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/company-research/internal/api"
	"github.com/sells-group/company-research/internal/dispatch"
	"github.com/sells-group/company-research/internal/service"
	"github.com/sells-group/company-research/internal/workflow"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the task API, background runner and profile driver",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := newEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		runner := dispatch.NewRunner(ctx, env.Dispatcher, cfg.Dispatch.Concurrency)
		svc := service.New(env.Store, runner,
			service.WithAutoDispatch(cfg.Dispatch.AutoDispatch),
			service.WithSearchMaxResults(cfg.Search.MaxResults),
		)
		driver := workflow.NewProfileDriver(env.Store, svc, cfg.Workflow.ProfileTick(), cfg.Workflow.MaxPollAttempts)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.NewRouter(svc, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return driver.Run(gctx)
		})
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 15*time.Second)
			defer cancel()
			return eris.Wrap(srv.Shutdown(shutdownCtx), "server shutdown")
		})

		err = g.Wait()
		stop()
		runner.Wait()
		return err
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
