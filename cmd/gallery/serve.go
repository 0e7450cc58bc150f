package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/gallery/internal/server"
)

func newServeCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the gallery HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), app)
		},
	}
	cmd.Flags().String("http-address", viper.GetString("http.address"), "HTTP listen address")
	cmd.Flags().StringSlice("allowed-origins", nil, "CORS origins (empty allows same-origin only, * allows any)")
	if err := viper.BindPFlag("http.address", cmd.Flags().Lookup("http-address")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag("http.allowed_origins", cmd.Flags().Lookup("allowed-origins")); err != nil {
		panic(err)
	}
	return cmd
}

func runServer(ctx context.Context, app *application) error {
	if app.config.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	executor, history, err := app.newExecutor()
	if err != nil {
		return err
	}
	deps := server.Dependencies{
		Library:        app.library,
		Executor:       executor,
		Realtime:       server.NewRealtimeDispatcher(),
		Logger:         app.logger,
		AllowedOrigins: app.config.AllowedOrigins,
	}
	if history != nil {
		deps.History = history
	}
	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
