package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Attendance HTTP API.

Endpoints (all under /api/v1):
  POST /recognise   verify an attendance photo
  GET  /check       check whether a person is registered
  POST /register    enroll a person from a video
  POST /identify    find the nearest enrolled persons
  GET  /health      liveness probe`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	server := web.NewServer(a.cfg, a.service, a.logger.Named("web"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("error during shutdown", zap.Error(err))
		}
		// in-flight registrations stop at the next frame
		_ = a.service.Close()
	}()

	fmt.Printf("Starting Face Attendance API on http://%s:%d\n", a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
