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

	"github.com/spf13/cobra"

	"github.com/getsimpletool/mcpo-simple-server/internal/api"
	"github.com/getsimpletool/mcpo-simple-server/internal/auth"
	"github.com/getsimpletool/mcpo-simple-server/internal/config"
	"github.com/getsimpletool/mcpo-simple-server/internal/logger"
	"github.com/getsimpletool/mcpo-simple-server/internal/mcpserver"
	"github.com/getsimpletool/mcpo-simple-server/internal/userstore"
)

var settingsPath string

var rootCmd = &cobra.Command{
	Use:   "mcposerver",
	Short: "Multi-tenant supervisor and HTTP gateway for MCP servers",
	Long: `mcposerver supervises user-registered MCP server processes, discovers
their tools, and proxies tool invocations over an authenticated HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func main() {
	rootCmd.Flags().StringVar(&settingsPath, "settings", "", "path to settings.toml (optional)")
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	settings, err := config.Load(settingsPath)
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(settings.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := logger.Init(settings.DataDir); err != nil {
		fmt.Printf("Warning: failed to initialize persistent logging: %v\n", err)
	}
	defer logger.Close()

	users, err := userstore.Open(settings.StoreBackend, settings.DataDir)
	if err != nil {
		return err
	}
	defer users.Close()

	if err := ensureAdminUser(users, settings); err != nil {
		return err
	}

	authService, err := auth.NewService(users, settings.JWTSecretKey, settings.APIKeyEncryptionKey, settings.TokenTTL())
	if err != nil {
		return err
	}

	ctrl := mcpserver.NewController(users, mcpserver.Options{
		HandshakeTimeout:    settings.HandshakeTimeout(),
		CallTimeout:         settings.CallTimeout(),
		ShutdownGrace:       settings.ShutdownGrace(),
		MaxInflightPerChild: settings.MaxInflightPerChild,
		EnvAllowList:        settings.EnvAllowList,
	})

	// Bring persisted servers back up before accepting traffic.
	logger.Infof("reconciling persisted mcpservers")
	ctrl.Reconcile(context.Background())

	srv := &http.Server{
		Addr:    settings.ListenAddr,
		Handler: api.NewServer(ctrl, users, authService),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", settings.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		ctrl.StopAll()
		return err
	case sig := <-sigCh:
		logger.Infof("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	ctrl.StopAll()
	return nil
}

// ensureAdminUser seeds the default admin account on first boot.
func ensureAdminUser(users userstore.Store, settings config.Settings) error {
	ctx := context.Background()
	if _, err := users.Get(ctx, settings.AdminUsername); err == nil {
		return nil
	} else if !errors.Is(err, userstore.ErrNotFound) {
		return err
	}

	hashed, err := auth.HashPassword(settings.AdminPassword)
	if err != nil {
		return err
	}

	logger.Infof("creating default admin user %q", settings.AdminUsername)
	return users.Save(ctx, &userstore.UserConfig{
		Username:       settings.AdminUsername,
		HashedPassword: hashed,
		Group:          userstore.GroupAdmins,
		Env:            map[string]string{},
		McpServers:     map[string]userstore.ServerSpec{},
	})
}
