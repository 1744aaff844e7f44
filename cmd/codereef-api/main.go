package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/codereef-labs/codereef/backend/internal/auth"
	"github.com/codereef-labs/codereef/backend/internal/comments"
	"github.com/codereef-labs/codereef/backend/internal/config"
	"github.com/codereef-labs/codereef/backend/internal/database"
	"github.com/codereef-labs/codereef/backend/internal/documents"
	"github.com/codereef-labs/codereef/backend/internal/logging"
	"github.com/codereef-labs/codereef/backend/internal/projects"
	"github.com/codereef-labs/codereef/backend/internal/relay"
	"github.com/codereef-labs/codereef/backend/internal/server"
	"github.com/codereef-labs/codereef/backend/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "codereef-api",
		Short: "CodeReef collaborative editing backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("client-origin", defaults.GetString("http.client_origin"), "Allowed browser origin")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")
	cmd.PersistentFlags().Int64("snapshot-limit-bytes", defaults.GetInt64("documents.snapshot_limit_bytes"), "Stored snapshot size ceiling in bytes")
	cmd.PersistentFlags().Int("comment-text-limit", defaults.GetInt("comments.text_limit"), "Maximum comment body length")
	cmd.PersistentFlags().Int("relay-buffer-frames", defaults.GetInt("relay.buffer_frames"), "Per-member relay buffer depth")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.client_origin", "client-origin")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "documents.snapshot_limit_bytes", "snapshot-limit-bytes")
	bindFlag(cmd, "comments.text_limit", "comment-text-limit")
	bindFlag(cmd, "relay.buffer_frames", "relay-buffer-frames")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "codereef-auth",
		Audience:      "codereef-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	accountService, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	projectService, err := projects.NewService(projects.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	documentService, err := documents.NewService(documents.ServiceConfig{
		Database:           db,
		Logger:             logger,
		SnapshotLimitBytes: appConfig.SnapshotLimitBytes,
	})
	if err != nil {
		return err
	}
	commentService, err := comments.NewService(comments.ServiceConfig{
		Database:  db,
		Logger:    logger,
		TextLimit: appConfig.CommentTextLimit,
	})
	if err != nil {
		return err
	}

	hub := relay.NewHubWithBuffer(appConfig.RelayBufferFrames)
	realtime := relay.NewEndpoint(hub, tokenManager, logger)

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:    tokenManager,
		AccountService:  accountService,
		ProjectService:  projectService,
		DocumentService: documentService,
		CommentService:  commentService,
		RealtimeHandler: realtime,
		ClientOrigin:    appConfig.ClientOrigin,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
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
