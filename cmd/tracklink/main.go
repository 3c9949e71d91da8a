// Package main provides the tracklink service entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"tracklink/internal/core"
	httpserver "tracklink/internal/http"
	"tracklink/internal/recognize"
	"tracklink/internal/resolve"
	"tracklink/internal/spotify"
	"tracklink/internal/store"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tracklink",
	Short: "Cross-platform track link resolution service",
	Long: `Tracklink resolves a music link (or free-text query) to the recording behind
it and discovers equivalent links on other streaming platforms, each scored
for confidence, persisting the reconciled result.`,
	RunE: runTracklink,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("recognize-api-token", "", "audio recognition API token (optional fallback)")
	rootCmd.PersistentFlags().String("db-path", "./tracklink.db", "SQLite database path")
	rootCmd.PersistentFlags().String("storefront", "us", "default regional storefront code")
	rootCmd.PersistentFlags().String("server-host", "0.0.0.0", "HTTP server host")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
			os.Exit(1)
		}
	}

	viper.SetEnvPrefix("TRACKLINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")

	cfg.Recognize.APIToken = viper.GetString("recognize-api-token")
	if url := viper.GetString("recognize-base-url"); url != "" {
		cfg.Recognize.BaseURL = url
	}

	cfg.Store.Path = viper.GetString("db-path")

	cfg.Server.Host = viper.GetString("server-host")
	cfg.Server.Port = viper.GetInt("server-port")

	cfg.Log.Level = viper.GetString("log-level")

	if sf := viper.GetString("storefront"); sf != "" {
		cfg.App.DefaultStorefront = sf
	}

	return cfg
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runTracklink(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting tracklink",
		zap.String("storefront", config.App.DefaultStorefront),
		zap.Bool("recognition_enabled", config.Recognize.APIToken != ""))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	trackStore, err := store.Open(config.Store.Path, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("failed to open track store: %w", err)
	}
	defer trackStore.Close()

	spotifyClient := spotify.NewClient(&config.Spotify, logger.Named("spotify"))
	recognizer := recognize.NewRecognizer(&config.Recognize, logger.Named("recognize"))

	adapters := []resolve.Adapter{
		resolve.NewSpotifyAdapter(spotifyClient, logger.Named("adapter.spotify")),
		resolve.NewITunesAdapter(config.App.DefaultStorefront, logger.Named("adapter.itunes")),
		resolve.NewDeezerAdapter(logger.Named("adapter.deezer")),
	}

	resolver := resolve.NewResolver(spotifyClient, recognizer, adapters, logger.Named("resolver"))

	httpServer := httpserver.NewServer(&config.Server, resolver, trackStore, logger.Named("http"))
	resolver.SetFailureRecorder(httpServer.RecordAdapterFailure)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(gCtx)
	})

	logger.Info("Tracklink started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("Tracklink stopped with error", zap.Error(err))
		return err
	}

	logger.Info("Tracklink stopped gracefully")
	return nil
}

func validateConfig() error {
	if config.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required")
	}

	if config.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required")
	}

	if config.Store.Path == "" {
		return fmt.Errorf("database path is required")
	}

	return nil
}
