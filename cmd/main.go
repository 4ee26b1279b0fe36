package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sabarim/fyerschain/internal/api"
	"github.com/sabarim/fyerschain/internal/auth"
	"github.com/sabarim/fyerschain/internal/config"
	"github.com/sabarim/fyerschain/internal/export"
	"github.com/sabarim/fyerschain/internal/fyers"
	"github.com/sabarim/fyerschain/internal/instruments"
	"github.com/sabarim/fyerschain/internal/logger"
	"github.com/sabarim/fyerschain/internal/margin"
	"github.com/sabarim/fyerschain/internal/optionchain"
	"github.com/sabarim/fyerschain/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	logLevel   string
	verbose    bool

	underlying     string
	expiryDate     string
	side           string
	strikeCount    int
	outputDir      string
	parquetEnabled bool
	csvEnabled     bool

	serverAddr string
)

var versionString = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:           "fyerschain",
		Short:         "Priced option chains from the Fyers API",
		Long:          `Resolves an option series from the Fyers symbol master, fetches its option chain and prices every strike with its span margin and premium.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	chainCmd := &cobra.Command{
		Use:   "chain",
		Short: "Fetch and price an option chain",
		RunE:  runChainCommand,
	}
	chainCmd.Flags().StringVar(&underlying, "underlying", "", "Underlying symbol, e.g. HDFCBANK")
	chainCmd.Flags().StringVar(&expiryDate, "expiry", "", "Expiry date (YYYY-MM-DD)")
	chainCmd.Flags().StringVar(&side, "side", "CE", "Option side (CE or PE)")
	chainCmd.Flags().IntVar(&strikeCount, "strike-count", 0, "Strikes to request per side (1-50)")
	chainCmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory for snapshot files")
	chainCmd.Flags().BoolVar(&parquetEnabled, "parquet", false, "Write a parquet snapshot")
	chainCmd.Flags().BoolVar(&csvEnabled, "csv", false, "Write a csv snapshot")

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Ensure a valid access token, refreshing and persisting it if needed",
		RunE:  runTokenCommand,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve priced option chains over HTTP",
		RunE:  runServeCommand,
	}
	serveCmd.Flags().StringVar(&serverAddr, "addr", "", "Listen address (default from config)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fyerschain version %s\n", versionString)
		},
	}

	rootCmd.AddCommand(chainCmd, tokenCmd, serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the wired components shared by the commands
type app struct {
	cfg      config.Config
	log      *zap.Logger
	tokens   *auth.TokenManager
	pipeline *pipeline.Pipeline
	closers  []io.Closer
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("Error closing resource", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if strikeCount > 0 {
		cfg.Broker.StrikeCount = strikeCount
	}
	if outputDir != "" {
		cfg.Export.OutputDir = outputDir
	}
	if parquetEnabled {
		cfg.Export.ParquetEnabled = true
	}
	if csvEnabled {
		cfg.Export.CSVEnabled = true
	}
	if serverAddr != "" {
		cfg.Server.Addr = serverAddr
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, fmt.Errorf("error creating logger: %w", err)
	}

	store, err := auth.NewStore(&cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	log.Info("Configuration loaded",
		zap.String("credential_store", cfg.Credentials.Store),
		zap.Bool("client_id_set", cfg.Auth.ClientID != ""),
		zap.Bool("refresh_token_set", cfg.Auth.RefreshToken != ""),
		zap.Int("strike_count", cfg.Broker.StrikeCount),
		zap.Int("pricing_workers", cfg.Broker.PricingWorkers))

	httpClient := fyers.NewHTTPClient(cfg.Broker.HTTPTimeout)
	a.tokens = auth.NewTokenManager(
		store,
		auth.NewAuthClient(cfg.Auth.AuthBaseURL, httpClient, log),
		auth.SeedCredentials(&cfg),
		cfg.Credentials.PersistRetries,
		log)

	a.pipeline = pipeline.New(
		instruments.NewSymbolResolver(cfg.Broker.CatalogURL, httpClient, cfg.Broker.CatalogTTL, log),
		optionchain.NewFetcher(cfg.Broker.DataBaseURL, httpClient, a.tokens, log),
		margin.NewCalculator(cfg.Broker.APIBaseURL, httpClient, a.tokens, cfg.Broker.PricingWorkers, log),
		cfg.Broker.StrikeCount,
		log)
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigchan:
			log.Info("Received signal, initiating shutdown", zap.Stringer("signal", sig))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigchan)
	}()
	return ctx, cancel
}

func runChainCommand(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(a.log)
	defer cancel()

	takenAt := time.Now()
	rows, err := a.pipeline.GetPricedOptionChain(ctx, underlying, expiryDate, side)
	if err != nil {
		return err
	}

	writer := export.NewWriter(a.cfg.Export, a.log)
	if writer.Enabled() {
		if _, err := writer.Write(export.Snapshot{
			Underlying: underlying,
			ExpiryDate: expiryDate,
			Side:       side,
			TakenAt:    takenAt,
			Rows:       rows,
		}); err != nil {
			return fmt.Errorf("failed to export snapshot: %w", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func runTokenCommand(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext(a.log)
	defer cancel()

	token, err := a.tokens.EnsureValidToken(ctx)
	if err != nil {
		return err
	}

	status := a.tokens.Status()
	fmt.Printf("state:      %s\n", status.State)
	fmt.Printf("token:      %d chars\n", len(token))
	fmt.Printf("expires at: %s\n", status.ExpiresAt.Format(time.RFC3339))
	return nil
}

func runServeCommand(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signalContext(a.log)
	defer cancel()

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           api.NewRouter(a.pipeline, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.log.Info("Server stopped")
	return nil
}
