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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"autorenew/internal/api"
	"autorenew/internal/app"
	"autorenew/internal/auth"
	"autorenew/internal/config"
	"autorenew/internal/devnet"
	"autorenew/internal/domain"
	"autorenew/internal/host"
	"autorenew/internal/remote"
	"autorenew/internal/store"
)

type flags struct {
	configPath string
	addr       string
	dbPath     string
	devnet     bool
	debug      bool

	tokenAddress string
	tokenRole    string
	tokenTTL     time.Duration
}

func main() {
	var f flags
	root := &cobra.Command{
		Use:           "autorenew",
		Short:         "Delegated domain auto-renewal through an external scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "config file (.yaml, .yml or .json)")
	root.PersistentFlags().StringVar(&f.dbPath, "db", "", "SQLite DB path")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, with --devnet, the in-process registry and scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	serve.Flags().StringVar(&f.addr, "addr", "", "HTTP bind address")
	serve.Flags().BoolVar(&f.devnet, "devnet", false, "serve against the in-process devnet")
	serve.Flags().BoolVar(&f.debug, "debug", false, "debug logging and pprof routes")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Bring the schema up to date and record the module version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return runMigrate(cfg)
		},
	}

	token := &cobra.Command{
		Use:   "token",
		Short: "Sign an API bearer token for an address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return runToken(cmd, cfg, f)
		},
	}
	token.Flags().StringVar(&f.tokenAddress, "address", "", "address the token authenticates as")
	token.Flags().StringVar(&f.tokenRole, "role", "user", "user, operator or scheduler")
	token.Flags().DurationVar(&f.tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = token.MarkFlagRequired("address")

	root.AddCommand(serve, migrate, token)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	// migrate and token never talk to the gateway
	if cmd.Name() != "serve" || f.devnet {
		os.Setenv("AUTORENEW_DEVNET", "true")
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if f.dbPath != "" {
		cfg.Storage.Path = f.dbPath
	}
	if f.debug {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
	}
	setupLogging(cfg.Logging)
	return cfg, nil
}

func setupLogging(c config.LoggingConfig) {
	zerolog.TimeFieldFormat = time.RFC3339
	if c.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func runMigrate(cfg *config.Config) error {
	st, err := store.Open(cfg.Storage.Path, cfg.BusyTimeout())
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	h := host.New(st, app.New(cfg.Settings()), nil, domain.Addr(cfg.Contract.Address), domain.Addr(cfg.Contract.Account))
	res, err := h.Migrate(context.Background())
	if err != nil {
		return err
	}
	to, _ := res.Response.Attr("to_version")
	log.Info().Str("db", cfg.Storage.Path).Str("version", to).Msg("migrated")
	return nil
}

func runServe(cfg *config.Config) error {
	st, err := store.Open(cfg.Storage.Path, cfg.BusyTimeout())
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		transport host.Transport
		dn        *devnet.Devnet
	)
	if cfg.Devnet.Enabled {
		dn = devnet.New(cfg.DevnetOptions())
		transport = dn.Network
	} else {
		client, err := remote.New(cfg.RemoteOptions())
		if err != nil {
			return err
		}
		transport = client
	}

	contract := domain.Addr(cfg.Contract.Address)
	h := host.New(st, app.New(cfg.Settings()), transport, contract, domain.Addr(cfg.Contract.Account))

	authn := auth.New(cfg.AuthOptions())
	if !authn.Enabled() {
		log.Warn().Msg("no API keys or JWT secret configured; every state-changing API call will be rejected")
	}
	opts := api.Options{Debug: cfg.Server.Debug, Auth: authn}
	if dn != nil {
		dn.Bind(contract, h)
		opts.Tasks = dn.Scheduler
		go dn.Start(ctx)
	}

	if err := ensureInstantiated(ctx, h, cfg); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewServer(h, opts),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Bool("devnet", dn != nil).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	cancel()
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancelTimeout()
	return srv.Shutdown(ctxTimeout)
}

func runToken(cmd *cobra.Command, cfg *config.Config, f flags) error {
	role, err := auth.ParseRole(f.tokenRole)
	if err != nil {
		return err
	}
	tok, err := auth.New(cfg.AuthOptions()).Issue(domain.Addr(f.tokenAddress), role, f.tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}

// ensureInstantiated sends the configured instantiate message on first start.
func ensureInstantiated(ctx context.Context, h *host.Host, cfg *config.Config) error {
	ok, err := h.Instantiated(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if !cfg.Setup.AutoInstantiate {
		log.Warn().Msg("module not instantiated; send instantiate or set setup.auto_instantiate")
		return nil
	}
	sender := domain.Addr(cfg.Contract.Admin)
	if sender.Empty() {
		sender = domain.Addr(cfg.Contract.Account)
	}
	res, err := h.Instantiate(ctx, sender, cfg.InstantiateMsg())
	if err != nil {
		return fmt.Errorf("instantiate: %w", err)
	}
	denom, _ := res.Response.Attr("native_denom")
	log.Info().Str("native_denom", denom).Str("admin", sender.String()).Msg("module instantiated")
	return nil
}
