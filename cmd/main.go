package main

import (
	"context"
	"flag"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/dabrowne/ledgerfs/config"
	"github.com/dabrowne/ledgerfs/internal/fusefs"
	"github.com/dabrowne/ledgerfs/internal/handlers"
	"github.com/dabrowne/ledgerfs/internal/ledger"
	"github.com/dabrowne/ledgerfs/internal/route"
	"github.com/dabrowne/ledgerfs/internal/util"
	"github.com/dabrowne/ledgerfs/internal/vfs"
)

func main() {
	// Parse command line arguments
	var (
		clientID     string
		clientSecret string
		configPath   string
		verbose      int
		umount       bool
	)
	flag.StringVar(&clientID, "client-id", "", "OAuth client id (required)")
	flag.StringVar(&clientSecret, "client-secret", "", "OAuth client secret (required)")
	flag.StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
	flag.StringVar(&configPath, "c", "", "--config (shorthand)")
	flag.BoolVar(&umount, "umount", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flag.BoolVar(&umount, "u", false, "--umount (shorthand)")
	flag.IntVar(&verbose, "verbose", 3, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.IntVar(&verbose, "v", 3, "--verbose (shorthand)")
	flag.Parse()

	// Initialize logger
	if verbose < 1 {
		verbose = 1
	}
	if verbose > 5 {
		verbose = 5
	}
	logLvls := [5]util.LogLevel{util.ErrorLevel, util.WarnLevel, util.InfoLevel, util.DebugLevel, util.TraceLevel}
	logLvl := logLvls[verbose-1]
	util.InitializeLogger(logLvl)
	logger := util.GetLogger("main")

	mnt := flag.Arg(0)
	logger.Info().Int("verbose", verbose).Str("mnt", mnt).Msg("ledgerfs initializing")
	// Check if mount point is provided
	if mnt == "" {
		logger.Fatal().Msg("Mount point not specified; it must be passed as the argument")
	}
	if clientID == "" || clientSecret == "" {
		logger.Fatal().Msg("Both --client-id and --client-secret are required")
	}
	// Try unmount if requested
	if umount { // send cli command
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	// Init config
	cfg := config.NewConfig(nil)
	if configPath != "" {
		override, err := config.LoadConfigOverrideFile(configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("config", configPath).Msg("Failed to load config file")
		}
		cfg.Merge(override)
		logger.Debug().Str("config", configPath).Msg("Config file loaded successfully")
	}
	if logLvl == util.TraceLevel {
		cfg.MountOptions.Debug = true
	}

	// Authorize against the provider
	client := ledger.New(clientID, clientSecret,
		ledger.WithBaseURL(cfg.APIBaseURL),
		ledger.WithAuthURL(cfg.AuthURL),
		ledger.WithCallbackAddr(cfg.CallbackAddr),
		ledger.WithTokenPath(cfg.TokenPath),
	)
	if err := client.Initialize(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to authorize against the ledger API")
	}

	// Build the route table
	router := route.NewRouter()
	if err := handlers.NewService(client, cfg).Register(router); err != nil {
		logger.Fatal().Err(err).Msg("Failed to build route table")
	}

	if err := os.MkdirAll(mnt, 0o755); err != nil {
		logger.Fatal().Err(err).Str("mountpoint", mnt).Msg("Failed to create mount point")
	}

	// Serve
	srv, err := fusefs.Mount(vfs.New(router), mnt, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to mount filesystem")
	}

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	logger.Info().Str("mountpoint", mnt).Msg("Filesystem mounted successfully")

	// Wait for termination signal
	sig := <-signalChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")

	// Unmount the filesystem
	if err := srv.Unmount(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystem")
	} else {
		logger.Info().Msg("Filesystem unmounted successfully")
	}
	srv.Wait()
}
