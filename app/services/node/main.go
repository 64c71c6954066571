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

	"github.com/ardanlabs/blocknode/app/services/node/handlers"
	"github.com/ardanlabs/blocknode/foundation/blockchain/database/storage/disk"
	"github.com/ardanlabs/blocknode/foundation/blockchain/genesis"
	"github.com/ardanlabs/blocknode/foundation/blockchain/p2p"
	"github.com/ardanlabs/blocknode/foundation/blockchain/state"
	"github.com/ardanlabs/blocknode/foundation/blockchain/worker"
	"github.com/ardanlabs/blocknode/foundation/events"
	"github.com/ardanlabs/blocknode/foundation/logger"
	"github.com/ardanlabs/blocknode/foundation/validate"
	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Empty hosts and paths are derived from the node port so several nodes can
	// run side by side on one machine with only the port changed.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string
			PublicHost      string
			AllowedOrigin   string `conf:"default:*"`
		}
		Node struct {
			Host         string        `conf:"default:127.0.0.1"`
			Port         int           `conf:"default:7878" validate:"min=1,max=65535"`
			Mine         bool          `conf:"default:true"`
			DBPath       string
			GenesisPath  string        `conf:"default:zblock/genesis.json"`
			ScanRange    int           `conf:"default:2" validate:"min=0,max=100"`
			ScanInterval time.Duration `conf:"default:1m" validate:"min=0"`
			ReadTimeout  time.Duration `conf:"default:0s" validate:"min=0"`
			WriteTimeout time.Duration `conf:"default:10s" validate:"min=0"`
			MaxLineBytes int           `conf:"default:1048576" validate:"min=1024"`
		}
		Log struct {
			File       string
			MaxSizeMB  int `conf:"default:100" validate:"min=1"`
			MaxBackups int `conf:"default:3" validate:"min=0"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "proof of work blockchain node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	if err := validate.Check(cfg); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	if cfg.Node.DBPath == "" {
		cfg.Node.DBPath = fmt.Sprintf("zblock/blockchain_db_%d", cfg.Node.Port)
	}
	if cfg.Web.PublicHost == "" {
		cfg.Web.PublicHost = fmt.Sprintf("0.0.0.0:%d", cfg.Node.Port+1000)
	}
	if cfg.Web.DebugHost == "" {
		cfg.Web.DebugHost = fmt.Sprintf("0.0.0.0:%d", cfg.Node.Port+2000)
	}

	// Switch to a logger that also writes to a rotated file.
	if cfg.Log.File != "" {
		flog, err := logger.NewWithFile("NODE", cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)
		if err != nil {
			return fmt.Errorf("constructing file logger: %w", err)
		}
		defer flog.Sync()
		log = flog
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Blockchain Support

	gen, err := genesis.Load(cfg.Node.GenesisPath)
	if err != nil {
		return fmt.Errorf("loading genesis: %w", err)
	}
	log.Infow("startup", "status", "genesis", "difficulty", gen.Difficulty, "mining_difficulty", gen.MiningDifficulty)

	// The blockchain packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	// The node can't run without durable storage.
	strg, err := disk.New(cfg.Node.DBPath)
	if err != nil {
		return fmt.Errorf("opening storage %s: %w", cfg.Node.DBPath, err)
	}

	// The state value represents the blockchain node and manages the blockchain
	// database and provides an API for application support. A corrupt record
	// in storage stops the node here.
	st, err := state.New(state.Config{
		Storage:   strg,
		Genesis:   gen,
		EvHandler: ev,
	})
	if err != nil {
		strg.Close()
		return fmt.Errorf("loading chain: %w", err)
	}
	defer st.Shutdown()

	// The p2p package accepts peer connections and speaks the gossip
	// protocol on them.
	net, err := p2p.New(p2p.Config{
		Host:         cfg.Node.Host,
		Port:         cfg.Node.Port,
		ScanRange:    cfg.Node.ScanRange,
		ReadTimeout:  cfg.Node.ReadTimeout,
		WriteTimeout: cfg.Node.WriteTimeout,
		MaxLineBytes: cfg.Node.MaxLineBytes,
		Chain:        st,
		EvHandler:    ev,
	})
	if err != nil {
		return err
	}
	if err := net.Start(); err != nil {
		return err
	}
	defer net.Shutdown()

	// The worker package implements the mining and peer scan workflows. The
	// worker will register itself with the state.
	wrk := worker.Run(st, net, worker.Config{
		Mine:         cfg.Node.Mine,
		ScanInterval: cfg.Node.ScanInterval,
	}, ev)

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, st)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown:      shutdown,
		Log:           log,
		State:         st,
		Net:           net,
		Evts:          evts,
		AllowedOrigin: cfg.Web.AllowedOrigin,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Stop mining first so nothing new is announced to closing peers.
		log.Infow("shutdown", "status", "shutdown worker")
		wrk.Shutdown()

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}
	}

	return nil
}
