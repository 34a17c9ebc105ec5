package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/zulandar/procurebot/internal/api"
	"github.com/zulandar/procurebot/internal/cache"
	"github.com/zulandar/procurebot/internal/config"
	"github.com/zulandar/procurebot/internal/db"
	"github.com/zulandar/procurebot/internal/logging"
	"github.com/zulandar/procurebot/internal/models"
	"github.com/zulandar/procurebot/internal/realtime"
)

// recordSource fetches full negotiation records, through the snapshot
// cache when one is open.
type recordSource interface {
	GetNegotiation(ctx context.Context, id string) (*models.Negotiation, error)
}

// app bundles what a command needs: config, logger, backend client and the
// optional snapshot cache.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	api     *api.Client
	store   *cache.Store // nil when the cache is disabled or unavailable
	records recordSource
	closers []io.Closer
}

type appOpts struct {
	// logFile forces logs into a file, for full-screen commands.
	logFile string
	noCache bool
}

// newApp loads the config named by the --config flag and wires the clients.
func newApp(cmd *cobra.Command, opts appOpts) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	logCfg := logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, File: cfg.Log.File}
	if opts.logFile != "" && logCfg.File == "" {
		logCfg.File = opts.logFile
	}
	logCloser, err := logging.Init(logCfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logging.Component("cli"), closers: []io.Closer{logCloser}}

	a.api, err = api.NewClient(api.ClientOpts{BaseURL: cfg.Backend.BaseURL, Timeout: cfg.Backend.Timeout})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.records = a.api

	if cfg.Cache.Disabled || opts.noCache {
		return a, nil
	}
	dsn := cfg.Cache.DSN
	if dsn == "" {
		dsn = db.MySQLDSN(cfg.Cache.User, cfg.Cache.Host, cfg.Cache.Port, cfg.Cache.Database)
	}
	store, err := cache.Open(cfg.Cache.Driver, dsn)
	if err != nil {
		a.log.Warn().Err(err).Msg("snapshot cache unavailable")
		return a, nil
	}
	if n, err := store.Prune(time.Now().Add(-cfg.Cache.MaxAge)); err != nil {
		a.log.Warn().Err(err).Msg("snapshot prune failed")
	} else if n > 0 {
		a.log.Debug().Int64("removed", n).Msg("pruned old snapshots")
	}
	a.store = store
	a.closers = append(a.closers, store)
	a.records = cache.NewClient(a.api, store, logging.Component("cache"))
	return a, nil
}

// Close releases the cache and the log file.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
}

// newSession opens a realtime session on the backend event channel.
func (a *app) newSession(negotiationID string) (*realtime.Session, error) {
	header := http.Header{}
	header.Set("Origin", a.cfg.Origin)
	return realtime.NewSession(realtime.SessionOpts{
		NegotiationID: negotiationID,
		Dialer: &realtime.WSDialer{
			URL:    a.cfg.SocketURL(),
			Header: header,
			Logger: logging.Component("websocket"),
		},
		MaxReconnect: a.cfg.Realtime.MaxReconnect,
		Backoff:      a.cfg.Realtime.Backoff,
		Logger:       logging.Component("realtime"),
	})
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(cmd.Context())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.ErrOrStderr(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
