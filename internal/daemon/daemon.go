// Package daemon assembles the long-running agentwatch process: config,
// logging, the cache/bus core, the three collectors, the RPC dispatcher,
// and whichever transports the caller asks for. Build constructs every
// component without starting anything (session manager -> router -> one
// pipe server -> signal wait -> stop, generalized to three transports and
// three poll loops); Start launches listeners and background polling;
// Shutdown reverses both in order. The admin token is read once from
// config and shared by the WS and HTTP transports.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agentwatch/internal/agentstatus"
	"agentwatch/internal/bus"
	"agentwatch/internal/cache"
	"agentwatch/internal/collect"
	"agentwatch/internal/config"
	"agentwatch/internal/detect"
	"agentwatch/internal/detect/pack"
	"agentwatch/internal/logging"
	"agentwatch/internal/rpc"
	"agentwatch/internal/singleinstance"
	"agentwatch/internal/transport"
	httptransport "agentwatch/internal/transport/http"
	"agentwatch/internal/transport/pipe"
	"agentwatch/internal/transport/ws"
	"agentwatch/internal/workerutil"
)

// Options configures one daemon run. It mirrors the original binary's
// Start subcommand flags, adapted to Go's flag-as-struct convention.
type Options struct {
	ConfigPath       string
	PipePath         string
	WSPort           int
	HTTPPort         int
	NoSingleInstance bool
	LogLevel         string
	LogFormat        string
}

// App holds every long-lived component of a built daemon. The zero value
// is not usable; build one with Build.
type App struct {
	Logger *slog.Logger
	Config *config.Manager
	Cache  *cache.Cache
	Bus    *bus.Bus

	Packs *pack.Holder
	stopPackWatch func()

	Dispatcher *rpc.Dispatcher
	RPCContext *rpc.Context

	mux    *collect.MuxCollector
	agents *collect.AgentStatusCollector
	detect *collect.DetectCollector

	pollInterval time.Duration

	pipeServer *pipe.Server
	wsServer   *ws.Server
	httpServer *httptransport.Server

	lock *singleinstance.Lock

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Build loads configuration, constructs every in-process component, and
// wires them together. It does not start any background goroutine or
// listener; call Start for that. On any failure the caller owns no
// resources and need not call Shutdown.
func Build(opts Options) (*App, error) {
	configMgr, err := config.LoadFromFS(opts.ConfigPath, nil)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	loggingCfg := configMgr.Current().Logging
	if opts.LogLevel != "" {
		loggingCfg.Level = opts.LogLevel
	}
	if opts.LogFormat != "" {
		loggingCfg.Format = opts.LogFormat
	}
	logger := logging.New(loggingCfg)
	slog.SetDefault(logger)

	var lock *singleinstance.Lock
	if !opts.NoSingleInstance {
		lock, err = singleinstance.TryLock(singleinstance.DefaultMutexName())
		if err != nil {
			return nil, fmt.Errorf("acquire single-instance lock: %w", err)
		}
	}

	cfg := configMgr.Current()

	packResult, err := pack.LoadWithOverride(packConfigDir(configMgr), "")
	if err != nil {
		releaseLock(lock)
		return nil, fmt.Errorf("load detector pack: %w", err)
	}
	for _, skipped := range packResult.Skipped {
		logger.Warn("detector pattern skipped", "pattern", skipped.Pattern, "reason", skipped.Reason)
	}
	packs := pack.NewHolder(packResult.Pack)

	c := cache.New(1000)
	b := bus.New(256)

	rpcCtx := rpc.NewContext(c, configMgr)
	rpcCtx.Runner.Metrics = rpcCtx.Metrics

	escalation := detect.NewEscalationDetector(detect.DefaultEscalationConfig(), nil)
	rpcCtx.Escalations = escalation

	agentClient := agentstatus.New(rpcCtx.Runner, agentstatus.DefaultConfig())

	muxConfig := collect.DefaultMuxConfig()
	muxCollector := collect.NewMuxCollector(rpcCtx.Runner, b, c, muxConfig)

	agentConfig := collect.DefaultAgentStatusConfig()
	agentCollector := collect.NewAgentStatusCollector(agentClient, b, c, agentConfig)
	sessionUIDByName, paneUIDByKey := agentCollector.IdentityMaps()

	detectConfig := collect.DefaultDetectConfig()
	detectCollector := collect.NewDetectCollector(agentClient, b, c, packs, escalation, sessionUIDByName, paneUIDByKey, detectConfig)

	pollInterval := time.Duration(cfg.Polling.SnapshotIntervalMS) * time.Millisecond

	app := &App{
		Logger:       logger,
		Config:       configMgr,
		Cache:        c,
		Bus:          b,
		Packs:        packs,
		Dispatcher:   rpc.NewDispatcher(),
		RPCContext:   rpcCtx,
		mux:          muxCollector,
		agents:       agentCollector,
		detect:       detectCollector,
		pollInterval: pollInterval,
		lock:         lock,
	}

	if dir := packConfigDir(configMgr); dir != "" {
		stop, watchErr := packs.Watch(dir+"/detectors.toml", "", logger)
		if watchErr == nil {
			app.stopPackWatch = stop
		} else {
			logger.Warn("detector pack hot-reload disabled", "error", watchErr)
		}
	}

	adminToken := readAdminToken(cfg.Security.AdminTokenPath, logger)

	app.pipeServer = pipe.NewServer(opts.PipePath, app.Dispatcher, app.RPCContext, b)

	if opts.WSPort != 0 {
		wsCfg := ws.Config{Port: opts.WSPort, Auth: authFor(adminToken)}
		app.wsServer = ws.NewServer(wsCfg, app.Dispatcher, app.RPCContext, b)
	}
	if opts.HTTPPort != 0 {
		httpCfg := httptransport.Config{Port: opts.HTTPPort, Auth: authFor(adminToken)}
		app.httpServer = httptransport.NewServer(httpCfg, app.Dispatcher, app.RPCContext)
	}

	return app, nil
}

// Start launches every configured transport and the collector poll loops.
// It returns once all listeners are up; background work continues until
// ctx is cancelled or Shutdown is called.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.pipeServer.Start(); err != nil {
		cancel()
		return fmt.Errorf("start pipe transport: %w", err)
	}
	a.Logger.Info("pipe transport listening", "path", a.pipeServer.Path())

	if a.wsServer != nil {
		if err := a.wsServer.Start(); err != nil {
			cancel()
			return fmt.Errorf("start ws transport: %w", err)
		}
		a.Logger.Info("ws transport listening", "url", a.wsServer.URL())
	}
	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			cancel()
			return fmt.Errorf("start http transport: %w", err)
		}
		a.Logger.Info("http transport listening", "addr", a.httpServer.Addr())
	}

	a.startPollLoops(runCtx)
	return nil
}

// startPollLoops runs the mux, agent-status, and detect collectors each on
// their own panic-recovering goroutine: mux and detect on a fixed interval,
// agent-status on the adaptive interval its collector computes for itself.
func (a *App) startPollLoops(ctx context.Context) {
	isShutdown := func() bool { return ctx.Err() != nil }

	workerutil.RunWithPanicRecovery(ctx, "mux-poll", &a.wg, func(ctx context.Context) {
		a.runFixedIntervalLoop(ctx, a.pollInterval, func(ctx context.Context) {
			if _, err := a.mux.PollOnce(ctx); err != nil {
				a.Logger.Warn("mux poll failed", "error", err)
			}
		})
	}, workerutil.RecoveryOptions{IsShutdown: isShutdown, OnPanic: a.logWorkerPanic, OnFatal: a.logWorkerFatal})

	workerutil.RunWithPanicRecovery(ctx, "detect-poll", &a.wg, func(ctx context.Context) {
		a.runFixedIntervalLoop(ctx, a.pollInterval, func(ctx context.Context) {
			if _, err := a.detect.PollOnce(ctx); err != nil {
				a.Logger.Warn("detect poll failed", "error", err)
			}
		})
	}, workerutil.RecoveryOptions{IsShutdown: isShutdown, OnPanic: a.logWorkerPanic, OnFatal: a.logWorkerFatal})

	workerutil.RunWithPanicRecovery(ctx, "agent-status-poll", &a.wg, func(ctx context.Context) {
		a.runAdaptiveLoop(ctx)
	}, workerutil.RecoveryOptions{IsShutdown: isShutdown, OnPanic: a.logWorkerPanic, OnFatal: a.logWorkerFatal})
}

func (a *App) runFixedIntervalLoop(ctx context.Context, interval time.Duration, poll func(ctx context.Context)) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			poll(ctx)
		}
	}
}

// runAdaptiveLoop re-derives its own wait from the agent-status
// collector's NextInterval each cycle instead of a fixed ticker, so it
// speeds up while sessions are active and backs off once they go idle.
func (a *App) runAdaptiveLoop(ctx context.Context) {
	interval := a.pollInterval
	for {
		result, err := a.agents.PollOnce(ctx)
		if err != nil {
			a.Logger.Warn("agent-status poll failed", "error", err)
		} else if result.NextInterval > 0 {
			interval = result.NextInterval
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (a *App) logWorkerPanic(worker string, attempt int) {
	a.Logger.Error("worker recovered from panic, restarting", "worker", worker, "attempt", attempt)
}

func (a *App) logWorkerFatal(worker string, maxRetries int) {
	a.Logger.Error("worker exceeded max retries, giving up", "worker", worker, "maxRetries", maxRetries)
}

// Shutdown stops every transport and background loop, waiting up to
// timeout for in-flight work to finish, and releases the single-instance
// lock. Safe to call once after a successful Start.
func (a *App) Shutdown(timeout time.Duration) error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.stopPackWatch != nil {
		a.stopPackWatch()
	}

	var errs []error
	if a.pipeServer != nil {
		if err := a.pipeServer.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.wsServer != nil {
		if err := a.wsServer.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.httpServer != nil {
		if err := a.httpServer.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		a.Logger.Warn("poll loops did not stop within shutdown timeout")
	}

	releaseLock(a.lock)
	return errors.Join(errs...)
}

func releaseLock(lock *singleinstance.Lock) {
	if lock != nil {
		_ = lock.Release()
	}
}

func packConfigDir(mgr *config.Manager) string {
	path := mgr.ConfigPath()
	if path == "" {
		return ""
	}
	return filepath.Dir(path)
}

// readAdminToken reads the admin token from path, trimmed of surrounding
// whitespace. An empty path or a read failure yields "" (no admin access),
// logged rather than treated as fatal: the daemon still runs, just without
// a privileged caller able to authenticate.
func readAdminToken(path string, logger *slog.Logger) string {
	if path == "" {
		return ""
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("unable to read admin token file", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func authFor(adminToken string) transport.TokenAuth {
	return transport.TokenAuth{AdminToken: adminToken}
}
