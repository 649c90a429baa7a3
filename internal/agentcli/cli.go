package agentcli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"punchclock.service/internal/agent/connectivity"
	"punchclock.service/internal/agent/export"
	"punchclock.service/internal/agent/kiosk"
	"punchclock.service/internal/agent/remote"
	"punchclock.service/internal/agent/scheduler"
	"punchclock.service/internal/agent/store"
	"punchclock.service/internal/agent/syncer"
	"punchclock.service/internal/config"
	"punchclock.service/pkg/logger"
	"punchclock.service/pkg/telemetry"
)

var ErrUsage = errors.New("usage")

func Execute(args []string) error {
	if len(args) < 1 {
		return usageError()
	}

	switch args[0] {
	case "run":
		return runCommand(args[1:])
	case "export":
		return exportCommand(args[1:])
	case "pending":
		return pendingCommand(args[1:], os.Stdout)
	default:
		return usageError()
	}
}

func usageError() error {
	return fmt.Errorf("%w: punch-agent <run|export|pending> [...]", ErrUsage)
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "punch-agent run                  start the kiosk API, sync runner and connectivity probe")
	fmt.Fprintln(w, "punch-agent export -out FILE     write the local queue to an .xlsx file")
	fmt.Fprintln(w, "punch-agent pending              print the number of punches waiting for sync")
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	listen := fs.String("listen", "", "kiosk API address (overrides AGENT_LISTEN_ADDR)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return run(ctx, cfg)
}

func run(ctx context.Context, cfg config.Config) error {
	logger.Setup(cfg.IsLocalDev)

	shutdownTracer, err := telemetry.InitTracer("punch-agent", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		_ = shutdownTracer(context.Background())
	}()

	st, err := openStore(cfg.AgentConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	// Background loops write to the store, so they are stopped and joined
	// before it closes.
	ctx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer stop()

	monitor := connectivity.NewMonitor(false)
	client := remote.NewHTTPClient(cfg.ServerURL, cfg.DeviceID, cfg.JWTSecret)

	runner := syncer.NewRunner(st, client, monitor)
	if cfg.LeaseTTL > 0 {
		runner.LeaseTTL = cfg.LeaseTTL
	}
	prober := connectivity.NewProber(monitor, client, cfg.ProbeInterval)

	syncTask, err := scheduler.NewScheduledTask("sync", scheduler.Every(cfg.SyncInterval), scheduler.SyncJob(runner))
	if err != nil {
		return err
	}
	defer syncTask.Cancel()

	if cfg.RetainSynced && cfg.RetentionDays > 0 {
		retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
		purgeTask, err := scheduler.NewScheduledTask("purge", "@daily", scheduler.PurgeJob(ctx, st, retention, nil))
		if err != nil {
			return err
		}
		defer purgeTask.Cancel()
	}

	wg.Go(func() { runner.Start(ctx) })
	wg.Go(func() { prober.Run(ctx) })

	srv := kiosk.NewServer(st, runner, monitor, cfg.Location())
	httpServer := kiosk.NewHTTPServer(cfg.ListenAddr, otelhttp.NewHandler(srv, "kiosk"))

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.ListenAddr).
			Str("device_id", cfg.DeviceID).
			Str("server_url", cfg.ServerURL).
			Msg("Punch agent starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("kiosk listener: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down punch agent...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("kiosk shutdown: %w", err)
	}
	return nil
}

func exportCommand(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("out", "punches.xlsx", "output .xlsx path")
	pendingOnly := fs.Bool("pending-only", false, "export only punches not yet synced")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg.AgentConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	list := st.ListAll
	if *pendingOnly {
		list = st.ListUnsynced
	}
	punches, err := list(ctx)
	if err != nil {
		return err
	}

	if err := ensureParentDirs(*out); err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create %s: %w", *out, err)
	}
	if err := export.WriteXLSX(f, punches, cfg.Location()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %d punches to %s\n", len(punches), *out)
	return nil
}

func pendingCommand(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("pending", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg.AgentConfig)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.PendingCount(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintln(w, n)
	return nil
}

func openStore(cfg config.AgentConfig) (*store.Store, error) {
	if err := ensureParentDirs(cfg.DBPath); err != nil {
		return nil, err
	}
	return store.Open(cfg.DBPath, store.Options{
		MaxPending:   cfg.MaxPending,
		RetainSynced: cfg.RetainSynced,
	})
}

func ensureParentDirs(paths ...string) error {
	for _, p := range paths {
		dir := filepath.Dir(p)
		if dir == "." || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
