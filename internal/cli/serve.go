package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"dayline/internal/feedsync"
	"dayline/internal/ics"
	appLog "dayline/internal/log"
	"dayline/internal/notify"
	"dayline/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		once   bool
		listen string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the vendor feed scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}
			return a.serve(cmd.Context(), once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "sync every vendor feed once and exit")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func (a *app) serve(parent context.Context, once bool) error {
	if parent == nil {
		parent = context.Background()
	}
	appLog.Info("dayline starting", "version", Version, "listen", a.cfg.Listen, "feeds", len(a.cfg.Feeds), "once", once)

	st, err := a.openStore()
	if err != nil {
		return err
	}
	fetcher := ics.NewFetcher(filepath.Join(a.cfg.CacheDir, "feeds"))
	scheduler := feedsync.NewScheduler(a.cfg, fetcher, st)

	if once {
		return scheduler.RunOnce(parent)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := notify.New(st.Path())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(st.Path()), 0o700); err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	srv := web.NewServer(a.cfg, st, a.debug)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		srv.WatchExternal(ctx, watcher.Events())
	}()
	go func() {
		defer wg.Done()
		if len(a.cfg.Feeds) > 0 {
			if err := scheduler.RunOnce(ctx); err != nil {
				appLog.Error("initial feed sync finished with errors", err)
			}
		}
		if err := scheduler.Start(ctx, a.cfg.RefreshCron); err != nil {
			appLog.Error("feed scheduler failed", err)
		}
	}()

	err = srv.Serve(ctx)
	stop()
	wg.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	appLog.Info("dayline exiting")
	return err
}
