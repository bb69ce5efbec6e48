package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"calboard/internal/capture"
	"calboard/internal/config"
	"calboard/internal/ics"
	appLog "calboard/internal/log"
	"calboard/internal/model"
	"calboard/internal/state"
	calsync "calboard/internal/sync"
	"calboard/internal/tui"
	"calboard/internal/web"
)

// session is the state shared by the surfaces of one process.
type session struct {
	conf   *config.Config
	store  *state.Store
	syncer *calsync.Syncer
}

func newSession(conf *config.Config) *session {
	loc := conf.Location()
	store := state.New(time.Now().In(loc))
	if mode, err := model.ParseViewMode(conf.DefaultView); err == nil {
		_ = store.SetViewMode(mode)
	}
	return &session{
		conf:   conf,
		store:  store,
		syncer: calsync.New(conf, store),
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and calendar page, refreshing subscriptions on schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			appLog.Info("calboard starting", "version", version, "mode", "serve")
			s := newSession(conf)
			if err := s.syncer.Start(ctx); err != nil {
				return err
			}
			defer s.syncer.Stop()

			srv := web.NewServer(conf, s.store, web.WithRefresher(s.syncer))
			return srv.Serve(ctx)
		},
	}
}

func newTUICmd() *cobra.Command {
	var (
		withHTTP bool
		logFile  string
	)
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal calendar",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			// The terminal is owned by the UI; keep log lines out of it.
			closeLog, err := appLog.ToFile(logFile)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer closeLog()

			ctx, cancel := signalContext()
			defer cancel()

			s := newSession(conf)
			if err := s.syncer.Schedule(ctx); err != nil {
				return err
			}
			defer s.syncer.Stop()
			go func() {
				if _, err := s.syncer.Refresh(ctx); err != nil {
					appLog.Error("initial refresh failed", err)
				}
			}()

			if withHTTP {
				srv := web.NewServer(conf, s.store, web.WithRefresher(s.syncer))
				go func() {
					if err := srv.Serve(ctx); err != nil {
						appLog.Error("HTTP server failed", err)
					}
				}()
			}

			app := tui.New(s.store, conf.Location(), tui.WithRefresher(s.syncer))
			return tui.Run(ctx, app)
		},
	}
	cmd.Flags().BoolVar(&withHTTP, "http", false, "Also serve the HTTP API on the listen address")
	cmd.Flags().StringVar(&logFile, "log-file", "calboard.log", "Where to write logs while the UI is open")
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	var (
		out    string
		view   string
		date   string
		width  int
		height int
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render the calendar page to a PNG with headless Chromium and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			s := newSession(conf)
			if _, err := s.syncer.Refresh(ctx); err != nil {
				appLog.Error("refresh before snapshot incomplete", err)
			}

			srvCtx, stopServer := context.WithCancel(ctx)
			defer stopServer()
			srv := web.NewServer(conf, s.store)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Serve(srvCtx) }()

			base := "http://" + conf.Listen
			if err := waitHealthy(ctx, base+"/health"); err != nil {
				return err
			}

			q := url.Values{}
			if view != "" {
				q.Set("view", view)
			}
			if date != "" {
				q.Set("date", date)
			}
			opts := capture.CaptureOptions{
				URL:        base + "/calendar?" + q.Encode(),
				OutputPath: out,
				Width:      width,
				Height:     height,
			}
			if conf.BasicAuth != nil {
				opts.Username = conf.BasicAuth.Username
				opts.Password = conf.BasicAuth.Password
			}
			if err := capture.CaptureCalendarPNG(ctx, opts); err != nil {
				return err
			}

			stopServer()
			return <-errCh
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "calboard.png", "Output PNG path")
	cmd.Flags().StringVar(&view, "view", "", "month or week (defaults to the configured view)")
	cmd.Flags().StringVar(&date, "date", "", "Date to show (defaults to today)")
	cmd.Flags().IntVar(&width, "width", capture.DefaultWidth, "Viewport width in pixels")
	cmd.Flags().IntVar(&height, "height", capture.DefaultHeight, "Viewport height in pixels")
	return cmd
}

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Fetch subscriptions and write them as a single .ics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			s := newSession(conf)
			res, err := s.syncer.Refresh(ctx)
			if err != nil {
				appLog.Error("export: one or more sources failed", err, "failed", res.Failed)
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			_, err = w.Write(ics.Export(s.store.Events(), "calboard", time.Now()))
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file, - for stdout")
	return cmd
}

// waitHealthy polls healthURL until it answers 200 or ctx ends.
func waitHealthy(ctx context.Context, healthURL string) error {
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return errors.New("HTTP server did not become healthy")
}
