package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"roomscan/internal/bootstrap"
	"roomscan/internal/platform/config"
	apperrors "roomscan/internal/platform/errors"
	"roomscan/internal/platform/logging"
	"roomscan/internal/ui/report"
)

const shutdownGrace = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	home       string
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{home: defaultHome()}

	root := &cobra.Command{
		Use:           "roomscan",
		Short:         "Room scanning bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.home, "home", flags.home, "state directory for the scan index, logs and plugins")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default <home>/"+config.FileName+")")

	root.AddCommand(newOpenCmd(flags))
	root.AddCommand(newSupportedCmd(flags))
	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newScansCmd(flags))
	return root
}

func defaultHome() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".roomscan")
	}
	return ".roomscan"
}

func loadConfig(flags *globalFlags) (config.Config, error) {
	return config.Load(flags.home, flags.configPath)
}

func loadApp(flags *globalFlags, mode bootstrap.Mode, errOut io.Writer) (*bootstrap.App, config.Config, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, config.Config{}, err
	}
	app, err := bootstrap.New(cfg, mode, logging.New("roomscan", cfg.LogLevel, errOut))
	if err != nil {
		return nil, config.Config{}, err
	}
	return app, cfg, nil
}

func newOpenCmd(flags *globalFlags) *cobra.Command {
	var noCoaching bool
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Run one scanning session and print its result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			// The terminal belongs to the capture view while it runs.
			logger, closer, err := logging.NewFile("roomscan", cfg.LogLevel, cfg.LogFile)
			if err != nil {
				return err
			}
			defer closer.Close()
			app, err := bootstrap.New(cfg, bootstrap.ModeTerminal, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			replies, err := app.CaptureCLI.Open(ctx, noCoaching)
			if err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				if err := app.CaptureCLI.Background(context.Background()); err != nil && !errors.Is(err, apperrors.ErrNoActiveSession) {
					logger.Warn("dismiss on signal", "error", err)
				}
			}()

			resp := <-replies
			app.WaitUI()
			if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.OK {
				return errors.New(resp.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCoaching, "no-coaching", false, "disable the scanner's coaching overlay")
	return cmd
}

func newSupportedCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "supported",
		Short: "Report whether room scanning is available",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, err := loadApp(flags, bootstrap.ModeHeadless, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()
			out, err := app.CaptureCLI.Supported(context.Background())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the command gateway over a websocket at /bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cfg, err := loadApp(flags, bootstrap.ModeHeadless, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()
			if listen == "" {
				listen = cfg.Gateway.Listen
			}

			mux := http.NewServeMux()
			app.Bridge.SetupRoutes(mux)
			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", listen, err)
			}
			srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "gateway listening on ws://%s/bridge\n", lis.Addr())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				if err := app.CaptureCLI.Background(context.Background()); err != nil && !errors.Is(err, apperrors.ErrNoActiveSession) {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "dismiss active session:", err)
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}

func newScansCmd(flags *globalFlags) *cobra.Command {
	scans := &cobra.Command{Use: "scans", Short: "Query recorded scans"}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded scans, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, err := loadApp(flags, bootstrap.ModeHeadless, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()
			items, err := app.CaptureCLI.ListScans(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no scans")
				return nil
			}
			for _, item := range items {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\twalls=%d doors=%d windows=%d objects=%d\t%s\n",
					item.ID, item.CreatedAt.Format(time.RFC3339), item.Counts.Walls, item.Counts.Doors, item.Counts.Windows, item.Counts.Objects, item.ModelPath)
			}
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum scans to list")

	var scanID string
	var raw bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show one recorded scan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, _, err := loadApp(flags, bootstrap.ModeHeadless, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()
			scan, err := app.CaptureCLI.ShowScan(context.Background(), scanID)
			if err != nil {
				return err
			}
			var out string
			if raw {
				out, err = report.Markdown(scan)
			} else {
				out, err = report.Render(scan, 0)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	showCmd.Flags().StringVar(&scanID, "id", "", "scan id")
	showCmd.Flags().BoolVar(&raw, "markdown", false, "print markdown with frontmatter instead of rendering")
	_ = showCmd.MarkFlagRequired("id")

	scans.AddCommand(listCmd, showCmd)
	return scans
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
