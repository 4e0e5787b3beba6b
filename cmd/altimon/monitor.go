package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/altimon/internal/activitylog"
	"github.com/srg/altimon/internal/dashboard"
	"github.com/srg/altimon/internal/groutine"
	"github.com/srg/altimon/internal/session"
	"golang.org/x/term"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <device-address>",
	Short: "Stream and display altimeter telemetry",
	Long: fmt.Sprintf(`Connects to an altimeter over the Nordic UART service and shows its
telemetry live: altitude, altitude change, IMU motion, the rising, falling
and drift indicators and a chart of the recent altitude history.

Examples:
  # Full-screen dashboard
  altimon monitor %s

  # Line-by-line output, e.g. when piping to a file
  altimon monitor %s --ui plain

  # Serve a browser chart next to the dashboard
  altimon monitor %s --chart-addr localhost:8080

  # USB serial link
  altimon monitor /dev/ttyACM0 --transport serial --baud 115200

Dashboard keys: i to type a command, c to clear the log, q to quit.

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

const (
	uiAuto  = "auto"
	uiTUI   = "tui"
	uiPlain = "plain"
)

var (
	monitorConnect   connectFlags
	monitorUI        string
	monitorChartAddr string
	monitorHistory   int
	monitorNoColor   bool
	monitorVerbose   bool
)

func init() {
	monitorConnect.register(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorUI, "ui", uiAuto, "Display mode (auto, tui, plain)")
	monitorCmd.Flags().StringVar(&monitorChartAddr, "chart-addr", "", "Serve the altitude chart over HTTP on this address (e.g. localhost:8080)")
	monitorCmd.Flags().IntVar(&monitorHistory, "history", 50, "Number of altitude samples kept for the chart")
	monitorCmd.Flags().BoolVar(&monitorNoColor, "no-color", false, "Disable colored output in plain mode")
	monitorCmd.Flags().BoolVar(&monitorVerbose, "verbose", false, "Enable debug logging")
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// resolveUI maps "auto" to the TUI on a terminal and to plain output otherwise.
func resolveUI(ui string, out io.Writer) string {
	if ui == uiAuto {
		if isTerminal(out) {
			return uiTUI
		}
		return uiPlain
	}
	return ui
}

func runMonitor(cmd *cobra.Command, args []string) error {
	address := args[0]

	cfg, logger, err := setup(cmd, "verbose")
	if err != nil {
		return err
	}
	monitorConnect.apply(cmd, cfg)
	if cmd.Flags().Changed("ui") {
		cfg.UI = monitorUI
	}
	if cmd.Flags().Changed("chart-addr") {
		cfg.ChartAddr = monitorChartAddr
	}
	if cmd.Flags().Changed("history") {
		cfg.HistorySize = monitorHistory
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	out := cmd.OutOrStdout()
	ui := resolveUI(cfg.UI, out)
	if ui == uiTUI && cfg.LogFile == "" {
		// The dashboard owns the terminal
		logger.SetOutput(io.Discard)
	}

	ctx, cancel := withInterrupt(cmd.Context(), cmd, "disconnecting")
	defer cancel()

	activity := activitylog.New(cfg.LogLimit, logger)

	progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Connecting to %s", address), "Connecting")
	progress.Start()
	link, err := connect(ctx, address, cfg, activity, logger)
	progress.Stop()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := link.Close(); cerr != nil {
			logger.WithError(cerr).Warn("Failed to close link")
		}
	}()

	latest := &dashboard.Latest{}
	// view is assigned before Run starts and never changes afterwards
	var view session.Display
	sess, err := session.New(link, session.Options{
		HistorySize: cfg.HistorySize,
		QueueSize:   uint32(cfg.QueueSize),
		Log:         activity,
		Logger:      logger,
		Display: session.DisplayFunc(func(s session.Snapshot) {
			dashboard.Fanout{latest, view}.Render(s)
		}),
	})
	if err != nil {
		return err
	}

	if cfg.ChartAddr != "" {
		shutdown, err := serveChart(cfg.ChartAddr, latest, activity, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	if ui == uiTUI {
		tui := dashboard.NewTUI(ctx, sess, tea.WithAltScreen(), tea.WithOutput(out))
		view = tui
		return runWithTUI(ctx, cancel, sess, tui)
	}

	view = dashboard.NewPlain(out, monitorNoColor || !isTerminal(out))
	err = sess.Run(ctx)
	logSessionEnd(logger, sess)
	return err
}

// runWithTUI runs the session next to the dashboard. Quitting the dashboard
// stops the session and the session ending closes the dashboard.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, sess *session.Session, tui *dashboard.TUI) error {
	runErr := make(chan error, 1)
	groutine.Go(ctx, "session", func(ctx context.Context) {
		runErr <- sess.Run(ctx)
		tui.Quit()
	})

	uiErr := tui.Run()
	cancel()
	err := <-runErr
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard failed: %w", uiErr)
	}
	return err
}

// serveChart starts the chart HTTP server and returns its shutdown function.
func serveChart(addr string, latest *dashboard.Latest, activity *activitylog.Log, logger *logrus.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           dashboard.NewMux(latest, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	groutine.Go(context.Background(), "chart-server", func(context.Context) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Chart server failed")
		}
	})

	activity.Addf("Chart available at http://%s/", ln.Addr())
	logger.WithField("addr", ln.Addr().String()).Info("Chart server started")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("Chart server shutdown failed")
		}
	}, nil
}

func logSessionEnd(logger *logrus.Logger, sess *session.Session) {
	m := sess.QueueMetrics()
	logger.WithFields(logrus.Fields{
		"session":     sess.ID(),
		"enqueued":    m.Enqueued,
		"overwritten": m.Overwritten,
	}).Info("Session ended")
}
