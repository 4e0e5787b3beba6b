package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/srg/altimon/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Nordic UART peripherals",
	Long: `Scan for BLE peripherals advertising the Nordic UART service and list
their names, addresses and signal strength. Use --all to list every
advertising device.`,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanAll         bool
	scanServices    []string
	scanAllowList   []string
	scanBlockList   []string
	scanNoDuplicate bool
	scanVerbose     bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVarP(&scanAll, "all", "a", false, "List all devices, not only Nordic UART peripherals")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", true, "Filter duplicate advertisements")
	scanCmd.Flags().BoolVar(&scanVerbose, "verbose", false, "Enable debug logging")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup(cmd, "verbose")
	if err != nil {
		return err
	}

	format := cfg.OutputFormat
	if cmd.Flags().Changed("format") {
		format = scanFormat
	}
	validFormats := []string{"table", "json"}
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of %v", format, validFormats)
	}

	duration := cfg.ScanTimeout
	if cmd.Flags().Changed("duration") {
		duration = scanDuration
	}
	if duration <= 0 {
		return fmt.Errorf("invalid duration %s: must be > 0", duration)
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := withInterrupt(cmd.Context(), cmd, "cancelling scan")
	defer cancel()

	opts := &scanner.ScanOptions{
		Duration:        duration,
		DuplicateFilter: scanNoDuplicate,
		UARTOnly:        !scanAll,
		Services:        scanServices,
		AllowList:       scanAllowList,
		BlockList:       scanBlockList,
	}

	var progress *ProgressPrinter
	if format == "table" {
		progress = NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for devices", "Scanning", duration, "Processing results")
		progress.Start()
	}

	var callback scanner.ProgressCallback
	if progress != nil {
		callback = progress.Callback()
	}
	found, err := scanner.NewScanner(logger).Scan(ctx, opts, callback)
	if progress != nil {
		progress.Stop()
	}
	if err != nil {
		logger.WithError(err).Error("scan failed")
		return err
	}
	if ctx.Err() != nil {
		logger.Debug("Scan interrupted, printing partial results")
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		return displayPeripheralsJSON(out, found)
	}
	return displayPeripheralsTable(out, found, time.Now())
}

func displayPeripheralsTable(out io.Writer, peripherals []scanner.Peripheral, now time.Time) error {
	if len(peripherals) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tUART\tSERVICES\tLAST SEEN")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, p := range peripherals {
		name := p.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := strings.Join(p.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		uart := "no"
		if p.UART {
			uart = "yes"
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\t%s\t%s\n",
			name, p.Address, p.RSSI, uart, services, humanize.RelTime(p.LastSeen, now, "ago", "from now"))
	}

	return w.Flush()
}

func displayPeripheralsJSON(out io.Writer, peripherals []scanner.Peripheral) error {
	if peripherals == nil {
		peripherals = []scanner.Peripheral{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(peripherals)
}
