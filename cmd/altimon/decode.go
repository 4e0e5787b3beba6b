package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/srg/altimon/internal/dashboard"
	"github.com/srg/altimon/internal/telemetry"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// decodeCmd represents the decode command
var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "Decode captured telemetry frames",
	Long: `Decodes telemetry frames, one per line, from a file or standard input and
prints each result with the indicator state after the frame. Frames are fed
through the same decoder as a live session, so change and motion values
carry over between lines.

Examples:
  # Decode a capture
  altimon decode capture.txt

  # Decode a single frame
  echo "Altitude: 10.50 m, Change: 0.30 cm, IMU Motion: UP" | altimon decode

  # Machine-readable output
  altimon decode capture.txt --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

var (
	decodeFormat      string
	decodeSkipIgnored bool
)

func init() {
	decodeCmd.Flags().StringVarP(&decodeFormat, "format", "f", "table", "Output format (table, json)")
	decodeCmd.Flags().BoolVar(&decodeSkipIgnored, "skip-ignored", false, "Omit frames that did not decode")
}

// decodedLine is one decoded input line.
type decodedLine struct {
	line   int
	frame  string
	update telemetry.Update
}

func runDecode(cmd *cobra.Command, args []string) error {
	if decodeFormat != "table" && decodeFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of %v", decodeFormat, []string{"table", "json"})
	}

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	lines, err := decodeLines(in)
	if err != nil {
		return err
	}
	if decodeSkipIgnored {
		kept := lines[:0]
		for _, l := range lines {
			if l.update.Result.Ok() {
				kept = append(kept, l)
			}
		}
		lines = kept
	}

	if decodeFormat == "json" {
		return displayDecodedJSON(cmd.OutOrStdout(), lines)
	}
	return displayDecodedTable(cmd.OutOrStdout(), lines)
}

// decodeLines feeds every non-empty line through one decoder.
func decodeLines(r io.Reader) ([]decodedLine, error) {
	decoder := telemetry.NewDecoder()
	var out []decodedLine

	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++
		frame := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(frame) == "" {
			continue
		}
		out = append(out, decodedLine{line: n, frame: frame, update: decoder.Apply(frame)})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}
	return out, nil
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}

func displayDecodedTable(out io.Writer, lines []decodedLine) error {
	if len(lines) == 0 {
		fmt.Fprintln(out, "No frames")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LINE\tFRAME\tRESULT\tALTITUDE\tCHANGE\tMOTION\tLIGHTS")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, l := range lines {
		frame := truncate(l.frame, 40)

		res := l.update.Result
		var result string
		if res.Ok() {
			result = fmt.Sprintf("%s/%s", res.Variant, res.Sample.Kind)
		} else {
			result = fmt.Sprintf("%s (%s)", res.Outcome, res.Reason)
		}

		s := res.Sample
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.line, frame, result,
			dashboard.FormatAltitude(s.Altitude),
			dashboard.FormatChange(s.Change),
			dashboard.FormatMotion(s.Motion),
			lightsText(l.update.Indicators))
	}

	return w.Flush()
}

// lightsText renders lit indicators as "rising,drift", or "-" when all are off.
func lightsText(ind telemetry.Indicators) string {
	var lit []string
	if ind.Rising {
		lit = append(lit, "rising")
	}
	if ind.Falling {
		lit = append(lit, "falling")
	}
	if ind.Drift {
		lit = append(lit, "drift")
	}
	if len(lit) == 0 {
		return "-"
	}
	return strings.Join(lit, ",")
}

func displayDecodedJSON(out io.Writer, lines []decodedLine) error {
	records := make([]*orderedmap.OrderedMap[string, any], 0, len(lines))
	for _, l := range lines {
		res := l.update.Result
		rec := orderedmap.New[string, any]()
		rec.Set("line", l.line)
		rec.Set("frame", l.frame)
		rec.Set("outcome", res.Outcome.String())
		rec.Set("variant", res.Variant.String())
		if res.Ok() {
			rec.Set("kind", res.Sample.Kind.String())
			if v, ok := res.Sample.AltitudeMeters(); ok {
				rec.Set("altitude_m", v)
			}
			if v, ok := res.Sample.ChangeCm(); ok {
				rec.Set("change_cm", v)
			}
			if v, ok := res.Sample.MotionLabel(); ok {
				rec.Set("motion", v)
			}
		} else {
			rec.Set("reason", res.Reason)
		}
		rec.Set("indicators", l.update.Indicators)
		records = append(records, rec)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}
