package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/sirupsen/logrus"
	"github.com/srg/altimon/internal/session"
)

// RenderChart writes the altitude history of s as a standalone HTML line chart.
func RenderChart(w io.Writer, s session.Snapshot) error {
	labels := make([]string, 0, len(s.History))
	data := make([]opts.LineData, 0, len(s.History))
	for _, p := range s.History {
		labels = append(labels, FormatTime(p.At))
		data = append(data, opts.LineData{Value: p.Altitude})
	}

	state := "disconnected"
	if s.Connected {
		state = "connected"
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Altitude", Width: "100%", Height: "480px"}),
		charts.WithAnimation(false),
		charts.WithTitleOpts(opts.Title{
			Title:    "Altitude (m)",
			Subtitle: fmt.Sprintf("%s %s readings=%d", s.Address, state, len(data)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Altitude (m)", Scale: opts.Bool(true)}),
	)
	line.SetXAxis(labels).
		AddSeries("altitude", data,
			charts.WithAreaStyleOpts(opts.AreaStyle{}),
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		)

	return line.Render(w)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ChartHandler serves the latest snapshot as an HTML chart.
func ChartHandler(latest *Latest, logger *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := latest.Load()
		if !ok {
			writeJSONError(w, http.StatusServiceUnavailable, "no telemetry yet")
			return
		}

		var buf bytes.Buffer
		if err := RenderChart(&buf, snap); err != nil {
			if logger != nil {
				logger.WithField("error", err).Error("Failed to render chart")
			}
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}
}

// StateHandler serves the latest snapshot as JSON.
func StateHandler(latest *Latest) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := latest.Load()
		if !ok {
			writeJSONError(w, http.StatusServiceUnavailable, "no telemetry yet")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}
}

// NewMux routes "/" to the chart and "/state" to the JSON snapshot.
func NewMux(latest *Latest, logger *logrus.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", ChartHandler(latest, logger))
	mux.HandleFunc("/state", StateHandler(latest))
	return mux
}
