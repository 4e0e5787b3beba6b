package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/srg/altimon/internal/activitylog"
	"github.com/srg/altimon/internal/history"
	"github.com/srg/altimon/internal/session"
	"github.com/srg/altimon/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

var t0 = time.Date(2026, 3, 1, 14, 5, 9, 0, time.UTC)

func sampleSnapshot() session.Snapshot {
	return session.Snapshot{
		SessionID:   "sid",
		Address:     "AA:BB:CC:DD:EE:FF",
		Connected:   true,
		ConnectedAt: t0,
		At:          t0.Add(time.Minute),
		Readout:     session.Readout{Altitude: f64(123.456), Change: f64(-2), Motion: str("DRIFT")},
		Indicators:  telemetry.Indicators{Falling: true, Drift: true},
		History: []history.Point{
			{At: t0, Altitude: 10},
			{At: t0.Add(time.Second), Altitude: 12},
			{At: t0.Add(2 * time.Second), Altitude: 11},
		},
		Log: []activitylog.Entry{
			{At: t0, Message: "Data: A:123.456"},
		},
		Counters: session.Counters{Frames: 1, Decoded: 1},
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "123.46 m", FormatAltitude(f64(123.456)))
	assert.Equal(t, "-2.00 cm", FormatChange(f64(-2)))
	assert.Equal(t, "0.30 cm", FormatChange(f64(0.3)))
	assert.Equal(t, Placeholder, FormatAltitude(nil))
	assert.Equal(t, Placeholder, FormatChange(nil))
	assert.Equal(t, Placeholder, FormatMotion(nil))
	assert.Equal(t, Placeholder, FormatMotion(str("")))
	assert.Equal(t, "UP", FormatMotion(str("UP")))
	assert.Equal(t, "14:05:09", FormatTime(t0))
	assert.Equal(t, Placeholder, FormatTime(time.Time{}))
}

func TestSparkline(t *testing.T) {
	pts := []history.Point{{Altitude: 0}, {Altitude: 5}, {Altitude: 10}}
	assert.Equal(t, "▁▄█", Sparkline(pts, 10))

	// only the newest width points are drawn
	assert.Equal(t, 2, utf8.RuneCountInString(Sparkline(pts, 2)))

	flat := []history.Point{{Altitude: 3}, {Altitude: 3}}
	assert.Equal(t, "▁▁", Sparkline(flat, 10))

	assert.Empty(t, Sparkline(nil, 10))
	assert.Empty(t, Sparkline(pts, 0))
}

func TestPlain_PrintsNewEntriesAndReadouts(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlain(&buf, true)

	snap := sampleSnapshot()
	p.Render(snap)

	out := buf.String()
	assert.Contains(t, out, "14:05:09 Data: A:123.456\n")
	assert.Contains(t, out, "altitude 123.46 m | change -2.00 cm | motion DRIFT | - G B")

	// Same snapshot again prints nothing new.
	buf.Reset()
	p.Render(snap)
	assert.Empty(t, buf.String())

	// A new entry without a new decoded frame prints only the entry.
	snap.Log = append(snap.Log, activitylog.Entry{At: t0.Add(time.Second), Message: "Data: junk"})
	snap.Counters.Frames++
	snap.Counters.Ignored++
	p.Render(snap)
	assert.Equal(t, "14:05:10 Data: junk\n", buf.String())
}

func TestPlain_ClearedLogPrintsFromStart(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlain(&buf, true)
	snap := sampleSnapshot()
	p.Render(snap)

	buf.Reset()
	snap.Log = []activitylog.Entry{{At: t0.Add(time.Minute), Message: activitylog.ClearedMessage}}
	p.Render(snap)

	assert.Equal(t, "14:06:09 Log cleared.\n", buf.String())
}

func TestPlain_DisconnectPrintsDarkLights(t *testing.T) {
	var buf bytes.Buffer
	p := NewPlain(&buf, true)
	snap := sampleSnapshot()
	p.Render(snap)

	buf.Reset()
	snap.Connected = false
	snap.Indicators = telemetry.Indicators{}
	snap.Log = append(snap.Log, activitylog.Entry{At: t0.Add(time.Minute), Message: "Device disconnected.", IsError: true})
	p.Render(snap)

	out := buf.String()
	assert.Contains(t, out, "14:06:09 Device disconnected.\n")
	assert.Contains(t, out, "| - - -")
}

func TestLatestAndFanout(t *testing.T) {
	var latest Latest
	_, ok := latest.Load()
	assert.False(t, ok)

	var mu sync.Mutex
	var seen []string
	rec := session.DisplayFunc(func(s session.Snapshot) {
		mu.Lock()
		seen = append(seen, s.SessionID)
		mu.Unlock()
	})

	fan := Fanout{&latest, nil, rec}
	fan.Render(sampleSnapshot())

	got, ok := latest.Load()
	require.True(t, ok)
	assert.Equal(t, "sid", got.SessionID)
	assert.Equal(t, []string{"sid"}, seen)
}

func TestRenderChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderChart(&buf, sampleSnapshot()))

	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "Altitude (m)")
	assert.Contains(t, html, "14:05:10")
}

func TestHandlers(t *testing.T) {
	var latest Latest
	mux := NewMux(&latest, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/state", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	latest.Render(sampleSnapshot())

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/state", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", body["address"])
	assert.Equal(t, true, body["connected"])
	ind, ok := body["indicators"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, ind["falling"])

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html"))
}

// fakeCommander records TUI requests.
type fakeCommander struct {
	sent    []string
	cleared int
}

func (f *fakeCommander) SendCommand(_ context.Context, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeCommander) ClearLog(context.Context) error {
	f.cleared++
	return nil
}

func runCmd(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	require.NotNil(t, cmd)
	msg := cmd()
	_, _ = m.Update(msg)
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_SnapshotAndView(t *testing.T) {
	updates := make(chan session.Snapshot, 1)
	m := NewModel(context.Background(), &fakeCommander{}, updates)

	assert.Contains(t, m.View(), "Connecting")

	updates <- sampleSnapshot()
	runCmd(t, m, m.Init())

	_, ok := m.Snapshot()
	require.True(t, ok)

	view := m.View()
	assert.Contains(t, view, "Connected")
	assert.Contains(t, view, "123.46 m")
	assert.Contains(t, view, "-2.00 cm")
	assert.Contains(t, view, "DRIFT")
	assert.Contains(t, view, "Data: A:123.456")
}

func TestModel_Keys(t *testing.T) {
	cmdr := &fakeCommander{}
	m := NewModel(context.Background(), cmdr, nil)

	_, cmd := m.Update(keyRunes("c"))
	runCmd(t, m, cmd)
	assert.Equal(t, 1, cmdr.cleared)

	_, _ = m.Update(keyRunes("i"))
	require.True(t, m.input.Focused())

	for _, r := range "CAL" {
		_, _ = m.Update(keyRunes(string(r)))
	}
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	runCmd(t, m, cmd)
	assert.Equal(t, []string{"CAL"}, cmdr.sent)
	assert.Empty(t, m.input.Value())

	// While typing, 'q' is text, not quit.
	_, _ = m.Update(keyRunes("q"))
	assert.Equal(t, "q", m.input.Value())

	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.input.Focused())

	_, cmd = m.Update(keyRunes("q"))
	require.NotNil(t, cmd)
	_, isQuit := cmd().(tea.QuitMsg)
	assert.True(t, isQuit)
}

func TestTUI_RenderNeverBlocks(t *testing.T) {
	tui := NewTUI(context.Background(), &fakeCommander{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s := sampleSnapshot()
			s.Counters.Frames = int64(i)
			tui.Render(s)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Render MUST NOT block when the program is not consuming")
	}
	got := <-tui.updates
	assert.Equal(t, int64(9), got.Counters.Frames, "only the newest snapshot is kept")
}
