package analytics

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/readtrack/clock/clocktest"
	"github.com/use-agent/readtrack/webhook"
)

func TestEmitter_FillsDefaults(t *testing.T) {
	rec := NewRecorder(nil)
	em := NewEmitter(rec, "My post", false, nil)

	em.Emit(EventStartReading, Fields{MetricName: MetricTimeToScroll, MetricValue: 4})

	events := rec.Events()
	require.Len(t, events, 1)
	f := events[0].Fields
	assert.Equal(t, EventStartReading, events[0].Name)
	assert.Equal(t, Category, f.Category)
	assert.Equal(t, EventStartReading, f.Action)
	assert.Equal(t, "My post", f.Label)
	assert.Equal(t, MetricTimeToScroll, f.MetricName)
	assert.Equal(t, 4, f.MetricValue)
}

func TestEmitter_KeepsExplicitFields(t *testing.T) {
	rec := NewRecorder(nil)
	em := NewEmitter(rec, "title", false, nil)

	dims := map[string]string{DimensionReadingBehaviour: BehaviourReader}
	em.Emit(EventContentRead, Fields{Label: "custom", NonInteraction: true, Dimensions: dims})
	dims[DimensionReadingBehaviour] = "mutated"

	f := rec.Events()[0].Fields
	assert.Equal(t, "custom", f.Label)
	assert.True(t, f.NonInteraction)
	assert.Equal(t, BehaviourReader, f.Dimensions[DimensionReadingBehaviour])
}

func TestEmitter_NoTracker(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	NewEmitter(nil, "t", false, logger).Emit(EventArticleLoaded, Fields{})
	assert.Empty(t, buf.String())

	NewEmitter(nil, "t", true, logger).Emit(EventArticleLoaded, Fields{})
	assert.Contains(t, buf.String(), "no tracker configured")
}

func TestEmitter_NilIsNoop(t *testing.T) {
	var em *Emitter
	assert.NotPanics(t, func() { em.Emit(EventPageBottom, Fields{}) })
	assert.False(t, em.Debug())
}

func TestEmitter_RecoversTrackerPanic(t *testing.T) {
	boom := TrackerFunc(func(string, Fields) { panic("tracker exploded") })
	em := NewEmitter(boom, "t", false, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.NotPanics(t, func() { em.Emit(EventArticleLoaded, Fields{}) })
}

func TestEmitter_HoldQueuesUntilFlush(t *testing.T) {
	rec := NewRecorder(nil)
	em := NewEmitter(rec, "Pasta night", false, nil)

	held, flush := em.Hold()
	held.Emit(EventContentGuessed, Fields{NonInteraction: true})
	assert.Empty(t, rec.Names())

	em.Emit(EventArticleLoaded, Fields{NonInteraction: true})
	flush()
	flush()

	events := rec.Events()
	assert.Equal(t, []string{EventArticleLoaded, EventContentGuessed}, rec.Names())
	assert.Equal(t, Fields{Category: Category, Action: EventContentGuessed, Label: "Pasta night", NonInteraction: true}, events[1].Fields)

	var none *Emitter
	held, flush = none.Hold()
	assert.NotPanics(t, func() {
		held.Emit(EventContentGuessed, Fields{})
		flush()
	})
}

func TestFields_ZeroMetricIsSerialized(t *testing.T) {
	data, err := json.Marshal(Fields{Category: Category, Action: EventPageBottom, MetricName: MetricTotalTime})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"metric_value":0`)
}

func TestRegistry_Resolve(t *testing.T) {
	reg := NewRegistry(nil)

	tr, ok := reg.Resolve("")
	require.True(t, ok)
	assert.IsType(t, &LogTracker{}, tr)

	_, ok = reg.Resolve("ga")
	assert.False(t, ok)

	rec := NewRecorder(nil)
	reg.Register("ga", rec)
	tr, ok = reg.Resolve("ga")
	require.True(t, ok)
	assert.Same(t, rec, tr)
	assert.Equal(t, []string{"ga", "log"}, reg.Names())

	var nilReg *Registry
	_, ok = nilReg.Resolve("log")
	assert.False(t, ok)
}

func TestRecorder_StampsWithClock(t *testing.T) {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clk := clocktest.NewFake(start)
	rec := NewRecorder(clk)

	rec.Track(EventArticleLoaded, Fields{})
	clk.Advance(3 * time.Second)
	rec.Track(EventStartReading, Fields{})

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, start, events[0].At)
	assert.Equal(t, start.Add(3*time.Second), events[1].At)
	assert.Equal(t, []string{EventArticleLoaded, EventStartReading}, rec.Names())
}

func TestMulti_FansOut(t *testing.T) {
	a, b := NewRecorder(nil), NewRecorder(nil)
	Multi{a, nil, b}.Track(EventPageBottom, Fields{Action: EventPageBottom})

	assert.Equal(t, []string{EventPageBottom}, a.Names())
	assert.Equal(t, []string{EventPageBottom}, b.Names())
}

func TestMulti_PanicDoesNotStopFanOut(t *testing.T) {
	boom := TrackerFunc(func(string, Fields) { panic("tracker exploded") })
	a, b := NewRecorder(nil), NewRecorder(nil)

	assert.NotPanics(t, func() { Multi{a, boom, b}.Track(EventPageBottom, Fields{}) })
	assert.Equal(t, []string{EventPageBottom}, a.Names())
	assert.Equal(t, []string{EventPageBottom}, b.Names())
}

func TestLogTracker_WritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	tr := NewLogTracker(slog.New(slog.NewJSONHandler(&buf, nil)))

	tr.Track(EventContentBottom, Fields{
		Category:    Category,
		Action:      EventContentBottom,
		MetricName:  MetricTimeToContentEnd,
		MetricValue: 75,
		Dimensions:  map[string]string{DimensionReadingBehaviour: BehaviourReader},
	})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, EventContentBottom, line["event"])
	assert.Equal(t, MetricTimeToContentEnd, line["metric"])
	assert.Equal(t, float64(75), line["value"])
	assert.Equal(t, BehaviourReader, line["dim.reading behaviour"])
}

func TestWebhookTracker_Posts(t *testing.T) {
	got := make(chan webhook.Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev webhook.Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err == nil {
			got <- ev
		}
	}))
	defer srv.Close()

	tr := NewWebhookTracker(srv.URL, "", "sess-1", nil)
	tr.Track(EventArticleLoaded, Fields{Action: EventArticleLoaded})

	select {
	case ev := <-got:
		assert.Equal(t, webhook.TypeReadingEvent, ev.Type)
		assert.Equal(t, "sess-1", ev.SessionID)
		data, ok := ev.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, EventArticleLoaded, data["name"])
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}
