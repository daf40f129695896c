package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/form/v4"

	"furitingoasis/smart_irrigation/internal/hub"
	"furitingoasis/smart_irrigation/internal/irrigation"
	"furitingoasis/smart_irrigation/internal/metrics"
	"furitingoasis/smart_irrigation/internal/models"
	"furitingoasis/smart_irrigation/internal/wire"
)

type fakeState struct {
	state   irrigation.DeviceState
	profile *irrigation.PlantProfile
	records []irrigation.SensorRecord
	today   irrigation.DailyTotals
}

func (f *fakeState) SystemState() wire.SystemState      { return wire.NewSystemState(f.state, f.profile) }
func (f *fakeState) Records() []irrigation.SensorRecord { return f.records }
func (f *fakeState) Today() irrigation.DailyTotals      { return f.today }

func newTestApplication(t *testing.T, state *fakeState) *application {
	t.Helper()
	db, err := models.OpenDB(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	st := newSQLiteStore(db, 0)
	t.Cleanup(st.close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &application{
		logger:      logger,
		state:       state,
		sensors:     st.sensors,
		profiles:    st.profiles,
		daily:       st.daily,
		hub:         hub.New(logger),
		metrics:     metrics.New(),
		formDecoder: form.NewDecoder(),
	}
}

func seedRecords(t *testing.T, app *application, n int) {
	t.Helper()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		err := app.sensors.Insert(context.Background(), irrigation.SensorRecord{
			Data:      irrigation.SensorReading{Temperature: 22, Humidity: 50, Moisture: float64(i)},
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
}

type testServer struct {
	*httptest.Server
}

func newTestServer(t *testing.T, h http.Handler) *testServer {
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return &testServer{ts}
}

func (ts *testServer) get(t *testing.T, urlPath string) (int, http.Header, string) {
	t.Helper()
	rs, err := ts.Client().Get(ts.URL + urlPath)
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Body.Close()
	body, err := io.ReadAll(rs.Body)
	if err != nil {
		t.Fatal(err)
	}
	return rs.StatusCode, rs.Header, string(body)
}
