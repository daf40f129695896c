package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"furitingoasis/smart_irrigation/internal/irrigation"
	"furitingoasis/smart_irrigation/internal/models"
	"furitingoasis/smart_irrigation/internal/wire"
)

const testDevice = "dev1"

type published struct {
	topic   string
	payload []byte
}

type fakeBus struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeBus) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{topic, payload})
	return nil
}

func (f *fakeBus) onTopic(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeBus) commands(t *testing.T) []wire.Command {
	t.Helper()
	var cmds []wire.Command
	for _, m := range f.onTopic(wire.CommandTopic(testDevice)) {
		c, err := wire.DecodeCommand(m.payload)
		if err != nil {
			t.Fatal(err)
		}
		cmds = append(cmds, c)
	}
	return cmds
}

func (f *fakeBus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

type fakeFanOut struct {
	mu         sync.Mutex
	broadcasts []wire.Frame
	sent       map[string][]wire.Frame
}

func newFakeFanOut() *fakeFanOut {
	return &fakeFanOut{sent: make(map[string][]wire.Frame)}
}

func (f *fakeFanOut) Broadcast(fr wire.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, fr)
}

func (f *fakeFanOut) Send(clientID string, fr wire.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[clientID] = append(f.sent[clientID], fr)
	return nil
}

func (f *fakeFanOut) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = nil
	f.sent = make(map[string][]wire.Frame)
}

func (f *fakeFanOut) broadcastsOf(event string) []wire.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wire.Frame
	for _, fr := range f.broadcasts {
		if fr.Event == event {
			out = append(out, fr)
		}
	}
	return out
}

func (f *fakeFanOut) sentTo(clientID string) []wire.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.Frame(nil), f.sent[clientID]...)
}

func (f *fakeFanOut) acks(t *testing.T, clientID string) []wire.Ack {
	t.Helper()
	var acks []wire.Ack
	for _, fr := range f.sentTo(clientID) {
		if fr.Event != wire.EventCommandAck {
			continue
		}
		var a wire.Ack
		if err := json.Unmarshal(fr.Data, &a); err != nil {
			t.Fatal(err)
		}
		acks = append(acks, a)
	}
	return acks
}

type fakeSensors struct {
	mu   sync.Mutex
	recs []irrigation.SensorRecord
}

func (f *fakeSensors) Insert(_ context.Context, rec irrigation.SensorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeSensors) Latest(_ context.Context, n int) ([]irrigation.SensorRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recs) > n {
		return append([]irrigation.SensorRecord(nil), f.recs[len(f.recs)-n:]...), nil
	}
	return append([]irrigation.SensorRecord(nil), f.recs...), nil
}

func (f *fakeSensors) Sampled(ctx context.Context, _ int) ([]irrigation.SensorRecord, error) {
	return f.Latest(ctx, math.MaxInt)
}

func (f *fakeSensors) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs), nil
}

func (f *fakeSensors) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}

type fakeProfiles struct {
	profiles []irrigation.PlantProfile
}

func (f *fakeProfiles) Get(_ context.Context, plantType string) (irrigation.PlantProfile, error) {
	for _, p := range f.profiles {
		if p.PlantType == plantType {
			return p, nil
		}
	}
	return irrigation.PlantProfile{}, models.ErrNoRecord
}

func (f *fakeProfiles) List(_ context.Context) ([]irrigation.PlantProfile, error) {
	return f.profiles, nil
}

func (f *fakeProfiles) Upsert(_ context.Context, p irrigation.PlantProfile) error {
	f.profiles = append(f.profiles, p)
	return nil
}

type fakeDaily struct {
	mu    sync.Mutex
	saved []irrigation.DailyTotals
}

func (f *fakeDaily) Save(_ context.Context, t irrigation.DailyTotals) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, t)
	return nil
}

func (f *fakeDaily) Recent(_ context.Context, n int) ([]irrigation.DailyTotals, error) {
	return nil, nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func tomato() irrigation.PlantProfile {
	return irrigation.PlantProfile{
		PlantType: "Tomato",
		SafeThresholds: irrigation.SafeThresholds{
			Temperature: irrigation.Range{Lower: 18, Upper: 32},
			Humidity:    irrigation.Range{Lower: 40, Upper: 80},
			Moisture:    irrigation.Range{Lower: 40, Upper: 70},
		},
	}
}

func basil() irrigation.PlantProfile {
	return irrigation.PlantProfile{
		PlantType: "Basil",
		SafeThresholds: irrigation.SafeThresholds{
			Temperature: irrigation.Range{Lower: 20, Upper: 30},
			Humidity:    irrigation.Range{Lower: 40, Upper: 60},
			Moisture:    irrigation.Range{Lower: 50, Upper: 80},
		},
	}
}

type testEnv struct {
	bridge   *Bridge
	bus      *fakeBus
	fanout   *fakeFanOut
	sensors  *fakeSensors
	profiles *fakeProfiles
	daily    *fakeDaily
	clock    *fakeClock
}

// newTestEnv builds a bridge with Tomato active, auto mode on and the pump
// off. Frames sent during Init are discarded.
func newTestEnv(t *testing.T, opts Options, profiles ...irrigation.PlantProfile) *testEnv {
	t.Helper()
	if profiles == nil {
		profiles = []irrigation.PlantProfile{tomato(), basil()}
	}
	opts.DeviceID = testDevice
	if opts.ConfirmTimeout == 0 {
		opts.ConfirmTimeout = time.Hour
	}

	env := &testEnv{
		bus:      &fakeBus{},
		fanout:   newFakeFanOut(),
		sensors:  &fakeSensors{},
		profiles: &fakeProfiles{profiles: profiles},
		daily:    &fakeDaily{},
		clock:    &fakeClock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)},
	}
	env.bridge = New(Deps{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Bus:      env.bus,
		FanOut:   env.fanout,
		Sensors:  env.sensors,
		Profiles: env.profiles,
		Daily:    env.daily,
		Now:      env.clock.Now,
	}, opts)
	if err := env.bridge.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	env.fanout.reset()
	return env
}

// feed runs payload through the bridge synchronously and waits for the
// detached tasks it started.
func (e *testEnv) feed(payload string) {
	e.bridge.handlePayload([]byte(payload))
	e.bridge.Wait()
}

func (e *testEnv) client(clientID, event string, data any) {
	raw, _ := json.Marshal(data)
	e.bridge.handleClientFrame(clientID, wire.Frame{Event: event, Data: raw})
	e.bridge.Wait()
}

func (e *testEnv) setState(pump, auto bool) {
	e.bridge.mirror.ApplyConfirmed(irrigation.FieldPump, pump)
	e.bridge.mirror.ApplyConfirmed(irrigation.FieldAutoMode, auto)
	e.fanout.reset()
}

func reading(temp, hum, moisture float64) string {
	b, _ := json.Marshal(map[string]any{
		"sensorData": irrigation.SensorReading{Temperature: temp, Humidity: hum, Moisture: moisture},
	})
	return string(b)
}
