// Package bridge connects the device bus to the dashboard fan-out. Every bus
// message, client command, timer and confirmation timeout runs on the single
// goroutine started by Run; storage, export and alert delivery run detached
// and only log their failures.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"furitingoasis/smart_irrigation/internal/irrigation"
	"furitingoasis/smart_irrigation/internal/metrics"
	"furitingoasis/smart_irrigation/internal/models"
	"furitingoasis/smart_irrigation/internal/wire"
)

// Bus is the device-facing transport.
type Bus interface {
	Publish(topic string, payload []byte) error
}

// FanOut is the client-facing transport.
type FanOut interface {
	Broadcast(f wire.Frame)
	Send(clientID string, f wire.Frame) error
}

type Exporter interface {
	Export(ctx context.Context, rec irrigation.SensorRecord) error
}

const (
	detachedTimeout = 10 * time.Second
	lookupTimeout   = 5 * time.Second
	eventQueueSize  = 256
)

type Options struct {
	DeviceID       string
	BufferSize     int
	ConfirmTimeout time.Duration
	// Periodic switches the decision engine from per-reading evaluation to
	// a windowed evaluation every Interval.
	Periodic bool
	Interval time.Duration
	Window   irrigation.WindowPolicy
}

type Deps struct {
	Logger   *slog.Logger
	Bus      Bus
	FanOut   FanOut
	Sensors  models.SensorRecordModelInterface
	Profiles models.PlantProfileModelInterface
	// Daily, Exporter and Metrics are optional.
	Daily    models.DailyTotalsModelInterface
	Exporter Exporter
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

type Bridge struct {
	opts     Options
	logger   *slog.Logger
	bus      Bus
	fanout   FanOut
	sensors  models.SensorRecordModelInterface
	profiles models.PlantProfileModelInterface
	daily    models.DailyTotalsModelInterface
	exporter Exporter
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string

	mirror  *irrigation.Mirror
	buffer  *irrigation.RecordBuffer
	tracker *irrigation.DailyTracker
	alerts  irrigation.AlertTracker
	pending map[irrigation.Field]*pendingCommand

	events   chan func()
	done     chan struct{}
	detached sync.WaitGroup
}

func New(d Deps, opts Options) *Bridge {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if opts.Window.Size <= 0 {
		opts.Window = irrigation.DefaultWindowPolicy()
	}

	b := &Bridge{
		opts:     opts,
		logger:   d.Logger.With(slog.String("component", "bridge"), slog.String("device", opts.DeviceID)),
		bus:      d.Bus,
		fanout:   d.FanOut,
		sensors:  d.Sensors,
		profiles: d.Profiles,
		daily:    d.Daily,
		exporter: d.Exporter,
		metrics:  d.Metrics,
		now:      d.Now,
		newID:    uuid.NewString,
		buffer:   irrigation.NewRecordBuffer(opts.BufferSize),
		tracker:  irrigation.NewDailyTracker(d.Now),
		pending:  make(map[irrigation.Field]*pendingCommand),
		events:   make(chan func(), eventQueueSize),
		done:     make(chan struct{}),
	}
	// the device boots with auto mode on and the pump off
	b.mirror = irrigation.NewMirror(irrigation.DeviceState{AutoMode: true}, irrigation.ObserverFunc(b.stateChanged))
	b.metrics.AutoMode.Set(1)
	return b
}

// Init warms the record buffer from storage and selects the first stored
// plant profile. Failures are returned but leave the bridge usable.
func (b *Bridge) Init(ctx context.Context) error {
	recs, err := b.sensors.Latest(ctx, b.buffer.Cap())
	if err != nil {
		return err
	}
	b.buffer.Load(recs)
	b.logger.Info("loaded historical sensor records", "count", len(recs))

	profiles, err := b.profiles.List(ctx)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		b.logger.Warn("no plant profiles stored; decisions and alerts are disabled until one is selected")
		return nil
	}
	b.mirror.ApplyProfile(profiles[0])
	b.logger.Info("loaded current plant profile", "plantType", profiles[0].PlantType)
	return nil
}

// Run executes events until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	defer close(b.done)

	var tick <-chan time.Time
	if b.opts.Periodic {
		t := time.NewTicker(b.opts.Interval)
		defer t.Stop()
		tick = t.C
	}
	midnight := time.NewTimer(irrigation.UntilNextMidnight(b.now()))
	defer midnight.Stop()

	b.logger.Info("bridge running", "periodic", b.opts.Periodic, "confirmTimeout", b.opts.ConfirmTimeout)
	for {
		select {
		case <-ctx.Done():
			b.saveDaily(b.tracker.Snapshot())
			return nil
		case fn := <-b.events:
			fn()
		case <-tick:
			b.evaluateWindow()
		case <-midnight.C:
			b.saveDaily(b.tracker.Rollover())
			midnight.Reset(irrigation.UntilNextMidnight(b.now()))
		}
	}
}

// submit queues fn for the event loop. It gives up once Run has returned.
func (b *Bridge) submit(fn func()) {
	select {
	case b.events <- fn:
	case <-b.done:
	}
}

// Wait blocks until detached storage, export and alert tasks finish.
func (b *Bridge) Wait() {
	b.detached.Wait()
}

func (b *Bridge) detach(task string, fn func(ctx context.Context) error) {
	b.detached.Add(1)
	go func() {
		defer b.detached.Done()
		ctx, cancel := context.WithTimeout(context.Background(), detachedTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			b.logger.Error("detached task failed", "task", task, "error", err)
		}
	}()
}

// HandleBusMessage accepts a payload from the device data topic.
func (b *Bridge) HandleBusMessage(topic string, payload []byte) {
	b.submit(func() { b.handlePayload(payload) })
}

func (b *Bridge) ClientConnected(clientID string) {
	b.metrics.Clients.Inc()
	b.submit(func() { b.handshake(clientID) })
}

func (b *Bridge) ClientFrame(clientID string, f wire.Frame) {
	b.submit(func() { b.handleClientFrame(clientID, f) })
}

func (b *Bridge) ClientDisconnected(clientID string) {
	b.metrics.Clients.Dec()
	b.submit(func() { b.forgetClient(clientID) })
}

// SystemState is safe to call from any goroutine.
func (b *Bridge) SystemState() wire.SystemState {
	st := b.mirror.State()
	if p, ok := b.mirror.Profile(); ok {
		return wire.NewSystemState(st, &p)
	}
	return wire.NewSystemState(st, nil)
}

// Records returns the in-memory records, oldest first.
func (b *Bridge) Records() []irrigation.SensorRecord {
	return b.buffer.Records()
}

// Today returns the running totals for the current day.
func (b *Bridge) Today() irrigation.DailyTotals {
	return b.tracker.Snapshot()
}

func (b *Bridge) broadcast(event string, data any) {
	f, err := wire.NewFrame(event, data)
	if err != nil {
		b.logger.Error("build frame", "error", err)
		return
	}
	b.fanout.Broadcast(f)
}

func (b *Bridge) send(clientID, event string, data any) {
	f, err := wire.NewFrame(event, data)
	if err != nil {
		b.logger.Error("build frame", "error", err)
		return
	}
	if err := b.fanout.Send(clientID, f); err != nil {
		b.logger.Debug("client unreachable", "client", clientID, "event", event, "error", err)
	}
}

func (b *Bridge) ack(clientID string, success bool, message string) {
	if clientID == "" {
		return
	}
	b.send(clientID, wire.EventCommandAck, wire.Ack{Success: success, Message: message})
}

// stateChanged runs inside mirror updates, always on the event loop.
func (b *Bridge) stateChanged(c irrigation.Change) {
	switch {
	case c.Profile != nil:
		b.broadcast(wire.EventPlantType, wire.PlantTypeUpdate{
			PlantType:  c.Profile.PlantType,
			Thresholds: c.Profile.SafeThresholds,
		})
		b.alerts.Observe(nil)
	case c.Field == irrigation.FieldPump:
		b.metrics.PumpActive.Set(metrics.BoolValue(c.Value))
		b.tracker.PumpChanged(c.Value)
		b.broadcast(wire.EventPumpState, c.Value)
	case c.Field == irrigation.FieldAutoMode:
		b.metrics.AutoMode.Set(metrics.BoolValue(c.Value))
		b.broadcast(wire.EventAutoState, c.Value)
	}
}

func (b *Bridge) saveDaily(t irrigation.DailyTotals) {
	b.logger.Info("daily totals", "date", t.Date, "pumpOnTime", t.PumpOnTime, "readings", t.Readings)
	if b.daily == nil {
		return
	}
	b.detach("save daily totals", func(ctx context.Context) error {
		return b.daily.Save(ctx, t)
	})
}
