package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"furitingoasis/smart_irrigation/internal/irrigation"
	"furitingoasis/smart_irrigation/internal/wire"
)

func TestPumpRequestRejections(t *testing.T) {
	tests := []struct {
		name      string
		pump      bool
		auto      bool
		enable    bool
		prior     bool
		wantInMsg string
	}{
		{"auto mode", false, true, true, false, "auto mode"},
		{"already on", true, false, true, false, "already"},
		{"already off", false, false, false, false, "already"},
		{"pending", false, false, true, true, "awaiting"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})
			env.setState(tt.pump, tt.auto)
			if tt.prior {
				env.client("c0", wire.EventPump, tt.enable)
			}
			before := env.bus.count()

			env.client("c1", wire.EventPump, tt.enable)

			if n := env.bus.count(); n != before {
				t.Errorf("published %d messages; want 0", n-before)
			}
			acks := env.fanout.acks(t, "c1")
			if len(acks) != 1 || acks[0].Success {
				t.Fatalf("acks = %+v; want one failure", acks)
			}
			if !strings.Contains(acks[0].Message, tt.wantInMsg) {
				t.Errorf("message %q does not mention %q", acks[0].Message, tt.wantInMsg)
			}
			if n := len(env.fanout.acks(t, "c0")); tt.prior && n != 1 {
				t.Errorf("first requester got %d acks; want 1", n)
			}
		})
	}
}

func TestPumpRequestSent(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.setState(false, false)

	env.client("c1", wire.EventPump, true)

	cmds := env.bus.commands(t)
	if len(cmds) != 1 || cmds[0].Action != wire.ActionPump || !*cmds[0].Enable {
		t.Fatalf("commands = %+v; want PUMP enable=true", cmds)
	}
	if cmds[0].ID == "" {
		t.Error("command has no id")
	}
	acks := env.fanout.acks(t, "c1")
	if len(acks) != 1 || !acks[0].Success {
		t.Errorf("acks = %+v; want one success", acks)
	}
	if env.bridge.mirror.State().PumpActive {
		t.Error("mirror applied an unconfirmed pump request")
	}
	if n := len(env.fanout.broadcastsOf(wire.EventPumpState)); n != 0 {
		t.Errorf("pump_state_update broadcasts = %d; want 0", n)
	}
	if n := len(env.fanout.acks(t, "c2")); n != 0 {
		t.Errorf("other client received %d acks", n)
	}
}

func TestToggleAutoToCurrentValue(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.client("c1", wire.EventToggleAutoMode, true)

	if n := env.bus.count(); n != 0 {
		t.Errorf("published %d messages; want 0", n)
	}
	acks := env.fanout.acks(t, "c1")
	if len(acks) != 1 || acks[0].Success {
		t.Errorf("acks = %+v; want one failure", acks)
	}
}

func TestToggleAutoSent(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.client("c1", wire.EventToggleAutoMode, false)

	cmds := env.bus.commands(t)
	if len(cmds) != 1 || cmds[0].Action != wire.ActionToggleAuto {
		t.Fatalf("commands = %+v; want TOGGLE_AUTO", cmds)
	}
	if v, err := cmds[0].Bool(); err != nil || v {
		t.Errorf("TOGGLE_AUTO value = %v, %v; want false", v, err)
	}
	if !env.bridge.mirror.State().AutoMode {
		t.Error("mirror applied an unconfirmed auto mode request")
	}

	// a second toggle while the first is unconfirmed
	env.client("c2", wire.EventToggleAutoMode, false)
	if n := len(env.bus.commands(t)); n != 1 {
		t.Errorf("published %d commands; want 1", n)
	}
	if acks := env.fanout.acks(t, "c2"); len(acks) != 1 || acks[0].Success {
		t.Errorf("second requester acks = %+v; want one failure", acks)
	}
}

func TestPublishFailureRecordsNoPending(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.setState(false, false)
	env.bus.err = errors.New("not connected")

	env.client("c1", wire.EventPump, true)

	acks := env.fanout.acks(t, "c1")
	if len(acks) != 1 || acks[0].Success {
		t.Fatalf("acks = %+v; want one failure", acks)
	}
	if len(env.bridge.pending) != 0 {
		t.Errorf("pending = %v; want none", env.bridge.pending)
	}
}

func TestChangePlantType(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.client("c1", wire.EventChangePlantType, "Basil")

	cmds := env.bus.commands(t)
	if len(cmds) != 1 || cmds[0].Action != wire.ActionSetThreshold {
		t.Fatalf("commands = %+v; want SET_THRESHOLD", cmds)
	}
	th, err := cmds[0].Thresholds()
	if err != nil {
		t.Fatal(err)
	}
	if th != basil().SafeThresholds {
		t.Errorf("thresholds = %+v; want basil", th)
	}

	frames := env.fanout.broadcastsOf(wire.EventPlantType)
	if len(frames) != 1 {
		t.Fatalf("plant_type_update broadcasts = %d; want 1", len(frames))
	}
	var upd wire.PlantTypeUpdate
	if err := json.Unmarshal(frames[0].Data, &upd); err != nil {
		t.Fatal(err)
	}
	if upd.PlantType != "Basil" || upd.Thresholds != basil().SafeThresholds {
		t.Errorf("plant_type_update = %+v", upd)
	}

	if p, ok := env.bridge.mirror.Profile(); !ok || p.PlantType != "Basil" {
		t.Errorf("active profile = %+v", p)
	}
	if acks := env.fanout.acks(t, "c1"); len(acks) != 1 || !acks[0].Success {
		t.Errorf("acks = %+v; want one success", acks)
	}
}

func TestChangePlantTypeRejections(t *testing.T) {
	tests := []struct {
		name      string
		plantType string
		wantInMsg string
	}{
		{"current", "Tomato", "already"},
		{"unknown", "Cactus", "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, Options{})

			env.client("c1", wire.EventChangePlantType, tt.plantType)

			if n := env.bus.count(); n != 0 {
				t.Errorf("published %d messages; want 0", n)
			}
			acks := env.fanout.acks(t, "c1")
			if len(acks) != 1 || acks[0].Success || !strings.Contains(acks[0].Message, tt.wantInMsg) {
				t.Errorf("acks = %+v; want failure mentioning %q", acks, tt.wantInMsg)
			}
			if p, _ := env.bridge.mirror.Profile(); p.PlantType != "Tomato" {
				t.Errorf("active profile changed to %s", p.PlantType)
			}
		})
	}
}

func TestMalformedClientFrameDropped(t *testing.T) {
	env := newTestEnv(t, Options{})

	env.client("c1", wire.EventPump, "yes")
	env.client("c1", "reboot", true)

	if n := env.bus.count(); n != 0 {
		t.Errorf("published %d messages; want 0", n)
	}
	if frames := env.fanout.sentTo("c1"); len(frames) != 0 {
		t.Errorf("client received %d frames; want 0", len(frames))
	}
}

func TestExpireNotifiesRequester(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.setState(false, false)

	env.client("c1", wire.EventPump, true)
	p := env.bridge.pending[irrigation.FieldPump]
	if p == nil {
		t.Fatal("expected a pending pump command")
	}

	env.bridge.expire(irrigation.FieldPump, "some-other-id")
	if env.bridge.pending[irrigation.FieldPump] == nil {
		t.Fatal("expire with a stale id dropped the pending command")
	}

	env.bridge.expire(irrigation.FieldPump, p.id)
	if env.bridge.pending[irrigation.FieldPump] != nil {
		t.Error("pending command survived expiry")
	}
	acks := env.fanout.acks(t, "c1")
	if len(acks) != 2 || acks[1].Success || !strings.Contains(acks[1].Message, "did not respond") {
		t.Errorf("acks = %+v; want success then timeout failure", acks)
	}

	env.client("c1", wire.EventPump, true)
	if n := len(env.bus.commands(t)); n != 2 {
		t.Errorf("published %d commands; want a retry to go through", n)
	}
}

func TestExpireAfterDisconnect(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.setState(false, false)

	env.client("c1", wire.EventPump, true)
	p := env.bridge.pending[irrigation.FieldPump]
	env.bridge.forgetClient("c1")
	env.bridge.expire(irrigation.FieldPump, p.id)

	if acks := env.fanout.acks(t, "c1"); len(acks) != 1 {
		t.Errorf("disconnected client got %d acks; want only the first", len(acks))
	}
}

func TestHandshake(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.setState(false, true)
	env.feed(reading(25, 60, 50))

	env.bridge.handshake("c1")

	frames := env.fanout.sentTo("c1")
	if len(frames) != 3 {
		t.Fatalf("handshake sent %d frames; want 3", len(frames))
	}
	want := []string{wire.EventInitialRecords, wire.EventSystemState, wire.EventAvailablePlants}
	for i, ev := range want {
		if frames[i].Event != ev {
			t.Errorf("frame %d = %s; want %s", i, frames[i].Event, ev)
		}
	}

	var recs []irrigation.SensorRecord
	if err := json.Unmarshal(frames[0].Data, &recs); err != nil || len(recs) != 1 {
		t.Errorf("initial_records = %s", frames[0].Data)
	}

	var st wire.SystemState
	if err := json.Unmarshal(frames[1].Data, &st); err != nil {
		t.Fatal(err)
	}
	if st.State.Pump || !st.State.AutoMode || st.CurrentPlantType == nil || *st.CurrentPlantType != "Tomato" {
		t.Errorf("system_state = %s", frames[1].Data)
	}

	var names []string
	if err := json.Unmarshal(frames[2].Data, &names); err != nil {
		t.Fatal(err)
	}
	if strings.Join(names, ",") != "Tomato,Basil" {
		t.Errorf("available_plants = %v", names)
	}
}

func TestRunTimesOutUnconfirmedCommand(t *testing.T) {
	env := newTestEnv(t, Options{ConfirmTimeout: 50 * time.Millisecond})
	env.setState(false, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.bridge.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
		env.bridge.Wait()
	}()

	raw, _ := json.Marshal(true)
	env.bridge.ClientFrame("c1", wire.Frame{Event: wire.EventPump, Data: raw})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		acks := env.fanout.acks(t, "c1")
		if len(acks) == 2 {
			if acks[1].Success || !strings.Contains(acks[1].Message, "did not respond") {
				t.Errorf("timeout ack = %+v", acks[1])
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("acks = %+v; want a timeout failure", env.fanout.acks(t, "c1"))
}

func TestRunProcessesBusMessages(t *testing.T) {
	env := newTestEnv(t, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.bridge.Run(ctx)
		close(done)
	}()

	env.bridge.HandleBusMessage(wire.DataTopic(testDevice), []byte(`{"state":"AUTO_MODE","enable":false}`))

	deadline := time.Now().Add(2 * time.Second)
	for len(env.fanout.broadcastsOf(wire.EventAutoState)) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	env.bridge.Wait()

	if env.bridge.mirror.State().AutoMode {
		t.Error("auto mode still on")
	}
	if len(env.daily.saved) != 1 {
		t.Errorf("daily totals saved %d times on shutdown; want 1", len(env.daily.saved))
	}
}
