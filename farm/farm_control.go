// Command farm simulates an irrigation controller on the MQTT bus: it
// publishes readings, obeys commands and confirms pump and auto-mode changes.
package main

import (
	"flag"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"

	"gobot.io/x/gobot/v2"
	"gobot.io/x/gobot/v2/platforms/mqtt"

	"furitingoasis/smart_irrigation/internal/wire"
)

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	deviceID := flag.String("device", "smartfarmdevice001", "Device identifier")
	interval := flag.Duration("interval", 5*time.Second, "Sensor publish interval")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	dev := newDevice(rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)))
	dataTopic := wire.DataTopic(*deviceID)

	mqttAdaptor := mqtt.NewAdaptor(*broker, "farm-"+*deviceID)
	mqttAdaptor.SetAutoReconnect(true)

	work := func() {
		attach(mqttAdaptor, dev, *deviceID, logger)

		gobot.Every(*interval, func() {
			reading := dev.step()
			payload, err := wire.EncodeDeviceMessage(wire.SensorDataMessage{SensorData: reading})
			if err != nil {
				logger.Error("encode reading", "error", err)
				return
			}
			if !mqttAdaptor.Publish(dataTopic, payload) {
				logger.Warn("publish failed", "topic", dataTopic)
				return
			}
			logger.Info("reading published",
				"temperature", reading.Temperature,
				"humidity", reading.Humidity,
				"moisture", reading.Moisture,
				"warning", dev.warning())
		})
	}

	farmBot := gobot.NewRobot("IrrigationDevice",
		[]gobot.Connection{mqttAdaptor},
		work,
	)

	if err := farmBot.Start(); err != nil {
		logger.Error("start robot", "error", err)
		os.Exit(1)
	}
}

// bus is the part of the gobot MQTT adaptor the device uses.
type bus interface {
	On(topic string, f func(msg mqtt.Message)) bool
	Publish(topic string, payload []byte) bool
}

// attach subscribes dev to its command topic, then announces the boot. The
// server answers a boot with a resync, so the order matters.
func attach(b bus, dev *device, deviceID string, logger *slog.Logger) bool {
	dataTopic := wire.DataTopic(deviceID)
	commandTopic := wire.CommandTopic(deviceID)

	subscribed := b.On(commandTopic, func(msg mqtt.Message) {
		ack, err := dev.handleCommand(msg.Payload())
		if err != nil {
			logger.Warn("bad command", "payload", string(msg.Payload()), "error", err)
			return
		}
		logger.Info("command applied", "payload", string(msg.Payload()))
		if ack != nil && !b.Publish(dataTopic, ack) {
			logger.Warn("publish failed", "topic", dataTopic)
		}
	})
	if !subscribed {
		logger.Error("subscribe failed", "topic", commandTopic)
	}

	booted, _ := wire.EncodeDeviceMessage(wire.BootedMessage{})
	if !b.Publish(dataTopic, booted) {
		logger.Warn("publish failed", "topic", dataTopic)
		return false
	}
	logger.Info("device booted", "device", deviceID)
	return subscribed
}
