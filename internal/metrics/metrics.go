package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Temperature      prometheus.Gauge
	Humidity         prometheus.Gauge
	Moisture         prometheus.Gauge
	PumpActive       prometheus.Gauge
	AutoMode         prometheus.Gauge
	Readings         prometheus.Counter
	DroppedMessages  *prometheus.CounterVec
	CommandsSent     *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	CommandTimeouts  prometheus.Counter
	Decisions        *prometheus.CounterVec
	Alerts           prometheus.Counter
	Clients          prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_temperature_celsius",
			Help: "Last reported temperature.",
		}),
		Humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_humidity_percent",
			Help: "Last reported air humidity.",
		}),
		Moisture: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_soil_moisture_percent",
			Help: "Last reported soil moisture.",
		}),
		PumpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_pump_active",
			Help: "1 when the device has confirmed the pump is running.",
		}),
		AutoMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_auto_mode",
			Help: "1 when the device has confirmed auto mode.",
		}),
		Readings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigation_sensor_readings_total",
			Help: "Sensor readings received from the device.",
		}),
		DroppedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_dropped_messages_total",
			Help: "Inbound messages dropped as malformed or unknown.",
		}, []string{"source"}),
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_commands_sent_total",
			Help: "Commands published to the device.",
		}, []string{"action", "origin"}),
		CommandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_commands_rejected_total",
			Help: "Client commands rejected before reaching the device.",
		}, []string{"event"}),
		CommandTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigation_command_timeouts_total",
			Help: "Commands the device never confirmed.",
		}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "irrigation_decisions_total",
			Help: "Decision engine outcomes.",
		}, []string{"action"}),
		Alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "irrigation_alerts_total",
			Help: "Threshold alerts raised.",
		}),
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_websocket_clients",
			Help: "Connected dashboard clients.",
		}),
	}
	m.registry.MustRegister(
		m.Temperature, m.Humidity, m.Moisture,
		m.PumpActive, m.AutoMode, m.Readings,
		m.DroppedMessages, m.CommandsSent, m.CommandsRejected,
		m.CommandTimeouts, m.Decisions, m.Alerts, m.Clients,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func BoolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
