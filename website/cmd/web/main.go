package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/form/v4"

	"furitingoasis/smart_irrigation/internal/bridge"
	"furitingoasis/smart_irrigation/internal/config"
	"furitingoasis/smart_irrigation/internal/export"
	"furitingoasis/smart_irrigation/internal/hub"
	"furitingoasis/smart_irrigation/internal/irrigation"
	"furitingoasis/smart_irrigation/internal/metrics"
	"furitingoasis/smart_irrigation/internal/models"
	"furitingoasis/smart_irrigation/internal/wire"
	"furitingoasis/smart_irrigation/mqtt"
)

// stateSource is the live view the HTTP API reads from.
type stateSource interface {
	SystemState() wire.SystemState
	Records() []irrigation.SensorRecord
	Today() irrigation.DailyTotals
}

type application struct {
	logger      *slog.Logger
	state       stateSource
	sensors     models.SensorRecordModelInterface
	profiles    models.PlantProfileModelInterface
	daily       models.DailyTotalsModelInterface
	hub         http.Handler
	metrics     *metrics.Metrics
	formDecoder *form.Decoder
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	addr := flag.String("addr", "", "HTTP network address (overrides http.addr)")
	dsn := flag.String("dsn", "", "SQLite database file path (overrides store.dsn)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if *dsn != "" {
		cfg.Store.DSN = *dsn
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Error("open store", "driver", cfg.Store.Driver, "error", err)
		os.Exit(1)
	}
	defer st.close()

	n, err := models.SeedPlantProfiles(ctx, st.profiles, cfg.Bridge.PlantsFile)
	if err != nil {
		logger.Error("seeding plant profiles", "file", cfg.Bridge.PlantsFile, "error", err)
	} else {
		logger.Info("seeded plant profiles", "count", n)
	}

	m := metrics.New()
	wsHub := hub.New(logger)
	defer wsHub.Close()

	bus, err := mqtt.Connect(mqtt.Config{
		BrokerURL:     cfg.MQTT.Broker,
		ClientID:      cfg.MQTT.ClientID,
		Username:      cfg.MQTT.Username,
		Password:      cfg.MQTT.Password,
		QoS:           cfg.MQTT.QoS,
		MaxRetries:    cfg.MQTT.MaxRetries,
		RetryInterval: cfg.MQTT.RetryInterval,
	}, logger)
	if err != nil {
		// commands fail with an ack until the background dial succeeds
		logger.Error("mqtt unavailable", "error", err)
	}
	defer bus.Close()

	deps := bridge.Deps{
		Logger:   logger,
		Bus:      bus,
		FanOut:   wsHub,
		Sensors:  st.sensors,
		Profiles: st.profiles,
		Daily:    st.daily,
		Metrics:  m,
	}
	if len(cfg.Kafka.Brokers) > 0 {
		exp := export.NewKafkaExporter(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.MQTT.DeviceID, logger)
		defer exp.Close()
		deps.Exporter = exp
	}

	b := bridge.New(deps, bridge.Options{
		DeviceID:       cfg.MQTT.DeviceID,
		BufferSize:     cfg.Bridge.BufferSize,
		ConfirmTimeout: cfg.Bridge.ConfirmTimeout,
		Periodic:       cfg.Decision.Mode == config.DecisionPeriodic,
		Interval:       cfg.Decision.Interval,
		Window: irrigation.WindowPolicy{
			Size:           cfg.Decision.WindowSize,
			FixedThreshold: cfg.Decision.FixedThreshold,
			SafetyUpper:    cfg.Decision.SafetyUpper,
		},
	})
	if err := b.Init(ctx); err != nil {
		logger.Error("failed to load state from storage", "error", err)
	}
	wsHub.SetHandler(b)

	topic := wire.DataTopic(cfg.MQTT.DeviceID)
	switch err := bus.Subscribe(topic, b.HandleBusMessage); {
	case errors.Is(err, mqtt.ErrNotConnected):
		logger.Warn("subscription deferred until connected", "topic", topic)
	case err != nil:
		logger.Error("subscribe", "topic", topic, "error", err)
	default:
		logger.Info("subscribed", "topic", topic)
	}

	bridgeDone := make(chan struct{})
	go func() {
		defer close(bridgeDone)
		b.Run(ctx)
	}()

	app := &application{
		logger:      logger,
		state:       b,
		sensors:     st.sensors,
		profiles:    st.profiles,
		daily:       st.daily,
		hub:         wsHub,
		metrics:     m,
		formDecoder: form.NewDecoder(),
	}

	srv := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     app.routes(),
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelError),
		IdleTimeout: time.Minute,
		ReadTimeout: 5 * time.Second,
		// WriteTimeout would cut long-lived websocket connections
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", "addr", cfg.HTTP.Addr, "device", cfg.MQTT.DeviceID)
	err = srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		logger.Error(err.Error())
		stop()
	}

	<-bridgeDone
	b.Wait()
	logger.Info("server stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

type store struct {
	sensors  models.SensorRecordModelInterface
	profiles models.PlantProfileModelInterface
	daily    models.DailyTotalsModelInterface
	close    func()
}

// openStore opens the configured backend. Daily totals live in SQLite only,
// so they are not kept when running on MongoDB.
func openStore(ctx context.Context, cfg config.StoreConfig) (*store, error) {
	if cfg.Driver == config.DriverMongo {
		client, err := models.NewMongoConnection(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.MongoDatabase)
		sensors, err := models.NewMongoSensorRecordModel(ctx, db)
		if err != nil {
			client.Disconnect(context.Background())
			return nil, err
		}
		profiles, err := models.NewMongoPlantProfileModel(ctx, db)
		if err != nil {
			client.Disconnect(context.Background())
			return nil, err
		}
		return &store{
			sensors:  sensors,
			profiles: profiles,
			close:    func() { client.Disconnect(context.Background()) },
		}, nil
	}

	db, err := models.OpenDB(cfg.DSN)
	if err != nil {
		return nil, err
	}
	return newSQLiteStore(db, cfg.DailyRetention), nil
}

func newSQLiteStore(db *sql.DB, retention int) *store {
	return &store{
		sensors:  &models.SensorRecordModel{DB: db},
		profiles: &models.PlantProfileModel{DB: db},
		daily:    &models.DailyTotalsModel{DB: db, Retention: retention},
		close:    func() { db.Close() },
	}
}
