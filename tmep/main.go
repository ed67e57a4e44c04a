package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/itohio/gotmep/pkg/clock"
	"github.com/itohio/gotmep/pkg/config"
	"github.com/itohio/gotmep/pkg/device"
	"github.com/itohio/gotmep/pkg/gate"
	"github.com/itohio/gotmep/pkg/indicator"
	"github.com/itohio/gotmep/pkg/metrics"
	"github.com/itohio/gotmep/pkg/mirror"
	"github.com/itohio/gotmep/pkg/provision"
	"github.com/itohio/gotmep/pkg/report"
	"github.com/itohio/gotmep/pkg/rssi"
	"github.com/itohio/gotmep/pkg/sample"
	"github.com/itohio/gotmep/pkg/sensor"
	"github.com/itohio/gotmep/pkg/store"
	"github.com/itohio/gotmep/pkg/web"
	"github.com/lmittmann/tint"
)

// exitRestart asks the service manager to start the agent again when the
// in-place restart is unavailable.
const exitRestart = 3

func main() {
	var (
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		portFlag   = flag.String("p", "", "Serial port override (e.g., /dev/ttyACM0)")
		mockFlag   = flag.Bool("mock", false, "Use simulated sensor instead of the configured one")
		listFlag   = flag.Bool("list-ports", false, "List serial ports and exit")
		writeFlag  = flag.Bool("write-config", false, "Write the effective configuration to -config and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *portFlag != "" {
		cfg.Sensor.Port = *portFlag
	}
	if *mockFlag {
		cfg.Sensor.Kind = "mock"
	}

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      parseLevel(cfg.Log.Level),
		TimeFormat: time.DateTime,
	}))
	slog.SetDefault(logger)

	if *writeFlag {
		if err := cfg.Save(*configFlag); err != nil {
			log.Fatal(err)
		}
		return
	}

	if *listFlag {
		ports, err := sensor.Ports()
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	}

	logger.Info(device.UserAgent())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, logger)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		logger.Info("stopped")
	case errors.Is(err, device.ErrRestart):
		logger.Info("restarting", slog.Any("reason", err))
		restart(logger)
	default:
		logger.Error("agent failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	hwid, err := device.ReadHardwareID(cfg.Device.HardwareIDFile)
	if err != nil {
		return err
	}
	deviceID := device.DeviceID(hwid)
	logger.Info("device identity", slog.String("device_id", deviceID))

	ind, err := newIndicator(cfg, logger)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.Device.DataDir)
	if err != nil {
		return halt(ctx, ind, logger, err)
	}

	pin := device.RandomPIN(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	defaults := store.Settings{
		Hosts: store.HostsFrom(cfg.Provision.Hosts),
		PIN:   pin,
	}
	if cfg.Provision.PIN != "" {
		defaults.PIN = cfg.Provision.PIN
	}

	settings, err := device.Boot(ctx, st, newProvisioner(cfg, logger), deviceID, defaults, logger)
	if errors.Is(err, device.ErrFatal) {
		return halt(ctx, ind, logger, err)
	}
	if err != nil {
		return err
	}
	if settings.PIN != "" {
		pin = settings.PIN
	}

	sens, extra, err := newSensor(cfg)
	if err != nil {
		return err
	}
	defer sens.Close()
	logger.Info("sensor", slog.String("type", sens.Type()))

	m := metrics.New()
	clk := clock.NewMonotonic()

	reporter := report.New(report.Config{
		Port:            cfg.Remote.Port,
		ConnectTimeout:  cfg.Remote.ConnectTimeout,
		ResponseTimeout: cfg.Remote.ResponseTimeout,
		PollInterval:    cfg.Remote.PollInterval,
		UserAgent:       device.UserAgent(),
	}, clk, ind, report.WithLogger(logger), report.WithMetrics(m))

	opts := []device.Option{device.WithLogger(logger), device.WithMetrics(m)}
	if cfg.MQTT.Broker != "" {
		mir := mirror.New(mirror.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
			Timeout:  cfg.MQTT.Timeout,
		}, ind, logger, m)
		defer mir.Close()
		opts = append(opts, device.WithMirror(mir))
	}

	state := &device.State{
		Estimator:  sample.NewEstimator(cfg.Measurement.WindowSize, extra...),
		Gate:       gate.New(pin, cfg.Gate.Attempts, cfg.Device.RestartDelay, st),
		Targets:    settings.Hosts,
		DeviceID:   deviceID,
		SensorType: sens.Type(),
		Signal:     rssi.NewProc(cfg.Device.Wireless),
	}
	loop := device.NewLoop(device.Config{
		LoopInterval:   cfg.Measurement.LoopInterval,
		SendInterval:   cfg.Remote.SendInterval,
		RebootInterval: cfg.Device.RebootInterval,
	}, state, clk, sens, ind, reporter, opts...)

	gin.SetMode(gin.ReleaseMode)
	srv, err := web.New(loop, m, logger)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting HTTP server", slog.String("listen", cfg.HTTP.Listen))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("configuration PIN", slog.String("pin", pin))

	return loop.Run(ctx)
}

// halt signals a fatal failure until the process is told to stop.
func halt(ctx context.Context, ind indicator.Indicator, logger *slog.Logger, err error) error {
	logger.Error("fatal failure, halting", slog.Any("error", err))
	device.Halt(ctx, ind, time.Second)
	return err
}

func restart(logger *slog.Logger) {
	r, err := device.NewExecRestarter()
	if err == nil {
		err = r.Restart()
	}
	logger.Error("in-place restart failed", slog.Any("error", err))
	os.Exit(exitRestart)
}

func newIndicator(cfg *config.Config, logger *slog.Logger) (indicator.Indicator, error) {
	switch cfg.Indicator.Kind {
	case "log":
		return indicator.NewLog(logger), nil
	case "sysfs":
		return indicator.NewSysfs(cfg.Indicator.LEDPath, cfg.Indicator.Interval, logger)
	}
	return nil, fmt.Errorf("unknown indicator kind %q", cfg.Indicator.Kind)
}

func newProvisioner(cfg *config.Config, logger *slog.Logger) provision.Service {
	if cfg.Provision.Kind == "console" {
		return provision.NewConsole(os.Stdin, os.Stdout, cfg.Provision.Timeout, logger)
	}
	return &provision.Static{Hosts: cfg.Provision.Hosts, PIN: cfg.Provision.PIN}
}

// newSensor creates the configured sensor and lists the optional quantities it reports.
func newSensor(cfg *config.Config) (sensor.Sensor, []sample.Quantity, error) {
	var extra []sample.Quantity
	if cfg.Measurement.Humidity {
		extra = append(extra, sample.Humidity)
	}
	if cfg.Measurement.Pressure {
		extra = append(extra, sample.Pressure)
	}

	switch cfg.Sensor.Kind {
	case "mock":
		return sensor.NewMock(sensor.MockConfig{
			Bias:     cfg.Sensor.MockBias,
			Noise:    cfg.Sensor.MockNoise,
			Humidity: cfg.Measurement.Humidity,
			Pressure: cfg.Measurement.Pressure,
		}), extra, nil
	case "serial":
		return sensor.NewSerial(cfg.Sensor.Port, cfg.Sensor.BaudRate, cfg.Sensor.ReadTimeout), extra, nil
	case "w1":
		if len(extra) > 0 {
			return nil, nil, errors.New("DS18B20 measures temperature only")
		}
		return sensor.NewW1(cfg.Sensor.W1Device), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown sensor kind %q", cfg.Sensor.Kind)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
