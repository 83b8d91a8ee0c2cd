package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertof/go-bluescale/ble"
	"github.com/robertof/go-bluescale/bluez"
	"github.com/robertof/go-bluescale/collector"
	"github.com/robertof/go-bluescale/device"
	"github.com/robertof/go-bluescale/metrics"
	"github.com/robertof/go-bluescale/notify"
	"github.com/robertof/go-bluescale/storage/amqp"
	"github.com/robertof/go-bluescale/storage/postgres"
	"github.com/robertof/go-bluescale/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  cfg := ParseArgs()

  if cfg.Trace || os.Getenv("TRACE") != "" {
      zerolog.SetGlobalLevel(zerolog.TraceLevel)
  } else if cfg.Debug || os.Getenv("DEBUG") != "" {
      zerolog.SetGlobalLevel(zerolog.DebugLevel)
  } else {
      zerolog.SetGlobalLevel(zerolog.InfoLevel)
  }

  if cfg.DiscoverDevices {
    doDeviceDiscovery(cfg)
    return
  }

  profile, err := cfg.BuildProfile(time.Now())

  if err != nil {
    log.Fatal().Err(err).Msg("Invalid profile")
  }

  log.Info().
    Str("BindAddr", cfg.BindAddress).
    Array("Scales", utils.ToZeroLogArray(cfg.Scales)).
    Stringer("Profile", profile).
    Str("Transport", cfg.Transport).
    Str("Sink", cfg.Sink).
    Msg("Starting with the specified configuration")

  ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
  defer stop()

  registry := prometheus.NewRegistry()

  transport, closeTransport := initTransport(cfg, registry)
  defer closeTransport()

  notifier, closeNotifier := initNotifier(cfg)
  defer closeNotifier()

  prober := collector.NewProber(transport, initSink(cfg), profile, collector.ProbeOptions{
    MaxAttempts: cfg.MaxAttempts,
    RetryDelay: cfg.RetryDelay,
  })
  prober.Gate.Tolerance = cfg.Tolerance

  loop := collector.NewLoop(transport, device.NewAllowList(cfg.Scales), prober, notifier)
  loop.QuietPeriod = cfg.QuietPeriod

  metrics.RegisterCollector(prober.Stats, registry)

  if err := run(ctx, cfg, loop, registry); err != nil {
    log.Error().Err(err).Msg("Stopped with an error")
    return
  }

  log.Info().Msg("Shutting down")
}

func run(ctx context.Context, cfg config, loop *collector.Loop, registry *prometheus.Registry) error {
  eg, ctx := errgroup.WithContext(ctx)

  eg.Go(func() error {
    err := loop.Run(ctx)

    if err == nil && ctx.Err() == nil {
      err = errors.New("device event stream ended unexpectedly")
    }

    return err
  })

  if cfg.BindAddress == "" {
    return eg.Wait()
  }

  mux := http.NewServeMux()
  mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  server := &http.Server{Addr: cfg.BindAddress, Handler: mux}

  log.Info().
      Str("ListenAddress", cfg.BindAddress).
      Msg("Starting Prometheus server")

  eg.Go(func() error {
    if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
      return err
    }

    return nil
  })

  eg.Go(func() error {
    <-ctx.Done()

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5 * time.Second)
    defer cancel()

    return server.Shutdown(shutdownCtx)
  })

  return eg.Wait()
}

func initTransport(cfg config, registry prometheus.Registerer) (device.Transport, func()) {
  if cfg.Transport == transportBlueZ {
    t, err := bluez.Open(cfg.Adapter)

    if err != nil {
      log.Fatal().Err(err).Msg("Failed to connect to BlueZ")
    }

    return t, func() { t.Close() }
  }

  var bleFlags ble.Flags
  addresses := make([]net.HardwareAddr, len(cfg.Scales))

  for i, s := range cfg.Scales {
    addresses[i] = s.Addr()
  }

  if len(addresses) > 0 {
    bleFlags |= ble.FlagEnableDeviceAllowList
  }

  bleHandle, err := ble.Init(cfg.BluetoothDeviceId, bleFlags)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  if len(addresses) > 0 {
    if err := bleHandle.SetAllowListedAddresses(addresses); err != nil {
      log.Error().Err(err).Msg("Failed to set device allow list")
    }
  }

  ble.RegisterMetrics(registry)

  watcher := bleHandle.Watcher()
  watcher.Expiry = cfg.DeviceExpiry

  return watcher, bleHandle.Stop
}

func initSink(cfg config) collector.Sink {
  if cfg.Sink == sinkAMQP {
    p, err := amqp.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)

    if err != nil {
      log.Fatal().Err(err).Msg("Invalid AMQP configuration")
    }

    return p
  }

  s, err := postgres.NewStore(cfg.Postgres)

  if err != nil {
    log.Fatal().Err(err).Msg("Invalid database configuration")
  }

  log.Debug().Stringer("Database", cfg.Postgres).Msg("Measurements will be stored in PostgreSQL")

  return s
}

func initNotifier(cfg config) (notify.Notifier, func()) {
  if cfg.BeepDevice == "" {
    a := notify.NewAsync(notify.Log{})
    return a, a.Wait
  }

  console, err := notify.OpenConsole(cfg.BeepDevice)

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to open beep device")
  }

  a := notify.NewAsync(notify.NewBeeper(console))

  return a, func() {
    a.Wait()
    console.Close()
  }
}
