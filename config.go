package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/robertof/go-bluescale/ble"
	"github.com/robertof/go-bluescale/body"
	"github.com/robertof/go-bluescale/collector"
	"github.com/robertof/go-bluescale/device"
	"github.com/robertof/go-bluescale/scale"
	"github.com/robertof/go-bluescale/storage/amqp"
	"github.com/robertof/go-bluescale/storage/postgres"
	"github.com/robertof/go-bluescale/utils"
)

const (
  transportHCI = "hci"
  transportBlueZ = "bluez"
  sinkPostgres = "postgres"
  sinkAMQP = "amqp"
)

type config struct {
  Debug, Trace bool
  BindAddress string
  DiscoverDevices bool
  ConfigFile string
  Transport string
  BluetoothDeviceId int
  Adapter string
  DeviceExpiry time.Duration
  QuietPeriod, RetryDelay, Tolerance time.Duration
  MaxAttempts int
  Sink string
  BeepDevice string
  Scales []*device.Scale
  Profile profileSpec
  Postgres postgres.Descriptor
  AMQP amqpSpec
}

type profileSpec struct {
  Sex string `toml:"sex"`
  // YYYY-MM-DD
  Birthday string `toml:"birthday"`
  Height float64 `toml:"height"`
}

type amqpSpec struct {
  URL string `toml:"url"`
  Queue string `toml:"queue"`
}

// fileConfig is the layout of the optional TOML configuration file.
type fileConfig struct {
  Profile profileSpec `toml:"profile"`
  Postgres postgres.Descriptor `toml:"postgres"`
  AMQP amqpSpec `toml:"amqp"`
  MiScale struct {
    MAC string `toml:"mac"`
    Name string `toml:"name"`
  } `toml:"miscale"`
}

type boundScaleList struct {
  list *[]*device.Scale
}

func (d *boundScaleList) String() string {
  return ""
}

func (d *boundScaleList) Set(v string) error {
  s, err := device.FromDeviceSpec(device.NewDeviceSpec(v))
  if err != nil {
    return fmt.Errorf("failed to create scale: %w", err)
  }

  *d.list = append(*d.list, s)

  return nil
}

type profileValue struct {
  p *profileSpec
}

func (v *profileValue) String() string {
  return ""
}

func (v *profileValue) Set(s string) error {
  kv := utils.ParseKeyValues(s)

  v.p.Sex = kv["sex"]
  v.p.Birthday = kv["birthday"]

  if h, ok := kv["height"]; ok {
    height, err := strconv.ParseFloat(h, 64)
    if err != nil {
      return fmt.Errorf("invalid height: %w", err)
    }

    v.p.Height = height
  }

  return nil
}

type postgresValue struct {
  d *postgres.Descriptor
}

func (v *postgresValue) String() string {
  return ""
}

func (v *postgresValue) Set(s string) error {
  *v.d = postgres.ParseDescriptor(s)
  return nil
}

func ParseArgs() config {
  cfg, err := parseArgs(flag.CommandLine, os.Args[1:])

  if err != nil {
    fmt.Fprintln(os.Stderr, "Error:", err)
    flag.Usage()
    os.Exit(1)
  }

  return cfg
}

func parseArgs(fs *flag.FlagSet, args []string) (config, error) {
  var cfg config

  fs.StringVar(&cfg.BindAddress, "bind", "localhost:9103", "Where the metrics endpoint binds to, empty to disable")
  fs.StringVar(&cfg.ConfigFile, "config", "", "Optional TOML configuration file")
  fs.BoolVar(&cfg.DiscoverDevices, "discover", false, "Discover available BLE devices and quit")
  fs.StringVar(&cfg.Transport, "transport", transportHCI, "Bluetooth transport (one of 'hci' or 'bluez')")
  fs.IntVar(&cfg.BluetoothDeviceId, "bluetooth-device", 0, "Bluetooth (HCI) device ID")
  fs.StringVar(&cfg.Adapter, "adapter", "hci0", "BlueZ adapter name")
  fs.DurationVar(&cfg.DeviceExpiry, "device-expiry", ble.DefaultExpiry,
    "Silence after which a device is considered gone (hci transport only)")
  fs.DurationVar(&cfg.QuietPeriod, "quiet-period", collector.DefaultQuietPeriod,
    "Wait between noticing a scale and querying it")
  fs.DurationVar(&cfg.RetryDelay, "retry-delay", collector.DefaultRetryDelay, "Delay between two query attempts")
  fs.IntVar(&cfg.MaxAttempts, "max-attempts", collector.DefaultMaxAttempts, "Max number of query attempts")
  fs.DurationVar(&cfg.Tolerance, "tolerance", scale.DefaultTolerance,
    "Max distance between the scale clock and the local clock")
  fs.StringVar(&cfg.Sink, "sink", sinkPostgres, "Where measurements are stored (one of 'postgres' or 'amqp')")
  fs.StringVar(&cfg.AMQP.URL, "amqp-url", "", "AMQP broker url")
  fs.StringVar(&cfg.AMQP.Queue, "amqp-queue", "", "AMQP queue name (default \"" + amqp.DefaultQueue + "\")")
  fs.StringVar(&cfg.BeepDevice, "beep-device", "", "Console device used to beep (e.g. /dev/console), empty to only log")
  fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logs")
  fs.BoolVar(&cfg.Trace, "trace", false, "Enable trace logs")

  fs.Var(&boundScaleList{list: &cfg.Scales}, "scale",
    "Scale spec in the form of `addr=AA:BB:CC:DD:EE:FF,name=bathroom`. Repeatable; none accepts any scale.")
  fs.Var(&profileValue{p: &cfg.Profile}, "profile",
    "Subject profile in the form of `sex=male,birthday=1990-01-31,height=180`")
  fs.Var(&postgresValue{d: &cfg.Postgres}, "postgres",
    "Database in the form of `host=localhost:5432,dbname=health,username=scale,password=...`")

  if err := fs.Parse(args); err != nil {
    return cfg, err
  }

  if cfg.ConfigFile != "" {
    if err := cfg.mergeFile(cfg.ConfigFile); err != nil {
      return cfg, err
    }
  }

  if cfg.DiscoverDevices {
    return cfg, nil
  }

  return cfg, cfg.validate()
}

// mergeFile fills every setting not given on the command line from a TOML file.
func (c *config) mergeFile(path string) error {
  var fc fileConfig

  md, err := toml.DecodeFile(path, &fc)
  if err != nil {
    return errors.Wrapf(err, "failed to read config file %q", path)
  }

  for _, key := range md.Undecoded() {
    log.Warn().Stringer("Key", key).Str("File", path).Msg("Ignoring unknown configuration key")
  }

  fill(&c.Profile.Sex, fc.Profile.Sex)
  fill(&c.Profile.Birthday, fc.Profile.Birthday)
  fill(&c.Profile.Height, fc.Profile.Height)

  fill(&c.Postgres.Host, fc.Postgres.Host)
  fill(&c.Postgres.DBName, fc.Postgres.DBName)
  fill(&c.Postgres.Username, fc.Postgres.Username)
  fill(&c.Postgres.Password, fc.Postgres.Password)

  fill(&c.AMQP.URL, fc.AMQP.URL)
  fill(&c.AMQP.Queue, fc.AMQP.Queue)

  if len(c.Scales) == 0 && fc.MiScale.MAC != "" {
    spec := device.DeviceSpec{"addr": fc.MiScale.MAC, "name": fc.MiScale.Name}

    s, err := device.FromDeviceSpec(spec)
    if err != nil {
      return errors.Wrapf(err, "invalid [miscale] section in %q", path)
    }

    c.Scales = append(c.Scales, s)
  }

  return nil
}

// fill sets *dst to v unless it was already given.
func fill[T comparable](dst *T, v T) {
  var zero T

  if *dst == zero {
    *dst = v
  }
}

func (c *config) validate() error {
  switch c.Transport {
  case transportHCI, transportBlueZ:
  default:
    return errors.Errorf("unknown transport %q", c.Transport)
  }

  switch c.Sink {
  case sinkPostgres:
    if err := c.Postgres.Validate(); err != nil {
      return err
    }
  case sinkAMQP:
    if c.AMQP.URL == "" {
      return errors.New("-amqp-url is required with the amqp sink")
    }
  default:
    return errors.Errorf("unknown sink %q", c.Sink)
  }

  if c.MaxAttempts <= 0 {
    return errors.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
  }

  if c.DeviceExpiry <= 0 {
    return errors.Errorf("device expiry must be positive, got %v", c.DeviceExpiry)
  }

  var missing []string

  if c.Profile.Sex == "" {
    missing = append(missing, "sex")
  }

  if c.Profile.Birthday == "" {
    missing = append(missing, "birthday")
  }

  if c.Profile.Height == 0 {
    missing = append(missing, "height")
  }

  if len(missing) > 0 {
    return errors.Errorf("incomplete profile, missing %s", strings.Join(missing, ", "))
  }

  return nil
}

// BuildProfile turns the configured profile into the one used by the calculator, with the age
// derived at now.
func (c *config) BuildProfile(now time.Time) (body.Profile, error) {
  sex, err := body.ParseSex(c.Profile.Sex)
  if err != nil {
    return body.Profile{}, err
  }

  birthday, err := time.Parse(time.DateOnly, c.Profile.Birthday)
  if err != nil {
    return body.Profile{}, errors.Wrap(err, "invalid birthday")
  }

  return body.NewProfile(sex, birthday, c.Profile.Height, now)
}
