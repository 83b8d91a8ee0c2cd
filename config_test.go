package main

import (
  "flag"
  "io"
  "os"
  "path/filepath"
  "strings"
  "testing"
  "time"

  "github.com/robertof/go-bluescale/body"
  "github.com/robertof/go-bluescale/collector"
  "github.com/robertof/go-bluescale/storage/postgres"
)

func testParse(args ...string) (config, error) {
  fs := flag.NewFlagSet("test", flag.ContinueOnError)
  fs.SetOutput(io.Discard)

  return parseArgs(fs, args)
}

func writeFile(t *testing.T, content string) string {
  t.Helper()

  path := filepath.Join(t.TempDir(), "bluescale.toml")

  if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
    t.Fatalf("WriteFile() got error: %v", err)
  }

  return path
}

func TestParseArgs_Flags(t *testing.T) {
  cfg, err := testParse(
    "-scale", "addr=5C:CA:D3:00:11:22,name=bathroom",
    "-profile", "sex=male,birthday=1990-01-31,height=180",
    "-postgres", "host=db,dbname=health,username=scale,password=secret",
    "-retry-delay", "2s",
  )

  if err != nil {
    t.Fatalf("parseArgs() got error: %v", err)
  }

  if len(cfg.Scales) != 1 || cfg.Scales[0].Name() != "bathroom" {
    t.Fatalf("parseArgs(): got scales %v", cfg.Scales)
  }

  if cfg.Profile != (profileSpec{Sex: "male", Birthday: "1990-01-31", Height: 180}) {
    t.Fatalf("parseArgs(): got profile %+v", cfg.Profile)
  }

  if cfg.Postgres.DBName != "health" || cfg.Sink != sinkPostgres || cfg.Transport != transportHCI {
    t.Fatalf("parseArgs(): got %+v", cfg)
  }

  if cfg.RetryDelay != 2 * time.Second || cfg.MaxAttempts != collector.DefaultMaxAttempts ||
    cfg.QuietPeriod != collector.DefaultQuietPeriod {
    t.Fatalf("parseArgs(): got tunables %v / %v / %v", cfg.RetryDelay, cfg.MaxAttempts, cfg.QuietPeriod)
  }

  p, err := cfg.BuildProfile(time.Date(2020, time.January, 31, 12, 0, 0, 0, time.UTC))
  if err != nil {
    t.Fatalf("BuildProfile() got error: %v", err)
  }

  if p.Sex != body.Male || p.Height != 180 || p.Age < 29.99 || p.Age > 30 {
    t.Fatalf("BuildProfile(): got %v", p)
  }
}

func TestParseArgs_File(t *testing.T) {
  path := writeFile(t, `
[profile]
sex = "female"
birthday = "1985-06-15"
height = 165.5

[postgres]
host = "localhost"
dbname = "health"
username = "scale"
password = "secret"

[miscale]
mac = "5c:ca:d3:00:11:22"
`)

  cfg, err := testParse("-config", path, "-postgres", "host=other,dbname=db2,username=u")
  if err != nil {
    t.Fatalf("parseArgs() got error: %v", err)
  }

  if cfg.Profile != (profileSpec{Sex: "female", Birthday: "1985-06-15", Height: 165.5}) {
    t.Fatalf("parseArgs(): got profile %+v", cfg.Profile)
  }

  // the command line wins over the file, field by field.
  if cfg.Postgres != (postgres.Descriptor{Host: "other", DBName: "db2", Username: "u", Password: "secret"}) {
    t.Fatalf("parseArgs(): got database %+v", cfg.Postgres)
  }

  if len(cfg.Scales) != 1 || cfg.Scales[0].Name() != "scale-5ccad3001122" {
    t.Fatalf("parseArgs(): got scales %v", cfg.Scales)
  }
}

func TestParseArgs_FileFieldByField(t *testing.T) {
  path := writeFile(t, `
[profile]
sex = "female"
birthday = "1985-06-15"
height = 165.5

[postgres]
host = "localhost"
dbname = "health"
username = "scale"
`)

  cfg, err := testParse("-config", path, "-profile", "height=180", "-postgres", "password=secret")
  if err != nil {
    t.Fatalf("parseArgs() got error: %v", err)
  }

  if cfg.Profile != (profileSpec{Sex: "female", Birthday: "1985-06-15", Height: 180}) {
    t.Fatalf("parseArgs(): got profile %+v", cfg.Profile)
  }

  want := postgres.Descriptor{Host: "localhost", DBName: "health", Username: "scale", Password: "secret"}

  if cfg.Postgres != want {
    t.Fatalf("parseArgs(): got database %+v, wanted %+v", cfg.Postgres, want)
  }
}

func TestParseArgs_Invalid(t *testing.T) {
  profile := "sex=male,birthday=1990-01-31,height=180"
  db := "host=db,dbname=health,username=scale"

  tests := []struct {
    name string
    args []string
    err string
  }{
    {"missing profile", []string{"-postgres", db}, "incomplete profile, missing sex, birthday, height"},
    {"missing database", []string{"-profile", profile}, "missing host, dbname, username"},
    {"amqp without url", []string{"-profile", profile, "-sink", "amqp"}, "-amqp-url is required"},
    {"unknown sink", []string{"-profile", profile, "-sink", "kafka"}, "unknown sink"},
    {"unknown transport", []string{"-profile", profile, "-postgres", db, "-transport", "usb"}, "unknown transport"},
    {"bad height", []string{"-profile", "height=tall"}, "invalid height"},
    {"bad scale", []string{"-scale", "addr=nope"}, "invalid addr"},
    {"zero expiry", []string{"-profile", profile, "-postgres", db, "-device-expiry", "0s"},
      "device expiry must be positive"},
  }

  for _, tt := range tests {
    t.Run(tt.name, func(t *testing.T) {
      _, err := testParse(tt.args...)

      if err == nil || !strings.Contains(err.Error(), tt.err) {
        t.Fatalf("parseArgs(%v): got %v, wanted error containing %q", tt.args, err, tt.err)
      }
    })
  }

  if _, err := testParse("-discover"); err != nil {
    t.Fatalf("parseArgs(-discover) should not require a profile, got %v", err)
  }
}
