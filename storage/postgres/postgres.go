// Package postgres stores measurements in a PostgreSQL `mifit` table.
package postgres

import (
  "context"
  "database/sql"
  "net/url"
  "strings"
  "sync"

  _ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
  "github.com/pkg/errors"
  "github.com/robertof/go-bluescale/body"
  "github.com/robertof/go-bluescale/utils"
  "github.com/rs/zerolog/log"
)

const (
  driverName = "pgx"
  timeFormat = "2006-01-02 15:04:05"

  insertQuery = `INSERT INTO mifit (time, weight, height, bmi, fat_rate, body_water_rate, bone_mass, metabolism, muscle_rate, visceral_fat)
    VALUES ($1::timestamp AT time zone 'UTC', $2, $3, $4, $5, $6, $7, $8, $9, $10)`
)

var (
  sqlOpen = sql.Open
  openMu sync.Mutex

  ErrIncompleteDescriptor = errors.New("incomplete database descriptor")
)

// Descriptor holds what is needed to reach the database.
type Descriptor struct {
  Host string `toml:"host"`
  DBName string `toml:"dbname"`
  Username string `toml:"username"`
  Password string `toml:"password"`
}

// ParseDescriptor reads a `host=...,dbname=...,username=...,password=...` list.
func ParseDescriptor(s string) Descriptor {
  kv := utils.ParseKeyValues(s)

  return Descriptor{
    Host: kv["host"],
    DBName: kv["dbname"],
    Username: kv["username"],
    Password: kv["password"],
  }
}

func (d Descriptor) Validate() error {
  var missing []string

  if d.Host == "" {
    missing = append(missing, "host")
  }

  if d.DBName == "" {
    missing = append(missing, "dbname")
  }

  if d.Username == "" {
    missing = append(missing, "username")
  }

  if len(missing) > 0 {
    return errors.Wrapf(ErrIncompleteDescriptor, "missing %s", strings.Join(missing, ", "))
  }

  return nil
}

// DSN renders the descriptor as a connection URL. TLS is not used.
func (d Descriptor) DSN() string {
  u := url.URL{
    Scheme: "postgres",
    Host: d.Host,
    Path: "/" + d.DBName,
    RawQuery: "sslmode=disable",
  }

  if d.Password != "" {
    u.User = url.UserPassword(d.Username, d.Password)
  } else {
    u.User = url.User(d.Username)
  }

  return u.String()
}

func (d Descriptor) String() string {
  return "postgres[host=" + d.Host + ", dbname=" + d.DBName + ", username=" + d.Username + "]"
}

// Store opens a fresh connection for every insert; measurements are rare and the database may
// well be restarted between two of them.
type Store struct {
  desc Descriptor
}

func NewStore(d Descriptor) (*Store, error) {
  if err := d.Validate(); err != nil {
    return nil, err
  }

  return &Store{desc: d}, nil
}

func (s *Store) Insert(ctx context.Context, m body.Measurement, p body.Profile) error {
  openMu.Lock()
  db, err := sqlOpen(driverName, s.desc.DSN())
  openMu.Unlock()

  if err != nil {
    return errors.Wrapf(err, "failed to open %v", s.desc)
  }

  defer db.Close()

  _, err = db.ExecContext(ctx, insertQuery, Args(m, p)...)

  if err != nil {
    return errors.Wrapf(err, "failed to insert measurement into %v", s.desc)
  }

  log.Debug().Stringer("Database", s.desc).Msg("postgres: measurement inserted")

  return nil
}

// Args returns the insert parameters in column order.
func Args(m body.Measurement, p body.Profile) []any {
  return []any{
    m.Time.UTC().Format(timeFormat),
    m.Weight,
    p.Height,
    m.BMI,
    m.BodyFat,
    m.WaterRate,
    m.BoneMass,
    m.BMR,
    m.MuscleRate,
    m.VisceralFat,
  }
}
