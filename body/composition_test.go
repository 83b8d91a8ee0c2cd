package body_test

import (
  "errors"
  "math"
  "testing"
  "time"

  "github.com/robertof/go-bluescale/body"
)

func approx(got, want float64) bool {
  return math.Abs(got - want) < 1e-6
}

func TestCompute_Male(t *testing.T) {
  p := body.Profile{Sex: body.Male, Age: 30, Height: 180}
  ts := time.Date(2024, time.January, 2, 7, 0, 0, 0, time.UTC)

  got, err := body.Compute(p, ts, 80, 500)

  if err != nil {
    t.Fatalf("Compute() got error: %v", err)
  }

  want := body.Measurement{
    Time: ts,
    Weight: 80,
    BMI: 24.691358024691358,
    WaterRate: 52.6058414,
    BMR: 1671.12,
    VisceralFat: 13.36,
    BodyFat: 23.3151,
    MuscleMass: 58.2224992264,
    MuscleRate: 72.77812403300003,
    BoneMass: 3.1254207736,
  }

  checks := []struct {
    name string
    got, want float64
  }{
    {"BMI", got.BMI, want.BMI},
    {"WaterRate", got.WaterRate, want.WaterRate},
    {"BMR", got.BMR, want.BMR},
    {"VisceralFat", got.VisceralFat, want.VisceralFat},
    {"BodyFat", got.BodyFat, want.BodyFat},
    {"MuscleMass", got.MuscleMass, want.MuscleMass},
    {"MuscleRate", got.MuscleRate, want.MuscleRate},
    {"BoneMass", got.BoneMass, want.BoneMass},
  }

  for _, c := range checks {
    if !approx(c.got, c.want) {
      t.Errorf("Compute(): %s = %v, wanted %v", c.name, c.got, c.want)
    }
  }

  if !got.Time.Equal(ts) || got.Weight != 80 {
    t.Errorf("Compute(): got time/weight %v/%v, wanted %v/80", got.Time, got.Weight, ts)
  }
}

func TestCompute_FemaleOver49(t *testing.T) {
  p := body.Profile{Sex: body.Female, Age: 52, Height: 165}

  if got := p.LeanBodyMassCoefficient(55, 520); !approx(got, 48.132005) {
    t.Errorf("LeanBodyMassCoefficient() = %v, wanted 48.132005", got)
  }

  if got := p.BodyFat(55, 520); !approx(got, 25.669081818181816) {
    t.Errorf("BodyFat() = %v, wanted 25.669081818181816", got)
  }

  if got := p.BoneMass(55, 520); !approx(got, 2.3369578039) {
    t.Errorf("BoneMass() = %v, wanted 2.3369578039", got)
  }

  if got := p.BMR(55); !approx(got, 1038.2856) {
    t.Errorf("BMR() = %v, wanted 1038.2856", got)
  }

  if got := p.Water(55, 520); !approx(got, 50.991009872727275) {
    t.Errorf("Water() = %v, wanted 50.991009872727275", got)
  }
}

func TestVisceralFat_Branches(t *testing.T) {
  tests := []struct {
    name string
    profile body.Profile
    weight float64
    want float64
  }{
    {"female heavy", body.Profile{Sex: body.Female, Age: 40, Height: 150}, 80, 11.598372179060304},
    {"female light", body.Profile{Sex: body.Female, Age: 52, Height: 165}, 55, -58.37},
    {"male heavy", body.Profile{Sex: body.Male, Age: 30, Height: 180}, 120, 15.39965613971586},
    {"male light", body.Profile{Sex: body.Male, Age: 30, Height: 180}, 80, 13.36},
  }

  for _, tt := range tests {
    if got := tt.profile.VisceralFat(tt.weight); !approx(got, tt.want) {
      t.Errorf("VisceralFat(%v) [%s] = %v, wanted %v", tt.weight, tt.name, got, tt.want)
    }
  }
}

func TestBodyFat_Clamp(t *testing.T) {
  p := body.Profile{Sex: body.Male, Age: 30, Height: 100}

  if got := p.BodyFat(30, 5000); got != 75 {
    t.Fatalf("BodyFat() = %v, wanted exactly 75", got)
  }

  // (100 - 75) * 0.7 is below 50, so the water coefficient is 1.02.
  if got := p.Water(30, 5000); !approx(got, 17.85) {
    t.Fatalf("Water() = %v, wanted 17.85", got)
  }
}

func TestBoneAndMuscle_Ceilings(t *testing.T) {
  p := body.Profile{Sex: body.Male, Age: 20, Height: 200}

  if got := p.BoneMass(250, 0); got != 8 {
    t.Errorf("BoneMass() = %v, wanted 8", got)
  }

  if got := p.Muscle(250, 0); got != 120 {
    t.Errorf("Muscle() = %v, wanted 120", got)
  }
}

func TestMuscleRate_ZeroWeight(t *testing.T) {
  got, err := body.MuscleRate(0, 50)

  if !errors.Is(err, body.ErrDivisionByZero) {
    t.Fatalf("MuscleRate(0, 50) = %v, %v; wanted ErrDivisionByZero", got, err)
  }

  p := body.Profile{Sex: body.Female, Age: 30, Height: 170}

  if _, err := body.Compute(p, time.Now(), 0, 500); !errors.Is(err, body.ErrDivisionByZero) {
    t.Fatalf("Compute() with zero weight got error %v, wanted ErrDivisionByZero", err)
  }
}

func TestCompute_Deterministic(t *testing.T) {
  p := body.Profile{Sex: body.Female, Age: 33.7, Height: 168}
  ts := time.Date(2024, time.January, 2, 7, 0, 0, 0, time.UTC)

  a, errA := body.Compute(p, ts, 63.25, 487)
  b, errB := body.Compute(p, ts, 63.25, 487)

  if errA != nil || errB != nil {
    t.Fatalf("Compute() got errors: %v, %v", errA, errB)
  }

  if a != b {
    t.Fatalf("Compute() is not deterministic: %+v != %+v", a, b)
  }
}

func TestAgeAt(t *testing.T) {
  birthday := time.Date(1990, time.June, 15, 0, 0, 0, 0, time.UTC)
  now := time.Date(2020, time.June, 15, 18, 30, 0, 0, time.UTC)

  got := body.AgeAt(birthday, now)
  days := now.Truncate(24 * time.Hour).Sub(birthday).Hours() / 24
  want := days * 86400 / body.SecondsPerYear

  if !approx(got, want) {
    t.Fatalf("AgeAt() = %v, wanted %v", got, want)
  }

  if got < 29.99 || got > 30.01 {
    t.Fatalf("AgeAt() = %v, wanted about 30", got)
  }
}

func TestNewProfile_Validation(t *testing.T) {
  now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

  if _, err := body.NewProfile(body.Male, now.AddDate(-30, 0, 0), 0, now); err == nil {
    t.Errorf("NewProfile() with zero height should fail")
  }

  if _, err := body.NewProfile(body.Male, now.AddDate(1, 0, 0), 180, now); err == nil {
    t.Errorf("NewProfile() with future birthday should fail")
  }
}

func TestParseSex(t *testing.T) {
  tests := map[string]body.Sex{
    "male": body.Male, "M": body.Male, "1": body.Male,
    "female": body.Female, "f": body.Female, "0": body.Female,
  }

  for in, want := range tests {
    got, err := body.ParseSex(in)

    if err != nil || got != want {
      t.Errorf("ParseSex(%q) = %v, %v; wanted %v", in, got, err, want)
    }
  }

  if _, err := body.ParseSex("x"); err == nil {
    t.Errorf("ParseSex(%q) should fail", "x")
  }
}
