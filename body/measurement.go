package body

import (
  "fmt"
  "strings"
  "time"
)

type Measurement struct {
  Time time.Time `json:"time"`
  Weight float64 `json:"weight"`
  BMI float64 `json:"bmi"`
  WaterRate float64 `json:"water_rate"`
  BMR float64 `json:"bmr"`
  VisceralFat float64 `json:"visceral_fat"`
  BodyFat float64 `json:"body_fat"`
  MuscleMass float64 `json:"muscle_mass"`
  MuscleRate float64 `json:"muscle_rate"`
  BoneMass float64 `json:"bone_mass"`
}

// Compute derives every metric from a weight (kg) and impedance (ohm) reading taken at ts.
func Compute(p Profile, ts time.Time, weight, impedance float64) (m Measurement, err error) {
  muscle := p.Muscle(weight, impedance)

  rate, err := MuscleRate(weight, muscle)
  if err != nil {
    return m, err
  }

  return Measurement{
    Time: ts,
    Weight: weight,
    BMI: p.BMI(weight),
    WaterRate: p.Water(weight, impedance),
    BMR: p.BMR(weight),
    VisceralFat: p.VisceralFat(weight),
    BodyFat: p.BodyFat(weight, impedance),
    MuscleMass: muscle,
    MuscleRate: rate,
    BoneMass: p.BoneMass(weight, impedance),
  }, nil
}

func (m Measurement) String() string {
  fields := []string{
    "Time=" + m.Time.Format(time.RFC3339),
    fmt.Sprintf("Weight=%.2fkg", m.Weight),
    fmt.Sprintf("BMI=%.1f", m.BMI),
    fmt.Sprintf("Water=%.1f%%", m.WaterRate),
    fmt.Sprintf("BMR=%.0fkcal", m.BMR),
    fmt.Sprintf("VisceralFat=%.1f", m.VisceralFat),
    fmt.Sprintf("BodyFat=%.1f%%", m.BodyFat),
    fmt.Sprintf("Muscle=%.2fkg", m.MuscleMass),
    fmt.Sprintf("MuscleRate=%.1f%%", m.MuscleRate),
    fmt.Sprintf("BoneMass=%.2fkg", m.BoneMass),
  }

  return "Measurement[" + strings.Join(fields, ",") + "]"
}
