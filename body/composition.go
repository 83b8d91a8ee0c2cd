package body

import (
  "errors"
)

// The constants below are empirical calibration values of the scale vendor's body composition
// model and are reproduced as-is.

var ErrDivisionByZero = errors.New("weight is zero")

func heightM2(p Profile) float64 {
  return (p.Height / 100) * (p.Height / 100)
}

// LeanBodyMassCoefficient is the intermediate quantity body fat, bone mass and muscle mass are
// derived from.
func (p Profile) LeanBodyMassCoefficient(weight, impedance float64) float64 {
  lbm := (p.Height * 9.058 / 100) * (p.Height / 100)
  lbm += weight * 0.32 + 12.226
  lbm -= impedance * 0.0068
  lbm -= p.Age * 0.0542

  return lbm
}

func (p Profile) BMI(weight float64) float64 {
  return weight / heightM2(p)
}

// BodyFat returns the body fat percentage.
func (p Profile) BodyFat(weight, impedance float64) float64 {
  lbmSub := 0.8

  if p.Sex == Female && p.Age <= 49 {
    lbmSub = 9.25
  } else if p.Sex == Female && p.Age > 49 {
    lbmSub = 7.25
  }

  lbmCoeff := p.LeanBodyMassCoefficient(weight, impedance)
  coeff := 1.0

  if p.Sex == Male && weight < 61 {
    coeff = 0.98
  } else if p.Sex == Female && weight > 60 {
    coeff = 0.96

    if p.Height > 160 {
      coeff *= 1.03
    }
  } else if p.Sex == Female && weight < 50 {
    coeff = 1.02

    if p.Height > 160 {
      coeff *= 1.03
    }
  }

  bodyFat := (1 - ((lbmCoeff - lbmSub) * coeff) / weight) * 100

  if bodyFat > 63 {
    bodyFat = 75
  }

  return bodyFat
}

// Water returns the body water percentage.
func (p Profile) Water(weight, impedance float64) float64 {
  water := (100 - p.BodyFat(weight, impedance)) * 0.7

  coeff := 0.98
  if water < 50 {
    coeff = 1.02
  }

  return coeff * water
}

// BoneMass returns the bone mass in kg.
func (p Profile) BoneMass(weight, impedance float64) float64 {
  base := 0.18016894
  if p.Sex == Female {
    base = 0.245691014
  }

  boneMass := -(base - p.LeanBodyMassCoefficient(weight, impedance) * 0.05158)

  if boneMass > 2.2 {
    boneMass += 0.1
  } else {
    boneMass -= 0.1
  }

  if p.Sex == Female && boneMass > 5.1 {
    boneMass = 8
  } else if p.Sex == Male && boneMass > 5.2 {
    boneMass = 8
  }

  return boneMass
}

// VisceralFat returns the visceral fat rating. Each sex has two branches picked by a
// weight/height threshold.
func (p Profile) VisceralFat(weight float64) float64 {
  h, age := p.Height, p.Age

  if p.Sex == Female {
    if weight > (13 - h * 0.5) * -1 {
      subsubcalc := (h * 1.45 + (h * 0.1158) * h) - 120
      subcalc := weight * 500 / subsubcalc

      return (subcalc - 6) + age * 0.07
    }

    subcalc := 0.691 + h * -0.0024 + h * -0.0024

    return ((h * 0.027 - subcalc * weight) * -1) + age * 0.07 - age
  }

  if h < weight * 1.6 {
    subcalc := (h * 0.4 - h * (h * 0.0826)) * -1

    return (weight * 305) / (subcalc + 48) - 2.9 + age * 0.15
  }

  subcalc := 0.765 + h * -0.0015

  return ((h * 0.143 - weight * subcalc) * -1) + age * 0.15 - 5
}

// Muscle returns the muscle mass in kg. 120 is the value the vendor firmware reports when the
// estimate goes past its ceiling.
func (p Profile) Muscle(weight, impedance float64) float64 {
  muscle := weight -
    (p.BodyFat(weight, impedance) * 0.01) * weight -
    p.BoneMass(weight, impedance)

  if p.Sex == Female && muscle >= 84 {
    muscle = 120
  } else if p.Sex == Male && muscle >= 93.5 {
    muscle = 120
  }

  return muscle
}

// MuscleRate converts a muscle mass in kg to a percentage of weight.
func MuscleRate(weight, muscleKg float64) (float64, error) {
  if weight == 0 {
    return 0, ErrDivisionByZero
  }

  return 100 / weight * muscleKg, nil
}

// BMR returns the basal metabolic rate in kcal.
func (p Profile) BMR(weight float64) float64 {
  if p.Sex == Female {
    return 864.6 + weight * 10.2036 - p.Height * 0.39336 - p.Age * 6.204
  }

  return 877.8 + weight * 14.916 - p.Height * 0.726 - p.Age * 8.976
}
