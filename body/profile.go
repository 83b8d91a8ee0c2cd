package body

import (
  "fmt"
  "strconv"
  "strings"
  "time"
)

// SecondsPerYear is the length of a Julian year, used to turn a birth date into a fractional age.
const SecondsPerYear = 31557600

type Sex uint8

const (
  Female Sex = iota
  Male
)

func ParseSex(s string) (Sex, error) {
  switch strings.ToLower(strings.TrimSpace(s)) {
  case "male", "m", "1":
    return Male, nil
  case "female", "f", "0":
    return Female, nil
  }

  return Female, fmt.Errorf("unknown sex %q (must be one of male, female)", s)
}

func (s Sex) String() string {
  switch s {
  case Female:
    return "Female"
  case Male:
    return "Male"
  default:
    panic("unknown body.Sex value: " + strconv.Itoa(int(s)))
  }
}

// Profile describes the person standing on the scale. It is built once at startup and only ever
// read afterwards.
type Profile struct {
  Sex Sex
  // Years.
  Age float64
  // Centimeters.
  Height float64
}

// AgeAt returns the fractional age in years at now for someone born on birthday. Only the
// calendar dates are considered.
func AgeAt(birthday, now time.Time) float64 {
  from := time.Date(birthday.Year(), birthday.Month(), birthday.Day(), 0, 0, 0, 0, time.UTC)
  to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

  return to.Sub(from).Seconds() / SecondsPerYear
}

// NewProfile validates its inputs and derives the age from birthday.
func NewProfile(sex Sex, birthday time.Time, height float64, now time.Time) (Profile, error) {
  if height <= 0 {
    return Profile{}, fmt.Errorf("height must be positive, got %v", height)
  }

  if birthday.After(now) {
    return Profile{}, fmt.Errorf("birthday %v is in the future", birthday.Format(time.DateOnly))
  }

  return Profile{
    Sex: sex,
    Age: AgeAt(birthday, now),
    Height: height,
  }, nil
}

func (p Profile) String() string {
  return fmt.Sprintf("Profile[Sex=%v,Age=%.2f,Height=%.1fcm]", p.Sex, p.Age, p.Height)
}
