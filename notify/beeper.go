package notify

import (
  "fmt"
  "sync"
  "time"

  "golang.org/x/sys/unix"
)

const (
  // linux/kd.h
  kiocsound = 0x4B2F
  clockTickRate = 1193180
)

type Tone struct {
  // Hz, 0 is silence.
  Freq uint
  Duration time.Duration
}

var Tunes = map[Event][]Tone{
  EventNoticed: {
    {Freq: 580, Duration: 100 * time.Millisecond},
    {Freq: 680, Duration: 100 * time.Millisecond},
    {Freq: 780, Duration: 100 * time.Millisecond},
  },
  EventSuccess: {
    {Freq: 440, Duration: 300 * time.Millisecond},
    {Freq: 880, Duration: 200 * time.Millisecond},
  },
}

// Speaker emits a continuous tone until told otherwise.
type Speaker interface {
  Sound(freq uint) error
}

// Beeper plays the tune of an event on a Speaker. Tunes never overlap.
type Beeper struct {
  speaker Speaker
  sleep func(time.Duration)
  mu sync.Mutex
}

func NewBeeper(s Speaker) *Beeper {
  return &Beeper{speaker: s, sleep: time.Sleep}
}

func (b *Beeper) Play(e Event) (err error) {
  tune, ok := Tunes[e]
  if !ok {
    return nil
  }

  b.mu.Lock()
  defer b.mu.Unlock()

  defer func() {
    if serr := b.speaker.Sound(0); err == nil {
      err = serr
    }
  }()

  for _, tone := range tune {
    if err := b.speaker.Sound(tone.Freq); err != nil {
      return fmt.Errorf("failed to play %dHz: %w", tone.Freq, err)
    }

    b.sleep(tone.Duration)
  }

  return nil
}

// Console drives the PC speaker through the KIOCSOUND ioctl of a console device.
type Console struct {
  fd int
  path string
}

func OpenConsole(path string) (*Console, error) {
  fd, err := unix.Open(path, unix.O_WRONLY|unix.O_CLOEXEC, 0)

  if err != nil {
    return nil, fmt.Errorf("failed to open %q: %w", path, err)
  }

  return &Console{fd: fd, path: path}, nil
}

func (c *Console) Sound(freq uint) error {
  arg := 0
  if freq > 0 {
    arg = int(clockTickRate / freq)
  }

  if err := unix.IoctlSetInt(c.fd, kiocsound, arg); err != nil {
    return fmt.Errorf("KIOCSOUND on %q: %w", c.path, err)
  }

  return nil
}

func (c *Console) Close() error {
  return unix.Close(c.fd)
}
