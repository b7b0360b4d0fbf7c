package main

import (
  "fmt"
  "log"
  "strconv"
  "strings"
  "time"

  "gopkg.in/ini.v1"
)

// Direction of a physical line.
type Direction int

const (
  DirNone Direction = iota
  DirIn
  DirOut
)

func (d Direction) String() string {
  switch d {
  case DirIn:
    return "in"
  case DirOut:
    return "out"
  default:
    return "none"
  }
}

// Pull is the bias applied to an input line.
type Pull int

const (
  PullNone Pull = iota
  PullUp
  PullDown
)

// GPIOPoll is the line sampling period.
const GPIOPoll = 50 * time.Millisecond

// Header pins usable as lines, P1 connector, board numbering.
var boardPins = []string{
  "P1-03", "P1-05", "P1-07", "P1-08",
  "P1-10", "P1-11", "P1-12", "P1-13", "P1-15", "P1-16", "P1-18", "P1-19",
  "P1-21", "P1-22", "P1-23", "P1-24", "P1-26",
}

// Line is one line descriptor: static config plus debounce state.
type Line struct {
  Pin       int
  Direction Direction

  // input
  RisingName  string
  FallingName string
  OneName     string
  ZeroName    string
  Repeat      int // ticks between level callbacks, -1 disables
  Threshold   int
  Pull        Pull

  // output
  Name string

  count       int
  pressed     bool
  last        bool
  repeatCount int
}

// Pressed is the debounced state (true while the line reads active/0).
func (l *Line) Pressed() bool { return l.pressed }

func (l *Line) reset() {
  l.count = 0
  l.pressed = false
  l.last = false
  l.repeatCount = l.Repeat
}

func (l *Line) rearm() {
  if l.Repeat == -1 {
    // one level callback per edge, on this tick
    l.repeatCount = 0
    return
  }
  l.repeatCount = l.Repeat
}

// sample feeds one raw reading through debounce, edge and level detection.
func (l *Line) sample(raw int, emit func(Event)) {
  if raw == 0 {
    if l.count < l.Threshold {
      l.count++
      if l.count == l.Threshold {
        l.pressed = true
      }
    }
  } else {
    if l.count > 0 {
      l.count--
      if l.count == 0 {
        l.pressed = false
      }
    }
  }

  if l.pressed && !l.last {
    l.last = true
    l.rearm()
    if l.FallingName != "" {
      emit(Event{Name: l.FallingName, Source: SourceFalling})
    }
  }
  if !l.pressed && l.last {
    l.last = false
    l.rearm()
    if l.RisingName != "" {
      emit(Event{Name: l.RisingName, Source: SourceRising})
    }
  }

  if l.repeatCount == 0 {
    if l.pressed && l.ZeroName != "" {
      emit(Event{Name: l.ZeroName, Source: SourceZero})
    }
    if !l.pressed && l.OneName != "" {
      emit(Event{Name: l.OneName, Source: SourceOne})
    }
    l.repeatCount = l.Repeat
  } else if l.Repeat != -1 {
    l.repeatCount--
  }
} // func (l *Line) sample(raw int, emit func(Event))


// LineTable owns every line descriptor, in header order.
type LineTable struct {
  Lines []*Line
}

// output finds the output line called name.
func (t *LineTable) output(name string) *Line {
  for _, l := range t.Lines {
    if l.Direction == DirOut && l.Name == name {
      return l
    }
  }
  return nil
}

// Validate rejects duplicate output names, unknown reserved names and bad
// thresholds.
func (t *LineTable) Validate(file string) error {
  outputs := make(map[string]int)
  for _, l := range t.Lines {
    switch l.Direction {
    case DirIn:
      if l.Threshold < 1 {
        return configErrorf(file, "P1-%02d: threshold must be at least 1", l.Pin)
      }
      if l.Repeat < -1 {
        return configErrorf(file, "P1-%02d: repeat must be -1 or more", l.Pin)
      }
      for _, n := range []string{l.RisingName, l.FallingName, l.OneName, l.ZeroName} {
        if err := checkEventName(n); err != nil {
          return &ConfigError{File: file, Msg: fmt.Sprintf("P1-%02d", l.Pin), Err: err}
        }
      }
    case DirOut:
      if l.Name == "" {
        return configErrorf(file, "P1-%02d: output has no name", l.Pin)
      }
      if prev, dup := outputs[l.Name]; dup {
        return configErrorf(file, "output name %q used by P1-%02d and P1-%02d", l.Name, prev, l.Pin)
      }
      outputs[l.Name] = l.Pin
    }
  }
  return nil
} // func (t *LineTable) Validate(file string) error


// LoadLines reads gpio.cfg. A missing pin section leaves that pin unused.
func LoadLines(path string) (*LineTable, error) {
  cfg, err := ini.Load(path)
  if err != nil {
    return nil, &ConfigError{File: path, Msg: "cannot read line configuration", Err: err}
  }

  known := make(map[string]bool, len(boardPins))
  for _, p := range boardPins {
    known[p] = true
  }
  for _, sec := range cfg.Sections() {
    if sec.Name() == ini.DefaultSection {
      continue
    }
    if !known[sec.Name()] {
      return nil, configErrorf(path, "unknown pin section [%s]", sec.Name())
    }
  }

  table := &LineTable{}
  for _, p := range boardPins {
    num, _ := strconv.Atoi(strings.TrimPrefix(p, "P1-"))
    l := &Line{Pin: num, Direction: DirNone, Repeat: -1}

    sec, err := cfg.GetSection(p)
    if err != nil {
      dbg("[gpio] no pin definition for %s", p)
      table.Lines = append(table.Lines, l)
      continue
    }

    switch dir := sec.Key("direction").String(); dir {
    case "", "none":
      l.Direction = DirNone
    case "in":
      l.Direction = DirIn
      l.RisingName = sec.Key("rising-name").String()
      l.FallingName = sec.Key("falling-name").String()
      l.OneName = sec.Key("one-name").String()
      l.ZeroName = sec.Key("zero-name").String()
      if v := sec.Key("repeat").String(); v != "" {
        n, err := strconv.Atoi(v)
        if err != nil {
          return nil, configErrorf(path, "[%s] repeat %q is not a number", p, v)
        }
        l.Repeat = n
      }
      n, err := strconv.Atoi(sec.Key("threshold").String())
      if err != nil {
        return nil, configErrorf(path, "[%s] threshold missing or not a number", p)
      }
      l.Threshold = n
      switch pud := sec.Key("pull-up-down").String(); pud {
      case "up":
        l.Pull = PullUp
      case "down":
        l.Pull = PullDown
      case "", "none":
        l.Pull = PullNone
      default:
        return nil, configErrorf(path, "[%s] pull-up-down %q not up, down or none", p, pud)
      }
    case "out":
      l.Direction = DirOut
      l.Name = sec.Key("name").String()
    default:
      return nil, configErrorf(path, "[%s] direction %q not in, out or none", p, dir)
    }
    table.Lines = append(table.Lines, l)
  }

  if err := table.Validate(path); err != nil {
    return nil, err
  }
  log.Printf("[gpio] line configuration read from %s", path)
  return table, nil
} // func LoadLines(path string) (*LineTable, error)


// PinIO is raw pin access. Levels are 0/1 for reads, true = high for writes.
type PinIO interface {
  SetupInput(pin int, pull Pull) error
  SetupOutput(pin int) error
  Read(pin int) int
  Write(pin int, high bool) error
  Close() error
}

// Conditioner polls input lines and drives output lines.
type Conditioner struct {
  table *LineTable
  io    PinIO
  emit  func(Event)

  poll       *Timer
  terminated bool
}

// NewConditioner configures every line on io and resets the debounce state.
// Outputs start inactive.
func NewConditioner(table *LineTable, io PinIO, emit func(Event)) (*Conditioner, error) {
  for _, l := range table.Lines {
    switch l.Direction {
    case DirIn:
      if err := io.SetupInput(l.Pin, l.Pull); err != nil {
        return nil, fmt.Errorf("setup input P1-%02d: %w", l.Pin, err)
      }
    case DirOut:
      if err := io.SetupOutput(l.Pin); err != nil {
        return nil, fmt.Errorf("setup output P1-%02d: %w", l.Pin, err)
      }
      if err := io.Write(l.Pin, false); err != nil {
        return nil, fmt.Errorf("reset output P1-%02d: %w", l.Pin, err)
      }
    }
    l.reset()
  }
  return &Conditioner{table: table, io: io, emit: emit}, nil
} // func NewConditioner(...)


// Start polls every period on the loop.
func (c *Conditioner) Start(r *Reactor, period time.Duration) {
  c.poll = r.Every(period, c.Tick)
}

// Tick samples every input line once, in declaration order. It stops as
// soon as an emitted event has terminated the conditioner.
func (c *Conditioner) Tick() {
  for _, l := range c.table.Lines {
    if c.terminated {
      return
    }
    if l.Direction != DirIn {
      continue
    }
    l.sample(c.io.Read(l.Pin), c.send)
  }
}

// send drops events once the conditioner is terminated.
func (c *Conditioner) send(ev Event) {
  if !c.terminated {
    c.emit(ev)
  }
}

// ShutdownPressed reports whether the line that raises pp-shutdown is held.
// It is the hardware confirmation for a delayed shutdown.
func (c *Conditioner) ShutdownPressed() bool {
  for _, l := range c.table.Lines {
    if l.Direction == DirIn && l.FallingName == EventShutdown {
      return l.pressed
    }
  }
  return false
}

// SetLine drives the output line configured as name.
func (c *Conditioner) SetLine(name string, on bool) error {
  l := c.table.output(name)
  if l == nil {
    return fmt.Errorf("%w: %s", ErrUnknownOutput, name)
  }
  return c.io.Write(l.Pin, on)
}

// HandleOutputEvent executes an output event from the animation sequencer
// or OSC. Only "state" parameters with on/off values are understood.
func (c *Conditioner) HandleOutputEvent(name, paramType string, values []string, req time.Time) error {
  if paramType != "state" {
    return fmt.Errorf("%w: gpio does not handle %q", ErrBadOutputEvent, paramType)
  }
  if len(values) == 0 {
    return fmt.Errorf("%w: no state for %s", ErrBadOutputEvent, name)
  }
  on := values[0] == "on"
  l := c.table.output(name)
  if l == nil {
    return fmt.Errorf("%w: %s", ErrUnknownOutput, name)
  }
  sent := time.Now()
  if err := c.io.Write(l.Pin, on); err != nil {
    return err
  }
  if !req.IsZero() {
    log.Printf("[gpio] pin P1-%02d set %v required at %s sent at %s (late %s)",
      l.Pin, on, req.Format("15:04:05.000"), sent.Format("15:04:05.000"), sent.Sub(req).Round(time.Millisecond))
  } else {
    log.Printf("[gpio] pin P1-%02d set %v", l.Pin, on)
  }
  return nil
} // func (c *Conditioner) HandleOutputEvent(...)


// ResetOutputs drives every output line inactive.
func (c *Conditioner) ResetOutputs() {
  for _, l := range c.table.Lines {
    if l.Direction == DirOut {
      if err := c.io.Write(l.Pin, false); err != nil {
        log.Printf("[gpio] reset P1-%02d: %v", l.Pin, err)
      }
    }
  }
}

// Terminate cancels polling, forces outputs inactive, then releases the pins.
// Only the first call does anything.
func (c *Conditioner) Terminate() {
  if c.terminated {
    return
  }
  c.terminated = true
  c.poll.Cancel()
  log.Printf("[gpio] reset outputs")
  c.ResetOutputs()
  if err := c.io.Close(); err != nil {
    log.Printf("[gpio] close: %v", err)
  }
} // func (c *Conditioner) Terminate()
