package main

import (
  "fmt"
  "log"
  "strconv"

  "gitlab.com/gomidi/midi/v2"
  "gitlab.com/gomidi/midi/v2/drivers"
  "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
  "gopkg.in/ini.v1"
)

// MIDIConfig is midi.cfg: [midi] port, [notes] <note> = <symbol>.
type MIDIConfig struct {
  Port  string
  Notes map[uint8]string
}

func LoadMIDIConfig(path string) (MIDIConfig, error) {
  cfg, err := ini.Load(path)
  if err != nil {
    return MIDIConfig{}, &ConfigError{File: path, Msg: "cannot read midi configuration", Err: err}
  }
  mc := MIDIConfig{Notes: make(map[uint8]string)}
  mc.Port = cfg.Section("midi").Key("port").String()
  if mc.Port == "" {
    return mc, configErrorf(path, "[midi] port not set")
  }
  for _, k := range cfg.Section("notes").Keys() {
    n, err := strconv.Atoi(k.Name())
    if err != nil || n < 0 || n > 127 {
      return mc, configErrorf(path, "[notes] %q is not a note number", k.Name())
    }
    if err := checkEventName(k.String()); err != nil {
      return mc, &ConfigError{File: path, Msg: "note " + k.Name(), Err: err}
    }
    mc.Notes[uint8(n)] = k.String()
  }
  return mc, nil
} // func LoadMIDIConfig(path string) (MIDIConfig, error)


// MIDIDriver turns note-on messages into events.
type MIDIDriver struct {
  cfg  MIDIConfig
  sink Sink

  drv  *rtmididrv.Driver
  in   drivers.In
  stop func()
}

func NewMIDIDriver(cfg MIDIConfig, sink Sink) *MIDIDriver {
  return &MIDIDriver{cfg: cfg, sink: sink}
}

func (m *MIDIDriver) Name() string { return "midi" }

// note maps a note-on to its event, if any.
func (m *MIDIDriver) note(msg midi.Message) (Event, bool) {
  var ch, key, vel uint8
  if !msg.GetNoteStart(&ch, &key, &vel) {
    return Event{}, false
  }
  sym, ok := m.cfg.Notes[key]
  if !ok {
    dbg("[midi] note %d on channel %d not mapped", key, ch)
    return Event{}, false
  }
  return Event{Name: sym, Source: SourceMIDI}, true
}

func (m *MIDIDriver) Start() error {
  drv, err := rtmididrv.New()
  if err != nil {
    return fmt.Errorf("rtmididrv: %w", err)
  }
  m.drv = drv
  ins, err := drv.Ins()
  if err != nil {
    return fmt.Errorf("midi inputs: %w", err)
  }
  for _, in := range ins {
    if in.String() == m.cfg.Port {
      m.in = in
      break
    }
  }
  if m.in == nil {
    return fmt.Errorf("midi input %q not found", m.cfg.Port)
  }
  if err := m.in.Open(); err != nil {
    return fmt.Errorf("open %q: %w", m.cfg.Port, err)
  }

  stop, err := midi.ListenTo(m.in, func(msg midi.Message, _ int32) {
    if ev, ok := m.note(msg); ok {
      m.sink.PostEvent(ev)
    }
  }, midi.HandleError(func(err error) {
    log.Printf("[midi] %s: %v", m.cfg.Port, err)
  }))
  if err != nil {
    _ = m.in.Close()
    return fmt.Errorf("listen %q: %w", m.cfg.Port, err)
  }
  m.stop = stop
  log.Printf("[midi] listening on %s", m.cfg.Port)
  return nil
} // func (m *MIDIDriver) Start() error


func (m *MIDIDriver) Terminate() {
  if m.stop != nil {
    m.stop()
    m.stop = nil
  }
  if m.in != nil {
    _ = m.in.Close()
    m.in = nil
  }
  if m.drv != nil {
    m.drv.Close()
    m.drv = nil
  }
}
