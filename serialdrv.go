package main

import (
  "bufio"
  "fmt"
  "log"
  "strings"

  "go.bug.st/serial"
  "gopkg.in/ini.v1"
)

const SourceSerial Source = "serial"

// SerialConfig is serial.cfg [serial].
type SerialConfig struct {
  Port string
  Baud int
}

func LoadSerialConfig(path string) (SerialConfig, error) {
  cfg, err := ini.Load(path)
  if err != nil {
    return SerialConfig{}, &ConfigError{File: path, Msg: "cannot read serial configuration", Err: err}
  }
  sec, err := cfg.GetSection("serial")
  if err != nil {
    return SerialConfig{}, configErrorf(path, "no [serial] section")
  }
  sc := SerialConfig{
    Port: sec.Key("port").String(),
    Baud: sec.Key("baud").MustInt(9600),
  }
  if sc.Port == "" {
    return sc, configErrorf(path, "[serial] port not set")
  }
  return sc, nil
} // func LoadSerialConfig(path string) (SerialConfig, error)


// SerialDriver reads command lines from a serial control box.
type SerialDriver struct {
  cfg  SerialConfig
  sink Sink
  port serial.Port
}

func NewSerialDriver(cfg SerialConfig, sink Sink) *SerialDriver {
  return &SerialDriver{cfg: cfg, sink: sink}
}

func (s *SerialDriver) Name() string { return "serial" }

func (s *SerialDriver) Start() error {
  p, err := serial.Open(s.cfg.Port, &serial.Mode{BaudRate: s.cfg.Baud})
  if err != nil {
    return fmt.Errorf("serial open %s: %w", s.cfg.Port, err)
  }
  s.port = p
  log.Printf("[serial] %s opened at %d baud", s.cfg.Port, s.cfg.Baud)
  go s.read()
  return nil
}

func (s *SerialDriver) read() {
  sc := bufio.NewScanner(s.port)
  for sc.Scan() {
    line := strings.TrimSpace(sc.Text())
    if line == "" {
      continue
    }
    s.sink.PostCommand(line, SourceSerial)
  }
  if err := sc.Err(); err != nil {
    dbg("[serial] read: %v", err)
  }
}

func (s *SerialDriver) Terminate() {
  if s.port != nil {
    _ = s.port.Close()
    s.port = nil
  }
}
