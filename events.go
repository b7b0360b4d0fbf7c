package main

import (
  "errors"
  "fmt"
)

// Source tags where a symbolic event came from.
type Source string

const (
  SourceRising      Source = "rising"
  SourceFalling     Source = "falling"
  SourceOne         Source = "one"
  SourceZero        Source = "zero"
  SourceShowControl Source = "Show Control"
  SourceKeyboard    Source = "keyboard"
  SourceOSC         Source = "OSC"
  SourceMIDI        Source = "MIDI"
)

// Event is a name-only signal, already stripped of its physical origin.
type Event struct {
  Name   string
  Source Source
}

// Reserved global event names. Everything else belongs to the shows.
const (
  EventTerminate      = "pp-terminate"
  EventShutdown       = "pp-shutdown"
  EventShutdownNow    = "pp-shutdownnow"
  EventExitPiPresents = "pp-exitpipresents"
)

var reservedEvents = map[string]bool{
  EventTerminate:      true,
  EventShutdown:       true,
  EventShutdownNow:    true,
  EventExitPiPresents: true,
}

// checkEventName rejects names in the reserved pp- namespace that the core
// does not know about.
func checkEventName(name string) error {
  if len(name) > 3 && name[:3] == "pp-" && !reservedEvents[name] {
    return fmt.Errorf("unknown reserved event name %q", name)
  }
  return nil
}

// Reason is the terminal reason carried through the cascade.
type Reason string

const (
  ReasonNormal Reason = "normal"
  ReasonError  Reason = "error"
  ReasonKilled Reason = "killed"
)

// Exit codes expected by supervising launchers.
const (
  ExitNormal = 100
  ExitKilled = 101
  ExitError  = 102
)

// ExitCode maps a terminal reason to the process exit status.
func ExitCode(r Reason) int {
  switch r {
  case ReasonKilled:
    return ExitKilled
  case ReasonError:
    return ExitError
  default:
    return ExitNormal
  }
} // func ExitCode(r Reason) int


var (
  ErrUnknownShow    = errors.New("show not found in show list")
  ErrShowRunning    = errors.New("show already running")
  ErrUnknownOutput  = errors.New("unknown symbolic name for output")
  ErrUnknownCommand = errors.New("command not recognised")
  ErrBadOutputEvent = errors.New("bad output event")
)

// ConfigError is a malformed or missing configuration. Fatal at startup.
type ConfigError struct {
  File string
  Msg  string
  Err  error
}

func (e *ConfigError) Error() string {
  s := e.Msg
  if e.File != "" {
    s = e.File + ": " + s
  }
  if e.Err != nil {
    s += ": " + e.Err.Error()
  }
  return s
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(file, format string, a ...any) *ConfigError {
  return &ConfigError{File: file, Msg: fmt.Sprintf(format, a...)}
}
