package main

import (
  "log"
  "strings"
  "time"
)

// Phase of the termination cascade. It only moves forward.
type Phase int

const (
  PhaseRunning Phase = iota
  PhaseEnding
  PhaseDraining
  PhaseDone
)

func (p Phase) String() string {
  switch p {
  case PhaseRunning:
    return "running"
  case PhaseEnding:
    return "ending"
  case PhaseDraining:
    return "draining"
  default:
    return "done"
  }
}

// ShutdownConfirmDelay is how long a delayed shutdown waits before checking
// the hardware confirmation again.
const ShutdownConfirmDelay = 5 * time.Second

type endFlag int

const (
  flagNone endFlag = iota
  flagShutdown
  flagTerminate
  flagExit
)

// showSet is what the cascade needs from the registry.
type showSet interface {
  AllExited() bool
  ExitAll()
  TerminateAll() int
}

// Cascade turns one terminate/shutdown/exit request into per-show exit
// signals and fires onDone once every show has confirmed its exit.
// Loop goroutine only.
type Cascade struct {
  shows   showSet
  loop    *Reactor
  confirm func() bool
  onDone  func(reason Reason, msg string, shutdown bool)

  phase              Phase
  shutdownRequested  bool
  terminateRequested bool
  exitRequested      bool
  first              endFlag

  delay *Timer
}

// NewCascade wires a cascade over shows. confirm reports whether the
// hardware shutdown signal is still held; nil means never confirmed.
func NewCascade(shows showSet, loop *Reactor, confirm func() bool, onDone func(Reason, string, bool)) *Cascade {
  if confirm == nil {
    confirm = func() bool { return false }
  }
  return &Cascade{
    shows:   shows,
    loop:    loop,
    confirm: confirm,
    onDone:  onDone,
  }
} // func NewCascade(...)


func (c *Cascade) Phase() Phase { return c.phase }

// Ending reports whether any end flag is set.
func (c *Cascade) Ending() bool {
  return c.shutdownRequested || c.terminateRequested || c.exitRequested
}

// Blocking reports whether open/close commands must be dropped.
func (c *Cascade) Blocking() bool {
  return c.shutdownRequested || c.terminateRequested
}

func (c *Cascade) ShutdownRequested() bool { return c.shutdownRequested }

// Status is a one-line summary for the IPC status verb.
func (c *Cascade) Status() string {
  var flags []string
  if c.shutdownRequested {
    flags = append(flags, "shutdown")
  }
  if c.terminateRequested {
    flags = append(flags, "terminate")
  }
  if c.exitRequested {
    flags = append(flags, "exit")
  }
  s := "phase=" + c.phase.String()
  if len(flags) > 0 {
    s += " flags=" + strings.Join(flags, ",")
  }
  return s
}

// set raises flag and records it if it is the first. Reports whether it
// was newly set.
func (c *Cascade) set(f endFlag) bool {
  var p *bool
  switch f {
  case flagShutdown:
    p = &c.shutdownRequested
  case flagTerminate:
    p = &c.terminateRequested
  case flagExit:
    p = &c.exitRequested
  }
  if *p {
    return false
  }
  *p = true
  if c.first == flagNone {
    c.first = f
  }
  if c.phase == PhaseRunning {
    c.phase = PhaseEnding
  }
  return true
} // func (c *Cascade) set(f endFlag) bool


// Terminate hard-terminates every open show. With nothing open there is
// nothing to wait for, so the cascade ends at once with reason killed.
// A repeat while draining re-sends terminate to whatever is still open.
func (c *Cascade) Terminate() {
  if c.phase == PhaseDone {
    return
  }
  if !c.set(flagTerminate) {
    n := c.shows.TerminateAll()
    log.Printf("[cascade] terminate repeated, re-sent to %d shows", n)
    return
  }
  log.Printf("[cascade] terminate requested")
  if c.shows.AllExited() {
    c.finish(ReasonKilled, "killed - no termination of shows required")
    return
  }
  n := c.shows.TerminateAll()
  c.phase = PhaseDraining
  dbg("[cascade] terminate sent to %d shows, draining", n)
} // func (c *Cascade) Terminate()


// ShutdownNow closes every show and then shuts the machine down.
func (c *Cascade) ShutdownNow() {
  c.closeAll(flagShutdown, "shutdown")
}

// Exit closes every show and then exits without shutting down.
func (c *Cascade) Exit() {
  c.closeAll(flagExit, "exit")
}

func (c *Cascade) closeAll(f endFlag, what string) {
  if c.phase == PhaseDone {
    return
  }
  if !c.set(f) {
    dbg("[cascade] %s already requested", what)
    return
  }
  log.Printf("[cascade] %s requested", what)
  if c.phase == PhaseDraining {
    // another flag already started the drain
    return
  }
  if c.shows.AllExited() {
    c.finish(ReasonNormal, "no shows running")
    return
  }
  c.shows.ExitAll()
  c.phase = PhaseDraining
} // func (c *Cascade) closeAll(f endFlag, what string)


// ShutdownDelayed waits ShutdownConfirmDelay and shuts down only if the
// confirmation signal is still held then.
func (c *Cascade) ShutdownDelayed() {
  if c.phase != PhaseRunning || c.delay != nil {
    return
  }
  log.Printf("[cascade] shutdown pending, confirm in %s", ShutdownConfirmDelay)
  c.delay = c.loop.After(ShutdownConfirmDelay, func() {
    c.delay = nil
    if !c.confirm() {
      log.Printf("[cascade] shutdown not confirmed")
      return
    }
    c.ShutdownNow()
  })
} // func (c *Cascade) ShutdownDelayed()


// AllShowsEnded is the convergence callback. Every show exit funnels here;
// it only acts once the registry reports nothing open.
func (c *Cascade) AllShowsEnded(reason Reason, msg string) {
  if c.phase == PhaseDone || !c.shows.AllExited() {
    return
  }
  if !c.Ending() && reason != ReasonKilled && reason != ReasonError {
    return
  }

  switch {
  case reason == ReasonError:
  case c.first == flagTerminate:
    reason = ReasonKilled
  case c.first == flagShutdown, c.first == flagExit:
    reason = ReasonNormal
  }
  c.finish(reason, msg)
} // func (c *Cascade) AllShowsEnded(reason Reason, msg string)


func (c *Cascade) finish(reason Reason, msg string) {
  if c.phase == PhaseDone {
    return
  }
  c.phase = PhaseDone
  c.delay.Cancel()
  c.delay = nil
  log.Printf("[cascade] done: %s %s", reason, msg)
  if c.onDone != nil {
    c.onDone(reason, msg, c.shutdownRequested && reason == ReasonNormal)
  }
} // func (c *Cascade) finish(reason Reason, msg string)
