package main

import (
  "fmt"
  "log"
  "os/exec"
  "sync"
  "sync/atomic"
  "syscall"
  "time"
)

// showBase holds what every show kind needs.
type showBase struct {
  def         *ShowDef
  closeEvents map[string]bool
  exited      func(Reason, string)
  once        sync.Once
}

func newShowBase(def *ShowDef, exited func(Reason, string)) showBase {
  b := showBase{def: def, exited: exited, closeEvents: make(map[string]bool)}
  for _, n := range def.CloseEvents {
    b.closeEvents[n] = true
  }
  return b
}

// report delivers the exit once; later calls are dropped.
func (b *showBase) report(reason Reason, msg string) {
  b.once.Do(func() {
    b.exited(reason, msg)
  })
}

// ---- hold ----

// holdShow plays nothing. It stays open until closed, terminated, a close
// event arrives, or its duration runs out.
type holdShow struct {
  showBase
  timer *Timer
}

func newHoldShow(loop *Reactor) ShowFactory {
  return func(def *ShowDef, exited func(Reason, string)) (Show, error) {
    s := &holdShow{showBase: newShowBase(def, exited)}
    if def.Duration > 0 {
      d := time.Duration(def.Duration * float64(time.Second))
      s.timer = loop.After(d, func() {
        s.timer = nil
        s.report(ReasonNormal, "duration elapsed")
      })
    }
    return s, nil
  }
} // func newHoldShow(loop *Reactor) ShowFactory


func (s *holdShow) HandleInputEvent(name string) {
  if s.closeEvents[name] {
    s.Close()
  }
}

func (s *holdShow) Close() {
  s.timer.Cancel()
  s.report(ReasonNormal, "closed")
}

func (s *holdShow) Terminate() {
  s.timer.Cancel()
  s.report(ReasonKilled, "terminated")
}

// ---- player ----

// playerShow runs one external player process for its lifetime.
type playerShow struct {
  showBase
  cmd     *exec.Cmd
  closing atomic.Bool
  killed  atomic.Bool
}

func newPlayerShow() ShowFactory {
  return func(def *ShowDef, exited func(Reason, string)) (Show, error) {
    s := &playerShow{showBase: newShowBase(def, exited)}
    s.cmd = exec.Command(def.Command[0], def.Command[1:]...)
    if err := s.cmd.Start(); err != nil {
      return nil, fmt.Errorf("start player: %w", err)
    }
    log.Printf("[player] %s started pid %d", def.Ref, s.cmd.Process.Pid)
    go s.wait()
    return s, nil
  }
} // func newPlayerShow() ShowFactory


func (s *playerShow) wait() {
  err := s.cmd.Wait()
  switch {
  case s.killed.Load():
    s.report(ReasonKilled, "player killed")
  case s.closing.Load():
    s.report(ReasonNormal, "player closed")
  case err != nil:
    s.report(ReasonError, fmt.Sprintf("player %s: %v", s.def.Ref, err))
  default:
    s.report(ReasonNormal, "player finished")
  }
} // func (s *playerShow) wait()


func (s *playerShow) HandleInputEvent(name string) {
  if s.closeEvents[name] {
    s.Close()
  }
}

func (s *playerShow) Close() {
  if s.closing.Swap(true) {
    return
  }
  if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
    dbg("[player] %s sigterm: %v", s.def.Ref, err)
  }
}

func (s *playerShow) Terminate() {
  s.killed.Store(true)
  if err := s.cmd.Process.Kill(); err != nil {
    dbg("[player] %s kill: %v", s.def.Ref, err)
  }
}
