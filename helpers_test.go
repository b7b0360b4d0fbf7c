package main

import (
  "errors"
  "strings"
  "sync"
  "testing"
  "time"
)

var zeroTime time.Time

// testClock drives a Reactor by hand.
type testClock struct {
  now time.Time
}

func newTestLoop() (*Reactor, *testClock) {
  r := NewReactor()
  c := &testClock{now: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)}
  r.now = func() time.Time { return c.now }
  return r, c
}

// settle steps until nothing is queued.
func settle(t *testing.T, r *Reactor, c *testClock) {
  t.Helper()
  for i := 0; i < 100; i++ {
    r.Step(c.now)
    if r.pending() == 0 || r.Stopped() {
      return
    }
  }
  t.Fatal("loop did not settle")
}

// advance moves the clock forward in steps and settles after each.
func advance(t *testing.T, r *Reactor, c *testClock, d, step time.Duration) {
  t.Helper()
  for end := c.now.Add(d); c.now.Before(end); {
    c.now = c.now.Add(step)
    settle(t, r, c)
  }
}

// fakeShow records what the registry asked of it. It exits only when the
// test says so, unless autoExit is set.
type fakeShow struct {
  ref        string
  exited     func(Reason, string)
  events     []string
  closes     int
  terminates int
  autoExit   bool
}

func (s *fakeShow) HandleInputEvent(name string) { s.events = append(s.events, name) }

func (s *fakeShow) Close() {
  s.closes++
  if s.autoExit {
    s.exited(ReasonNormal, "closed")
  }
}

func (s *fakeShow) Terminate() {
  s.terminates++
  if s.autoExit {
    s.exited(ReasonKilled, "terminated")
  }
}

// showFarm hands out fakeShows and keeps the latest one per ref.
type showFarm struct {
  shows    map[string]*fakeShow
  opened   []string
  autoExit bool
  broken   map[string]bool
}

func newShowFarm() *showFarm {
  return &showFarm{shows: map[string]*fakeShow{}, broken: map[string]bool{}}
}

func (f *showFarm) factory(def *ShowDef, exited func(Reason, string)) (Show, error) {
  if f.broken[def.Ref] {
    return nil, errors.New("player not installed")
  }
  s := &fakeShow{ref: def.Ref, exited: exited, autoExit: f.autoExit}
  f.shows[def.Ref] = s
  f.opened = append(f.opened, def.Ref)
  return s, nil
}

func (f *showFarm) factories() map[string]ShowFactory {
  return map[string]ShowFactory{"hold": f.factory, "player": f.factory, "audio": f.factory}
}

func testShowList(refs ...string) *ShowList {
  sl := &ShowList{}
  for _, r := range refs {
    sl.Shows = append(sl.Shows, ShowDef{Ref: r, Type: "hold"})
  }
  return sl
}

// fakeRunner records commands instead of running them.
type fakeRunner struct {
  mu   sync.Mutex
  cmds []string
}

func (f *fakeRunner) run(name string, args ...string) error {
  f.mu.Lock()
  defer f.mu.Unlock()
  f.cmds = append(f.cmds, strings.Join(append([]string{name}, args...), " "))
  return nil
}

func (f *fakeRunner) ran(cmd string) bool {
  f.mu.Lock()
  defer f.mu.Unlock()
  for _, c := range f.cmds {
    if c == cmd {
      return true
    }
  }
  return false
}

// fakeSink collects what drivers post.
type fakeSink struct {
  mu       sync.Mutex
  events   []Event
  commands []string
}

func (s *fakeSink) PostEvent(ev Event) {
  s.mu.Lock()
  defer s.mu.Unlock()
  s.events = append(s.events, ev)
}

func (s *fakeSink) PostCommand(line string, _ Source) {
  s.mu.Lock()
  defer s.mu.Unlock()
  s.commands = append(s.commands, line)
}
