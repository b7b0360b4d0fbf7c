package main

import (
  "fmt"
  "log"
  "os"

  "gopkg.in/yaml.v3"
)

// ShowDef is one entry of shows.yaml.
type ShowDef struct {
  Ref         string   `yaml:"ref"`
  Type        string   `yaml:"type"`
  Title       string   `yaml:"title"`
  CloseEvents []string `yaml:"close-events"`

  // hold
  Duration float64 `yaml:"duration"`

  // player
  Command []string `yaml:"command"`

  // audio
  Playlist    string   `yaml:"playlist"`
  Tracks      []string `yaml:"tracks"`
  PauseEvents []string `yaml:"pause-events"`

  ShowControlBegin []string `yaml:"show-control-begin"`
  ShowControlEnd   []string `yaml:"show-control-end"`
  AnimateBegin     []string `yaml:"animate-begin"`
  AnimateEnd       []string `yaml:"animate-end"`
}

// ShowList is the whole of shows.yaml.
type ShowList struct {
  StartShows []string  `yaml:"start-shows"`
  Shows      []ShowDef `yaml:"shows"`
}

var showTypes = map[string]bool{"hold": true, "player": true, "audio": true}

// LoadShowList reads and validates a show list.
func LoadShowList(path string) (*ShowList, error) {
  data, err := os.ReadFile(path)
  if err != nil {
    return nil, &ConfigError{File: path, Msg: "cannot read show list", Err: err}
  }
  var sl ShowList
  if err := yaml.Unmarshal(data, &sl); err != nil {
    return nil, &ConfigError{File: path, Msg: "bad show list", Err: err}
  }
  if err := sl.Validate(path); err != nil {
    return nil, err
  }
  log.Printf("[shows] %d shows read from %s", len(sl.Shows), path)
  return &sl, nil
} // func LoadShowList(path string) (*ShowList, error)


// Validate checks refs, types, per-type fields, event names and start-shows.
func (sl *ShowList) Validate(file string) error {
  if len(sl.Shows) == 0 {
    return configErrorf(file, "no shows defined")
  }
  seen := make(map[string]bool)
  for i := range sl.Shows {
    d := &sl.Shows[i]
    if d.Ref == "" {
      return configErrorf(file, "show %d has no ref", i+1)
    }
    if seen[d.Ref] {
      return configErrorf(file, "duplicate show ref %q", d.Ref)
    }
    seen[d.Ref] = true
    if !showTypes[d.Type] {
      return configErrorf(file, "show %s: unknown type %q", d.Ref, d.Type)
    }
    switch d.Type {
    case "player":
      if len(d.Command) == 0 {
        return configErrorf(file, "show %s: player needs a command", d.Ref)
      }
    case "audio":
      if d.Playlist == "" && len(d.Tracks) == 0 {
        return configErrorf(file, "show %s: audio needs a playlist or tracks", d.Ref)
      }
    case "hold":
      if d.Duration < 0 {
        return configErrorf(file, "show %s: negative duration", d.Ref)
      }
    }
    for _, n := range append(append([]string{}, d.CloseEvents...), d.PauseEvents...) {
      if err := checkEventName(n); err != nil {
        return &ConfigError{File: file, Msg: "show " + d.Ref, Err: err}
      }
    }
    for _, line := range append(append([]string{}, d.AnimateBegin...), d.AnimateEnd...) {
      if _, err := ParseAnimateLine(line); err != nil {
        return &ConfigError{File: file, Msg: "show " + d.Ref, Err: err}
      }
    }
  }
  for _, ref := range sl.StartShows {
    if !seen[ref] {
      return configErrorf(file, "start show %q not in show list", ref)
    }
  }
  return nil
} // func (sl *ShowList) Validate(file string) error


// Show is a running show. exited is reported through the callback handed
// to its factory, exactly once.
type Show interface {
  HandleInputEvent(name string)
  Close()
  Terminate()
}

// ShowFactory builds and starts a show. exited may be called from any
// goroutine.
type ShowFactory func(def *ShowDef, exited func(Reason, string)) (Show, error)

type showEntry struct {
  def     *ShowDef
  show    Show
  gen     uint64
  closing bool
}

// ShowHooks are run around a show's life. Any may be nil.
type ShowHooks struct {
  Command      func(line string)
  Animate      func(tag string, lines []string)
  ClearAnimate func(tag string)
}

// ShowManager owns the registry: one entry per defined show, declaration
// order. A nil show means the entry is closed. Loop goroutine only.
type ShowManager struct {
  entries   []*showEntry
  index     map[string]*showEntry
  factories map[string]ShowFactory
  loop      *Reactor
  hooks     ShowHooks
  ended     func(Reason, string)
  gen       uint64
}

// NewShowManager builds the registry from sl. ended is the convergence
// callback, called after every show exit.
func NewShowManager(sl *ShowList, factories map[string]ShowFactory, loop *Reactor, hooks ShowHooks, ended func(Reason, string)) (*ShowManager, error) {
  m := &ShowManager{
    index:     make(map[string]*showEntry, len(sl.Shows)),
    factories: factories,
    loop:      loop,
    hooks:     hooks,
    ended:     ended,
  }
  for i := range sl.Shows {
    d := &sl.Shows[i]
    if _, ok := factories[d.Type]; !ok {
      return nil, configErrorf("", "show %s: no handler for type %q", d.Ref, d.Type)
    }
    e := &showEntry{def: d}
    m.entries = append(m.entries, e)
    m.index[d.Ref] = e
  }
  return m, nil
} // func NewShowManager(...)


// SetEnded replaces the convergence callback.
func (m *ShowManager) SetEnded(fn func(Reason, string)) { m.ended = fn }

// Open starts ref. It is an error if ref is unknown or already open.
func (m *ShowManager) Open(ref string) error {
  e, ok := m.index[ref]
  if !ok {
    return fmt.Errorf("%w: %s", ErrUnknownShow, ref)
  }
  if e.show != nil {
    return fmt.Errorf("%w: %s", ErrShowRunning, ref)
  }

  m.gen++
  gen := m.gen
  exited := func(reason Reason, msg string) {
    m.loop.Post(func() { m.showExited(e, gen, reason, msg) })
  }
  show, err := m.factories[e.def.Type](e.def, exited)
  if err != nil {
    return fmt.Errorf("open %s: %w", ref, err)
  }
  e.show = show
  e.gen = gen
  e.closing = false
  log.Printf("[shows] opened %s", ref)

  if m.hooks.Animate != nil && len(e.def.AnimateBegin) > 0 {
    m.hooks.Animate(ref, e.def.AnimateBegin)
  }
  m.control(e.def.ShowControlBegin)
  return nil
} // func (m *ShowManager) Open(ref string) error


// Close asks ref to close. The entry stays open until the show confirms.
// Closing a closed or closing show does nothing.
func (m *ShowManager) Close(ref string) error {
  e, ok := m.index[ref]
  if !ok {
    return fmt.Errorf("%w: %s", ErrUnknownShow, ref)
  }
  if e.show == nil || e.closing {
    dbg("[shows] close %s: not open", ref)
    return nil
  }
  e.closing = true
  log.Printf("[shows] closing %s", ref)
  e.show.Close()
  return nil
} // func (m *ShowManager) Close(ref string) error


// ExitAll asks every open show to close. It does not wait.
func (m *ShowManager) ExitAll() {
  for _, e := range m.entries {
    if e.show != nil && !e.closing {
      e.closing = true
      log.Printf("[shows] exit %s", e.def.Ref)
      e.show.Close()
    }
  }
}

// TerminateAll hard-terminates every open show and returns how many.
func (m *ShowManager) TerminateAll() int {
  n := 0
  for _, e := range m.entries {
    if e.show != nil {
      e.closing = true
      log.Printf("[shows] terminate %s", e.def.Ref)
      e.show.Terminate()
      n++
    }
  }
  return n
}

// AllExited is true iff no entry holds a show.
func (m *ShowManager) AllExited() bool {
  for _, e := range m.entries {
    if e.show != nil {
      return false
    }
  }
  return true
}

// Running lists the open refs in declaration order.
func (m *ShowManager) Running() []string {
  var refs []string
  for _, e := range m.entries {
    if e.show != nil {
      refs = append(refs, e.def.Ref)
    }
  }
  return refs
}

// Broadcast hands an event to every open show.
func (m *ShowManager) Broadcast(name string) {
  open := make([]Show, 0, len(m.entries))
  for _, e := range m.entries {
    if e.show != nil {
      open = append(open, e.show)
    }
  }
  for _, s := range open {
    s.HandleInputEvent(name)
  }
}

func (m *ShowManager) control(lines []string) {
  if m.hooks.Command == nil {
    return
  }
  for _, line := range lines {
    line := line
    m.loop.Post(func() { m.hooks.Command(line) })
  }
}

// showExited runs on the loop after a show reports its exit.
func (m *ShowManager) showExited(e *showEntry, gen uint64, reason Reason, msg string) {
  if e.show == nil || e.gen != gen {
    dbg("[shows] stale exit from %s ignored", e.def.Ref)
    return
  }
  e.show = nil
  e.closing = false
  log.Printf("[shows] %s exited: %s %s", e.def.Ref, reason, msg)

  if m.hooks.ClearAnimate != nil {
    m.hooks.ClearAnimate(e.def.Ref)
  }
  if m.hooks.Animate != nil && len(e.def.AnimateEnd) > 0 {
    m.hooks.Animate(e.def.Ref, e.def.AnimateEnd)
  }
  m.control(e.def.ShowControlEnd)

  if m.ended != nil {
    m.ended(reason, msg)
  }
} // func (m *ShowManager) showExited(...)
