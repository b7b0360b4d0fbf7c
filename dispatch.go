package main

import (
  "errors"
  "fmt"
  "log"
  "os/exec"
  "strings"
  "time"

  "github.com/google/shlex"
)

var defaultShutdownCmd = []string{"sudo", "shutdown", "now", "SHUTTING DOWN"}

// Runner runs an external command to completion.
type Runner func(name string, args ...string) error

func execRunner(name string, args ...string) error {
  out, err := exec.Command(name, args...).CombinedOutput()
  if err != nil && len(out) > 0 {
    return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
  }
  return err
}

// Driver is an input source that feeds the kiosk.
type Driver interface {
  Name() string
  Start() error
  Terminate()
}

// statusNotifier is a driver that publishes the kiosk's state.
type statusNotifier interface {
  Notify(status string)
}

// Sink is how drivers on their own goroutines hand input to the loop.
type Sink interface {
  PostEvent(ev Event)
  PostCommand(line string, source Source)
}

// Kiosk is the event dispatcher: every symbolic event and command line
// enters here. Loop goroutine only, except the Post* methods.
type Kiosk struct {
  loop    *Reactor
  shows   *ShowManager
  cascade *Cascade
  anim    *Animator
  gpio    *Conditioner
  egress  func(line string) error
  drivers []Driver

  run         Runner
  shutdownCmd []string
  startShows  []string

  exitCode int
  ended    bool
}

// NewKiosk builds the registry and cascade for sl. run is used for the
// monitor and shutdown commands.
func NewKiosk(loop *Reactor, sl *ShowList, factories map[string]ShowFactory, run Runner) (*Kiosk, error) {
  if run == nil {
    run = execRunner
  }
  k := &Kiosk{
    loop:        loop,
    run:         run,
    shutdownCmd: defaultShutdownCmd,
    startShows:  sl.StartShows,
    exitCode:    ExitNormal,
  }
  k.anim = NewAnimator(k.HandleOutputEvent, loop.Now)

  hooks := ShowHooks{
    Command: func(line string) { k.Command(line, SourceShowControl) },
    Animate: func(tag string, lines []string) {
      _ = k.anim.Add(tag, lines)
    },
    ClearAnimate: k.anim.Clear,
  }
  shows, err := NewShowManager(sl, factories, loop, hooks, nil)
  if err != nil {
    return nil, err
  }
  k.shows = shows
  k.cascade = NewCascade(shows, loop, k.shutdownConfirmed, k.end)
  shows.SetEnded(k.cascade.AllShowsEnded)
  return k, nil
} // func NewKiosk(...)


func (k *Kiosk) SetGPIO(c *Conditioner) { k.gpio = c }
func (k *Kiosk) SetEgress(fn func(string) error) { k.egress = fn }
func (k *Kiosk) SetShutdownCommand(argv []string) { k.shutdownCmd = argv }
func (k *Kiosk) AddDriver(d Driver) { k.drivers = append(k.drivers, d) }
func (k *Kiosk) ExitCode() int { return k.exitCode }
func (k *Kiosk) Animator() *Animator { return k.anim }

// Start brings up polling and drivers, then opens the start shows. A start
// show that fails to open is logged and skipped; the kiosk keeps running.
func (k *Kiosk) Start() error {
  if k.gpio != nil {
    k.gpio.Start(k.loop, GPIOPoll)
  }
  k.anim.Start(k.loop, AnimatePoll)
  for _, d := range k.drivers {
    if err := d.Start(); err != nil {
      return fmt.Errorf("driver %s: %w", d.Name(), err)
    }
    log.Printf("[kiosk] driver %s started", d.Name())
  }
  for _, ref := range k.startShows {
    if err := k.shows.Open(ref); err != nil {
      log.Printf("[kiosk] start show %s: %v", ref, err)
    }
  }
  k.notify("started")
  return nil
} // func (k *Kiosk) Start() error


// PostEvent hands an event to the loop. Any goroutine.
func (k *Kiosk) PostEvent(ev Event) {
  k.loop.Post(func() { k.HandleInputEvent(ev) })
}

// PostCommand hands a command line to the loop. Any goroutine.
func (k *Kiosk) PostCommand(line string, source Source) {
  k.loop.Post(func() { k.Command(line, source) })
}

// PostOutput queues one animation line from OSC. Any goroutine.
func (k *Kiosk) PostOutput(line string) {
  k.loop.Post(func() {
    if err := k.anim.Add("osc", []string{line}); err != nil {
      dbg("[kiosk] osc output: %v", err)
    }
  })
}

// Abort ends a kiosk that failed to start. Whatever did open is killed.
func (k *Kiosk) Abort(err error) {
  log.Printf("[kiosk] start failed: %v", err)
  k.shows.TerminateAll()
  k.end(ReasonError, err.Error(), false)
}

// HandleInputEvent routes a symbolic event: reserved names drive the
// cascade, anything else goes to every open show.
func (k *Kiosk) HandleInputEvent(ev Event) {
  dbg("[kiosk] event %s from %s", ev.Name, ev.Source)
  switch ev.Name {
  case EventTerminate:
    k.cascade.Terminate()
  case EventShutdown:
    k.cascade.ShutdownDelayed()
  case EventShutdownNow:
    k.loop.Post(k.cascade.ShutdownNow)
  case EventExitPiPresents:
    k.loop.Post(k.cascade.Exit)
  default:
    k.shows.Broadcast(ev.Name)
  }
} // func (k *Kiosk) HandleInputEvent(ev Event)


// Command runs a command line and logs any error. A bad command never
// stops the kiosk.
func (k *Kiosk) Command(line string, source Source) {
  if err := k.HandleCommand(line, source); err != nil {
    log.Printf("[kiosk] %s command %q: %v", source, line, err)
  }
}

// HandleCommand parses and runs one command line.
//
// Lines starting with / go to the OSC egress as they are. Global verbs come
// first. open and close are dropped once shutdown or terminate is under way.
func (k *Kiosk) HandleCommand(line string, source Source) error {
  line = strings.TrimSpace(line)
  if line == "" {
    return nil
  }
  if strings.HasPrefix(line, "/") {
    if k.egress == nil {
      dbg("[kiosk] no egress, dropped %q", line)
      return nil
    }
    return k.egress(line)
  }

  fields, err := shlex.Split(line)
  if err != nil {
    return fmt.Errorf("%w: %v", ErrUnknownCommand, err)
  }
  if len(fields) == 0 {
    return nil
  }
  verb, args := fields[0], fields[1:]
  arg := ""
  if len(args) > 0 {
    arg = args[0]
  }

  switch verb {
  case "terminate":
    k.cascade.Terminate()
  case "shutdown":
    k.cascade.ShutdownDelayed()
  case "shutdownnow":
    k.loop.Post(k.cascade.ShutdownNow)
  case "exitpipresents", "exit":
    k.loop.Post(k.cascade.Exit)

  case "open", "close":
    if arg == "" {
      return fmt.Errorf("%s needs a show ref", verb)
    }
    if k.cascade.Blocking() {
      dbg("[kiosk] %s %s dropped, ending", verb, arg)
      return nil
    }
    if verb == "open" {
      return k.shows.Open(arg)
    }
    return k.shows.Close(arg)

  case "monitor":
    switch arg {
    case "on":
      return k.monitor(true)
    case "off":
      return k.monitor(false)
    }
    return fmt.Errorf("monitor wants on or off, got %q", arg)

  case "event":
    if arg == "" {
      return errors.New("event needs a name")
    }
    k.HandleInputEvent(Event{Name: arg, Source: SourceShowControl})

  default:
    return fmt.Errorf("%w: %s", ErrUnknownCommand, verb)
  }
  return nil
} // func (k *Kiosk) HandleCommand(line string, source Source) error


// HandleOutputEvent drives an output line for the sequencer or OSC.
func (k *Kiosk) HandleOutputEvent(name, paramType string, values []string, req time.Time) error {
  if k.gpio == nil {
    return fmt.Errorf("%w: %s (gpio disabled)", ErrUnknownOutput, name)
  }
  return k.gpio.HandleOutputEvent(name, paramType, values, req)
}

func (k *Kiosk) monitor(on bool) error {
  arg := "0"
  if on {
    arg = "1"
  }
  log.Printf("[kiosk] monitor %v", on)
  return k.run("vcgencmd", "display_power", arg)
}

func (k *Kiosk) shutdownConfirmed() bool {
  return k.gpio != nil && k.gpio.ShutdownPressed()
}

// Status is the reply to the status verb.
func (k *Kiosk) Status() []string {
  running := k.shows.Running()
  shows := "none"
  if len(running) > 0 {
    shows = strings.Join(running, ",")
  }
  return []string{
    k.cascade.Status(),
    "shows=" + shows,
  }
}

func (k *Kiosk) notify(status string) {
  for _, d := range k.drivers {
    if n, ok := d.(statusNotifier); ok {
      n.Notify(status)
    }
  }
}

// end is the cascade's final callback.
func (k *Kiosk) end(reason Reason, msg string, shutdown bool) {
  if k.ended {
    return
  }
  k.ended = true
  k.exitCode = ExitCode(reason)
  log.Printf("[kiosk] ending: %s %s (exit %d)", reason, msg, k.exitCode)
  k.tidyUp(reason)

  if shutdown && len(k.shutdownCmd) > 0 {
    log.Printf("[kiosk] running %s", strings.Join(k.shutdownCmd, " "))
    if err := k.run(k.shutdownCmd[0], k.shutdownCmd[1:]...); err != nil {
      log.Printf("[kiosk] shutdown: %v", err)
    }
  }
  k.loop.Stop()
} // func (k *Kiosk) end(reason Reason, msg string, shutdown bool)


// tidyUp releases everything in a fixed order. Hardware goes before the
// network drivers so outputs are low even if a driver hangs.
func (k *Kiosk) tidyUp(reason Reason) {
  if err := k.monitor(true); err != nil {
    dbg("[kiosk] monitor on: %v", err)
  }
  k.anim.Terminate()
  if k.gpio != nil {
    k.gpio.Terminate()
  }
  k.notify("ending " + string(reason))
  for _, d := range k.drivers {
    d.Terminate()
    dbg("[kiosk] driver %s terminated", d.Name())
  }
} // func (k *Kiosk) tidyUp(reason Reason)
