package main

import (
  "fmt"
  "log"
  "strconv"
  "strings"
  "time"

  "github.com/fhs/gompd/v2/mpd"
)

const (
  defaultMPDhost = "localhost"
  defaultMPDport = 6600
  mpdPingEvery   = 30 * time.Second
)

// MPDConfig says where the audio shows find MPD.
type MPDConfig struct {
  Host   string
  Port   int
  Socket string
  Pass   string
}

// parseMPDEnv reads MPD_HOST and MPD_PORT in the usual mpc formats:
// host, /socket, @abstract, password@host, password@@abstract.
func parseMPDEnv(getenv func(string) string) MPDConfig {
  var env MPDConfig
  if v := getenv("MPD_HOST"); v != "" {
    dbg("[parseMPDEnv] MPD_HOST: %s", v)
    if strings.HasPrefix(v, "@") {
      env.Socket = v
    } else if strings.Contains(v, "@@") {
      parts := strings.SplitN(v, "@@", 2)
      env.Pass = parts[0]
      env.Socket = "@" + parts[1]
    } else if strings.Contains(v, "@") {
      parts := strings.SplitN(v, "@", 2)
      env.Pass = parts[0]
      if strings.Contains(parts[1], "/") {
        env.Socket = parts[1]
      } else {
        env.Host = parts[1]
      }
    } else if strings.Contains(v, "/") {
      env.Socket = v
    } else {
      env.Host = v
    }
    if env.Socket != "" && !strings.HasPrefix(env.Socket, "/") && !strings.HasPrefix(env.Socket, "@") {
      log.Printf("[parseMPDEnv] socket assumed to be relative path: %s", env.Socket)
    }
  }

  if p := getenv("MPD_PORT"); p != "" {
    if n, err := strconv.Atoi(p); err == nil {
      env.Port = n
    } else {
      log.Printf("[parseMPDEnv] MPD_PORT %q ignored", p)
    }
  }
  return env
} // func parseMPDEnv(getenv func(string) string) MPDConfig


func (c MPDConfig) addr() (string, string) {
  if c.Socket != "" {
    return "unix", c.Socket
  }
  host, port := c.Host, c.Port
  if host == "" {
    host = defaultMPDhost
  }
  if port == 0 {
    port = defaultMPDport
  }
  return "tcp", fmt.Sprintf("%s:%d", host, port)
}

// dial returns a connected client over the socket or TCP.
func (c MPDConfig) dial() (*mpd.Client, error) {
  network, addr := c.addr()
  if c.Pass != "" {
    return mpd.DialAuthenticated(network, addr, c.Pass)
  }
  return mpd.Dial(network, addr)
}

// watcher returns an idle watcher on the player subsystem.
func (c MPDConfig) watcher() (*mpd.Watcher, error) {
  network, addr := c.addr()
  return mpd.NewWatcher(network, addr, c.Pass, "player")
}

// audioShow plays a playlist or track list on MPD. A worker goroutine owns
// the connection; the loop talks to it through ops and stop.
type audioShow struct {
  showBase
  pauseEvents map[string]bool
  paused      bool

  ops  chan func(*mpd.Client) error
  stop chan Reason
}

func newAudioShow(cfg MPDConfig) ShowFactory {
  return func(def *ShowDef, exited func(Reason, string)) (Show, error) {
    c, err := cfg.dial()
    if err != nil {
      return nil, fmt.Errorf("mpd connect: %w", err)
    }
    if err := startPlayback(c, def); err != nil {
      c.Close()
      return nil, err
    }
    w, err := cfg.watcher()
    if err != nil {
      c.Close()
      return nil, fmt.Errorf("mpd watcher: %w", err)
    }

    s := &audioShow{
      showBase:    newShowBase(def, exited),
      pauseEvents: make(map[string]bool),
      ops:         make(chan func(*mpd.Client) error, 8),
      stop:        make(chan Reason, 1),
    }
    for _, n := range def.PauseEvents {
      s.pauseEvents[n] = true
    }
    go s.run(c, w)
    return s, nil
  }
} // func newAudioShow(cfg MPDConfig) ShowFactory


func startPlayback(c *mpd.Client, def *ShowDef) error {
  if err := c.Clear(); err != nil {
    return fmt.Errorf("mpd clear: %w", err)
  }
  if def.Playlist != "" {
    if err := c.PlaylistLoad(def.Playlist, -1, -1); err != nil {
      return fmt.Errorf("mpd load %s: %w", def.Playlist, err)
    }
  }
  for _, t := range def.Tracks {
    if err := c.Add(t); err != nil {
      return fmt.Errorf("mpd add %s: %w", t, err)
    }
  }
  if err := c.Play(-1); err != nil {
    return fmt.Errorf("mpd play: %w", err)
  }
  log.Printf("[audio] %s playing", def.Ref)
  return nil
} // func startPlayback(c *mpd.Client, def *ShowDef) error


func (s *audioShow) run(c *mpd.Client, w *mpd.Watcher) {
  ping := time.NewTicker(mpdPingEvery)
  defer ping.Stop()
  defer w.Close()
  defer c.Close()

  for {
    select {
    case <-w.Event:
      attrs, err := c.Status()
      if err != nil {
        s.report(ReasonError, fmt.Sprintf("mpd status: %v", err))
        return
      }
      dbg("[audio] %s state=%s", s.def.Ref, attrs["state"])
      if attrs["state"] == "stop" {
        s.report(ReasonNormal, "playback ended")
        return
      }

    case err := <-w.Error:
      log.Printf("[audio] %s watcher: %v", s.def.Ref, err)

    case op := <-s.ops:
      if err := op(c); err != nil {
        log.Printf("[audio] %s: %v", s.def.Ref, err)
      }

    case <-ping.C:
      if err := c.Ping(); err != nil {
        s.report(ReasonError, fmt.Sprintf("mpd ping: %v", err))
        return
      }

    case reason := <-s.stop:
      if err := c.Stop(); err != nil {
        log.Printf("[audio] %s stop: %v", s.def.Ref, err)
      }
      msg := "audio closed"
      if reason == ReasonKilled {
        msg = "audio terminated"
      }
      s.report(reason, msg)
      return
    }
  }
} // func (s *audioShow) run(c *mpd.Client, w *mpd.Watcher)


func (s *audioShow) HandleInputEvent(name string) {
  switch {
  case s.closeEvents[name]:
    s.Close()
  case s.pauseEvents[name]:
    s.paused = !s.paused
    paused := s.paused
    select {
    case s.ops <- func(c *mpd.Client) error { return c.Pause(paused) }:
    default:
      log.Printf("[audio] %s busy, pause dropped", s.def.Ref)
    }
  }
}

func (s *audioShow) Close() {
  select {
  case s.stop <- ReasonNormal:
  default:
  }
}

func (s *audioShow) Terminate() {
  select {
  case s.stop <- ReasonKilled:
  default:
  }
}
