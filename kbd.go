package main

import (
  "log"
  "os"
  "unicode/utf8"

  "golang.org/x/term"
  "gopkg.in/ini.v1"
)

// LoadKeys reads the [keys] section of keys.cfg: key name = symbol.
func LoadKeys(path string) (map[string]string, error) {
  cfg, err := ini.Load(path)
  if err != nil {
    return nil, &ConfigError{File: path, Msg: "cannot read key map", Err: err}
  }
  keys := make(map[string]string)
  sec, err := cfg.GetSection("keys")
  if err != nil {
    return nil, configErrorf(path, "no [keys] section")
  }
  for _, k := range sec.Keys() {
    if err := checkEventName(k.String()); err != nil {
      return nil, &ConfigError{File: path, Msg: "key " + k.Name(), Err: err}
    }
    keys[k.Name()] = k.String()
  }
  return keys, nil
} // func LoadKeys(path string) (map[string]string, error)


// decodeKeys turns raw terminal bytes into key names.
func decodeKeys(b []byte) []string {
  var keys []string
  for len(b) > 0 {
    c := b[0]
    switch {
    case c == 0x1b && len(b) >= 3 && b[1] == '[':
      switch b[2] {
      case 'A':
        keys = append(keys, "Up")
      case 'B':
        keys = append(keys, "Down")
      case 'C':
        keys = append(keys, "Right")
      case 'D':
        keys = append(keys, "Left")
      }
      b = b[3:]
      continue
    case c == 0x1b:
      keys = append(keys, "Escape")
    case c == '\r' || c == '\n':
      keys = append(keys, "Return")
    case c == 0x7f || c == 0x08:
      keys = append(keys, "BackSpace")
    case c == ' ':
      keys = append(keys, "space")
    case c >= 1 && c <= 26:
      keys = append(keys, "Control-"+string(rune('a'+c-1)))
    case c < 0x20:
    default:
      r, n := utf8.DecodeRune(b)
      if r != utf8.RuneError {
        keys = append(keys, string(r))
      }
      b = b[n:]
      continue
    }
    b = b[1:]
  }
  return keys
} // func decodeKeys(b []byte) []string


// Keyboard maps key presses on the controlling terminal to events.
type Keyboard struct {
  keys  map[string]string
  sink  Sink
  in    *os.File
  saved *term.State
}

func NewKeyboard(keys map[string]string, sink Sink) *Keyboard {
  if keys == nil {
    keys = make(map[string]string)
  }
  if _, ok := keys["Control-c"]; !ok {
    keys["Control-c"] = EventTerminate
  }
  return &Keyboard{keys: keys, sink: sink, in: os.Stdin}
}

func (k *Keyboard) Name() string { return "keyboard" }

// symbol returns the event for key, or "" if it is unmapped.
func (k *Keyboard) symbol(key string) string {
  return k.keys[key]
}

func (k *Keyboard) Start() error {
  fd := int(k.in.Fd())
  if !term.IsTerminal(fd) {
    log.Printf("[keyboard] stdin is not a terminal, keys disabled")
    return nil
  }
  saved, err := term.MakeRaw(fd)
  if err != nil {
    return err
  }
  k.saved = saved
  go k.read()
  return nil
}

func (k *Keyboard) read() {
  buf := make([]byte, 32)
  for {
    n, err := k.in.Read(buf)
    if err != nil {
      return
    }
    for _, key := range decodeKeys(buf[:n]) {
      sym := k.symbol(key)
      if sym == "" {
        dbg("[keyboard] %s not mapped", key)
        continue
      }
      k.sink.PostEvent(Event{Name: sym, Source: SourceKeyboard})
    }
  }
} // func (k *Keyboard) read()


func (k *Keyboard) Terminate() {
  if k.saved == nil {
    return
  }
  if err := term.Restore(int(k.in.Fd()), k.saved); err != nil {
    log.Printf("[keyboard] restore terminal: %v", err)
  }
  k.saved = nil
}
