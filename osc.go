package main

import (
  "fmt"
  "log"
  "net"
  "strings"

  "github.com/google/shlex"
  "github.com/hypebeast/go-osc/osc"
  "gopkg.in/ini.v1"
)

// OSCConfig is osc.cfg.
type OSCConfig struct {
  Unit       string
  ListenPort int
  EgressIP   string
  EgressPort int
}

// LoadOSCConfig reads [this-unit] and the optional [egress] section.
func LoadOSCConfig(path string) (OSCConfig, error) {
  cfg, err := ini.Load(path)
  if err != nil {
    return OSCConfig{}, &ConfigError{File: path, Msg: "cannot read osc configuration", Err: err}
  }
  var oc OSCConfig
  unit, err := cfg.GetSection("this-unit")
  if err != nil {
    return oc, configErrorf(path, "no [this-unit] section")
  }
  oc.Unit = unit.Key("name").MustString("kiosk")
  if oc.ListenPort, err = unit.Key("listen-port").Int(); err != nil {
    return oc, configErrorf(path, "[this-unit] listen-port missing or not a number")
  }
  if eg, err := cfg.GetSection("egress"); err == nil {
    oc.EgressIP = eg.Key("ip").String()
    if oc.EgressPort, err = eg.Key("port").Int(); err != nil {
      return oc, configErrorf(path, "[egress] port missing or not a number")
    }
  }
  return oc, nil
} // func LoadOSCConfig(path string) (OSCConfig, error)


// OSCDriver listens for /<unit>/core/... messages and sends egress lines.
type OSCDriver struct {
  cfg    OSCConfig
  sink   Sink
  output func(line string)

  conn   net.PacketConn
  client *osc.Client
}

// NewOSCDriver wires an OSC listener. output receives /core/output lines as
// animation lines with zero delay.
func NewOSCDriver(cfg OSCConfig, sink Sink, output func(string)) *OSCDriver {
  d := &OSCDriver{cfg: cfg, sink: sink, output: output}
  if cfg.EgressIP != "" && cfg.EgressPort > 0 {
    d.client = osc.NewClient(cfg.EgressIP, cfg.EgressPort)
  }
  return d
}

func (d *OSCDriver) Name() string { return "osc" }

func (d *OSCDriver) addr(verb string) string {
  return fmt.Sprintf("/%s/core/%s", d.cfg.Unit, verb)
}

// oscArgs renders message arguments as strings.
func oscArgs(msg *osc.Message) []string {
  args := make([]string, 0, len(msg.Arguments))
  for _, a := range msg.Arguments {
    args = append(args, fmt.Sprint(a))
  }
  return args
}

// handlers maps each core verb to its action.
func (d *OSCDriver) handlers() map[string]func(args []string) {
  cmd := func(verb string) func([]string) {
    return func(args []string) {
      d.sink.PostCommand(strings.TrimSpace(verb+" "+strings.Join(args, " ")), SourceOSC)
    }
  }
  return map[string]func([]string){
    "open":           cmd("open"),
    "close":          cmd("close"),
    "monitor":        cmd("monitor"),
    "exitpipresents": cmd("exitpipresents"),
    "shutdownnow":    cmd("shutdownnow"),
    "event": func(args []string) {
      if len(args) == 0 {
        log.Printf("[osc] event without a name")
        return
      }
      d.sink.PostEvent(Event{Name: args[0], Source: SourceOSC})
    },
    "command": func(args []string) {
      d.sink.PostCommand(strings.Join(args, " "), SourceOSC)
    },
    "output": func(args []string) {
      if len(args) < 3 {
        log.Printf("[osc] output wants <name> <param-type> <values...>")
        return
      }
      d.output("0 " + strings.Join(args, " "))
    },
  }
} // func (d *OSCDriver) handlers() map[string]func(args []string)


func (d *OSCDriver) Start() error {
  disp := osc.NewStandardDispatcher()
  for verb, fn := range d.handlers() {
    fn := fn
    if err := disp.AddMsgHandler(d.addr(verb), func(msg *osc.Message) {
      dbg("[osc] %s %v", msg.Address, msg.Arguments)
      fn(oscArgs(msg))
    }); err != nil {
      return fmt.Errorf("osc handler %s: %w", verb, err)
    }
  }

  conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", d.cfg.ListenPort))
  if err != nil {
    return fmt.Errorf("osc listen: %w", err)
  }
  d.conn = conn
  server := &osc.Server{Dispatcher: disp}
  go func() {
    if err := server.Serve(conn); err != nil {
      dbg("[osc] server stopped: %v", err)
    }
  }()
  log.Printf("[osc] listening on %s as /%s", conn.LocalAddr(), d.cfg.Unit)
  return nil
} // func (d *OSCDriver) Start() error


// Send forwards a /-prefixed command line as one OSC message: the first
// word is the address, the rest are string arguments.
func (d *OSCDriver) Send(line string) error {
  if d.client == nil {
    return fmt.Errorf("osc egress not configured")
  }
  fields, err := shlex.Split(line)
  if err != nil {
    return fmt.Errorf("osc egress %q: %w", line, err)
  }
  if len(fields) == 0 {
    return nil
  }
  msg := osc.NewMessage(fields[0])
  for _, a := range fields[1:] {
    msg.Append(a)
  }
  dbg("[osc] send %s %v", fields[0], fields[1:])
  return d.client.Send(msg)
} // func (d *OSCDriver) Send(line string) error


func (d *OSCDriver) Terminate() {
  if d.conn != nil {
    d.conn.Close()
    d.conn = nil
  }
}
