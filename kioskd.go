package main

import (
  "context"
  "errors"
  "fmt"
  "log"
  "os"
  "os/signal"
  "syscall"
  "time"

  "github.com/google/shlex"
  "github.com/google/uuid"
  flag "github.com/spf13/pflag"
)

var (
  version = "dev"
  verbose bool
)

func dbg(f string, a ...any) {
  if verbose {
    log.Printf("DEBUG: "+f, a...)
  }
} // func dbg

// daemonOptions is everything the daemon needs after flag, config and
// environment precedence has been applied.
type daemonOptions struct {
  home        string
  profile     string
  noGPIO      bool
  shutdownCmd string

  socketPath string
  listenIP   string
  listenPort int
  wsPort     int

  mpd MPDConfig
}

// fatal reports a startup failure and returns the exit code for it.
func fatal(err error) int {
  var ce *ConfigError
  if errors.As(err, &ce) {
    fmt.Fprintf(os.Stderr, "kioskd: configuration error: %v\n", err)
  } else {
    fmt.Fprintf(os.Stderr, "kioskd: %v\n", err)
  }
  log.Printf("[kioskd] %v", err)
  return ExitError
}

// runDaemon builds the kiosk from the profile, runs the loop and returns
// the process exit code.
func runDaemon(o daemonOptions) int {
  runID := uuid.NewString()
  log.Printf("[kioskd] version %s run %s", version, runID)

  prof, err := OpenProfile(o.home, o.profile, homeWait, time.Sleep)
  if err != nil {
    return fatal(err)
  }
  sl, err := LoadShowList(prof.ShowsPath())
  if err != nil {
    return fatal(err)
  }

  loop := NewReactor()
  factories := map[string]ShowFactory{
    "hold":   newHoldShow(loop),
    "player": newPlayerShow(),
    "audio":  newAudioShow(o.mpd),
  }
  k, err := NewKiosk(loop, sl, factories, execRunner)
  if err != nil {
    return fatal(err)
  }
  if o.shutdownCmd != "" {
    argv, err := shlex.Split(o.shutdownCmd)
    if err != nil {
      return fatal(configErrorf("", "shutdown command: %v", err))
    }
    k.SetShutdownCommand(argv)
  }

  // ---- signal conditioner ----
  if path, ok := prof.IOConfig("gpio.cfg"); ok && !o.noGPIO {
    table, err := LoadLines(path)
    if err != nil {
      return fatal(err)
    }
    pins, err := openRPIO()
    if err != nil {
      return fatal(err)
    }
    cond, err := NewConditioner(table, pins, k.PostEvent)
    if err != nil {
      pins.Close()
      return fatal(err)
    }
    k.SetGPIO(cond)
  }

  // ---- input drivers ----
  var keys map[string]string
  if path, ok := prof.IOConfig("keys.cfg"); ok {
    if keys, err = LoadKeys(path); err != nil {
      return fatal(err)
    }
  }
  k.AddDriver(NewKeyboard(keys, k))

  if path, ok := prof.IOConfig("osc.cfg"); ok {
    oc, err := LoadOSCConfig(path)
    if err != nil {
      return fatal(err)
    }
    d := NewOSCDriver(oc, k, k.PostOutput)
    if oc.EgressIP != "" {
      k.SetEgress(d.Send)
    }
    k.AddDriver(d)
  }

  sched, err := LoadSchedule(prof.SchedulePath())
  if err != nil {
    return fatal(err)
  }
  if len(sched.Entries) > 0 {
    k.AddDriver(NewTimeOfDay(sched, loop, k.Command))
  }

  if path, ok := prof.IOConfig("serial.cfg"); ok {
    sc, err := LoadSerialConfig(path)
    if err != nil {
      return fatal(err)
    }
    k.AddDriver(NewSerialDriver(sc, k))
  }
  if path, ok := prof.IOConfig("midi.cfg"); ok {
    mc, err := LoadMIDIConfig(path)
    if err != nil {
      return fatal(err)
    }
    k.AddDriver(NewMIDIDriver(mc, k))
  }
  if path, ok := prof.IOConfig("mqtt.cfg"); ok {
    mc, err := LoadMQTTConfig(path)
    if err != nil {
      return fatal(err)
    }
    k.AddDriver(NewMQTTDriver(mc, runID, k))
  }

  // last, so the socket goes away after everything else is down
  k.AddDriver(NewIPCServer(k, loop, o.socketPath, o.listenIP, o.listenPort, o.wsPort))

  // ---- signals ----
  sigs := make(chan os.Signal, 1)
  signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
  go func() {
    for sig := range sigs {
      log.Printf("[kioskd] %v received", sig)
      k.PostEvent(Event{Name: EventTerminate, Source: Source("signal")})
    }
  }()

  if err := k.Start(); err != nil {
    k.Abort(err)
    fmt.Fprintf(os.Stderr, "kioskd: %v\n", err)
    return k.ExitCode()
  }

  if err := loop.Run(context.Background()); err != nil {
    log.Printf("[kioskd] loop: %v", err)
  }
  signal.Stop(sigs)
  log.Printf("[kioskd] exit %d", k.ExitCode())
  return k.ExitCode()
} // func runDaemon(o daemonOptions) int


func main() {
  // ------------------------------------------------------------------
  // Shared flags (client + daemon)
  // ------------------------------------------------------------------
  var (
    configFlag  string
    logPath     string
    daemonMode  bool
    showVersion bool
    showHelp    bool
    socketFlag  string
    daemonIP    string
    daemonPort  int
    o           daemonOptions
  )

  flag.StringVarP(&o.profile, "profile", "p", "", "profile name under pp_home/pp_profiles")
  flag.StringVar(&o.home, "home", "", "directory holding pp_home (default $HOME)")
  flag.BoolVar(&o.noGPIO, "nogpio", false, "ignore gpio.cfg")
  flag.StringVar(&o.shutdownCmd, "shutdowncmd", "", "command run on a confirmed shutdown")
  flag.StringVar(&logPath, "log", "", "write logs to file instead of stderr")
  flag.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
  flag.StringVar(&configFlag, "config", "", "path to config file")
  flag.StringVar(&socketFlag, "socket", "", "kioskd IPC socket path (none disables)")
  flag.BoolVar(&showVersion, "version", false, "Print version and exit")
  flag.BoolVarP(&showHelp, "help", "h", false, "Print help and exit")
  flag.BoolVar(&daemonMode, "daemon", false, "Run as daemon")
  flag.StringVar(&o.listenIP, "listenip", "", "Daemon listen IP")
  flag.IntVar(&o.listenPort, "listenport", 0, "Daemon listen port")
  flag.IntVar(&o.wsPort, "wsport", 0, "Daemon websocket port")
  flag.StringVar(&daemonIP, "daemonip", "", "client: daemon IP to connect to")
  flag.IntVar(&daemonPort, "daemonport", 0, "client: daemon port to connect to")
  flag.StringVar(&o.mpd.Socket, "mpdsocket", "", "MPD unix socket <path>")
  flag.StringVar(&o.mpd.Host, "mpdhost", "", "MPD host <address>")
  flag.IntVar(&o.mpd.Port, "mpdport", 0, "MPD host <port>")
  flag.StringVar(&o.mpd.Pass, "mpdpass", "", "MPD server password")

  // ------------------------------------------------------------------
  // Parse flags ONCE
  // ------------------------------------------------------------------
  flag.Parse()

  cfg := loadConfig(configFlag)
  if verbose {
    dumpConfig(cfg)
  }
  kv := parseConfig(cfg.data)

  // ------------------------------------------------------------------
  // Redirect logs before anything else is logged
  // ------------------------------------------------------------------
  logPath = pickString("logPath", logPath, kv, "log", "", "")
  if logPath != "" {
    f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
    if err != nil {
      fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", logPath, err)
      os.Exit(ExitError)
    }
    log.SetOutput(f)
  }

  // ------------------------------------------------------------------
  // Apply config values with precedence: CLI > config > env > default
  // ------------------------------------------------------------------
  socketPath := pickString("socketPath", socketFlag, kv, "socket", "", defaultSocketPath)
  if socketPath == "none" {
    socketPath = ""
  }
  daemonIP = pickString("daemonIP", daemonIP, kv, "daemonip", "", defaultDaemonIP)
  daemonPort = pickInt("daemonPort", daemonPort, kv, "daemonport", 0, defaultListenPort)

  // ------------------------------------------------------------------
  // Client command handling (positional args only)
  // ------------------------------------------------------------------
  if args := flag.Args(); len(args) > 0 {
    cmd, err := clientBatch(args)
    if err == nil {
      err = sendClientCommand(cmd, socketPath, daemonIP, daemonPort)
    }
    if err != nil {
      fmt.Fprintln(os.Stderr, err)
      os.Exit(1)
    }
    return
  }

  if showVersion {
    fmt.Printf("\nkioskd binary version %s\n\n", version)
    os.Exit(0)
  }
  if showHelp {
    fmt.Printf("\nkioskd binary version %s\n\n", version)
    fmt.Println("Usage: kioskd --daemon -p <profile> [flags] or client commands")
    flag.PrintDefaults()
    return
  }

  // ------------------------------------------------------------------
  // Enforce daemon gate
  // ------------------------------------------------------------------
  if !daemonMode {
    fmt.Fprintln(os.Stderr, "Refusing to start daemon without --daemon")
    os.Exit(ExitError)
  }
  if os.Geteuid() == 0 {
    fmt.Fprintln(os.Stderr, "kioskd: do not run as root")
    os.Exit(ExitError)
  }

  env := parseMPDEnv(os.Getenv)
  home, _ := os.UserHomeDir()
  o.home = pickString("home", o.home, kv, "home", "", home)
  o.profile = pickString("profile", o.profile, kv, "profile", "", "")
  o.shutdownCmd = pickString("shutdowncmd", o.shutdownCmd, kv, "shutdowncmd", "", "")
  if !o.noGPIO && kv["nogpio"] == "true" {
    o.noGPIO = true
  }
  o.socketPath = socketPath
  o.listenIP = pickString("listenIP", o.listenIP, kv, "listenip", "", defaultListenIP)
  o.listenPort = pickInt("listenPort", o.listenPort, kv, "listenport", 0, defaultListenPort)
  o.wsPort = pickInt("wsPort", o.wsPort, kv, "wsport", 0, 0)
  o.mpd.Socket = pickString("mpdSocket", o.mpd.Socket, kv, "mpdsocket", env.Socket, "")
  o.mpd.Host = pickString("mpdHost", o.mpd.Host, kv, "mpdhost", env.Host, defaultMPDhost)
  o.mpd.Port = pickInt("mpdPort", o.mpd.Port, kv, "mpdport", env.Port, defaultMPDport)
  o.mpd.Pass = pickString("mpdPass", o.mpd.Pass, kv, "mpdpass", env.Pass, "")

  os.Exit(runDaemon(o))
} // func main()
