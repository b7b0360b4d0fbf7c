package main

import (
  "fmt"
  "log"
  "os"
  "path/filepath"
  "strconv"
  "strings"
  "time"
)

type configFile struct {
  path   string
  data   string
  exists bool
} // type configFile struct

// loadConfig reads the daemon config file, ~/.config/kioskd.conf unless
// cliPath is given. A missing file is not an error.
func loadConfig(cliPath string) configFile {
  var path string

  if cliPath != "" {
    path = cliPath
  } else {
    home, err := os.UserHomeDir()
    if err != nil {
      return configFile{}
    }
    path = filepath.Join(home, ".config", "kioskd.conf")
  }

  cf := configFile{path: path}

  data, err := os.ReadFile(path)
  if err != nil {
    return cf
  }

  cf.exists = true
  cf.data = string(data)
  return cf
} // func loadConfig(cliPath string) configFile


// dumpConfig prints the config path and, when verbose, its contents.
func dumpConfig(cf configFile) {
  fmt.Fprintf(os.Stderr, "config path: %s\n", cf.path)

  if !cf.exists {
    fmt.Fprintln(os.Stderr, "config file: not found")
    return
  }

  if verbose {
    fmt.Fprintln(os.Stderr, "config contents:")
    fmt.Fprintln(os.Stderr, "-----")
    fmt.Fprint(os.Stderr, cf.data)
    if !strings.HasSuffix(cf.data, "\n") {
      fmt.Fprintln(os.Stderr)
    }
    fmt.Fprintln(os.Stderr, "-----")
  }
} // func dumpConfig(cf configFile)


// parseConfig parses key=value lines into a map. # starts a comment line.
func parseConfig(data string) map[string]string {
  cfg := make(map[string]string)

  for _, line := range strings.Split(data, "\n") {
    line = strings.TrimSpace(line)
    if line == "" || strings.HasPrefix(line, "#") {
      continue
    }

    k, v, ok := strings.Cut(line, "=")
    if !ok {
      continue
    }

    k = strings.TrimSpace(k)
    v = strings.TrimSpace(v)

    if k != "" {
      cfg[k] = v
    }
  }
  return cfg
} // func parseConfig(data string) map[string]string


// pickString applies CLI > config > env > default and logs where the value
// came from.
func pickString(name, cli string, kv map[string]string, key, env, def string) string {
  switch {
  case cli != "":
    dbg("%s set to --%s: %s", name, key, cli)
    return cli
  case kv[key] != "":
    dbg("%s set to .conf %s: %s", name, key, kv[key])
    return kv[key]
  case env != "":
    dbg("%s set to env: %s", name, env)
    return env
  }
  return def
} // func pickString(...)


// pickInt is pickString for numbers. Zero means unset.
func pickInt(name string, cli int, kv map[string]string, key string, env, def int) int {
  if cli != 0 {
    dbg("%s set to --%s: %d", name, key, cli)
    return cli
  }
  if v := kv[key]; v != "" {
    if n, err := strconv.Atoi(v); err == nil {
      dbg("%s set to .conf %s: %d", name, key, n)
      return n
    }
    log.Printf("[config] %s=%q is not a number, ignored", key, v)
  }
  if env != 0 {
    dbg("%s set to env: %d", name, env)
    return env
  }
  return def
} // func pickInt(...)


// ---- profile ----

const homeWait = 10 * time.Second

// Profile locates the files of one kiosk profile:
// <home>/pp_home/pp_profiles/<name>/.
type Profile struct {
  Home string
  Name string
  Dir  string
}

// findHome waits up to wait for <home>/pp_home to appear; a USB stick may
// still be mounting at boot.
func findHome(home string, wait time.Duration, sleep func(time.Duration)) (string, error) {
  ppHome := filepath.Join(home, "pp_home")
  deadline := wait
  for {
    if fi, err := os.Stat(ppHome); err == nil && fi.IsDir() {
      return ppHome, nil
    }
    if deadline <= 0 {
      return "", configErrorf(ppHome, "home directory not found")
    }
    log.Printf("[config] waiting for %s", ppHome)
    sleep(time.Second)
    deadline -= time.Second
  }
} // func findHome(...)


// OpenProfile finds the profile directory.
func OpenProfile(home, name string, wait time.Duration, sleep func(time.Duration)) (Profile, error) {
  if name == "" {
    return Profile{}, configErrorf("", "no profile given (-p)")
  }
  ppHome, err := findHome(home, wait, sleep)
  if err != nil {
    return Profile{}, err
  }
  dir := filepath.Join(ppHome, "pp_profiles", name)
  if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
    return Profile{}, configErrorf(dir, "profile not found")
  }
  log.Printf("[config] profile %s", dir)
  return Profile{Home: ppHome, Name: name, Dir: dir}, nil
} // func OpenProfile(...)


func (p Profile) ShowsPath() string    { return filepath.Join(p.Dir, "shows.yaml") }
func (p Profile) SchedulePath() string { return filepath.Join(p.Dir, "schedule.yaml") }

// IOConfig returns the path of an optional pp_io_config file and whether
// it exists.
func (p Profile) IOConfig(name string) (string, bool) {
  path := filepath.Join(p.Dir, "pp_io_config", name)
  fi, err := os.Stat(path)
  return path, err == nil && !fi.IsDir()
}
