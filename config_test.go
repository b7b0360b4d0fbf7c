package main

import (
  "errors"
  "os"
  "path/filepath"
  "testing"
  "time"
)

func TestParseConfig(t *testing.T) {
  cfg := parseConfig(`
# daemon settings
profile = lobby
 listenport=6600
bogus line
=novalue
home = /media/usb =x
`)
  want := map[string]string{
    "profile":    "lobby",
    "listenport": "6600",
    "home":       "/media/usb =x",
  }
  if len(cfg) != len(want) {
    t.Errorf("Expected %d keys, got %v", len(want), cfg)
  }
  for k, v := range want {
    if cfg[k] != v {
      t.Errorf("%s: expected %q, got %q", k, v, cfg[k])
    }
  }
}

func TestLoadConfigMissing(t *testing.T) {
  path := filepath.Join(t.TempDir(), "none.conf")
  cf := loadConfig(path)
  if cf.exists || cf.path != path {
    t.Errorf("unexpected config: %+v", cf)
  }
  cf = loadConfig(writeFile(t, "kioskd.conf", "profile=x\n"))
  if !cf.exists || cf.data != "profile=x\n" {
    t.Errorf("unexpected config: %+v", cf)
  }
}

func TestPickPrecedence(t *testing.T) {
  kv := map[string]string{"home": "/conf", "listenport": "7000", "wsport": "abc"}

  if got := pickString("home", "/cli", kv, "home", "/env", "/def"); got != "/cli" {
    t.Errorf("Expected cli, got %s", got)
  }
  if got := pickString("home", "", kv, "home", "/env", "/def"); got != "/conf" {
    t.Errorf("Expected conf, got %s", got)
  }
  if got := pickString("profile", "", kv, "profile", "env", "def"); got != "env" {
    t.Errorf("Expected env, got %s", got)
  }
  if got := pickString("profile", "", kv, "profile", "", "def"); got != "def" {
    t.Errorf("Expected default, got %s", got)
  }

  if got := pickInt("port", 8000, kv, "listenport", 9000, 6569); got != 8000 {
    t.Errorf("Expected cli, got %d", got)
  }
  if got := pickInt("port", 0, kv, "listenport", 9000, 6569); got != 7000 {
    t.Errorf("Expected conf, got %d", got)
  }
  if got := pickInt("port", 0, kv, "wsport", 9000, 6569); got != 9000 {
    t.Errorf("Expected env after a bad conf value, got %d", got)
  }
  if got := pickInt("port", 0, kv, "nothing", 0, 6569); got != 6569 {
    t.Errorf("Expected default, got %d", got)
  }
}

func TestOpenProfile(t *testing.T) {
  home := t.TempDir()
  dir := filepath.Join(home, "pp_home", "pp_profiles", "lobby")
  if err := os.MkdirAll(filepath.Join(dir, "pp_io_config"), 0755); err != nil {
    t.Fatal(err)
  }
  os.WriteFile(filepath.Join(dir, "pp_io_config", "gpio.cfg"), nil, 0644)
  noSleep := func(time.Duration) {}

  p, err := OpenProfile(home, "lobby", homeWait, noSleep)
  if err != nil {
    t.Fatalf("OpenProfile failed: %v", err)
  }
  if p.ShowsPath() != filepath.Join(dir, "shows.yaml") {
    t.Errorf("unexpected shows path: %s", p.ShowsPath())
  }
  if _, ok := p.IOConfig("gpio.cfg"); !ok {
    t.Error("Expected gpio.cfg found")
  }
  if _, ok := p.IOConfig("osc.cfg"); ok {
    t.Error("osc.cfg should be missing")
  }

  var ce *ConfigError
  if _, err := OpenProfile(home, "", homeWait, noSleep); !errors.As(err, &ce) {
    t.Errorf("Expected ConfigError for no profile, got %v", err)
  }
  if _, err := OpenProfile(home, "foyer", homeWait, noSleep); !errors.As(err, &ce) {
    t.Errorf("Expected ConfigError for a missing profile, got %v", err)
  }
}

func TestFindHomeWaits(t *testing.T) {
  home := t.TempDir()
  slept := 0
  sleep := func(time.Duration) {
    slept++
    if slept == 3 {
      os.Mkdir(filepath.Join(home, "pp_home"), 0755)
    }
  }
  got, err := findHome(home, homeWait, sleep)
  if err != nil {
    t.Fatalf("findHome failed: %v", err)
  }
  if got != filepath.Join(home, "pp_home") || slept != 3 {
    t.Errorf("got %s after %d sleeps", got, slept)
  }

  slept = 0
  if _, err := findHome(t.TempDir(), 2*time.Second, func(time.Duration) { slept++ }); err == nil {
    t.Error("Expected an error when home never appears")
  }
  if slept != 2 {
    t.Errorf("Expected 2 sleeps, got %d", slept)
  }
}
