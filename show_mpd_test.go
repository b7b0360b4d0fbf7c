package main

import "testing"

func TestParseMPDEnv(t *testing.T) {
  tests := []struct {
    host, port string
    want       MPDConfig
  }{
    {"", "", MPDConfig{}},
    {"music.local", "6601", MPDConfig{Host: "music.local", Port: 6601}},
    {"/run/mpd/socket", "", MPDConfig{Socket: "/run/mpd/socket"}},
    {"@mpd", "", MPDConfig{Socket: "@mpd"}},
    {"secret@music.local", "", MPDConfig{Host: "music.local", Pass: "secret"}},
    {"secret@/run/mpd/socket", "", MPDConfig{Socket: "/run/mpd/socket", Pass: "secret"}},
    {"secret@@mpd", "", MPDConfig{Socket: "@mpd", Pass: "secret"}},
    {"", "sixty", MPDConfig{}},
  }
  for _, tt := range tests {
    env := map[string]string{"MPD_HOST": tt.host, "MPD_PORT": tt.port}
    got := parseMPDEnv(func(k string) string { return env[k] })
    if got != tt.want {
      t.Errorf("MPD_HOST=%q MPD_PORT=%q: expected %+v, got %+v", tt.host, tt.port, tt.want, got)
    }
  }
}

func TestMPDAddr(t *testing.T) {
  tests := []struct {
    cfg     MPDConfig
    network string
    addr    string
  }{
    {MPDConfig{}, "tcp", "localhost:6600"},
    {MPDConfig{Host: "music.local", Port: 6601}, "tcp", "music.local:6601"},
    {MPDConfig{Host: "music.local", Socket: "/run/mpd/socket"}, "unix", "/run/mpd/socket"},
  }
  for _, tt := range tests {
    network, addr := tt.cfg.addr()
    if network != tt.network || addr != tt.addr {
      t.Errorf("%+v: expected %s %s, got %s %s", tt.cfg, tt.network, tt.addr, network, addr)
    }
  }
}
