package main

import (
  "errors"
  "path/filepath"
  "testing"
  "time"
)

func TestParseClock(t *testing.T) {
  tests := []struct {
    in   string
    want time.Duration
    ok   bool
  }{
    {"07:30", 7*time.Hour + 30*time.Minute, true},
    {"23:59:59", 23*time.Hour + 59*time.Minute + 59*time.Second, true},
    {"00:00", 0, true},
    {"24:00", 0, false},
    {"12:60", 0, false},
    {"noon", 0, false},
  }
  for _, tt := range tests {
    got, err := parseClock(tt.in)
    if (err == nil) != tt.ok {
      t.Errorf("%q: ok=%v, err=%v", tt.in, tt.ok, err)
      continue
    }
    if tt.ok && got != tt.want {
      t.Errorf("%q: expected %s, got %s", tt.in, tt.want, got)
    }
  }
}

func TestLoadSchedule(t *testing.T) {
  path := writeFile(t, "schedule.yaml", `
schedule:
  - at: "09:00"
    command: open attract
  - at: "18:30"
    days: [Mon, tuesday]
    command: shutdownnow
`)
  s, err := LoadSchedule(path)
  if err != nil {
    t.Fatalf("LoadSchedule failed: %v", err)
  }
  if len(s.Entries) != 2 {
    t.Fatalf("Expected 2 entries, got %d", len(s.Entries))
  }
  e := s.Entries[1]
  if !e.on(time.Monday) || !e.on(time.Tuesday) || e.on(time.Sunday) {
    t.Errorf("bad days: %v", e.days)
  }
  if !s.Entries[0].on(time.Saturday) {
    t.Error("Expected no days to mean every day")
  }

  s, err = LoadSchedule(filepath.Join(t.TempDir(), "missing.yaml"))
  if err != nil || len(s.Entries) != 0 {
    t.Errorf("Expected empty schedule for a missing file, got %v %v", s, err)
  }

  for _, bad := range []string{
    "schedule:\n  - {at: \"25:00\", command: exit}\n",
    "schedule:\n  - {at: \"09:00\"}\n",
    "schedule:\n  - {at: \"09:00\", command: exit, days: [someday]}\n",
  } {
    _, err := LoadSchedule(writeFile(t, "schedule.yaml", bad))
    var ce *ConfigError
    if !errors.As(err, &ce) {
      t.Errorf("%q: expected ConfigError, got %v", bad, err)
    }
  }
}

type scheduledCommands []string

func (s *scheduledCommands) command(line string, _ Source) { *s = append(*s, line) }

func TestTimeOfDayFiresOnce(t *testing.T) {
  loop, clock := newTestLoop()
  s := &Schedule{Entries: []ScheduleEntry{{At: "12:00:05", Command: "open a"}}}
  s.Entries[0].prepare()
  var got scheduledCommands
  tod := NewTimeOfDay(s, loop, got.command)
  tod.Start()

  advance(t, loop, clock, 10*time.Second, time.Second)
  if len(got) != 1 || got[0] != "open a" {
    t.Fatalf("Expected open a once, got %v", got)
  }
  advance(t, loop, clock, time.Minute, time.Second)
  if len(got) != 1 {
    t.Errorf("Expected no repeat, got %v", got)
  }
  tod.Terminate()
}

func TestTimeOfDayAcrossMidnight(t *testing.T) {
  s := &Schedule{Entries: []ScheduleEntry{
    {At: "23:59:59", Command: "close a"},
    {At: "00:00", Command: "open b", Days: []string{"tue"}},
    {At: "00:00:01", Command: "open c", Days: []string{"mon"}},
  }}
  for i := range s.Entries {
    if err := s.Entries[i].prepare(); err != nil {
      t.Fatal(err)
    }
  }
  var got scheduledCommands
  tod := NewTimeOfDay(s, nil, got.command)

  // Monday 23:59:58 to Tuesday 00:00:02 in one step
  tod.last = time.Date(2024, 3, 4, 23, 59, 58, 0, time.UTC)
  tod.Check(time.Date(2024, 3, 5, 0, 0, 2, 0, time.UTC))
  if len(got) != 2 || got[0] != "close a" || got[1] != "open b" {
    t.Errorf("Expected close a then open b, got %v", got)
  }
}

func TestTimeOfDayIgnoresClockGoingBack(t *testing.T) {
  s := &Schedule{Entries: []ScheduleEntry{{At: "10:00", Command: "open a"}}}
  s.Entries[0].prepare()
  var got scheduledCommands
  tod := NewTimeOfDay(s, nil, got.command)

  tod.last = time.Date(2024, 3, 4, 10, 0, 30, 0, time.UTC)
  tod.Check(time.Date(2024, 3, 4, 9, 59, 0, 0, time.UTC))
  if len(got) != 0 {
    t.Fatalf("fired on a backwards step: %v", got)
  }
  tod.Check(time.Date(2024, 3, 4, 10, 0, 1, 0, time.UTC))
  if len(got) != 1 {
    t.Errorf("Expected one firing after the clock caught up, got %v", got)
  }
}

func TestTimeOfDayOnDSTChange(t *testing.T) {
  london, err := time.LoadLocation("Europe/London")
  if err != nil {
    t.Skipf("no zone data: %v", err)
  }
  s := &Schedule{Entries: []ScheduleEntry{{At: "09:00", Command: "open a"}}}
  s.Entries[0].prepare()
  var got scheduledCommands
  tod := NewTimeOfDay(s, nil, got.command)

  // the clocks went forward at 01:00 that morning
  tod.last = time.Date(2024, 3, 31, 8, 59, 30, 0, london)
  tod.Check(time.Date(2024, 3, 31, 9, 0, 30, 0, london))
  if len(got) != 1 {
    t.Fatalf("Expected open a at 09:00 local, got %v", got)
  }
  tod.Check(time.Date(2024, 3, 31, 10, 0, 30, 0, london))
  if len(got) != 1 {
    t.Errorf("Expected no second firing, got %v", got)
  }
}
