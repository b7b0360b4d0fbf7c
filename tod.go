package main

import (
  "errors"
  "fmt"
  "io/fs"
  "log"
  "os"
  "strings"
  "time"

  "gopkg.in/yaml.v3"
)

const (
  SourceSchedule Source = "schedule"
  todPoll               = time.Second
)

// ScheduleEntry runs command at a wall-clock time on the listed days.
// No days means every day.
type ScheduleEntry struct {
  At      string   `yaml:"at"`
  Days    []string `yaml:"days"`
  Command string   `yaml:"command"`

  offset time.Duration
  days   map[time.Weekday]bool
}

type Schedule struct {
  Entries []ScheduleEntry `yaml:"schedule"`
}

var weekdays = map[string]time.Weekday{
  "sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
  "wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
  "sat": time.Saturday,
}

// parseClock accepts HH:MM or HH:MM:SS.
func parseClock(s string) (time.Duration, error) {
  var h, m, sec int
  var n int
  var err error
  if strings.Count(s, ":") == 2 {
    n, err = fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec)
    if n != 3 {
      err = fmt.Errorf("bad time %q", s)
    }
  } else {
    n, err = fmt.Sscanf(s, "%d:%d", &h, &m)
    if n != 2 {
      err = fmt.Errorf("bad time %q", s)
    }
  }
  if err != nil {
    return 0, fmt.Errorf("bad time %q: %w", s, err)
  }
  if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
    return 0, fmt.Errorf("time %q out of range", s)
  }
  return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
} // func parseClock(s string) (time.Duration, error)


func (e *ScheduleEntry) prepare() error {
  off, err := parseClock(e.At)
  if err != nil {
    return err
  }
  e.offset = off
  if strings.TrimSpace(e.Command) == "" {
    return fmt.Errorf("entry at %s has no command", e.At)
  }
  if len(e.Days) == 0 {
    return nil
  }
  e.days = make(map[time.Weekday]bool)
  for _, d := range e.Days {
    key := strings.ToLower(d)
    if len(key) > 3 {
      key = key[:3]
    }
    wd, ok := weekdays[key]
    if !ok {
      return fmt.Errorf("entry at %s: unknown day %q", e.At, d)
    }
    e.days[wd] = true
  }
  return nil
} // func (e *ScheduleEntry) prepare() error


// clockOn is the entry's wall-clock time on day's date. Built from the
// fields, so a DST change earlier that day does not shift it.
func (e *ScheduleEntry) clockOn(day time.Time) time.Time {
  y, m, d := day.Date()
  h := int(e.offset / time.Hour)
  mi := int(e.offset % time.Hour / time.Minute)
  sec := int(e.offset % time.Minute / time.Second)
  return time.Date(y, m, d, h, mi, sec, 0, day.Location())
}

func (e *ScheduleEntry) on(wd time.Weekday) bool {
  return e.days == nil || e.days[wd]
}

// LoadSchedule reads schedule.yaml. A missing file is an empty schedule.
func LoadSchedule(path string) (*Schedule, error) {
  data, err := os.ReadFile(path)
  if errors.Is(err, fs.ErrNotExist) {
    return &Schedule{}, nil
  }
  if err != nil {
    return nil, &ConfigError{File: path, Msg: "cannot read schedule", Err: err}
  }
  var s Schedule
  if err := yaml.Unmarshal(data, &s); err != nil {
    return nil, &ConfigError{File: path, Msg: "bad schedule", Err: err}
  }
  for i := range s.Entries {
    if err := s.Entries[i].prepare(); err != nil {
      return nil, &ConfigError{File: path, Msg: "bad schedule", Err: err}
    }
  }
  log.Printf("[tod] %d schedule entries read from %s", len(s.Entries), path)
  return &s, nil
} // func LoadSchedule(path string) (*Schedule, error)


// TimeOfDay issues scheduled commands. It runs on the loop.
type TimeOfDay struct {
  sched   *Schedule
  loop    *Reactor
  command func(line string, source Source)

  last time.Time
  poll *Timer
}

func NewTimeOfDay(sched *Schedule, loop *Reactor, command func(string, Source)) *TimeOfDay {
  return &TimeOfDay{sched: sched, loop: loop, command: command}
}

func (t *TimeOfDay) Name() string { return "tod" }

func (t *TimeOfDay) Start() error {
  t.last = t.loop.Now()
  t.poll = t.loop.Every(todPoll, func() { t.Check(t.loop.Now()) })
  return nil
}

func (t *TimeOfDay) Terminate() {
  t.poll.Cancel()
}

// Check fires every entry whose time falls in (last check, now]. Only the
// dates of the last check and now are considered, so a clock jump of more
// than a day does not replay the schedule.
func (t *TimeOfDay) Check(now time.Time) {
  last := t.last
  t.last = now
  if !now.After(last) {
    return
  }

  dates := []time.Time{midnight(last)}
  if d := midnight(now); !d.Equal(dates[0]) {
    dates = append(dates, d)
  }
  for _, day := range dates {
    for i := range t.sched.Entries {
      e := &t.sched.Entries[i]
      at := e.clockOn(day)
      if at.After(last) && !at.After(now) && e.on(at.Weekday()) {
        log.Printf("[tod] %s: %s", e.At, e.Command)
        t.command(e.Command, SourceSchedule)
      }
    }
  }
} // func (t *TimeOfDay) Check(now time.Time)


func midnight(t time.Time) time.Time {
  y, m, d := t.Date()
  return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
