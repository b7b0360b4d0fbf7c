package main

import (
  "errors"
  "strings"
  "testing"
  "time"
)

type outputCall struct {
  name  string
  state string
  req   time.Time
}

func newTestAnimator() (*Animator, *testClock, *[]outputCall) {
  c := &testClock{now: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)}
  calls := &[]outputCall{}
  a := NewAnimator(func(name, paramType string, values []string, req time.Time) error {
    *calls = append(*calls, outputCall{name, strings.Join(values, " "), req})
    if name == "broken" {
      return errors.New("no such line")
    }
    return nil
  }, func() time.Time { return c.now })
  return a, c, calls
}

func TestParseAnimateLine(t *testing.T) {
  ev, err := ParseAnimateLine("1.5 led1 state on")
  if err != nil {
    t.Fatal(err)
  }
  if ev.Delay != 1500*time.Millisecond || ev.Name != "led1" || ev.ParamType != "state" || ev.Values[0] != "on" {
    t.Errorf("unexpected event: %+v", ev)
  }
  for _, line := range []string{"", "1 led1 state", "soon led1 state on", "-1 led1 state on"} {
    if _, err := ParseAnimateLine(line); err == nil {
      t.Errorf("%q: expected an error", line)
    }
  }
}

func TestAnimatorRunsInTimeOrder(t *testing.T) {
  a, c, calls := newTestAnimator()
  start := c.now
  err := a.Add("show", []string{
    "# lights",
    "2 led2 state on",
    "",
    "0 led1 state on",
    "2 led2 state off",
  })
  if err != nil {
    t.Fatal(err)
  }
  if a.Pending() != 3 {
    t.Fatalf("Expected 3 pending, got %d", a.Pending())
  }

  a.Tick()
  if len(*calls) != 1 || (*calls)[0].name != "led1" {
    t.Fatalf("Expected led1 only, got %+v", *calls)
  }
  c.now = c.now.Add(1900 * time.Millisecond)
  a.Tick()
  if len(*calls) != 1 {
    t.Fatal("ran early")
  }
  c.now = c.now.Add(200 * time.Millisecond)
  a.Tick()
  if len(*calls) != 3 || (*calls)[1].state != "on" || (*calls)[2].state != "off" {
    t.Errorf("Expected led2 on then off, got %+v", *calls)
  }
  if !(*calls)[1].req.Equal(start.Add(2 * time.Second)) {
    t.Errorf("Expected request time start+2s, got %s", (*calls)[1].req)
  }
}

func TestAnimatorKeepsGoodLines(t *testing.T) {
  a, _, calls := newTestAnimator()
  err := a.Add("show", []string{"0 led1", "0 broken state on", "0 led2 state on"})
  if err == nil {
    t.Error("Expected the bad line reported")
  }
  a.Tick()
  if len(*calls) != 2 || (*calls)[1].name != "led2" {
    t.Errorf("Expected broken and led2 to run, got %+v", *calls)
  }
}

func TestAnimatorClearByTag(t *testing.T) {
  a, c, calls := newTestAnimator()
  a.Add("a", []string{"1 led1 state on", "3 led1 state off"})
  a.Add("b", []string{"2 led2 state on"})
  a.Clear("a")
  if a.Pending() != 1 {
    t.Fatalf("Expected 1 pending, got %d", a.Pending())
  }
  c.now = c.now.Add(5 * time.Second)
  a.Tick()
  if len(*calls) != 1 || (*calls)[0].name != "led2" {
    t.Errorf("Expected led2 only, got %+v", *calls)
  }
}

func TestAnimatorTerminate(t *testing.T) {
  loop, clock := newTestLoop()
  calls := 0
  a := NewAnimator(func(string, string, []string, time.Time) error {
    calls++
    return nil
  }, loop.Now)
  a.Start(loop, AnimatePoll)
  a.Add("a", []string{"1 led1 state on"})
  a.Terminate()
  advance(t, loop, clock, 2*time.Second, 100*time.Millisecond)
  if calls != 0 || a.Pending() != 0 {
    t.Errorf("Expected nothing after terminate, got %d calls %d pending", calls, a.Pending())
  }
}
