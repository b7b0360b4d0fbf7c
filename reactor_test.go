package main

import (
  "context"
  "testing"
  "time"
)

func TestReactorPostRunsOnStep(t *testing.T) {
  r, c := newTestLoop()
  var got []int
  r.Post(func() { got = append(got, 1) })
  r.Post(func() { got = append(got, 2) })
  if len(got) != 0 {
    t.Fatal("Post ran synchronously")
  }
  r.Step(c.now)
  if len(got) != 2 || got[0] != 1 || got[1] != 2 {
    t.Errorf("Expected [1 2], got %v", got)
  }
}

func TestReactorNestedPostWaitsForNextStep(t *testing.T) {
  r, c := newTestLoop()
  var got []string
  r.Post(func() {
    got = append(got, "outer")
    r.Post(func() { got = append(got, "inner") })
  })
  r.Step(c.now)
  if len(got) != 1 {
    t.Fatalf("Expected inner post deferred, got %v", got)
  }
  r.Step(c.now)
  if len(got) != 2 || got[1] != "inner" {
    t.Errorf("Expected inner on second step, got %v", got)
  }
}

func TestReactorTimers(t *testing.T) {
  r, c := newTestLoop()
  var order []string
  r.After(200*time.Millisecond, func() { order = append(order, "b") })
  r.After(100*time.Millisecond, func() { order = append(order, "a") })
  tick := 0
  every := r.Every(50*time.Millisecond, func() { tick++ })

  advance(t, r, c, 250*time.Millisecond, 10*time.Millisecond)
  if len(order) != 2 || order[0] != "a" || order[1] != "b" {
    t.Errorf("Expected [a b], got %v", order)
  }
  if tick != 5 {
    t.Errorf("Expected 5 ticks, got %d", tick)
  }

  every.Cancel()
  advance(t, r, c, 200*time.Millisecond, 10*time.Millisecond)
  if tick != 5 {
    t.Errorf("Expected no ticks after cancel, got %d", tick)
  }
}

func TestReactorCancelBeforeFire(t *testing.T) {
  r, c := newTestLoop()
  fired := false
  tm := r.After(time.Second, func() { fired = true })
  tm.Cancel()
  tm.Cancel()
  advance(t, r, c, 2*time.Second, 100*time.Millisecond)
  if fired {
    t.Error("cancelled timer fired")
  }
  var nilTimer *Timer
  nilTimer.Cancel()
}

func TestReactorRunStops(t *testing.T) {
  r := NewReactor()
  done := make(chan error, 1)
  go func() { done <- r.Run(context.Background()) }()

  ran := make(chan struct{})
  r.Post(func() {
    close(ran)
    r.Stop()
  })
  select {
  case <-ran:
  case <-time.After(time.Second):
    t.Fatal("Timeout waiting for posted func")
  }
  select {
  case err := <-done:
    if err != nil {
      t.Errorf("Expected nil from Run, got %v", err)
    }
  case <-time.After(time.Second):
    t.Fatal("Run did not return after Stop")
  }

  // dropped, must not block
  r.Post(func() {})
  r.Stop()
}

func TestReactorRunContextCancel(t *testing.T) {
  r := NewReactor()
  ctx, cancel := context.WithCancel(context.Background())
  done := make(chan error, 1)
  go func() { done <- r.Run(ctx) }()
  cancel()
  select {
  case err := <-done:
    if err != context.Canceled {
      t.Errorf("Expected context.Canceled, got %v", err)
    }
  case <-time.After(time.Second):
    t.Fatal("Run did not return after cancel")
  }
}

func TestReactorPostWithFullInbox(t *testing.T) {
  r, c := newTestLoop()
  n := cap(r.inbox)
  var got []int
  for i := 0; i < n; i++ {
    i := i
    r.Post(func() {
      got = append(got, i)
      if i == 0 {
        // the loop posting to itself while the inbox is full
        for j := 0; j < 3; j++ {
          j := j
          r.Post(func() { got = append(got, n+1+j) })
        }
      }
    })
  }

  posted := make(chan struct{})
  go func() {
    r.Post(func() { got = append(got, n) })
    close(posted)
  }()
  select {
  case <-posted:
  case <-time.After(time.Second):
    t.Fatal("Post blocked with a full inbox")
  }

  settle(t, r, c)
  if len(got) != n+4 {
    t.Fatalf("Expected %d funcs run, got %d", n+4, len(got))
  }
  for i, v := range got {
    if v != i {
      t.Fatalf("out of order at %d: got %d", i, v)
    }
  }
}

func TestReactorRunDrainsOverflow(t *testing.T) {
  r := NewReactor()
  done := make(chan error, 1)
  go func() { done <- r.Run(context.Background()) }()

  last := make(chan struct{})
  r.Post(func() {
    for i := 0; i < cap(r.inbox)+5; i++ {
      r.Post(func() {})
    }
    r.Post(func() { close(last) })
  })
  select {
  case <-last:
  case <-time.After(time.Second):
    t.Fatal("overflow not drained by Run")
  }
  r.Stop()
  <-done
}

func TestReactorPostAfterStopIsDropped(t *testing.T) {
  r, _ := newTestLoop()
  r.Stop()
  for i := 0; i < 100; i++ {
    r.Post(func() {})
  }
  if n := r.pending(); n != 0 {
    t.Errorf("Expected nothing queued after Stop, got %d", n)
  }
  select {
  case <-r.Done():
  default:
    t.Error("Done not closed after Stop")
  }
}
