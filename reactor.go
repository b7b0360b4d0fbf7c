package main

import (
  "container/heap"
  "context"
  "sync"
  "time"
)

// Reactor is the single orchestration loop. Everything that touches the
// line table, the show registry or the cascade runs on it. Other goroutines
// get in through Post.
type Reactor struct {
  inbox    chan func()
  quit     chan struct{}
  stopOnce sync.Once

  // overflow holds posts made while the inbox is full. Once it is non-empty
  // every post goes here until drain empties it, so order is kept.
  mu       sync.Mutex
  overflow []func()
  wake     chan struct{}

  timers timerHeap
  seq    uint64
  now    func() time.Time
}

// Timer is a cancelable handle for After/Every. Only touch it from the loop.
type Timer struct {
  when      time.Time
  period    time.Duration
  fn        func()
  seq       uint64
  index     int
  cancelled bool
}

// Cancel stops the timer from firing again. Safe on nil and repeated calls.
func (t *Timer) Cancel() {
  if t == nil {
    return
  }
  t.cancelled = true
}

type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
  if h[i].when.Equal(h[j].when) {
    return h[i].seq < h[j].seq
  }
  return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) {
  h[i], h[j] = h[j], h[i]
  h[i].index = i
  h[j].index = j
}
func (h *timerHeap) Push(x interface{}) {
  t := x.(*Timer)
  t.index = len(*h)
  *h = append(*h, t)
}
func (h *timerHeap) Pop() interface{} {
  old := *h
  n := len(old)
  t := old[n-1]
  old[n-1] = nil
  *h = old[:n-1]
  t.index = -1
  return t
}

// NewReactor returns a loop using the wall clock.
func NewReactor() *Reactor {
  return &Reactor{
    inbox: make(chan func(), 256),
    quit:  make(chan struct{}),
    wake:  make(chan struct{}, 1),
    now:   time.Now,
  }
} // func NewReactor()


// Post queues fn for the loop. Callable from any goroutine, the loop's own
// included: it never blocks and never runs fn synchronously. Dropped once
// the loop has stopped.
func (r *Reactor) Post(fn func()) {
  if r.Stopped() {
    return
  }
  r.mu.Lock()
  defer r.mu.Unlock()
  if len(r.overflow) == 0 {
    select {
    case r.inbox <- fn:
      return
    default:
    }
  }
  r.overflow = append(r.overflow, fn)
  select {
  case r.wake <- struct{}{}:
  default:
  }
} // func (r *Reactor) Post(fn func())


// pending is the number of queued funcs.
func (r *Reactor) pending() int {
  r.mu.Lock()
  defer r.mu.Unlock()
  return len(r.inbox) + len(r.overflow)
}

// Done is closed when the loop stops.
func (r *Reactor) Done() <-chan struct{} {
  return r.quit
}


// After runs fn once, d from now. Loop goroutine only.
func (r *Reactor) After(d time.Duration, fn func()) *Timer {
  return r.schedule(d, 0, fn)
}

// Every runs fn every d, first after d. Loop goroutine only.
func (r *Reactor) Every(d time.Duration, fn func()) *Timer {
  if d <= 0 {
    d = time.Millisecond
  }
  return r.schedule(d, d, fn)
}

func (r *Reactor) schedule(d, period time.Duration, fn func()) *Timer {
  r.seq++
  t := &Timer{
    when:   r.now().Add(d),
    period: period,
    fn:     fn,
    seq:    r.seq,
  }
  heap.Push(&r.timers, t)
  return t
} // func (r *Reactor) schedule(...)


// Stop makes Run return. Idempotent, callable from anywhere.
func (r *Reactor) Stop() {
  r.stopOnce.Do(func() {
    close(r.quit)
  })
}

// Stopped reports whether Stop has been called.
func (r *Reactor) Stopped() bool {
  select {
  case <-r.quit:
    return true
  default:
    return false
  }
}

// Now is the loop's notion of the current time.
func (r *Reactor) Now() time.Time {
  return r.now()
}

// Step runs one iteration: the inbox as it stands, then every timer due at
// now. Messages posted while draining wait for the next iteration.
func (r *Reactor) Step(now time.Time) {
  r.drain()
  r.fire(now)
} // func (r *Reactor) Step(now time.Time)


func (r *Reactor) drain() {
  r.mu.Lock()
  n := len(r.inbox)
  over := r.overflow
  r.overflow = nil
  r.mu.Unlock()

  for i := 0; i < n; i++ {
    if r.Stopped() {
      return
    }
    select {
    case fn := <-r.inbox:
      fn()
    default:
      i = n
    }
  }
  for _, fn := range over {
    if r.Stopped() {
      return
    }
    fn()
  }
} // func (r *Reactor) drain()


func (r *Reactor) fire(now time.Time) {
  for r.timers.Len() > 0 {
    if r.Stopped() {
      return
    }
    t := r.timers[0]
    if t.cancelled {
      heap.Pop(&r.timers)
      continue
    }
    if t.when.After(now) {
      return
    }
    heap.Pop(&r.timers)
    if t.period > 0 {
      t.when = t.when.Add(t.period)
      if !t.when.After(now) {
        t.when = now.Add(t.period)
      }
      r.seq++
      t.seq = r.seq
      heap.Push(&r.timers, t)
    }
    t.fn()
  }
} // func (r *Reactor) fire(now time.Time)


// next returns the earliest live timer deadline.
func (r *Reactor) next() (time.Time, bool) {
  for r.timers.Len() > 0 {
    t := r.timers[0]
    if !t.cancelled {
      return t.when, true
    }
    heap.Pop(&r.timers)
  }
  return time.Time{}, false
}

// Run drives the loop until Stop or ctx is done.
func (r *Reactor) Run(ctx context.Context) error {
  for {
    if r.Stopped() {
      return nil
    }
    r.Step(r.now())
    if r.Stopped() {
      return nil
    }

    var wake <-chan time.Time
    var tm *time.Timer
    if when, ok := r.next(); ok {
      d := when.Sub(r.now())
      if d < 0 {
        d = 0
      }
      tm = time.NewTimer(d)
      wake = tm.C
    }

    select {
    case fn := <-r.inbox:
      fn()
    case <-r.wake:
    case <-wake:
    case <-r.quit:
    case <-ctx.Done():
      if tm != nil {
        tm.Stop()
      }
      return ctx.Err()
    }
    if tm != nil {
      tm.Stop()
    }
  }
} // func (r *Reactor) Run(ctx context.Context) error
