package main

import (
  "container/heap"
  "fmt"
  "log"
  "strconv"
  "strings"
  "time"
)

// AnimatePoll is how often the sequencer checks for due output events.
const AnimatePoll = 200 * time.Millisecond

// AnimateEvent is one parsed animation line:
// <delay-seconds> <name> <param-type> <values...>
type AnimateEvent struct {
  Delay     time.Duration
  Name      string
  ParamType string
  Values    []string
}

// ParseAnimateLine parses one animation line. Blank lines and # comments
// are rejected; callers filter them.
func ParseAnimateLine(line string) (AnimateEvent, error) {
  f := strings.Fields(line)
  if len(f) < 4 {
    return AnimateEvent{}, fmt.Errorf("animate %q: want <delay> <name> <param-type> <values...>", line)
  }
  secs, err := strconv.ParseFloat(f[0], 64)
  if err != nil || secs < 0 {
    return AnimateEvent{}, fmt.Errorf("animate %q: bad delay %q", line, f[0])
  }
  return AnimateEvent{
    Delay:     time.Duration(secs * float64(time.Second)),
    Name:      f[1],
    ParamType: f[2],
    Values:    f[3:],
  }, nil
} // func ParseAnimateLine(line string) (AnimateEvent, error)


// OutputHandler drives a named output. req is when the event was due.
type OutputHandler func(name, paramType string, values []string, req time.Time) error

type pendingEvent struct {
  at  time.Time
  seq uint64
  tag string
  ev  AnimateEvent
}

type eventQueue []*pendingEvent

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
  if q[i].at.Equal(q[j].at) {
    return q[i].seq < q[j].seq
  }
  return q[i].at.Before(q[j].at)
}
func (q eventQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x interface{}) { *q = append(*q, x.(*pendingEvent)) }
func (q *eventQueue) Pop() interface{} {
  old := *q
  n := len(old)
  p := old[n-1]
  old[n-1] = nil
  *q = old[:n-1]
  return p
}

// Animator queues timed output events per show tag. Loop goroutine only.
type Animator struct {
  queue eventQueue
  seq   uint64
  out   OutputHandler
  now   func() time.Time
  poll  *Timer
}

func NewAnimator(out OutputHandler, now func() time.Time) *Animator {
  return &Animator{out: out, now: now}
}

// Start polls every period on the loop.
func (a *Animator) Start(r *Reactor, period time.Duration) {
  a.poll = r.Every(period, a.Tick)
}

// Add queues lines under tag, each relative to now. A bad line is logged
// and skipped; the rest still run.
func (a *Animator) Add(tag string, lines []string) error {
  base := a.now()
  var first error
  for _, line := range lines {
    line = strings.TrimSpace(line)
    if line == "" || strings.HasPrefix(line, "#") {
      continue
    }
    ev, err := ParseAnimateLine(line)
    if err != nil {
      log.Printf("[animate] %s: %v", tag, err)
      if first == nil {
        first = err
      }
      continue
    }
    a.seq++
    heap.Push(&a.queue, &pendingEvent{at: base.Add(ev.Delay), seq: a.seq, tag: tag, ev: ev})
  }
  return first
} // func (a *Animator) Add(tag string, lines []string) error


// Clear drops every pending event queued under tag.
func (a *Animator) Clear(tag string) {
  kept := a.queue[:0]
  for _, p := range a.queue {
    if p.tag != tag {
      kept = append(kept, p)
    }
  }
  for i := len(kept); i < len(a.queue); i++ {
    a.queue[i] = nil
  }
  a.queue = kept
  heap.Init(&a.queue)
}

// Pending is the number of queued events.
func (a *Animator) Pending() int { return a.queue.Len() }

// Tick runs every event that is due.
func (a *Animator) Tick() {
  now := a.now()
  for a.queue.Len() > 0 && !a.queue[0].at.After(now) {
    p := heap.Pop(&a.queue).(*pendingEvent)
    if err := a.out(p.ev.Name, p.ev.ParamType, p.ev.Values, p.at); err != nil {
      log.Printf("[animate] %s: %v", p.tag, err)
    }
  }
} // func (a *Animator) Tick()


// Terminate stops polling and drops everything pending.
func (a *Animator) Terminate() {
  a.poll.Cancel()
  a.queue = nil
}
