package main

import (
  "fmt"
  "sync"

  "github.com/stianeikeland/go-rpio/v4"
)

// P1 header board pin to BCM GPIO number.
var boardToBCM = map[int]int{
  3: 2, 5: 3, 7: 4, 8: 14, 10: 15, 11: 17, 12: 18, 13: 27, 15: 22,
  16: 23, 18: 24, 19: 10, 21: 9, 22: 25, 23: 11, 24: 8, 26: 7,
}

// rpioPins is PinIO over /dev/gpiomem.
type rpioPins struct {
  closeOnce sync.Once
}

func openRPIO() (*rpioPins, error) {
  if err := rpio.Open(); err != nil {
    return nil, fmt.Errorf("gpio open: %w", err)
  }
  return &rpioPins{}, nil
}

func bcm(board int) (rpio.Pin, error) {
  n, ok := boardToBCM[board]
  if !ok {
    return 0, fmt.Errorf("P1-%02d is not a gpio pin", board)
  }
  return rpio.Pin(n), nil
}

func (p *rpioPins) SetupInput(board int, pull Pull) error {
  pin, err := bcm(board)
  if err != nil {
    return err
  }
  pin.Input()
  switch pull {
  case PullUp:
    pin.PullUp()
  case PullDown:
    pin.PullDown()
  default:
    pin.PullOff()
  }
  return nil
} // func (p *rpioPins) SetupInput(board int, pull Pull) error


func (p *rpioPins) SetupOutput(board int) error {
  pin, err := bcm(board)
  if err != nil {
    return err
  }
  pin.Output()
  return nil
}

func (p *rpioPins) Read(board int) int {
  pin, err := bcm(board)
  if err != nil {
    return 1
  }
  if pin.Read() == rpio.Low {
    return 0
  }
  return 1
}

func (p *rpioPins) Write(board int, high bool) error {
  pin, err := bcm(board)
  if err != nil {
    return err
  }
  if high {
    pin.High()
  } else {
    pin.Low()
  }
  return nil
}

func (p *rpioPins) Close() error {
  var err error
  p.closeOnce.Do(func() {
    err = rpio.Close()
  })
  return err
}
