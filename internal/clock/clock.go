package clock

import (
	"sync"
	"time"
)

// DefaultInterval is the dashboard clock refresh rate.
const DefaultInterval = time.Second

// Ticker is an owned periodic timer. It calls fn on every tick from a single
// goroutine until Stop is called.
type Ticker struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Start begins ticking every interval. A non-positive interval uses
// DefaultInterval.
func Start(interval time.Duration, fn func(time.Time)) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := &Ticker{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		tk := time.NewTicker(interval)
		defer tk.Stop()

		for {
			select {
			case <-t.stop:
				return
			case now := <-tk.C:
				fn(now)
			}
		}
	}()

	return t
}

// Stop cancels the ticker and waits for an in-progress callback to return.
// It is safe to call more than once.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}

// Done is closed once the ticker goroutine has exited.
func (t *Ticker) Done() <-chan struct{} {
	return t.done
}

// Readout is the formatted clock face.
type Readout struct {
	Time string `json:"time"` // 3:04 PM
	Date string `json:"date"` // Monday, January 2
}

// Format renders now in loc the way the dashboard shows it.
func Format(now time.Time, loc *time.Location) Readout {
	if loc == nil {
		loc = time.Local
	}
	lt := now.In(loc)
	return Readout{
		Time: lt.Format("3:04 PM"),
		Date: lt.Format("Monday, January 2"),
	}
}
