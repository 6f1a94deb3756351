package board

import (
	"sync"
	"time"
)

// Ticker is the live timer owned by one row. It runs fn once on start and
// then every interval until Stop.
type Ticker struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newTicker(interval time.Duration, fn func()) *Ticker {
	t := &Ticker{stop: make(chan struct{}), done: make(chan struct{})}
	go t.run(interval, fn)
	return t
}

func (t *Ticker) run(interval time.Duration, fn func()) {
	defer close(t.done)
	tk := time.NewTicker(interval)
	defer tk.Stop()

	fn()
	for {
		select {
		case <-t.stop:
			return
		case <-tk.C:
			fn()
		}
	}
}

// Stop cancels the ticker and waits for its goroutine to exit. It is safe
// to call more than once. fn must not call Stop on its own ticker.
func (t *Ticker) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}
