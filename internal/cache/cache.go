package cache

import (
	"sync"
	"time"
)

// Cleaner is a cache that can drop its expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically cleans registered caches until stopped.
type Janitor struct {
	caches   []Cleaner
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartJanitor cleans caches every interval in a background goroutine.
func StartJanitor(interval time.Duration, caches ...Cleaner) *Janitor {
	j := &Janitor{caches: caches, stop: make(chan struct{}), done: make(chan struct{})}
	go j.run(interval)
	return j
}

func (j *Janitor) run(interval time.Duration) {
	defer close(j.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, c := range j.caches {
				c.CleanExpired()
			}
		case <-j.stop:
			return
		}
	}
}

// Stop ends the cleanup loop and waits for it to exit. Safe to call twice.
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stop) })
	<-j.done
}
