package popup

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ServiceAction is an optional action run after a service alert is confirmed.
type ServiceAction string

const (
	// ServiceActionNone means the alert only informs.
	ServiceActionNone ServiceAction = ""
	// ServiceActionStopPlayback asks the playback service to stop.
	ServiceActionStopPlayback ServiceAction = "stop-playback"
)

// ParseServiceAction validates a service action name. The empty string is
// ServiceActionNone.
func ParseServiceAction(s string) (ServiceAction, error) {
	switch a := ServiceAction(s); a {
	case ServiceActionNone, ServiceActionStopPlayback:
		return a, nil
	default:
		return ServiceActionNone, fmt.Errorf("unknown service action %q", s)
	}
}

// ServiceAlert is an alert raised from outside the UI-owning context,
// such as a background service. It bypasses the request queue.
type ServiceAlert struct {
	Message string
	Title   string
	Icon    string
	Action  ServiceAction
}

// key identifies duplicate alerts for rate limiting.
func (a ServiceAlert) key() string {
	return string(a.Action) + "\x00" + a.Title + "\x00" + a.Message
}

// serviceLimiter drops duplicate service alerts within a minimum interval.
type serviceLimiter struct {
	mu          sync.Mutex
	lastSent    *lru.Cache[string, time.Time]
	minInterval time.Duration
}

func newServiceLimiter(minInterval time.Duration, maxKeys int) *serviceLimiter {
	if maxKeys < 1 {
		maxKeys = 64
	}
	cache, err := lru.New[string, time.Time](maxKeys)
	if err != nil {
		// Only returned for a non-positive size, which is guarded above.
		panic(err)
	}
	return &serviceLimiter{
		lastSent:    cache,
		minInterval: minInterval,
	}
}

// allow reports whether an alert with this key may be sent now and records it.
func (l *serviceLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.lastSent.Get(key); ok && now.Sub(last) < l.minInterval {
		return false
	}
	l.lastSent.Add(key, now)
	return true
}

func (l *serviceLimiter) setMinInterval(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minInterval = d
}
