package proxy

import (
	"sync"
	"time"
)

const defaultNotices = 50

// Notice is a message meant for the user rather than the operator.
type Notice struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Notices keeps the most recent user facing messages.
type Notices struct {
	mu   sync.Mutex
	max  int
	list []Notice
}

// NewNotices returns a Notices holding at most max messages, or a default
// number if max is not positive.
func NewNotices(max int) *Notices {
	if max <= 0 {
		max = defaultNotices
	}
	return &Notices{max: max}
}

// Add records msg. It has the signature expected by overlay.Options.Notify.
func (n *Notices) Add(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.list = append(n.list, Notice{Time: time.Now(), Message: msg})
	if len(n.list) > n.max {
		n.list = append(n.list[:0], n.list[len(n.list)-n.max:]...)
	}
}

// List returns the recorded messages, oldest first.
func (n *Notices) List() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append(make([]Notice, 0, len(n.list)), n.list...)
}
