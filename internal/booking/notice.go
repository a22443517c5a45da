package booking

import (
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// noticeTimeout is how long each level stays visible unless dismissed.
var noticeTimeout = map[Level]time.Duration{
	LevelInfo:    4 * time.Second,
	LevelSuccess: 5 * time.Second,
	LevelWarning: 6 * time.Second,
	LevelError:   8 * time.Second,
}

// Notice is a user-facing message raised by the view.
type Notice struct {
	ID        string        `json:"id"`
	Level     Level         `json:"level"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"createdAt"`
	Timeout   time.Duration `json:"timeout"`
}

// Expired reports whether the notice has timed out at now.
func (n Notice) Expired(now time.Time) bool {
	return n.Timeout > 0 && !now.Before(n.CreatedAt.Add(n.Timeout))
}

type notices struct {
	list []Notice
}

func (ns *notices) add(level Level, msg string, now time.Time) Notice {
	n := Notice{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   msg,
		CreatedAt: now,
		Timeout:   noticeTimeout[level],
	}
	ns.list = append(ns.list, n)
	return n
}

// active drops expired notices and returns a copy of the rest.
func (ns *notices) active(now time.Time) []Notice {
	kept := ns.list[:0]
	for _, n := range ns.list {
		if !n.Expired(now) {
			kept = append(kept, n)
		}
	}
	ns.list = kept
	out := make([]Notice, len(kept))
	copy(out, kept)
	return out
}

func (ns *notices) dismiss(id string) bool {
	for i, n := range ns.list {
		if n.ID == id {
			ns.list = append(ns.list[:i], ns.list[i+1:]...)
			return true
		}
	}
	return false
}
