// Package gate decides which classified events become notifications and at
// what priority. One Gate is shared by every camera session.
package gate

import (
	"sync"
	"time"

	"github.com/eleven-am/camera-sentinel/internal/classifier"
	"github.com/eleven-am/camera-sentinel/internal/notify"
)

const (
	AlarmWindow         = 60 * time.Second
	ObservationDebounce = 10 * time.Second
)

type Decision struct {
	Admit    bool
	Priority notify.Priority
	Reason   string
}

type State struct {
	AlarmWindowStart      time.Time `json:"alarm_window_start,omitzero"`
	AlarmWindowHasFired   bool      `json:"alarm_window_has_fired"`
	LastObservationSentAt time.Time `json:"last_observation_sent_at,omitzero"`
}

type Gate struct {
	mu                    sync.Mutex
	alarmWindowStart      time.Time
	alarmWindowHasFired   bool
	lastObservationSentAt time.Time
}

func New() *Gate {
	return &Gate{}
}

// Decide reports what Admit would do for ev at now without changing state.
func (g *Gate) Decide(ev classifier.Event, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decide(ev, now)
}

// Admit applies the decision for ev and returns the notification to send.
// Camera and Image are left for the caller.
func (g *Gate) Admit(ev classifier.Event, now time.Time) (notify.Notification, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.alarmWindowHasFired && now.Sub(g.alarmWindowStart) >= AlarmWindow {
		g.alarmWindowHasFired = false
	}

	d := g.decide(ev, now)
	if !d.Admit {
		return notify.Notification{}, false
	}

	switch ev.(type) {
	case classifier.Alarm:
		if d.Priority == notify.PriorityHigh {
			g.alarmWindowStart = now
			g.alarmWindowHasFired = true
		}
	case classifier.Observation:
		g.lastObservationSentAt = now
	}

	return notify.Notification{
		Title:    ev.Headline(),
		Body:     ev.Details(),
		Priority: d.Priority,
	}, true
}

func (g *Gate) decide(ev classifier.Event, now time.Time) Decision {
	switch ev.(type) {
	case classifier.Alarm:
		if g.alarmWindowHasFired && now.Sub(g.alarmWindowStart) < AlarmWindow {
			return Decision{Admit: true, Priority: notify.PriorityNormal, Reason: "alarm window open"}
		}
		return Decision{Admit: true, Priority: notify.PriorityHigh, Reason: "first alarm in window"}
	case classifier.Observation:
		if !g.lastObservationSentAt.IsZero() && now.Sub(g.lastObservationSentAt) < ObservationDebounce {
			return Decision{Reason: "observation debounced"}
		}
		return Decision{Admit: true, Priority: notify.PriorityLow, Reason: "observation"}
	default:
		return Decision{Reason: "nothing to report"}
	}
}

// Snapshot returns the state as of now. The alarm window only reports
// fired while it is still open.
func (g *Gate) Snapshot(now time.Time) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		AlarmWindowStart:      g.alarmWindowStart,
		AlarmWindowHasFired:   g.alarmWindowHasFired && now.Sub(g.alarmWindowStart) < AlarmWindow,
		LastObservationSentAt: g.lastObservationSentAt,
	}
}
