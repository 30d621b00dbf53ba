package scheduler

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const tickInterval = 1000 * time.Millisecond

// timeJumpThreshold is how large a realtime-clock jump must be (in either
// direction) before the scheduler also schedules a scene-database refresh,
// rather than just recomputing daily entries' absolute times.
const timeJumpThreshold = 60 * time.Second

// httpActiveCeiling bounds how long the "recent REST traffic" gate stays
// armed: it resets to its ceiling on any RecordHTTPActivity call, and
// counts back down every tick.
const httpActiveCeiling = 2 * time.Minute

// SunTimes is the most recent sunrise/sunset pulled from the remote time
// server, used to resolve SceneSunriseOffset/SceneSunsetOffset entries.
type SunTimes struct {
	Sunrise time.Time
	Sunset  time.Time
}

// NestState reports whether the "rush hour" / "away" integration is
// currently suppressing scene execution.
type NestState interface {
	SuppressScenes() bool
}

// Scheduler owns every ScheduleEntry and advances them on a 1-second tick.
type Scheduler struct {
	mu      sync.Mutex
	entries map[Token]*entry
	nextTok Token

	nest NestState
	sun  SunTimes

	httpActiveRemaining time.Duration
	schedulesEnabled    bool

	onSceneRefresh func()
	store          *WallClockStore
}

// New returns a Scheduler with no entries beyond the self-rescheduling
// midnight entry. nest may be nil, in which case scenes are never
// suppressed. onSceneRefresh is called whenever a time-change or midnight
// tick decides the scene database needs re-pulling; it may be nil.
func New(nest NestState, onSceneRefresh func()) *Scheduler {
	s := &Scheduler{
		entries:          make(map[Token]*entry),
		nest:             nest,
		onSceneRefresh:   onSceneRefresh,
		schedulesEnabled: true,
	}
	s.AddDaily(0, 0, 0, func() {
		s.persistWallClock()
		s.requestSceneRefresh()
	})
	return s
}

// SetWallClockStore attaches store so the self-rescheduling midnight entry
// snapshots the current time to non-volatile storage each time it fires.
// It also compares any previously persisted time against now and,
// if the gap looks like a clock jump, runs it through OnTimeChange — a
// long power-off is treated the same as a clock jump observed live.
func (s *Scheduler) SetWallClockStore(store *WallClockStore) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()

	if store == nil {
		return
	}
	last, err := store.Load()
	if err != nil {
		log.Warnf("scheduler: failed to load wall-clock snapshot: %v", err)
		return
	}
	if last.IsZero() {
		return
	}
	now := time.Now()
	s.OnTimeChange(now, now.Sub(last))
}

func (s *Scheduler) persistWallClock() {
	s.mu.Lock()
	store := s.store
	s.mu.Unlock()
	if store == nil {
		return
	}
	if err := store.Save(time.Now()); err != nil {
		log.Warnf("scheduler: failed to persist wall-clock snapshot: %v", err)
	}
}

func (s *Scheduler) allocToken() Token {
	s.nextTok++
	if s.nextTok == 0 {
		s.nextTok = 1
	}
	return s.nextTok
}

// AddCountdown fires fn once, after d elapses.
func (s *Scheduler) AddCountdown(d time.Duration, fn FireFunc) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := s.allocToken()
	s.entries[tok] = &entry{tok: tok, kind: KindCountdown, remaining: d, fire: fn}
	return tok
}

// AddDaily fires fn at the next occurrence of hour:minute:second local
// time, then reschedules itself for the following day — indefinitely,
// until Cancelled.
func (s *Scheduler) AddDaily(hour, minute, second int, fn FireFunc) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := s.allocToken()
	e := &entry{tok: tok, kind: KindDaily, hour: hour, minute: minute, second: second, fire: fn}
	e.next = nextDailyOccurrence(time.Now(), hour, minute, second)
	s.entries[tok] = e
	return tok
}

// AddSceneFixed schedules a one-shot scene entry at a fixed clock time
// today (or tomorrow if that time has already passed).
func (s *Scheduler) AddSceneFixed(hour, minute int, fn FireFunc) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := s.allocToken()
	e := &entry{tok: tok, kind: KindScene, sceneKind: SceneFixedClock, fire: fn}
	e.next = nextDailyOccurrence(time.Now(), hour, minute, 0)
	s.entries[tok] = e
	return tok
}

// AddSceneSunOffset schedules a one-shot scene entry at sunrise or sunset
// (per relativeTo) plus offset (which may be negative).
func (s *Scheduler) AddSceneSunOffset(relativeTo SceneTimeKind, offset time.Duration, fn FireFunc) Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok := s.allocToken()
	e := &entry{tok: tok, kind: KindScene, sceneKind: relativeTo, fire: fn}
	e.next = s.resolveSunTimeLocked(relativeTo, offset)
	s.entries[tok] = e
	return tok
}

func (s *Scheduler) resolveSunTimeLocked(kind SceneTimeKind, offset time.Duration) time.Time {
	switch kind {
	case SceneSunriseOffset:
		return s.sun.Sunrise.Add(offset)
	case SceneSunsetOffset:
		return s.sun.Sunset.Add(offset)
	default:
		return time.Time{}
	}
}

// Cancel removes tok. Cancelling an already-fired scene entry, or an
// unknown token, is a no-op.
func (s *Scheduler) Cancel(tok Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tok]
	if !ok {
		return
	}
	if e.kind == KindScene && e.fired {
		return
	}
	delete(s.entries, tok)
}

// SetSunTimes updates the sunrise/sunset used to resolve newly-added scene
// entries. Entries already scheduled keep their already-resolved absolute
// time; a scene-database refresh regenerates the whole scene set rather
// than re-deriving each entry in place.
func (s *Scheduler) SetSunTimes(sun SunTimes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sun = sun
}

// SetSchedulesEnabled arms or disarms every scene entry fleet-wide, in
// response to the cloud's enable-schedules/disable-schedules remote
// action. Daily/countdown entries (the midnight entry, discovery
// passes, etc.) are unaffected — only scene firing is gated.
func (s *Scheduler) SetSchedulesEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedulesEnabled = enabled
}

// SchedulesEnabled reports whether scene entries are currently armed.
func (s *Scheduler) SchedulesEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedulesEnabled
}

// RecordHTTPActivity resets the HTTP-active gate; called on every inbound
// REST request.
func (s *Scheduler) RecordHTTPActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.httpActiveRemaining = httpActiveCeiling
}

// HTTPActive reports whether REST traffic has been seen recently enough to
// defer a scene refresh.
func (s *Scheduler) HTTPActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpActiveRemaining > 0
}

// Tick advances every entry by one tick interval and fires any that are
// due. Callers are expected to invoke this once a second.
func (s *Scheduler) Tick() {
	now := time.Now()
	var fired []*entry

	s.mu.Lock()
	if s.httpActiveRemaining > 0 {
		s.httpActiveRemaining -= tickInterval
		if s.httpActiveRemaining < 0 {
			s.httpActiveRemaining = 0
		}
	}

	for _, e := range s.entries {
		switch e.kind {
		case KindCountdown:
			e.remaining -= tickInterval
			if e.remaining <= 0 {
				fired = append(fired, e)
			}
		case KindDaily, KindScene:
			if !e.next.IsZero() && !now.Before(e.next) {
				fired = append(fired, e)
			}
		}
	}
	s.mu.Unlock()

	for _, e := range fired {
		s.fireEntry(e, now)
	}
}

func (s *Scheduler) fireEntry(e *entry, now time.Time) {
	if e.kind == KindScene && s.nest != nil && s.nest.SuppressScenes() {
		log.Debugf("scheduler: scene entry %v suppressed (nest rush-hour/away)", e.tok)
		s.retireEntry(e, now)
		return
	}
	if e.kind == KindScene && !s.SchedulesEnabled() {
		log.Debugf("scheduler: scene entry %v suppressed (schedules disabled)", e.tok)
		s.retireEntry(e, now)
		return
	}

	if e.fire != nil {
		e.fire()
	}
	s.retireEntry(e, now)
}

// retireEntry advances a daily entry to its next occurrence, or removes a
// countdown/scene entry (which fire exactly once).
func (s *Scheduler) retireEntry(e *entry, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.kind {
	case KindDaily:
		e.next = nextDailyOccurrence(now, e.hour, e.minute, e.second)
	case KindScene:
		e.fired = true
		delete(s.entries, e.tok)
	case KindCountdown:
		delete(s.entries, e.tok)
	}
}

// nextDailyOccurrence returns the next time hour:minute:second occurs
// strictly after now: today if that time is still ahead, otherwise
// tomorrow.
func nextDailyOccurrence(now time.Time, hour, minute, second int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, second, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// OnTimeChange handles a realtime-clock jump reported by either the cloud
// time-server result or the companion app. It recomputes every daily
// entry's absolute time, and if the jump exceeds timeJumpThreshold,
// schedules a scene-database refresh with a short settle delay (so HTTP
// traffic the jump itself may have triggered has a chance to finish).
func (s *Scheduler) OnTimeChange(now time.Time, delta time.Duration) {
	s.mu.Lock()
	for _, e := range s.entries {
		if e.kind == KindDaily {
			e.next = nextDailyOccurrence(now, e.hour, e.minute, e.second)
		}
	}
	s.mu.Unlock()

	if delta.Abs() <= timeJumpThreshold {
		return
	}

	log.Infof("scheduler: time jumped by %v, scheduling scene refresh", delta)
	s.AddCountdown(5*time.Second, s.requestSceneRefresh)
}

// requestSceneRefresh fires onSceneRefresh, unless recent HTTP traffic has
// the activity gate armed — user-driven traffic (the companion app hitting
// the diagnostics API) means a refresh is either already redundant or
// about to be triggered some other way, so it's deferred rather than
// fired on top of it. The check is retried every httpActiveCeiling until
// the gate clears.
func (s *Scheduler) requestSceneRefresh() {
	if s.HTTPActive() {
		log.Debug("scheduler: deferring scene refresh, recent HTTP activity")
		s.AddCountdown(httpActiveCeiling, s.requestSceneRefresh)
		return
	}
	if s.onSceneRefresh != nil {
		s.onSceneRefresh()
	}
}
