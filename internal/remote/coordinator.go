package remote

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// firmwareCheckMinInterval is the minimum spacing between two firmware
// polls, regardless of how often the caller asks for one.
const firmwareCheckMinInterval = 30 * time.Minute

// timeServerRetryInterval is how soon a failed time-server lookup is
// retried.
const timeServerRetryInterval = 5 * time.Minute

// timeServerDailyHour/Minute is the daily recheck slot for the time
// server, even when the last lookup succeeded.
const timeServerDailyHour = 2
const timeServerDailyMinute = 30

// actionErrorRetryInterval is how long the coordinator waits after the
// action poll has failed actionErrorThreshold times in a row.
const actionErrorRetryInterval = 5 * time.Minute
const actionErrorThreshold = 5

// Persisted is the subset of coordinator state that must survive a
// restart: the hub's registration document, a last firmware revision
// field, and the time of the last successful time-server lookup.
type Persisted struct {
	Registration     *Registration
	LastFirmwareRev  string
	LastTimeServerOK time.Time
}

// Store persists and restores a Persisted document, grounded on
// discovery/cache.go's atomic tmp-file+rename pattern.
type Store interface {
	Load() (Persisted, error)
	Save(Persisted) error
}

// ActionHandler executes the remote actions the coordinator polls for.
// Like every other event, action handling runs on the coordinator's single
// Run goroutine, which processes exactly one event at a time — the same
// one-session-event-loop-at-a-time discipline as sol/manager.go's
// per-session runSession goroutine, but with a single shared goroutine
// rather than one per remote endpoint, since there is exactly one cloud
// endpoint.
type ActionHandler interface {
	// HandleAction executes one remote action and reports back to the
	// cloud (status, message id) via the coordinator's client.
	HandleAction(ctx context.Context, a HubAction) (status string, messageID string)
}

// FaultReporter is notified when the coordinator gives up retrying a
// class of request, so the gateway can surface it on the diagnostics
// surface / event log.
type FaultReporter interface {
	ReportFault(kind string, status Status, err error)
}

// Coordinator owns every cloud exchange: registration, time sync,
// firmware polling, and the remote-action queue. It is event-driven:
// callers push events in (RequestTimeSync, RequestFirmwareCheck, ...)
// and a single goroutine drains them one at a time, so there is never
// more than one HTTP exchange with the cloud in flight.
type Coordinator struct {
	mu     sync.Mutex
	client *Client
	store  Store
	action ActionHandler
	fault  FaultReporter

	persisted Persisted

	actionErrors int
	lastFirmwareCheck time.Time
	timeSyncOK        bool

	events chan func(ctx context.Context)
	done   chan struct{}
}

// NewCoordinator loads any persisted registration from store and returns
// a Coordinator ready to Run.
func NewCoordinator(client *Client, store Store, action ActionHandler, fault FaultReporter) (*Coordinator, error) {
	persisted, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Coordinator{
		client:    client,
		store:     store,
		action:    action,
		fault:     fault,
		persisted: persisted,
		events:    make(chan func(ctx context.Context), 16),
		done:      make(chan struct{}),
	}, nil
}

// Run drains events until ctx is canceled. Call it from its own
// goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.events:
			ev(ctx)
		}
	}
}

// Registered reports whether the hub currently holds a cloud
// registration.
func (c *Coordinator) Registered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persisted.Registration != nil
}

// Register enqueues a registration attempt.
func (c *Coordinator) Register(hubID string) {
	c.events <- func(ctx context.Context) { c.doRegister(ctx, hubID) }
}

func (c *Coordinator) doRegister(ctx context.Context, hubID string) {
	reg := Registration{HubID: hubID, RegisteredAt: time.Now()}
	status, err := c.client.PostRegistration(ctx, reg)
	if err != nil {
		log.Errorf("remote: registration failed (%s): %v", status, err)
		c.reportFault("register", status, err)
		return
	}
	c.mu.Lock()
	c.persisted.Registration = &reg
	persisted := c.persisted
	c.mu.Unlock()
	if err := c.store.Save(persisted); err != nil {
		log.Errorf("remote: persisting registration failed: %v", err)
	}
}

// Unregister enqueues a deregistration attempt and clears the persisted
// registration regardless of whether the cloud call succeeds, since a
// hub that wants to leave should not keep retrying forever.
func (c *Coordinator) Unregister() {
	c.events <- func(ctx context.Context) { c.doUnregister(ctx) }
}

func (c *Coordinator) doUnregister(ctx context.Context) {
	c.mu.Lock()
	reg := c.persisted.Registration
	c.mu.Unlock()
	if reg == nil {
		return
	}
	if status, err := c.client.DeleteRegistration(ctx, reg.HubID); err != nil {
		log.Warnf("remote: unregister call failed (%s): %v, clearing local registration anyway", status, err)
	}
	c.invalidateRegistration()
}

func (c *Coordinator) invalidateRegistration() {
	c.mu.Lock()
	c.persisted.Registration = nil
	persisted := c.persisted
	c.mu.Unlock()
	if err := c.store.Save(persisted); err != nil {
		log.Errorf("remote: persisting cleared registration failed: %v", err)
	}
}

// RequestTimeSync enqueues a time-server lookup for tz, with optional
// lat/lon disambiguation.
func (c *Coordinator) RequestTimeSync(tz string, lat, lon float64, hasLatLon bool, onResult func(TimeInstance)) {
	c.events <- func(ctx context.Context) { c.doTimeSync(ctx, tz, lat, lon, hasLatLon, onResult) }
}

func (c *Coordinator) doTimeSync(ctx context.Context, tz string, lat, lon float64, hasLatLon bool, onResult func(TimeInstance)) {
	t, status, err := c.client.GetTime(ctx, tz, lat, lon, hasLatLon)
	if err != nil {
		log.Errorf("remote: time sync failed (%s): %v, retrying in %v", status, err, timeServerRetryInterval)
		c.reportFault("time-sync", status, err)
		time.AfterFunc(timeServerRetryInterval, func() { c.RequestTimeSync(tz, lat, lon, hasLatLon, onResult) })
		return
	}
	c.mu.Lock()
	c.persisted.LastTimeServerOK = time.Now()
	persisted := c.persisted
	c.mu.Unlock()
	if err := c.store.Save(persisted); err != nil {
		log.Errorf("remote: persisting time-sync timestamp failed: %v", err)
	}
	if onResult != nil {
		onResult(t)
	}
	c.scheduleDailyTimeSync(tz, lat, lon, hasLatLon, onResult)
}

// scheduleDailyTimeSync arms a one-shot timer for the next 02:30 local
// recheck. It is called after a successful lookup; a failed lookup is
// retried after timeServerRetryInterval instead.
func (c *Coordinator) scheduleDailyTimeSync(tz string, lat, lon float64, hasLatLon bool, onResult func(TimeInstance)) {
	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), timeServerDailyHour, timeServerDailyMinute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	time.AfterFunc(next.Sub(now), func() { c.RequestTimeSync(tz, lat, lon, hasLatLon, onResult) })
}

// RequestFirmwareCheck enqueues a firmware-manifest poll, dropped
// silently if the last check was within firmwareCheckMinInterval.
func (c *Coordinator) RequestFirmwareCheck(hostRev, hwVer string, onManifest func(FirmwareManifest)) {
	c.events <- func(ctx context.Context) { c.doFirmwareCheck(ctx, hostRev, hwVer, onManifest) }
}

func (c *Coordinator) doFirmwareCheck(ctx context.Context, hostRev, hwVer string, onManifest func(FirmwareManifest)) {
	c.mu.Lock()
	sinceLast := time.Since(c.lastFirmwareCheck)
	c.mu.Unlock()
	if sinceLast < firmwareCheckMinInterval {
		return
	}

	manifest, status, err := c.client.GetFirmwareManifest(ctx, hostRev, hwVer)
	c.mu.Lock()
	c.lastFirmwareCheck = time.Now()
	c.mu.Unlock()
	if err != nil {
		log.Errorf("remote: firmware check failed (%s): %v", status, err)
		c.reportFault("firmware-check", status, err)
		return
	}
	if onManifest != nil {
		onManifest(manifest)
	}
}

// PollActions enqueues one remote-action poll-and-dispatch cycle.
func (c *Coordinator) PollActions() {
	c.events <- func(ctx context.Context) { c.doPollActions(ctx) }
}

func (c *Coordinator) doPollActions(ctx context.Context) {
	c.mu.Lock()
	consecutive := c.actionErrors
	c.mu.Unlock()
	if consecutive >= actionErrorThreshold {
		// Caller-side scheduling should already be backing off; this guard
		// just prevents a burst of queued PollActions from each re-trying
		// immediately.
		return
	}

	resp, status, err := c.client.GetHubActions(ctx)
	if err != nil {
		c.mu.Lock()
		c.actionErrors++
		errs := c.actionErrors
		c.mu.Unlock()

		if errors.Is(err, errUnauthorized) {
			log.Warnf("remote: action poll unauthorized, invalidating registration")
			c.invalidateRegistration()
			return
		}
		log.Errorf("remote: action poll failed (%s): %v (%d/%d consecutive)", status, err, errs, actionErrorThreshold)
		c.reportFault("action-poll", status, err)
		if errs >= actionErrorThreshold {
			time.AfterFunc(actionErrorRetryInterval, func() {
				c.mu.Lock()
				c.actionErrors = 0
				c.mu.Unlock()
				c.PollActions()
			})
		}
		return
	}

	c.mu.Lock()
	c.actionErrors = 0
	c.mu.Unlock()

	if c.action == nil {
		return
	}
	for _, a := range resp.Actions {
		status, msgID := c.action.HandleAction(ctx, a)
		if _, err := c.client.PutActionStatus(ctx, a.ID, status, msgID); err != nil {
			log.Errorf("remote: reporting action %s status failed: %v", a.ID, err)
		}
	}
}

// SyncHubData enqueues a hub-data upload.
func (c *Coordinator) SyncHubData(payload []byte) {
	c.events <- func(ctx context.Context) {
		if status, err := c.client.PostHubData(ctx, payload); err != nil {
			log.Errorf("remote: hub-data sync failed (%s): %v", status, err)
			c.reportFault("hub-data-sync", status, err)
		}
	}
}

// NotifyLowBattery enqueues a low-battery-count notification.
func (c *Coordinator) NotifyLowBattery(count int) {
	c.events <- func(ctx context.Context) {
		if status, err := c.client.PostLowBatteryNotification(ctx, count); err != nil {
			log.Errorf("remote: low-battery notification failed (%s): %v", status, err)
			c.reportFault("low-battery-notify", status, err)
		}
	}
}

func (c *Coordinator) reportFault(kind string, status Status, err error) {
	if c.fault != nil {
		c.fault.ReportFault(kind, status, err)
	}
}
