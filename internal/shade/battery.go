package shade

import (
	"math/rand"
	"time"

	"github.com/shurfire/rfgateway/internal/wire"
)

// Battery thresholds and retry bounds, carried over unchanged from the
// original firmware's SC_ShadeConfig.c.
const (
	lowBatteryLevel                 = 110
	moderateBatteryLevel            = 120
	lowBatteryLevelPowerTilt        = 100
	moderateBatteryLevelPowerTilt   = 110
	batteryCheckRetryMax            = 7
	maxBatteryMeasurementsPerShade  = 5
	secondsBetweenBatteryChecks     = 4
	batteryCheckHour                = 4
	batteryCheckMinute              = 0
	batteryRandomizeMinutes         = 60
	batteryRandomizeSeconds         = 60
)

// BatteryLevel is the coarse battery state derived from a raw reading.
type BatteryLevel uint8

const (
	BatteryGreen BatteryLevel = iota
	BatteryYellow
	BatteryRed
)

func (l BatteryLevel) String() string {
	switch l {
	case BatteryRed:
		return "red"
	case BatteryYellow:
		return "yellow"
	default:
		return "green"
	}
}

// ClassifyBattery maps a raw reading to a coarse level. Power-tilt shades
// use a lower pair of thresholds than standard shades.
func ClassifyBattery(raw byte, powerTilt bool) BatteryLevel {
	low, moderate := lowBatteryLevel, moderateBatteryLevel
	if powerTilt {
		low, moderate = lowBatteryLevelPowerTilt, moderateBatteryLevelPowerTilt
	}
	switch {
	case int(raw) < low:
		return BatteryRed
	case int(raw) < moderate:
		return BatteryYellow
	default:
		return BatteryGreen
	}
}

// NextBatterySweepTime returns the next Sunday 04:00 local (relative to
// now), offset by a per-hub random jitter of up to batteryRandomizeMinutes
// minutes and batteryRandomizeSeconds seconds so every hub on the network
// doesn't query at the same instant.
func NextBatterySweepTime(now time.Time, rng *rand.Rand) time.Time {
	daysUntilSunday := (7 - int(now.Weekday())) % 7
	target := time.Date(now.Year(), now.Month(), now.Day(), batteryCheckHour, batteryCheckMinute, 0, 0, now.Location())
	target = target.AddDate(0, 0, daysUntilSunday)
	if !target.After(now) {
		target = target.AddDate(0, 0, 7)
	}

	jitter := time.Duration(rng.Intn(batteryRandomizeMinutes+1))*time.Minute +
		time.Duration(rng.Intn(batteryRandomizeSeconds+1))*time.Second
	return target.Add(jitter)
}

// shadeBatteryCheck tracks one shade's in-progress sweep: up to
// batteryCheckRetryMax queries spaced secondsBetweenBatteryChecks apart,
// stopping once maxBatteryMeasurementsPerShade valid replies arrive. The
// maximum reply seen is the shade's reading.
type shadeBatteryCheck struct {
	deviceID  uint16
	powerTilt bool
	attempts  int
	readings  []byte
}

func newShadeBatteryCheck(deviceID uint16, powerTilt bool) *shadeBatteryCheck {
	return &shadeBatteryCheck{deviceID: deviceID, powerTilt: powerTilt}
}

// Done reports whether the check should stop issuing further queries.
func (c *shadeBatteryCheck) Done() bool {
	return len(c.readings) >= maxBatteryMeasurementsPerShade || c.attempts >= batteryCheckRetryMax
}

// RecordReply adds a valid reading.
func (c *shadeBatteryCheck) RecordReply(raw byte) {
	c.readings = append(c.readings, raw)
}

// Result returns the maximum of the collected readings, or false if none
// arrived.
func (c *shadeBatteryCheck) Result() (byte, bool) {
	if len(c.readings) == 0 {
		return 0, false
	}
	max := c.readings[0]
	for _, r := range c.readings[1:] {
		if r > max {
			max = r
		}
	}
	return max, true
}

// Sweep drives a fleet-wide weekly battery check: queries each
// battery-powered shade in turn and reports a fault if any comes back
// Red or Yellow.
type Sweep struct {
	svc    *Service
	collab Collaborator

	pending []*shadeBatteryCheck
	cur     int
	timer   *time.Timer
}

// NewSweep returns a Sweep ready to run against the given shade ids (with
// their power-tilt-ness) via svc, reporting through collab.
func NewSweep(svc *Service, collab Collaborator, shades []ShadeBatteryTarget) *Sweep {
	s := &Sweep{svc: svc, collab: collab}
	for _, t := range shades {
		s.pending = append(s.pending, newShadeBatteryCheck(t.DeviceID, t.PowerTilt))
	}
	return s
}

// ShadeBatteryTarget names one shade to include in a Sweep.
type ShadeBatteryTarget struct {
	DeviceID  uint16
	PowerTilt bool
}

// Start begins querying the first shade in the fleet.
func (s *Sweep) Start(dest wire.Destination) {
	s.cur = 0
	s.queryCurrent(dest)
}

func (s *Sweep) queryCurrent(dest wire.Destination) {
	if s.cur >= len(s.pending) {
		s.finish()
		return
	}
	check := s.pending[s.cur]
	if check.Done() {
		s.cur++
		s.queryCurrent(dest)
		return
	}
	check.attempts++
	s.svc.Enqueue(Command{
		Kind:         KindRawPayload,
		Addr:         wire.DeviceAddress(check.deviceID),
		Raw:          []byte{'!', indOpBattery},
		BatteryQuery: true,
	}, dest)
}

// HandleReply records a battery reply for the shade currently being
// queried.
func (s *Sweep) HandleReply(deviceID uint16, raw byte) {
	if s.cur >= len(s.pending) {
		return
	}
	check := s.pending[s.cur]
	if check.deviceID != deviceID {
		return
	}
	check.RecordReply(raw)
}

// Advance is called secondsBetweenBatteryChecks after each query: moves on
// to the next shade once the current one is Done.
func (s *Sweep) Advance(dest wire.Destination) {
	if s.cur >= len(s.pending) {
		return
	}
	if s.pending[s.cur].Done() {
		s.cur++
	}
	s.queryCurrent(dest)
}

func (s *Sweep) finish() {
	anyLow := false
	for _, check := range s.pending {
		raw, ok := check.Result()
		if !ok {
			continue
		}
		level := ClassifyBattery(raw, check.powerTilt)
		if level == BatteryRed || level == BatteryYellow {
			anyLow = true
		}
	}
	if anyLow {
		s.collab.ReportFault("low battery detected during weekly sweep")
	}
}
