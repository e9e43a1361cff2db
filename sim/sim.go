// sim/sim.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"image"
	"log/slog"
	"slices"
	"time"

	"github.com/brunoga/deep"
	"github.com/goforj/godump"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mmp/jetsim/log"
	"github.com/mmp/jetsim/math"
	"github.com/mmp/jetsim/rand"
	"github.com/mmp/jetsim/terrain"
	"github.com/mmp/jetsim/util"
)

const (
	// ProximityThreshold is the separation distance under which two
	// airborne agents are in conflict.
	ProximityThreshold = 12

	DefaultTickDuration  = 50 * time.Millisecond
	DefaultDwellDuration = 30 * time.Second
	DefaultAgentSpeed    = 40 // pixels per second

	MinSimRate = 0.1
	MaxSimRate = 20
)

// trackTTL bounds how long a track request stays live without the
// tracker renewing it.
const trackTTL = 5 * time.Minute

// AgentConfig describes one roster entry.
type AgentConfig struct {
	Callsign Callsign
	Owner    string
	Model    string
	Speed    float32 // pixels per second; 0 takes the default
}

// NewSimConfiguration collects everything needed to start a simulation.
// Exactly one of Raster and Grid must be set.
type NewSimConfiguration struct {
	Raster image.Image
	Grid   *terrain.Grid

	ParkingSlotCount int
	Roster           []AgentConfig
	Seed             int64
	StartTime        time.Time
	TickDuration     time.Duration
	DwellDuration    time.Duration
	// Weather at or above this severity grounds the whole fleet.
	GroundingThreshold Severity
	EmergencyPolicy    EmergencyPolicy
	// Margin keeps random placements away from the raster edge.
	Margin    int
	Telemetry TelemetrySink

	Lg *log.Logger
}

// Sim runs the city: terrain, parking, hazards, and the agent fleet,
// advanced in fixed ticks. All exported methods are safe for concurrent
// use.
type Sim struct {
	mu util.LoggingMutex
	lg *log.Logger

	grid    *terrain.Grid
	lot     *ParkingLot
	hazards *HazardRegistry
	rand    *rand.Rand
	policy  EmergencyPolicy

	Agents map[Callsign]*Agent

	eventStream *EventStream
	telemetry   TelemetrySink
	trackedBy   *expirable.LRU[Callsign, string]

	tick               int64
	now                time.Time
	tickDuration       time.Duration
	dwellDuration      time.Duration
	groundingThreshold Severity
	margin             int

	simRate        float32
	paused         bool
	lastUpdateTime time.Time
	updateTimeSlop time.Duration

	prevSnapshot    *WorldSnapshot
	activeConflicts map[[2]Callsign]interface{}
	fleetGrounded   bool
}

// WorldSnapshot is a self-contained copy of the world after some tick.
// It shares no mutable state with the Sim; callers may hold it as long
// as they like.
type WorldSnapshot struct {
	Tick      int64
	Time      time.Time
	Weather   Severity
	Agents    []AgentSnapshot // sorted by callsign
	Slots     []ParkingSlot
	Accidents []HazardEvent
	Conflicts []Conflict
}

func NewSim(config NewSimConfiguration, lg *log.Logger) (*Sim, error) {
	grid := config.Grid
	if grid == nil {
		if config.Raster == nil {
			return nil, fmt.Errorf("no raster or terrain grid provided")
		}
		var err error
		if grid, err = terrain.MakeGrid(config.Raster); err != nil {
			return nil, fmt.Errorf("classifying raster: %w", err)
		}
	}

	r := rand.MakeWithSeed(config.Seed)

	lot, err := MakeParkingLot(grid, config.ParkingSlotCount, config.Margin, r)
	if err != nil {
		return nil, fmt.Errorf("placing parking slots: %w", err)
	}

	s := &Sim{
		lg:                 lg,
		grid:               grid,
		lot:                lot,
		hazards:            NewHazardRegistry(),
		rand:               r,
		policy:             util.Select[EmergencyPolicy](config.EmergencyPolicy != nil, config.EmergencyPolicy, NoEmergencies{}),
		Agents:             make(map[Callsign]*Agent),
		eventStream:        NewEventStream(lg),
		telemetry:          config.Telemetry,
		trackedBy:          expirable.NewLRU[Callsign, string](1024, nil, trackTTL),
		now:                config.StartTime,
		tickDuration:       util.Select(config.TickDuration > 0, config.TickDuration, DefaultTickDuration),
		dwellDuration:      util.Select(config.DwellDuration > 0, config.DwellDuration, DefaultDwellDuration),
		groundingThreshold: util.Select(config.GroundingThreshold > SeverityNone, config.GroundingThreshold, SeveritySevere),
		margin:             config.Margin,
		simRate:            1,
		activeConflicts:    make(map[[2]Callsign]interface{}),
	}

	for i, ac := range config.Roster {
		if err := s.createAgent(i, ac); err != nil {
			return nil, fmt.Errorf("agent %q: %w", ac.Callsign, err)
		}
	}

	s.prevSnapshot = s.buildSnapshot(nil)
	return s, nil
}

func (s *Sim) createAgent(serial int, ac AgentConfig) error {
	if ac.Callsign == "" {
		return fmt.Errorf("empty callsign")
	}
	if _, ok := s.Agents[ac.Callsign]; ok {
		return ErrDuplicateCallsign
	}

	pos, err := s.grid.RandomLandPoint(s.rand, s.margin)
	if err != nil {
		return fmt.Errorf("placing agent: %w", err)
	}
	dest, err := s.grid.RandomLandPoint(s.rand, s.margin)
	if err != nil {
		return fmt.Errorf("choosing destination: %w", err)
	}

	s.Agents[ac.Callsign] = &Agent{
		Callsign:    ac.Callsign,
		Serial:      serial,
		Owner:       ac.Owner,
		Model:       ac.Model,
		Position:    pos,
		Heading:     math.Heading2f(pos, dest),
		Speed:       util.Select(ac.Speed > 0, ac.Speed, DefaultAgentSpeed),
		Altitude:    CruiseAltitude,
		Destination: dest,
		State:       StateCruise,
		Slot:        NoSlot,
	}
	return nil
}

// CreateAgent adds an agent to a running simulation.
func (s *Sim) CreateAgent(ac AgentConfig) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return s.createAgent(len(s.Agents), ac)
}

///////////////////////////////////////////////////////////////////////////
// Time

// Update advances the simulation to account for wall-clock time since
// the last call, scaled by the sim rate. It is intended to be called
// periodically from the host's run loop.
func (s *Sim) Update() {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	startUpdate := time.Now()
	if prev := s.lastUpdateTime; !prev.IsZero() {
		if d := time.Since(prev); d > 200*time.Millisecond {
			s.lg.Warn("unexpectedly long between updates", slog.Duration("duration", d))
		}
	}
	defer func() {
		s.lastUpdateTime = time.Now()
		if d := time.Since(startUpdate); d > 100*time.Millisecond {
			s.lg.Warn("unexpectedly long update", slog.Duration("duration", d))
		}
	}()

	if s.paused {
		return
	}

	elapsed := time.Since(s.lastUpdateTime)
	if s.lastUpdateTime.IsZero() {
		elapsed = 0
	}
	s.step(time.Duration(float64(elapsed) * float64(s.simRate)))
}

// Step advances the simulation by the given amount of simulated time,
// one whole tick at a time. Leftover time shorter than a tick is
// carried to the next call.
func (s *Sim) Step(elapsed time.Duration) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	s.step(elapsed)
}

func (s *Sim) step(elapsed time.Duration) {
	if s.paused {
		return
	}
	elapsed += s.updateTimeSlop
	for elapsed >= s.tickDuration {
		elapsed -= s.tickDuration
		s.advanceTick()
		if s.paused { // an invariant failure mid-step pauses the sim
			break
		}
	}
	s.updateTimeSlop = elapsed
}

func (s *Sim) advanceTick() {
	s.tick++
	s.now = s.now.Add(s.tickDuration)

	hazSnap, expired := s.hazards.Snapshot(s.now)
	for _, h := range expired {
		s.postEvent(Event{
			Type:        AccidentExpiredEvent,
			Hazard:      h.ID,
			Location:    h.Location,
			Severity:    h.Severity,
			WrittenText: fmt.Sprintf("accident %d expired", h.ID),
		})
	}

	if grounded := hazSnap.Weather >= s.groundingThreshold; grounded != s.fleetGrounded {
		s.fleetGrounded = grounded
		if grounded {
			s.postEvent(Event{Type: AgentsGroundedEvent, Severity: hazSnap.Weather,
				WrittenText: "all agents grounded for weather"})
		} else {
			s.postEvent(Event{Type: AgentsResumedEvent, Severity: hazSnap.Weather,
				WrittenText: "weather improved; agents resuming"})
		}
	}

	env := &UpdateEnv{
		Now:                s.now,
		Tick:               s.tickDuration,
		Hazards:            hazSnap,
		GroundingThreshold: s.groundingThreshold,
		Lot:                s.lot,
		Grid:               s.grid,
		Margin:             s.margin,
		Rand:               s.rand,
		Policy:             s.policy,
		DwellDuration:      s.dwellDuration,
		Lg:                 s.lg,
	}

	// Sorted callsign order keeps runs with the same seed identical.
	for _, cs := range util.SortedMapKeys(s.Agents) {
		for _, ev := range s.Agents[cs].Update(env) {
			s.postEvent(ev)
		}
	}

	for cs, a := range s.Agents {
		if !a.Check(s.lot, s.grid, s.lg) {
			s.lg.Errorf("%s: invariant violation; pausing", cs)
			s.paused = true
		}
	}

	snap := s.buildSnapshot(&hazSnap)
	s.reportConflicts(snap.Conflicts)
	s.prevSnapshot = snap

	if s.telemetry != nil {
		err := s.telemetry.Record(TelemetryRecord{
			Tick:      s.tick,
			Time:      s.now,
			Weather:   hazSnap.Weather,
			Agents:    snap.Agents,
			Conflicts: snap.Conflicts,
		})
		if err != nil {
			s.lg.Errorf("telemetry: %v", err)
		}
	}
}

func (s *Sim) buildSnapshot(hazSnap *HazardSnapshot) *WorldSnapshot {
	if hazSnap == nil {
		hs, _ := s.hazards.Snapshot(s.now)
		hazSnap = &hs
	}

	snap := &WorldSnapshot{
		Tick:      s.tick,
		Time:      s.now,
		Weather:   hazSnap.Weather,
		Slots:     s.lot.Slots(),
		Accidents: slices.Clone(hazSnap.Accidents),
	}
	for _, cs := range util.SortedMapKeys(s.Agents) {
		snap.Agents = append(snap.Agents, s.Agents[cs].Snapshot())
	}

	airborne := util.FilterSlice(snap.Agents,
		func(a AgentSnapshot) bool { return a.State == StateCruise || a.State == StateDetour || a.State == StateEmergency })
	snap.Conflicts = FindConflicts(airborne, ProximityThreshold)
	return snap
}

// reportConflicts posts an event for each pair newly in conflict this
// tick; ongoing conflicts are not re-announced.
func (s *Sim) reportConflicts(conflicts []Conflict) {
	current := make(map[[2]Callsign]interface{})
	for _, c := range conflicts {
		key := [2]Callsign{c.A, c.B}
		current[key] = nil
		if _, ok := s.activeConflicts[key]; !ok {
			s.postEvent(Event{
				Type:          ConflictDetectedEvent,
				Callsign:      c.A,
				OtherCallsign: c.B,
				WrittenText:   fmt.Sprintf("%s and %s in conflict, %.1f apart", c.A, c.B, c.Distance),
			})
		}
	}
	s.activeConflicts = current
}

func (s *Sim) postEvent(ev Event) {
	s.lg.Info("sim event", slog.Any("event", ev))
	s.eventStream.Post(ev)
}

///////////////////////////////////////////////////////////////////////////
// State access

// Snapshot returns a deep copy of the world as of the last completed
// tick.
func (s *Sim) Snapshot() WorldSnapshot {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return deep.MustCopy(*s.prevSnapshot)
}

func (s *Sim) CurrentTime() time.Time {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return s.now
}

// DumpAgent renders an agent's full internal state for debugging.
func (s *Sim) DumpAgent(callsign Callsign) (string, error) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	a, ok := s.Agents[callsign]
	if !ok {
		return "", ErrUnknownCallsign
	}
	return godump.DumpStr(a), nil
}

func (s *Sim) Subscribe() *EventsSubscription {
	return s.eventStream.Subscribe()
}

///////////////////////////////////////////////////////////////////////////
// Hazards

// ReportAccident registers an accident; duration 0 keeps it active until
// explicitly cleared.
func (s *Sim) ReportAccident(p [2]float32, radius float32, severity Severity, duration time.Duration) HazardID {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	var expiry time.Time
	if duration > 0 {
		expiry = s.now.Add(duration)
	}
	id := s.hazards.ReportAccident(p, radius, severity, s.now, expiry)
	s.postEvent(Event{
		Type:        AccidentReportedEvent,
		Hazard:      id,
		Location:    p,
		Severity:    severity,
		WrittenText: fmt.Sprintf("accident %d reported", id),
	})
	return id
}

func (s *Sim) ClearAccident(id HazardID) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	if err := s.hazards.ClearAccident(id); err != nil {
		return err
	}
	s.postEvent(Event{
		Type:        AccidentClearedEvent,
		Hazard:      id,
		WrittenText: fmt.Sprintf("accident %d cleared", id),
	})
	return nil
}

// SetWeather changes the global weather severity; agents see it on
// their next update.
func (s *Sim) SetWeather(severity Severity) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	if severity == s.hazards.Weather() {
		return
	}
	s.hazards.SetWeather(severity)
	s.postEvent(Event{
		Type:        WeatherChangedEvent,
		Severity:    severity,
		WrittenText: "weather now " + severity.String(),
	})
}

// HazardsNear returns the active accidents whose affected circle comes
// within radius of the given point.
func (s *Sim) HazardsNear(p [2]float32, radius float32) []HazardEvent {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	return s.hazards.Near(p, radius, s.now)
}

///////////////////////////////////////////////////////////////////////////
// Agent control

// AssignDestination redirects an agent to a new destination, which must
// be on land.
func (s *Sim) AssignDestination(callsign Callsign, dest [2]float32) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	a, ok := s.Agents[callsign]
	if !ok {
		return ErrUnknownCallsign
	}
	return a.ReceiveCoordinateInstruction(dest, s.grid, s.lot, s.lg)
}

func (s *Sim) AssignAltitude(callsign Callsign, altitude float32) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	a, ok := s.Agents[callsign]
	if !ok {
		return ErrUnknownCallsign
	}
	a.ReceiveAltitudeInstruction(altitude)
	return nil
}

// TriggerEmergency forces the given agent into an emergency on its next
// update.
func (s *Sim) TriggerEmergency(callsign Callsign) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	a, ok := s.Agents[callsign]
	if !ok {
		return ErrUnknownCallsign
	}
	a.ReceiveEmergencyDirective()
	return nil
}

///////////////////////////////////////////////////////////////////////////
// Tracking

// RequestTrack records that the named tracker is following an agent's
// flight and returns the agent's current state. Tracks quietly lapse if
// not renewed.
func (s *Sim) RequestTrack(callsign Callsign, tracker string) (AgentSnapshot, error) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	a, ok := s.Agents[callsign]
	if !ok {
		return AgentSnapshot{}, ErrUnknownCallsign
	}
	s.trackedBy.Add(callsign, tracker)
	return a.Snapshot(), nil
}

func (s *Sim) ReleaseTrack(callsign Callsign) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	s.trackedBy.Remove(callsign)
}

func (s *Sim) TrackedBy(callsign Callsign) (string, bool) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return s.trackedBy.Get(callsign)
}

///////////////////////////////////////////////////////////////////////////
// Rate and lifecycle

func (s *Sim) SetSimRate(rate float32) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	if rate < MinSimRate || rate > MaxSimRate {
		return ErrInvalidSimRate
	}
	s.simRate = rate
	return nil
}

func (s *Sim) TogglePause() {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	s.paused = !s.paused
	s.lastUpdateTime = time.Now()
}

func (s *Sim) Paused() bool {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return s.paused
}

func (s *Sim) Destroy() {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	s.eventStream.Destroy()
	if s.telemetry != nil {
		if err := s.telemetry.Close(); err != nil {
			s.lg.Errorf("closing telemetry: %v", err)
		}
		s.telemetry = nil
	}
}
