// sim/agent.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"log/slog"
	"time"

	"github.com/mmp/jetsim/log"
	"github.com/mmp/jetsim/math"
	"github.com/mmp/jetsim/rand"
	"github.com/mmp/jetsim/terrain"
)

type Callsign string

type AgentState int

const (
	StateCruise AgentState = iota
	StateDetour
	StateEmergency
	StateParked
	StateGrounded
)

func (s AgentState) String() string {
	return [...]string{"CRUISE", "DETOUR", "EMERGENCY", "PARKED", "GROUNDED"}[s]
}

const (
	// ArrivalEpsilon is how close an agent must get to a target point
	// before it is considered to have arrived there.
	ArrivalEpsilon = 2

	// HazardLookahead bounds how far along its track an agent scans for
	// accidents each tick.
	HazardLookahead = 60

	// HazardClearance is the extra margin a detour waypoint keeps from
	// an accident's affected radius.
	HazardClearance = 10

	// LoiterRadius is the orbit radius flown while waiting for a
	// parking slot to open up.
	LoiterRadius = 25

	// CruiseAltitude is the default altitude assigned on departure.
	CruiseAltitude = 120

	// Assigned altitudes are clamped to [MinAltitude, MaxAltitude].
	MinAltitude = 30
	MaxAltitude = 400
)

// Agent is a single jetpack commuter. All fields are in map-pixel space
// except Heading (radians, clockwise from north) and Altitude. Agents
// are only ever mutated by Update and the Receive* instruction methods,
// both called with the Sim's lock held.
type Agent struct {
	Callsign Callsign
	Serial   int
	Owner    string
	Model    string

	Position [2]float32
	Heading  float32
	Speed    float32 // pixels per second
	Altitude float32

	Destination [2]float32
	State       AgentState
	PrevState   AgentState // state to resume after GROUNDED
	Slot        SlotID     // reserved pad, NoSlot if none

	DetourWaypoint [2]float32
	LoiterCenter   [2]float32
	Loitering      bool
	DwellUntil     time.Time

	loiterAngle      float32
	pendingEmergency bool
	noSlotWarned     bool
}

// AgentSnapshot is the published, immutable per-tick view of an agent.
type AgentSnapshot struct {
	Callsign    Callsign
	Position    [2]float32
	Heading     float32
	Speed       float32
	Altitude    float32
	State       AgentState
	Destination [2]float32
	Slot        SlotID
}

func (a *Agent) Snapshot() AgentSnapshot {
	return AgentSnapshot{
		Callsign:    a.Callsign,
		Position:    a.Position,
		Heading:     a.Heading,
		Speed:       a.Speed,
		Altitude:    a.Altitude,
		State:       a.State,
		Destination: a.Destination,
		Slot:        a.Slot,
	}
}

func (a *Agent) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("callsign", string(a.Callsign)),
		slog.String("state", a.State.String()),
		slog.Float64("x", float64(a.Position[0])),
		slog.Float64("y", float64(a.Position[1])),
		slog.Float64("heading", float64(math.Degrees(a.Heading))),
		slog.Int("slot", int(a.Slot)))
}

func (a *Agent) Airborne() bool {
	return a.State == StateCruise || a.State == StateDetour || a.State == StateEmergency
}

// EmergencyPolicy decides, once per tick per airborne agent, whether
// that agent suffers a spontaneous emergency.
type EmergencyPolicy interface {
	CheckEmergency(a *Agent, r *rand.Rand) bool
}

// NoEmergencies never declares one; it is the default policy.
type NoEmergencies struct{}

func (NoEmergencies) CheckEmergency(*Agent, *rand.Rand) bool { return false }

// RandomEmergencies declares an emergency for each airborne agent with
// fixed per-tick probability.
type RandomEmergencies struct {
	PerTickProbability float32
}

func (p RandomEmergencies) CheckEmergency(a *Agent, r *rand.Rand) bool {
	return r.Float32() < p.PerTickProbability
}

// UpdateEnv carries everything an agent may consult during one tick.
// Hazards is the snapshot taken at tick start, so every agent sees the
// same hazard picture regardless of update order.
type UpdateEnv struct {
	Now                time.Time
	Tick               time.Duration
	Hazards            HazardSnapshot
	GroundingThreshold Severity
	Lot                *ParkingLot
	Grid               *terrain.Grid
	Margin             int
	Rand               *rand.Rand
	Policy             EmergencyPolicy
	DwellDuration      time.Duration
	Lg                 *log.Logger
}

// Update advances the agent one tick and returns the events it
// generated. Agents never read each other directly; everything they can
// see arrives through env.
func (a *Agent) Update(env *UpdateEnv) []Event {
	var events []Event

	// Severe weather overrides everything, including emergencies: the
	// agent freezes in place until conditions improve.
	if env.Hazards.Weather >= env.GroundingThreshold {
		if a.State != StateGrounded {
			a.PrevState = a.State
			a.State = StateGrounded
		}
		return nil
	}
	if a.State == StateGrounded {
		a.State = a.PrevState
	}

	if a.Airborne() && !a.pendingEmergency && env.Policy.CheckEmergency(a, env.Rand) {
		a.pendingEmergency = true
	}
	if a.pendingEmergency && a.Airborne() {
		a.pendingEmergency = false
		events = append(events, a.declareEmergency(env)...)
	}

	switch a.State {
	case StateCruise:
		events = append(events, a.updateCruise(env)...)
	case StateDetour:
		events = append(events, a.updateDetour(env)...)
	case StateEmergency:
		events = append(events, a.updateEmergency(env)...)
	case StateParked:
		events = append(events, a.updateParked(env)...)
	}
	return events
}

func (a *Agent) declareEmergency(env *UpdateEnv) []Event {
	events := []Event{{
		Type:        EmergencyDeclaredEvent,
		Callsign:    a.Callsign,
		Location:    a.Position,
		WrittenText: string(a.Callsign) + " declared an emergency",
	}}

	// Land at the nearest free pad. A slot reserved for the original
	// arrival is given back first so the nearest-to-here search sees it.
	if a.Slot != NoSlot {
		if err := env.Lot.Release(a.Slot); err != nil {
			env.Lg.Errorf("%s: releasing slot %d: %v", a.Callsign, a.Slot, err)
		}
		a.Slot = NoSlot
	}
	if slot, err := env.Lot.AllocateNearest(a.Position, a.Callsign); err == nil {
		a.Slot = slot.ID
		a.Loitering = false
	} else {
		// Full lot: orbit in place until one opens.
		a.LoiterCenter = a.Position
		a.Loitering = true
		events = append(events, Event{
			Type:        NoFreeSlotEvent,
			Callsign:    a.Callsign,
			Location:    a.Position,
			WrittenText: string(a.Callsign) + " holding: no free parking slot",
		})
	}
	a.State = StateEmergency
	return events
}

func (a *Agent) updateCruise(env *UpdateEnv) []Event {
	if a.Loitering {
		return a.updateLoiter(env, a.LoiterCenter)
	}

	// Scan the track ahead for accidents before moving.
	if hit := a.hazardsAhead(env); len(hit) > 0 {
		h := hit[0]
		a.DetourWaypoint = detourWaypoint(a.Position, a.Destination, h)
		a.State = StateDetour
		return []Event{{
			Type:        DetourStartedEvent,
			Callsign:    a.Callsign,
			Hazard:      h.ID,
			Location:    a.DetourWaypoint,
			Severity:    h.Severity,
			WrittenText: string(a.Callsign) + " detouring around accident",
		}}
	}

	target := a.Destination
	if a.Slot != NoSlot {
		// Final approach to the reserved pad.
		slot, err := env.Lot.Slot(a.Slot)
		if err != nil {
			env.Lg.Errorf("%s: reserved slot %d: %v", a.Callsign, a.Slot, err)
			a.Slot = NoSlot
		} else {
			target = slot.Location
		}
	}

	if !a.moveToward(target, env.Tick) {
		return nil
	}

	// Arrived. Without a reservation this is the destination itself;
	// grab the nearest pad and make for it.
	if a.Slot == NoSlot {
		slot, err := env.Lot.AllocateNearest(a.Position, a.Callsign)
		if err != nil {
			a.LoiterCenter = a.Destination
			a.Loitering = true
			if a.noSlotWarned {
				return nil
			}
			a.noSlotWarned = true
			return []Event{{
				Type:        NoFreeSlotEvent,
				Callsign:    a.Callsign,
				Location:    a.Position,
				WrittenText: string(a.Callsign) + " holding: no free parking slot",
			}}
		}
		a.Slot = slot.ID
		return nil
	}

	return a.park(env)
}

func (a *Agent) updateDetour(env *UpdateEnv) []Event {
	// If the accident cleared while we were off-track, resume direct.
	direct := env.Hazards.Intersecting(a.Position, a.towardDestination(HazardLookahead))
	arrived := a.moveToward(a.DetourWaypoint, env.Tick)
	if !arrived && len(direct) > 0 {
		return nil
	}

	a.State = StateCruise
	return []Event{{
		Type:        DetourEndedEvent,
		Callsign:    a.Callsign,
		Location:    a.Position,
		WrittenText: string(a.Callsign) + " resuming direct",
	}}
}

func (a *Agent) updateEmergency(env *UpdateEnv) []Event {
	if a.Slot == NoSlot {
		// Still waiting for a pad; hazards are ignored but we cannot
		// land on thin air.
		if slot, err := env.Lot.AllocateNearest(a.Position, a.Callsign); err == nil {
			a.Slot = slot.ID
			a.Loitering = false
		} else {
			return a.updateLoiter(env, a.LoiterCenter)
		}
	}

	slot, err := env.Lot.Slot(a.Slot)
	if err != nil {
		env.Lg.Errorf("%s: reserved slot %d: %v", a.Callsign, a.Slot, err)
		a.Slot = NoSlot
		return nil
	}
	if !a.moveToward(slot.Location, env.Tick) {
		return nil
	}

	events := []Event{{
		Type:        EmergencyResolvedEvent,
		Callsign:    a.Callsign,
		Slot:        a.Slot,
		Location:    slot.Location,
		WrittenText: string(a.Callsign) + " emergency resolved",
	}}
	return append(events, a.park(env)...)
}

func (a *Agent) updateParked(env *UpdateEnv) []Event {
	if env.Now.Before(a.DwellUntil) {
		return nil
	}

	dest, err := env.Grid.RandomLandPoint(env.Rand, env.Margin)
	if err != nil {
		// A raster with no usable land; stay put and say so once.
		if a.noSlotWarned {
			return nil
		}
		a.noSlotWarned = true
		return []Event{{
			Type:        NoLandFoundEvent,
			Callsign:    a.Callsign,
			Location:    a.Position,
			WrittenText: string(a.Callsign) + " cannot depart: no land destination found",
		}}
	}

	if err := env.Lot.Release(a.Slot); err != nil {
		env.Lg.Errorf("%s: releasing slot %d: %v", a.Callsign, a.Slot, err)
	}
	a.Slot = NoSlot
	a.Destination = dest
	a.State = StateCruise
	a.Altitude = CruiseAltitude
	a.Heading = math.Heading2f(a.Position, dest)
	a.noSlotWarned = false
	return []Event{{
		Type:        AgentDepartedEvent,
		Callsign:    a.Callsign,
		Location:    a.Position,
		WrittenText: string(a.Callsign) + " departed",
	}}
}

// updateLoiter flies a circular hold around center, retrying slot
// allocation each tick.
func (a *Agent) updateLoiter(env *UpdateEnv, center [2]float32) []Event {
	if slot, err := env.Lot.AllocateNearest(center, a.Callsign); err == nil {
		a.Slot = slot.ID
		a.Loitering = false
		a.noSlotWarned = false
		return nil
	}

	// Advance the orbit by the arc length flown this tick; moveToward
	// caps the step, so an agent entering the hold flies onto the orbit
	// rather than jumping to it.
	dt := float32(env.Tick.Seconds())
	a.loiterAngle = math.NormalizeHeading(a.loiterAngle + a.Speed*dt/LoiterRadius)
	p := math.Add2f(center, math.Scale2f(math.HeadingVector(a.loiterAngle), LoiterRadius))
	a.moveToward(p, env.Tick)
	return nil
}

func (a *Agent) park(env *UpdateEnv) []Event {
	slot, err := env.Lot.Slot(a.Slot)
	if err != nil {
		env.Lg.Errorf("%s: parking at slot %d: %v", a.Callsign, a.Slot, err)
		return nil
	}

	// Snap exactly onto the pad.
	a.Position = slot.Location
	a.State = StateParked
	a.Altitude = 0
	a.Loitering = false
	a.noSlotWarned = false
	// Jitter the dwell so a fleet that parked together doesn't depart in
	// lockstep.
	a.DwellUntil = env.Now.Add(env.DwellDuration + env.Rand.Duration(env.DwellDuration/2))
	return []Event{{
		Type:        AgentParkedEvent,
		Callsign:    a.Callsign,
		Slot:        a.Slot,
		Location:    slot.Location,
		WrittenText: string(a.Callsign) + " parked",
	}}
}

// moveToward advances the agent along the straight line to target,
// snapping onto it when this tick's travel reaches it. Reports whether
// the agent is now at the target.
func (a *Agent) moveToward(target [2]float32, tick time.Duration) bool {
	d := math.Distance2f(a.Position, target)
	if d <= ArrivalEpsilon {
		a.Position = target
		return true
	}

	a.Heading = math.Heading2f(a.Position, target)
	step := a.Speed * float32(tick.Seconds())
	if step >= d {
		a.Position = target
		return true
	}
	a.Position = math.Add2f(a.Position, math.Scale2f(math.HeadingVector(a.Heading), step))
	return false
}

func (a *Agent) towardDestination(dist float32) [2]float32 {
	d := math.Distance2f(a.Position, a.Destination)
	if d <= dist {
		return a.Destination
	}
	v := math.Normalize2f(math.Sub2f(a.Destination, a.Position))
	return math.Add2f(a.Position, math.Scale2f(v, dist))
}

func (a *Agent) hazardsAhead(env *UpdateEnv) []HazardEvent {
	return env.Hazards.Intersecting(a.Position, a.towardDestination(HazardLookahead))
}

// detourWaypoint picks a point abeam the accident, offset perpendicular
// to the direct track by the accident radius plus clearance, on the side
// the agent is already closer to.
func detourWaypoint(from, to [2]float32, h HazardEvent) [2]float32 {
	v := math.Normalize2f(math.Sub2f(to, from))
	perp := math.Perp2f(v)
	if math.SignedPointLineDistance(h.Location, from, to) > 0 {
		perp = math.Scale2f(perp, -1)
	}
	return math.Add2f(h.Location, math.Scale2f(perp, h.Radius+HazardClearance))
}

// ReceiveCoordinateInstruction redirects the agent to a new destination.
// Water destinations are rejected. A parked agent departs immediately.
func (a *Agent) ReceiveCoordinateInstruction(dest [2]float32, grid *terrain.Grid, lot *ParkingLot, lg *log.Logger) error {
	if !grid.IsLand(dest) {
		return ErrDestinationNotLand
	}

	a.Destination = dest
	a.Loitering = false
	a.noSlotWarned = false
	switch a.State {
	case StateParked:
		if err := lot.Release(a.Slot); err != nil {
			lg.Errorf("%s: releasing slot %d: %v", a.Callsign, a.Slot, err)
		}
		a.Slot = NoSlot
		a.State = StateCruise
		a.Altitude = CruiseAltitude
	case StateCruise, StateDetour:
		// The old arrival reservation is stale now.
		if a.Slot != NoSlot {
			if err := lot.Release(a.Slot); err != nil {
				lg.Errorf("%s: releasing slot %d: %v", a.Callsign, a.Slot, err)
			}
			a.Slot = NoSlot
		}
		a.State = StateCruise
	}
	a.Heading = math.Heading2f(a.Position, dest)
	return nil
}

func (a *Agent) ReceiveAltitudeInstruction(altitude float32) {
	if a.Airborne() {
		a.Altitude = math.Clamp(altitude, MinAltitude, MaxAltitude)
	}
}

// ReceiveEmergencyDirective forces an emergency on the next update.
func (a *Agent) ReceiveEmergencyDirective() {
	if a.Airborne() {
		a.pendingEmergency = true
	}
}

// Check validates the agent's internal invariants, logging any
// violations. It returns true when the agent is consistent.
func (a *Agent) Check(lot *ParkingLot, grid *terrain.Grid, lg *log.Logger) bool {
	ok := true
	if a.Heading < 0 || a.Heading >= 2*math.Pi() {
		lg.Errorf("%s: heading %v out of [0, 2pi)", a.Callsign, a.Heading)
		ok = false
	}
	if a.State == StateParked {
		if a.Slot == NoSlot {
			lg.Errorf("%s: parked without a slot", a.Callsign)
			ok = false
		} else if slot, err := lot.Slot(a.Slot); err != nil {
			lg.Errorf("%s: parked at invalid slot %d: %v", a.Callsign, a.Slot, err)
			ok = false
		} else {
			if slot.Occupant != a.Callsign {
				lg.Errorf("%s: slot %d occupant is %q", a.Callsign, a.Slot, slot.Occupant)
				ok = false
			}
			if a.Position != slot.Location {
				lg.Errorf("%s: parked at %v but slot %d is at %v", a.Callsign, a.Position, a.Slot, slot.Location)
				ok = false
			}
			if !grid.IsLand(a.Position) {
				lg.Errorf("%s: parked on water at %v", a.Callsign, a.Position)
				ok = false
			}
		}
		if a.Altitude != 0 {
			lg.Errorf("%s: parked at altitude %v", a.Callsign, a.Altitude)
			ok = false
		}
	}
	return ok
}
