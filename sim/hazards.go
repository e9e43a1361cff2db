// sim/hazards.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mmp/jetsim/math"
)

type HazardID int

// Severity grades both accidents and weather advisories.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityMinor
	SeverityModerate
	SeveritySevere
	SeverityExtreme
)

func (s Severity) String() string {
	return [...]string{"None", "Minor", "Moderate", "Severe", "Extreme"}[s]
}

// HazardEvent is an active accident or, when Global is set, a weather
// advisory that applies to the whole city. Agents only ever see copies of
// these; the registry owns the mutable records.
type HazardEvent struct {
	ID       HazardID
	Location [2]float32
	Radius   float32
	Severity Severity
	Global   bool
	Created  time.Time // sim time
	Expiry   time.Time // zero means active until explicitly cleared
}

func (h HazardEvent) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("id", int(h.ID)),
		slog.Float64("x", float64(h.Location[0])),
		slog.Float64("y", float64(h.Location[1])),
		slog.Float64("radius", float64(h.Radius)),
		slog.String("severity", h.Severity.String()),
		slog.Bool("global", h.Global))
}

// HazardRegistry tracks active accidents and the current weather
// severity. It is mutated by external reporters (via the Sim's API) and
// read by every agent every tick; agents only ever see a HazardSnapshot
// taken at tick start, so a hazard reported mid-tick is not visible until
// the following tick.
type HazardRegistry struct {
	mu        sync.Mutex
	nextID    HazardID
	accidents map[HazardID]HazardEvent
	weather   Severity
}

func NewHazardRegistry() *HazardRegistry {
	return &HazardRegistry{
		nextID:    1,
		accidents: make(map[HazardID]HazardEvent),
	}
}

// ReportAccident registers an accident at the given location; it remains
// active until cleared or until expiry passes.
func (r *HazardRegistry) ReportAccident(p [2]float32, radius float32, severity Severity, now, expiry time.Time) HazardID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++
	r.accidents[id] = HazardEvent{
		ID:       id,
		Location: p,
		Radius:   radius,
		Severity: severity,
		Created:  now,
		Expiry:   expiry,
	}
	return id
}

func (r *HazardRegistry) ClearAccident(id HazardID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accidents[id]; !ok {
		return ErrUnknownHazard
	}
	delete(r.accidents, id)
	return nil
}

// SetWeather sets the global weather severity; it applies to all agents
// uniformly starting with the next tick.
func (r *HazardRegistry) SetWeather(severity Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weather = severity
}

func (r *HazardRegistry) Weather() Severity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.weather
}

// Near returns the active accidents whose affected circle comes within
// radius of p. Unlike Snapshot it never removes expired accidents, so
// external queries can't swallow the expiry reports the next tick will
// make.
func (r *HazardRegistry) Near(p [2]float32, radius float32, now time.Time) []HazardEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var near []HazardEvent
	for _, h := range r.accidents {
		if !h.Expiry.IsZero() && now.After(h.Expiry) {
			continue
		}
		if math.Distance2f(p, h.Location) < h.Radius+radius {
			near = append(near, h)
		}
	}
	slices.SortFunc(near, func(a, b HazardEvent) int { return int(a.ID) - int(b.ID) })
	return near
}

// Snapshot returns a consistent copy of the registry as of now, removing
// any accidents whose expiry has passed. The expired hazards are returned
// separately so that the caller can report them.
func (r *HazardRegistry) Snapshot(now time.Time) (HazardSnapshot, []HazardEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []HazardEvent
	snap := HazardSnapshot{Weather: r.weather}
	for id, h := range r.accidents {
		if !h.Expiry.IsZero() && now.After(h.Expiry) {
			expired = append(expired, h)
			delete(r.accidents, id)
			continue
		}
		snap.Accidents = append(snap.Accidents, h)
	}

	// Deterministic ordering regardless of map iteration order.
	byID := func(a, b HazardEvent) int { return int(a.ID) - int(b.ID) }
	slices.SortFunc(snap.Accidents, byID)
	slices.SortFunc(expired, byID)
	return snap, expired
}

// HazardSnapshot is the immutable per-tick view of the registry that
// agents consult.
type HazardSnapshot struct {
	Weather   Severity
	Accidents []HazardEvent
}

// Near returns the accidents whose affected circle comes within radius of
// the given point.
func (s HazardSnapshot) Near(p [2]float32, radius float32) []HazardEvent {
	var near []HazardEvent
	for _, h := range s.Accidents {
		if math.Distance2f(p, h.Location) < h.Radius+radius {
			near = append(near, h)
		}
	}
	return near
}

// Intersecting returns the accidents whose circle the segment (p0, p1)
// passes through.
func (s HazardSnapshot) Intersecting(p0, p1 [2]float32) []HazardEvent {
	var hit []HazardEvent
	for _, h := range s.Accidents {
		if math.SegmentCircleIntersects(p0, p1, h.Location, h.Radius) {
			hit = append(hit, h)
		}
	}
	return hit
}
