// sim/parking.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"github.com/mmp/jetsim/math"
	"github.com/mmp/jetsim/rand"
	"github.com/mmp/jetsim/terrain"
)

type SlotID int

// NoSlot marks an agent that holds no parking reservation.
const NoSlot SlotID = -1

// ParkingSlot is a fixed landing pad on dry land. Occupant is the empty
// string when the slot is free.
type ParkingSlot struct {
	ID       SlotID
	Location [2]float32
	Occupant Callsign
}

// ParkingLot owns the city's parking slots. Slots are placed once at
// construction and never move; only occupancy changes. The lot is not
// safe for concurrent use; the Sim serializes access to it.
type ParkingLot struct {
	slots []ParkingSlot
}

// MakeParkingLot places n slots at random land positions. Slot IDs are
// assigned in placement order starting at 0.
func MakeParkingLot(grid *terrain.Grid, n int, margin int, r *rand.Rand) (*ParkingLot, error) {
	if n <= 0 {
		return nil, ErrNoParkingSlots
	}
	pts, err := grid.RandomLandPoints(r, n, margin)
	if err != nil {
		return nil, err
	}

	lot := &ParkingLot{slots: make([]ParkingSlot, n)}
	for i, p := range pts {
		lot.slots[i] = ParkingSlot{ID: SlotID(i), Location: p}
	}
	return lot, nil
}

// AllocateNearest reserves the free slot closest to p for the given
// agent and returns it. Distance ties go to the lower slot ID, so
// allocation is deterministic. Returns ErrNoFreeParkingSlot when the lot
// is full.
func (l *ParkingLot) AllocateNearest(p [2]float32, callsign Callsign) (ParkingSlot, error) {
	best := -1
	var bestDist float32
	for i, s := range l.slots {
		if s.Occupant != "" {
			continue
		}
		d := math.Distance2f(p, s.Location)
		if best == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best == -1 {
		return ParkingSlot{}, ErrNoFreeParkingSlot
	}

	l.slots[best].Occupant = callsign
	return l.slots[best], nil
}

// Release frees the given slot. It is an error to release a slot that is
// not currently occupied.
func (l *ParkingLot) Release(id SlotID) error {
	if id < 0 || int(id) >= len(l.slots) {
		return ErrUnknownSlot
	}
	if l.slots[id].Occupant == "" {
		return ErrSlotNotOccupied
	}
	l.slots[id].Occupant = ""
	return nil
}

func (l *ParkingLot) Slot(id SlotID) (ParkingSlot, error) {
	if id < 0 || int(id) >= len(l.slots) {
		return ParkingSlot{}, ErrUnknownSlot
	}
	return l.slots[id], nil
}

func (l *ParkingLot) Slots() []ParkingSlot {
	return append([]ParkingSlot(nil), l.slots...)
}

func (l *ParkingLot) FreeCount() int {
	n := 0
	for _, s := range l.slots {
		if s.Occupant == "" {
			n++
		}
	}
	return n
}
