// sim/parking_test.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"image"
	"image/color"
	"testing"

	"github.com/mmp/jetsim/math"
	"github.com/mmp/jetsim/rand"
	"github.com/mmp/jetsim/terrain"
)

// landImage returns a w x h raster classified as land everywhere.
func landImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	return img
}

func landGrid(t *testing.T, w, h int) *terrain.Grid {
	t.Helper()
	g, err := terrain.MakeGrid(landImage(w, h))
	if err != nil {
		t.Fatalf("MakeGrid: %v", err)
	}
	return g
}

func TestMakeParkingLot(t *testing.T) {
	grid := landGrid(t, 100, 100)
	r := rand.MakeWithSeed(1)

	lot, err := MakeParkingLot(grid, 8, 2, r)
	if err != nil {
		t.Fatalf("MakeParkingLot: %v", err)
	}

	slots := lot.Slots()
	if len(slots) != 8 {
		t.Fatalf("got %d slots, expected 8", len(slots))
	}
	for i, s := range slots {
		if s.ID != SlotID(i) {
			t.Errorf("slot %d has ID %d", i, s.ID)
		}
		if s.Occupant != "" {
			t.Errorf("slot %d born occupied by %q", i, s.Occupant)
		}
		if !grid.IsLand(s.Location) {
			t.Errorf("slot %d placed on water at %v", i, s.Location)
		}
	}
	if n := lot.FreeCount(); n != 8 {
		t.Errorf("FreeCount %d, expected 8", n)
	}

	if _, err := MakeParkingLot(grid, 0, 0, r); err != ErrNoParkingSlots {
		t.Errorf("zero slots: got %v, expected ErrNoParkingSlots", err)
	}
}

func TestAllocateNearest(t *testing.T) {
	grid := landGrid(t, 200, 200)
	r := rand.MakeWithSeed(7)
	lot, err := MakeParkingLot(grid, 10, 2, r)
	if err != nil {
		t.Fatalf("MakeParkingLot: %v", err)
	}

	p := [2]float32{100, 100}
	slot, err := lot.AllocateNearest(p, "JAY1")
	if err != nil {
		t.Fatalf("AllocateNearest: %v", err)
	}

	// No other free slot may be strictly closer, and ties must have gone
	// to the lower ID.
	d := math.Distance2f(p, slot.Location)
	for _, s := range lot.Slots() {
		if s.ID == slot.ID {
			continue
		}
		if sd := math.Distance2f(p, s.Location); sd < d {
			t.Errorf("slot %d at distance %v beats allocated %d at %v", s.ID, sd, slot.ID, d)
		} else if sd == d && s.ID < slot.ID {
			t.Errorf("tie at %v went to %d, not lower ID %d", d, slot.ID, s.ID)
		}
	}

	if got, err := lot.Slot(slot.ID); err != nil || got.Occupant != "JAY1" {
		t.Errorf("Slot(%d) = %+v, %v", slot.ID, got, err)
	}
	if n := lot.FreeCount(); n != 9 {
		t.Errorf("FreeCount %d after one allocation", n)
	}
}

func TestAllocateExhaustion(t *testing.T) {
	grid := landGrid(t, 100, 100)
	lot, err := MakeParkingLot(grid, 3, 2, rand.MakeWithSeed(2))
	if err != nil {
		t.Fatalf("MakeParkingLot: %v", err)
	}

	seen := make(map[SlotID]bool)
	for i := 0; i < 3; i++ {
		s, err := lot.AllocateNearest([2]float32{50, 50}, Callsign(string(rune('A'+i))))
		if err != nil {
			t.Fatalf("allocation %d: %v", i, err)
		}
		if seen[s.ID] {
			t.Errorf("slot %d allocated twice", s.ID)
		}
		seen[s.ID] = true
	}

	if _, err := lot.AllocateNearest([2]float32{50, 50}, "Z"); err != ErrNoFreeParkingSlot {
		t.Errorf("full lot: got %v, expected ErrNoFreeParkingSlot", err)
	}
}

func TestRelease(t *testing.T) {
	grid := landGrid(t, 100, 100)
	lot, err := MakeParkingLot(grid, 2, 2, rand.MakeWithSeed(3))
	if err != nil {
		t.Fatalf("MakeParkingLot: %v", err)
	}

	s, err := lot.AllocateNearest([2]float32{10, 10}, "JAY1")
	if err != nil {
		t.Fatalf("AllocateNearest: %v", err)
	}

	if err := lot.Release(s.ID); err != nil {
		t.Errorf("Release: %v", err)
	}
	if err := lot.Release(s.ID); err != ErrSlotNotOccupied {
		t.Errorf("double release: got %v, expected ErrSlotNotOccupied", err)
	}
	if err := lot.Release(99); err != ErrUnknownSlot {
		t.Errorf("bogus slot: got %v, expected ErrUnknownSlot", err)
	}
	if err := lot.Release(NoSlot); err != ErrUnknownSlot {
		t.Errorf("NoSlot: got %v, expected ErrUnknownSlot", err)
	}
	if n := lot.FreeCount(); n != 2 {
		t.Errorf("FreeCount %d after release", n)
	}
}

func TestPlacementDeterminism(t *testing.T) {
	grid := landGrid(t, 150, 150)
	a, err := MakeParkingLot(grid, 6, 2, rand.MakeWithSeed(42))
	if err != nil {
		t.Fatalf("MakeParkingLot: %v", err)
	}
	b, err := MakeParkingLot(grid, 6, 2, rand.MakeWithSeed(42))
	if err != nil {
		t.Fatalf("MakeParkingLot: %v", err)
	}

	as, bs := a.Slots(), b.Slots()
	for i := range as {
		if as[i].Location != bs[i].Location {
			t.Errorf("slot %d: %v vs %v with same seed", i, as[i].Location, bs[i].Location)
		}
	}
}
