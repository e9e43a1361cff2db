// sim/errors.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"errors"
)

var (
	ErrDuplicateCallsign  = errors.New("Duplicate callsign in roster")
	ErrDestinationNotLand = errors.New("Destination is not on land")
	ErrInvalidSimRate     = errors.New("Invalid simulation rate")
	ErrNoFreeParkingSlot  = errors.New("No free parking slot")
	ErrNoParkingSlots     = errors.New("City configured with no parking slots")
	ErrSlotNotOccupied    = errors.New("Parking slot is not occupied")
	ErrUnknownCallsign    = errors.New("Unknown callsign")
	ErrUnknownHazard      = errors.New("Unknown hazard id")
	ErrUnknownSlot        = errors.New("Unknown parking slot id")
)
