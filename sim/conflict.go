// sim/conflict.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"slices"
	"strings"

	"github.com/mmp/jetsim/math"
)

// Conflict reports a pair of airborne agents closer together than the
// proximity threshold. A < B always holds so each pair appears once.
type Conflict struct {
	A, B     Callsign
	Distance float32
}

// FindConflicts returns all conflicting pairs among the given agent
// snapshots, sorted by (A, B). It is a pure function of its inputs: the
// caller decides which agents are eligible (airborne) and what positions
// they had when the tick began.
//
// The pairwise scan is quadratic in the number of agents, which is fine
// for the fleet sizes simulated here. TODO: bucket agents into a coarse
// grid keyed by position / threshold if fleets grow past a few thousand.
func FindConflicts(agents []AgentSnapshot, threshold float32) []Conflict {
	var conflicts []Conflict
	for i := range agents {
		for j := i + 1; j < len(agents); j++ {
			d := math.Distance2f(agents[i].Position, agents[j].Position)
			if d >= threshold {
				continue
			}
			a, b := agents[i].Callsign, agents[j].Callsign
			if b < a {
				a, b = b, a
			}
			conflicts = append(conflicts, Conflict{A: a, B: b, Distance: d})
		}
	}

	slices.SortFunc(conflicts, func(x, y Conflict) int {
		if x.A != y.A {
			return strings.Compare(string(x.A), string(y.A))
		}
		return strings.Compare(string(x.B), string(y.B))
	})
	return conflicts
}
