// rand/rand_test.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rand

import (
	"testing"
)

func TestSeedDeterminism(t *testing.T) {
	a := MakeWithSeed(12345)
	b := MakeWithSeed(12345)
	for i := 0; i < 1000; i++ {
		if av, bv := a.Uint32(), b.Uint32(); av != bv {
			t.Fatalf("sequence diverged at %d: %d vs %d", i, av, bv)
		}
	}

	c := MakeWithSeed(54321)
	same := true
	a = MakeWithSeed(12345)
	for i := 0; i < 100; i++ {
		if a.Uint32() != c.Uint32() {
			same = false
		}
	}
	if same {
		t.Errorf("different seeds gave identical sequences")
	}
}

func TestIntnRange(t *testing.T) {
	r := MakeWithSeed(1)
	for _, n := range []int{1, 2, 7, 100} {
		for i := 0; i < 1000; i++ {
			if v := r.Intn(n); v < 0 || v >= n {
				t.Fatalf("Intn(%d) returned %d", n, v)
			}
		}
	}
}

func TestFloat32Range(t *testing.T) {
	r := MakeWithSeed(2)
	for i := 0; i < 10000; i++ {
		if v := r.Float32(); v < 0 || v > 1 {
			t.Fatalf("Float32() returned %v", v)
		}
	}
}

func TestShuffleSlice(t *testing.T) {
	r := MakeWithSeed(3)
	s := make([]int, 50)
	for i := range s {
		s[i] = i
	}
	ShuffleSlice(s, r)

	got := make([]bool, len(s))
	for _, v := range s {
		if got[v] {
			t.Errorf("%d appeared multiple times after shuffle", v)
		}
		got[v] = true
	}
}

func TestSampleFiltered(t *testing.T) {
	r := MakeWithSeed(4)
	if SampleFiltered(r, []int{}, func(int) bool { return true }) != -1 {
		t.Errorf("returned non-negative index for empty slice")
	}
	if SampleFiltered(r, []int{0, 1, 2, 3, 4}, func(int) bool { return false }) != -1 {
		t.Errorf("returned non-negative index for fully filtered slice")
	}
	if idx := SampleFiltered(r, []int{0, 1, 2, 3, 4}, func(v int) bool { return v == 3 }); idx != 3 {
		t.Errorf("expected index 3, got %d", idx)
	}
}

func TestPermutationElement(t *testing.T) {
	for _, n := range []int{8, 31, 10523} {
		for _, h := range []uint32{0, 0xff, 0xfeedface} {
			m := make(map[int]int)

			for i := 0; i < n; i++ {
				perm := PermutationElement(i, n, h)
				if _, ok := m[perm]; ok {
					t.Errorf("%d: appeared multiple times", perm)
				}
				m[perm] = i
			}
		}
	}
}
