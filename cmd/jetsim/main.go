// cmd/jetsim/main.go
// Copyright(c) 2025 jetsim contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// jetsim runs a headless jetpack-traffic simulation over a city raster,
// printing sim events to stdout as they happen.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mmp/jetsim/log"
	"github.com/mmp/jetsim/rand"
	"github.com/mmp/jetsim/sim"
	"github.com/mmp/jetsim/terrain"
	"golang.org/x/sync/errgroup"
)

var (
	rasterPath   = flag.String("raster", "", "path to city raster image (PNG)")
	archivePath  = flag.String("archive", "", "path to pre-classified terrain archive")
	compilePath  = flag.String("compile", "", "classify -raster, write a terrain archive here, and exit")
	numAgents    = flag.Int("agents", 25, "number of agents to simulate")
	numSlots     = flag.Int("slots", 40, "number of parking slots")
	seed         = flag.Int64("seed", 0, "random seed (0 seeds from the clock)")
	simRate      = flag.Float64("rate", 1, "simulation rate multiplier")
	runFor       = flag.Duration("duration", 0, "stop after this much wall-clock time (0 runs until interrupted)")
	runTicks     = flag.Int("ticks", 0, "run this many 50ms ticks as fast as possible and exit")
	emergencyP   = flag.Float64("emergencies", 0, "per-tick emergency probability per airborne agent")
	dwell        = flag.Duration("dwell", sim.DefaultDwellDuration, "how long agents stay parked before departing")
	margin       = flag.Int("margin", 5, "placement margin from the raster edge, in pixels")
	telemetry    = flag.String("telemetry", "", "write per-tick telemetry to this file")
	logDir       = flag.String("logdir", "", "directory for log files (empty logs nowhere)")
	logLevel     = flag.String("loglevel", "info", "logging level: debug, info, warn, error")
)

var agentModels = []string{"Hummingbird", "Dragonfly", "Kestrel", "Osprey", "Swift"}

func main() {
	flag.Parse()
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	lg := log.Discard()
	if *logDir != "" {
		lg = log.New(*logLevel, *logDir)
	}

	if err := run(lg); err != nil {
		fmt.Fprintf(os.Stderr, "jetsim: %v\n", err)
		os.Exit(1)
	}
}

func run(lg *log.Logger) error {
	grid, err := loadGrid()
	if err != nil {
		return err
	}

	if *compilePath != "" {
		return compileArchive(grid)
	}

	config := sim.NewSimConfiguration{
		Grid:             grid,
		ParkingSlotCount: *numSlots,
		Roster:           makeRoster(*numAgents, *seed),
		Seed:             *seed,
		StartTime:        time.Now().UTC(),
		DwellDuration:    *dwell,
		Margin:           *margin,
		Lg:               lg,
	}
	if *emergencyP > 0 {
		config.EmergencyPolicy = sim.RandomEmergencies{PerTickProbability: float32(*emergencyP)}
	}
	if *telemetry != "" {
		f, err := os.Create(*telemetry)
		if err != nil {
			return fmt.Errorf("creating telemetry file: %w", err)
		}
		if config.Telemetry, err = sim.NewMsgpackSink(f); err != nil {
			return fmt.Errorf("opening telemetry sink: %w", err)
		}
	}

	s, err := sim.NewSim(config, lg)
	if err != nil {
		return err
	}
	defer s.Destroy()

	if err := s.SetSimRate(float32(*simRate)); err != nil {
		return fmt.Errorf("rate %v: %w", *simRate, err)
	}

	sub := s.Subscribe()
	defer sub.Unsubscribe()

	// Batch mode: run a fixed number of ticks flat out, no pacing.
	if *runTicks > 0 {
		for n := *runTicks; n > 0; {
			chunk := min(n, 200)
			s.Step(time.Duration(chunk) * 50 * time.Millisecond)
			printEvents(s, sub)
			n -= chunk
		}
		printSummary(s.Snapshot())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *runFor)
		defer cancel()
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s.Update()
			}
		}
	})
	eg.Go(func() error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				printEvents(s, sub)
			}
		}
	})

	if err := eg.Wait(); err != nil {
		return err
	}

	printSummary(s.Snapshot())
	return nil
}

func loadGrid() (*terrain.Grid, error) {
	switch {
	case *archivePath != "":
		f, err := os.Open(*archivePath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return terrain.LoadArchive(f)

	case *rasterPath != "":
		f, err := os.Open(*rasterPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		img, _, err := image.Decode(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", *rasterPath, err)
		}
		return terrain.MakeGrid(img)

	default:
		return nil, fmt.Errorf("one of -raster or -archive is required")
	}
}

func compileArchive(grid *terrain.Grid) error {
	path := *compilePath
	if !strings.HasSuffix(path, terrain.ArchiveExtension) {
		path += terrain.ArchiveExtension
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := grid.Save(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", filepath.Clean(path))
	return nil
}

func makeRoster(n int, seed int64) []sim.AgentConfig {
	r := rand.MakeWithSeed(seed)
	roster := make([]sim.AgentConfig, n)
	for i := range roster {
		roster[i] = sim.AgentConfig{
			Callsign: sim.Callsign(fmt.Sprintf("JAY%03d", i+1)),
			Owner:    fmt.Sprintf("commuter-%03d", i+1),
			Model:    rand.SampleSlice(r, agentModels),
			Speed:    30 + 20*r.Float32(),
		}
	}
	return roster
}

func printEvents(s *sim.Sim, sub *sim.EventsSubscription) {
	for _, ev := range sub.Get() {
		if ev.WrittenText != "" {
			fmt.Printf("%s  %s\n", s.CurrentTime().Format("15:04:05"), ev.WrittenText)
		}
	}
}

func printSummary(snap sim.WorldSnapshot) {
	counts := make(map[sim.AgentState]int)
	for _, a := range snap.Agents {
		counts[a.State]++
	}
	fmt.Printf("\n%d ticks simulated; %d agents:", snap.Tick, len(snap.Agents))
	for _, st := range []sim.AgentState{sim.StateCruise, sim.StateDetour, sim.StateEmergency, sim.StateParked, sim.StateGrounded} {
		if counts[st] > 0 {
			fmt.Printf(" %d %s", counts[st], st)
		}
	}
	fmt.Println()
}
