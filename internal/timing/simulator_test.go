package timing

import (
	"testing"

	"lichess-pilot/internal/preset"
)

func flatProfile(ms int) preset.TimingProfile {
	return preset.TimingProfile{
		BaseMinMs:     ms,
		BaseMaxMs:     ms,
		MaxDelayMs:    ms * 10,
		PremovePieces: 6,
	}
}

func rangeProfile() preset.TimingProfile {
	return preset.TimingProfile{
		BaseMinMs:     800,
		BaseMaxMs:     2500,
		QuickChance:   0.2,
		QuickMinMs:    200,
		QuickMaxMs:    600,
		TankChance:    0.06,
		TankMinMs:     4000,
		TankMaxMs:     9000,
		MaxDelayMs:    12000,
		TargetAvgMs:   1900,
		PremovePieces: 6,
	}
}

func TestDelayZeroForFastMode(t *testing.T) {
	s := NewSimulator()
	if d := s.DelayMs(rangeProfile(), Input{FastMode: true, PieceCount: 32}); d != 0 {
		t.Fatalf("fast mode delay = %d, want 0", d)
	}
}

func TestDelayZeroForCapture(t *testing.T) {
	s := NewSimulator()
	if d := s.DelayMs(rangeProfile(), Input{Capture: true, PieceCount: 32}); d != 0 {
		t.Fatalf("capture delay = %d, want 0", d)
	}
}

func TestDelayZeroAtPremoveThreshold(t *testing.T) {
	s := NewSimulator()
	if d := s.DelayMs(rangeProfile(), Input{PieceCount: 6}); d != 0 {
		t.Fatalf("piece count 6 at threshold 6 delay = %d, want 0", d)
	}
	if d := s.DelayMs(rangeProfile(), Input{PieceCount: 5}); d != 0 {
		t.Fatalf("piece count below threshold delay = %d, want 0", d)
	}
}

func TestDelayWithinBaseRange(t *testing.T) {
	s := NewSimulator()
	s.SetRandomSeed(21)
	p := preset.TimingProfile{BaseMinMs: 800, BaseMaxMs: 2500, MaxDelayMs: 12000}
	for i := 0; i < 200; i++ {
		d := s.DelayMs(p, Input{PieceCount: 32})
		if d < 800 || d > 2500 {
			t.Fatalf("delay %d outside base range [800,2500]", d)
		}
		s.Reset()
	}
}

func TestDelayQuickOutcome(t *testing.T) {
	s := NewSimulator()
	s.SetRandomSeed(2)
	p := preset.TimingProfile{
		BaseMinMs: 800, BaseMaxMs: 2500,
		QuickChance: 1.0, QuickMinMs: 200, QuickMaxMs: 600,
		TankChance: 0, TankMinMs: 4000, TankMaxMs: 9000,
		MaxDelayMs: 12000,
	}
	for i := 0; i < 100; i++ {
		d := s.DelayMs(p, Input{PieceCount: 32})
		if d < 200 || d > 600 {
			t.Fatalf("quick delay %d outside [200,600]", d)
		}
		s.Reset()
	}
}

func TestDelayTankOutcome(t *testing.T) {
	s := NewSimulator()
	s.SetRandomSeed(4)
	p := preset.TimingProfile{
		BaseMinMs: 800, BaseMaxMs: 2500,
		TankChance: 1.0, TankMinMs: 4000, TankMaxMs: 9000,
		MaxDelayMs: 12000,
	}
	for i := 0; i < 100; i++ {
		d := s.DelayMs(p, Input{PieceCount: 32})
		if d < 4000 || d > 9000 {
			t.Fatalf("tank delay %d outside [4000,9000]", d)
		}
		s.Reset()
	}
}

func TestDelayClampedToMax(t *testing.T) {
	s := NewSimulator()
	s.SetRandomSeed(6)
	p := preset.TimingProfile{
		BaseMinMs: 800, BaseMaxMs: 2500,
		TankChance: 1.0, TankMinMs: 4000, TankMaxMs: 9000,
		MaxDelayMs: 3000,
	}
	for i := 0; i < 50; i++ {
		if d := s.DelayMs(p, Input{PieceCount: 32}); d > 3000 {
			t.Fatalf("delay %d above clamp 3000", d)
		}
	}
}

func TestPaceCorrectionScalesDown(t *testing.T) {
	s := NewSimulator()
	p := flatProfile(1000)
	p.TargetAvgMs = 500

	first := s.DelayMs(p, Input{PieceCount: 32})
	if first != 1000 {
		t.Fatalf("first delay = %d, want raw 1000 with empty window", first)
	}
	second := s.DelayMs(p, Input{PieceCount: 32})
	if second != 500 {
		t.Fatalf("second delay = %d, want 1000 scaled by 500/1000", second)
	}
}

func TestPaceCorrectionOnlyAboveTarget(t *testing.T) {
	s := NewSimulator()
	p := flatProfile(400)
	p.TargetAvgMs = 1900
	s.DelayMs(p, Input{PieceCount: 32})
	if d := s.DelayMs(p, Input{PieceCount: 32}); d != 400 {
		t.Fatalf("delay = %d, under-target pace must not be rescaled", d)
	}
}

func TestResetClearsPaceWindow(t *testing.T) {
	s := NewSimulator()
	p := flatProfile(1000)
	p.TargetAvgMs = 500
	s.DelayMs(p, Input{PieceCount: 32})
	s.Reset()
	if len(s.Window()) != 0 {
		t.Fatalf("window not cleared")
	}
	if d := s.DelayMs(p, Input{PieceCount: 32}); d != 1000 {
		t.Fatalf("delay after reset = %d, want raw 1000", d)
	}
}

func TestPaceWindowEvictsOldest(t *testing.T) {
	s := NewSimulator()
	p := flatProfile(100)
	for i := 0; i < paceWindow+4; i++ {
		s.DelayMs(p, Input{PieceCount: 32})
	}
	w := s.Window()
	if len(w) != paceWindow {
		t.Fatalf("window length = %d, want %d", len(w), paceWindow)
	}
}

func TestInstantMovesDoNotPolluteWindow(t *testing.T) {
	s := NewSimulator()
	p := rangeProfile()
	s.DelayMs(p, Input{Capture: true, PieceCount: 32})
	s.DelayMs(p, Input{FastMode: true, PieceCount: 32})
	if len(s.Window()) != 0 {
		t.Fatalf("instant moves must not enter the pace window, got %v", s.Window())
	}
}
