package engine

import (
	"math"
	"testing"
	"time"
)

func TestDeriveAlphaAndCounts(t *testing.T) {
	constants := RealTimeConstants{
		TimeConstant:     10 * time.Second,
		ConfirmCongested: 6 * time.Second,
		ConfirmClear:     20 * time.Second,
	}

	tuning, err := Derive(constants, 2*time.Second)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	wantAlpha := 1 - math.Exp(-2.0/10.0)
	if math.Abs(tuning.Alpha-wantAlpha) > 1e-12 {
		t.Fatalf("alpha = %v, want %v", tuning.Alpha, wantAlpha)
	}
	if tuning.RedSamplesRequired != 3 {
		t.Fatalf("red samples = %d, want 3", tuning.RedSamplesRequired)
	}
	if tuning.GreenSamplesRequired != 10 {
		t.Fatalf("green samples = %d, want 10", tuning.GreenSamplesRequired)
	}
}

func TestDeriveCountsNeverBelowOne(t *testing.T) {
	constants := RealTimeConstants{
		TimeConstant:     10 * time.Second,
		ConfirmCongested: 100 * time.Millisecond,
		ConfirmClear:     100 * time.Millisecond,
	}

	tuning, err := Derive(constants, 2*time.Second)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if tuning.RedSamplesRequired != 1 || tuning.GreenSamplesRequired != 1 {
		t.Fatalf("expected floor of 1, got red=%d green=%d", tuning.RedSamplesRequired, tuning.GreenSamplesRequired)
	}
}

func TestDeriveRejectsBadInput(t *testing.T) {
	constants := RealTimeConstants{
		TimeConstant:     10 * time.Second,
		ConfirmCongested: 6 * time.Second,
		ConfirmClear:     20 * time.Second,
	}
	if _, err := Derive(constants, 0); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := Derive(RealTimeConstants{}, time.Second); err == nil {
		t.Fatalf("expected error for zero constants")
	}
}

// Shrinking the interval from 2s to 50ms with the same time constant must not
// change how far the smoothed value converges after T seconds of real time.
func TestTimeConstantInvariantAcrossIntervals(t *testing.T) {
	constants := RealTimeConstants{
		TimeConstant:     10 * time.Second,
		ConfirmCongested: 6 * time.Second,
		ConfirmClear:     20 * time.Second,
	}
	const raw = 100.0

	converge := func(interval time.Duration) float64 {
		tuning, err := Derive(constants, interval)
		if err != nil {
			t.Fatalf("derive %s: %v", interval, err)
		}
		steps := int(constants.TimeConstant / interval)
		ewma := 0.0
		for i := 0; i < steps; i++ {
			ewma = tuning.Alpha*raw + (1-tuning.Alpha)*ewma
		}
		return ewma
	}

	coarse := converge(2 * time.Second)
	fine := converge(50 * time.Millisecond)

	want := raw * (1 - math.Exp(-1))
	if math.Abs(coarse-want) > 0.5 {
		t.Fatalf("coarse convergence %v, want ~%v", coarse, want)
	}
	if math.Abs(fine-coarse) > 0.5 {
		t.Fatalf("fine %v and coarse %v diverged beyond tolerance", fine, coarse)
	}
}

// The wall-clock confirmation window must scale the required sample counts
// proportionally with the interval.
func TestConfirmationWindowScalesWithInterval(t *testing.T) {
	constants := RealTimeConstants{
		TimeConstant:     10 * time.Second,
		ConfirmCongested: 6 * time.Second,
		ConfirmClear:     20 * time.Second,
	}

	coarse, err := Derive(constants, 2*time.Second)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	fine, err := Derive(constants, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	if coarse.RedSamplesRequired != 3 {
		t.Fatalf("coarse red = %d, want 3", coarse.RedSamplesRequired)
	}
	if fine.RedSamplesRequired != 120 {
		t.Fatalf("fine red = %d, want 120", fine.RedSamplesRequired)
	}

	coarseWindow := time.Duration(coarse.RedSamplesRequired) * 2 * time.Second
	fineWindow := time.Duration(fine.RedSamplesRequired) * 50 * time.Millisecond
	if coarseWindow != fineWindow {
		t.Fatalf("confirmation windows differ: %v vs %v", coarseWindow, fineWindow)
	}
}
