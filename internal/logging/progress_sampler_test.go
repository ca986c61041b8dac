package logging

import "testing"

func TestProgressSamplerEmitsOnBucketCrossing(t *testing.T) {
	sampler := NewProgressSampler(5)

	if !sampler.ShouldLog(0, "Deskew") {
		t.Fatal("first update should emit")
	}
	if sampler.ShouldLog(2, "Deskew") {
		t.Fatal("same bucket should be suppressed")
	}
	if !sampler.ShouldLog(5, "Deskew") {
		t.Fatal("bucket crossing should emit")
	}
	if !sampler.ShouldLog(100, "Deskew") {
		t.Fatal("completion should emit")
	}
}

func TestProgressSamplerEmitsOnStageChange(t *testing.T) {
	sampler := NewProgressSampler(5)

	if !sampler.ShouldLog(50, "Deskew") {
		t.Fatal("first stage should emit")
	}
	if !sampler.ShouldLog(1, "Split") {
		t.Fatal("stage change should emit even at low percent")
	}
	if sampler.ShouldLog(1, "Split") {
		t.Fatal("repeat within the new stage should be suppressed")
	}
}

func TestProgressSamplerTreatsNegativePercentAsUnknown(t *testing.T) {
	sampler := NewProgressSampler(5)

	if !sampler.ShouldLog(-1, "Scan") {
		t.Fatal("stage change with unknown percent should emit")
	}
	if sampler.ShouldLog(-1, "Scan") {
		t.Fatal("repeated unknown percent should be suppressed")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	sampler := NewProgressSampler(5)
	sampler.ShouldLog(50, "Deskew")

	sampler.Reset()
	if !sampler.ShouldLog(50, "Deskew") {
		t.Fatal("reset should clear suppression state")
	}
}

func TestNilSamplerAlwaysLogs(t *testing.T) {
	var sampler *ProgressSampler
	if !sampler.ShouldLog(10, "x") {
		t.Fatal("nil sampler should always log")
	}
	sampler.Reset()
}
