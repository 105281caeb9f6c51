package risk

import (
	"math"
	"testing"

	"channel-breakout/internal/config"
)

func sizingConfig() config.SizingConfig {
	return config.SizingConfig{
		BaseCapital:  10000,
		BasePosition: 0.01,
		MinPosition:  0.0001,
	}
}

func TestEquityScaledSizer_Baseline(t *testing.T) {
	sizer := NewEquityScaledSizer(sizingConfig(), 5, nil)

	if got := sizer.Size(10000); math.Abs(got-0.01) > 1e-12 {
		t.Errorf("equity=10000: expected 0.01, got %f", got)
	}
	if got := sizer.Size(20000); math.Abs(got-0.02) > 1e-12 {
		t.Errorf("equity=20000: expected 0.02, got %f", got)
	}
	if got := sizer.Size(5000); math.Abs(got-0.005) > 1e-12 {
		t.Errorf("equity=5000: expected 0.005, got %f", got)
	}
}

func TestEquityScaledSizer_FallbackAndFloor(t *testing.T) {
	sizer := NewEquityScaledSizer(sizingConfig(), 5, nil)

	if got := sizer.Size(0); math.Abs(got-0.01) > 1e-12 {
		t.Errorf("non-positive equity: expected base position 0.01, got %f", got)
	}
	if got := sizer.Size(-42); math.Abs(got-0.01) > 1e-12 {
		t.Errorf("negative equity: expected base position 0.01, got %f", got)
	}

	// 极小净值取整后归零，应抬升到最小仓位。
	if got := sizer.Size(0.01); math.Abs(got-0.0001) > 1e-12 {
		t.Errorf("tiny equity: expected min position 0.0001, got %f", got)
	}
}

func TestEquityScaledSizer_LotRounding(t *testing.T) {
	sizer := NewEquityScaledSizer(sizingConfig(), 5, nil)

	got := sizer.Size(12345.678)
	want := math.Round(0.01*12345.678/10000*1e5) / 1e5
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("expected %f after lot rounding, got %f", want, got)
	}
}
