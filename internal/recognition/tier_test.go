package recognition

import (
	"fmt"
	"math"
	"testing"
)

func TestThresholds_Classify_Boundaries(t *testing.T) {
	for _, th := range []Thresholds{
		DefaultThresholds(),
		{T1: 0.3, T2: 0.5, T3: 0.9},
		{T1: 1.0, T2: 1.2, T3: 1.4},
	} {
		t.Run(fmt.Sprintf("%.2f/%.2f/%.2f", th.T1, th.T2, th.T3), func(t *testing.T) {
			if err := th.Validate(); err != nil {
				t.Fatalf("阈值应合法: %v", err)
			}

			cases := []struct {
				d    float64
				want Tier
			}{
				{0, TierHigh},
				{math.Nextafter(th.T1, 0), TierHigh},
				{th.T1, TierStandard},
				{math.Nextafter(th.T2, 0), TierStandard},
				{th.T2, TierExtended},
				{math.Nextafter(th.T3, 0), TierExtended},
				{th.T3, TierUnknown},
				{10, TierUnknown},
				{math.Inf(1), TierUnknown},
			}
			for _, c := range cases {
				if got := th.Classify(c.d); got != c.want {
					t.Errorf("Classify(%v) = %s，期望 %s", c.d, got, c.want)
				}
			}
		})
	}
}

func TestThresholds_Classify_HalfOpenIntervals(t *testing.T) {
	th := Thresholds{T1: 0.4, T2: 0.55, T3: 0.8}
	for d := 0.0; d < 1.5; d += 0.005 {
		var want Tier
		switch {
		case d >= 0 && d < th.T1:
			want = TierHigh
		case d >= th.T1 && d < th.T2:
			want = TierStandard
		case d >= th.T2 && d < th.T3:
			want = TierExtended
		default:
			want = TierUnknown
		}
		if got := th.Classify(d); got != want {
			t.Errorf("Classify(%v) = %s，期望 %s", d, got, want)
		}
	}
}

func TestThresholds_Validate(t *testing.T) {
	invalid := []Thresholds{
		{T1: 0.6, T2: 0.6, T3: 0.7},
		{T1: 0.5, T2: 0.4, T3: 0.7},
		{T1: 0, T2: 0.4, T3: 0.7},
		{T1: 0.4, T2: 0.5, T3: math.NaN()},
	}
	for _, th := range invalid {
		if err := th.Validate(); err == nil {
			t.Errorf("阈值 %+v 应校验失败", th)
		}
	}
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("默认阈值应合法: %v", err)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		d    float64
		want float64
	}{
		{0.3, 70},
		{0, 100},
		{1.7, 0},
		{-0.2, 100},
		{math.NaN(), 0},
		{0.45678, 54.32},
	}
	for _, tt := range tests {
		if got := Confidence(tt.d); got != tt.want {
			t.Errorf("Confidence(%v) = %v，期望 %v", tt.d, got, tt.want)
		}
	}
}

func TestTier_String(t *testing.T) {
	if TierHigh.String() != "high" || TierUnknown.String() != "unknown" || Tier(0).String() != "unknown" {
		t.Errorf("分级名称不正确: %s / %s / %s", TierHigh, TierUnknown, Tier(0))
	}
}
