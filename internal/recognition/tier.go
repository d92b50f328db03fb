package recognition

import (
	"fmt"
	"math"
)

// Tier 匹配置信度分级
type Tier int

const (
	TierHigh     Tier = 1 // 高置信度，自动记为出勤
	TierStandard Tier = 2 // 标准复核
	TierExtended Tier = 3 // 扩展复核（弱候选）
	TierUnknown  Tier = 4 // 未知人脸
)

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierStandard:
		return "standard_review"
	case TierExtended:
		return "extended_review"
	default:
		return "unknown"
	}
}

// Thresholds 分级阈值，要求 0 < T1 < T2 < T3
// 区间均为左闭右开：[0,T1) [T1,T2) [T2,T3) [T3,∞)
type Thresholds struct {
	T1 float64
	T2 float64
	T3 float64
}

// DefaultThresholds 与 128 维 dlib 特征配套的默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{T1: 0.45, T2: 0.60, T3: 0.70}
}

// Validate 校验阈值单调递增
func (t Thresholds) Validate() error {
	if !(t.T1 > 0 && t.T1 < t.T2 && t.T2 < t.T3) {
		return fmt.Errorf("阈值必须满足 0 < T1 < T2 < T3，当前 %.3f / %.3f / %.3f", t.T1, t.T2, t.T3)
	}
	return nil
}

// Classify 将距离映射为分级；NaN 视为未知
func (t Thresholds) Classify(d float64) Tier {
	switch {
	case math.IsNaN(d):
		return TierUnknown
	case d < t.T1:
		return TierHigh
	case d < t.T2:
		return TierStandard
	case d < t.T3:
		return TierExtended
	default:
		return TierUnknown
	}
}

// Confidence 展示用置信度 (1-d)*100，截断到 [0,100] 并保留两位小数。
// 仅用于界面展示，不是概率。
func Confidence(d float64) float64 {
	if math.IsNaN(d) {
		return 0
	}
	c := (1 - d) * 100
	if c < 0 {
		c = 0
	}
	if c > 100 {
		c = 100
	}
	return math.Round(c*100) / 100
}
