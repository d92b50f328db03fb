package recognition

import "sort"

// Decision 冲突消解后的单张人脸最终结论
type Decision struct {
	FaceIndex   int
	BBox        BoundingBox
	Assigned    bool
	StudentID   string // 仅 Assigned 时有值
	Tier        Tier   // 未分配时恒为 TierUnknown
	Distance    float64
	HasDistance bool // 特征库为空时没有距离
	Duplicate   bool // 因学生已被更优人脸占用而降级
}

// Confidence 展示用置信度；没有距离时为 0
func (d Decision) Confidence() float64 {
	if !d.HasDistance {
		return 0
	}
	return Confidence(d.Distance)
}

// Resolve 对一张照片的全部候选做全局冲突消解
//
// 按分级升序、同级按距离升序依次处理（同距离保持输入顺序）：
// 学生未被占用则分配并占用；已被占用则降级为未知。
// 第 4 级与无匹配的人脸始终为未知。
// 输出与输入一一对应、顺序一致，且任意学生至多被分配一次。
func Resolve(candidates []Candidate) []Decision {
	decisions := make([]Decision, len(candidates))
	order := make([]int, 0, len(candidates))

	for i, c := range candidates {
		decisions[i] = Decision{
			FaceIndex:   c.FaceIndex,
			BBox:        c.BBox,
			Tier:        TierUnknown,
			Distance:    c.Match.Distance,
			HasDistance: c.HasMatch,
		}
		if c.HasMatch && c.Tier >= TierHigh && c.Tier < TierUnknown {
			order = append(order, i)
		}
	}

	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := candidates[order[a]], candidates[order[b]]
		if ca.Tier != cb.Tier {
			return ca.Tier < cb.Tier
		}
		return ca.Match.Distance < cb.Match.Distance
	})

	claimed := make(map[string]bool, len(order))
	for _, i := range order {
		c := candidates[i]
		if claimed[c.Match.StudentID] {
			decisions[i].Duplicate = true
			continue
		}
		claimed[c.Match.StudentID] = true
		decisions[i].Assigned = true
		decisions[i].StudentID = c.Match.StudentID
		decisions[i].Tier = c.Tier
	}

	return decisions
}
