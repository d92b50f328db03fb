package recognition

import "sort"

// 考勤状态
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

// RosterStudent 班级名册中的学生
type RosterStudent struct {
	StudentID string
	Name      string
	RollNo    string
	PhotoPath string
}

// ExistingRecord 当日已存在的考勤记录
type ExistingRecord struct {
	StudentID  string
	Status     string
	Confidence *float64
}

// PresentMark 一条高置信度出勤结论
type PresentMark struct {
	StudentID  string
	Name       string
	RollNo     string
	FaceIndex  int
	Confidence float64
	Distance   float64
}

// ReviewItem 需要人工复核的第 2/3 级匹配
type ReviewItem struct {
	StudentID  string
	Name       string
	RollNo     string
	PhotoPath  string
	FaceIndex  int
	Tier       Tier
	Confidence float64
	Distance   float64
}

// UnknownFace 未能分配的人脸，不含身份信息
type UnknownFace struct {
	FaceIndex  int
	BBox       BoundingBox
	Distance   *float64
	Confidence *float64
	Duplicate  bool
}

// Summary 识别结果汇总
type Summary struct {
	TotalStudents int
	Present       int
	Absent        int
	UncertainHigh int
	UncertainLow  int
	UnknownFaces  int
}

// Plan 一次识别对应的考勤写入计划
type Plan struct {
	HighConfidence []PresentMark // 全部第 1 级分配
	PresentWrites  []PresentMark // 需要写入的出勤（新建或置信度更高）
	AbsentInserts  []string      // 需要新建缺勤记录的学生
	Review         []ReviewItem
	Unknown        []UnknownFace
	Summary        Summary
}

// PlanReconciliation 根据消解结果、名册与已有记录生成写入计划
//
//   - 第 1 级：无记录则新建出勤；已有记录仅当新置信度严格更高时更新（NULL 视为 0）
//   - 第 2/3 级：只返回复核信息，不写入
//   - 名册中未被第 1 级分配的学生：无记录时新建缺勤，已有记录不覆盖
//   - 未知人脸：只统计
func PlanReconciliation(decisions []Decision, roster []RosterStudent, existing map[string]ExistingRecord) Plan {
	byID := make(map[string]RosterStudent, len(roster))
	for _, s := range roster {
		byID[s.StudentID] = s
	}

	var plan Plan
	presentSet := make(map[string]bool)

	for _, d := range decisions {
		s, inRoster := byID[d.StudentID]
		if !d.Assigned || !inRoster {
			plan.Unknown = append(plan.Unknown, toUnknownFace(d))
			continue
		}

		switch d.Tier {
		case TierHigh:
			mark := PresentMark{
				StudentID:  s.StudentID,
				Name:       s.Name,
				RollNo:     s.RollNo,
				FaceIndex:  d.FaceIndex,
				Confidence: d.Confidence(),
				Distance:   d.Distance,
			}
			plan.HighConfidence = append(plan.HighConfidence, mark)
			presentSet[s.StudentID] = true

			rec, ok := existing[s.StudentID]
			if !ok || mark.Confidence > storedConfidence(rec) {
				plan.PresentWrites = append(plan.PresentWrites, mark)
			}
		case TierStandard, TierExtended:
			plan.Review = append(plan.Review, ReviewItem{
				StudentID:  s.StudentID,
				Name:       s.Name,
				RollNo:     s.RollNo,
				PhotoPath:  s.PhotoPath,
				FaceIndex:  d.FaceIndex,
				Tier:       d.Tier,
				Confidence: d.Confidence(),
				Distance:   d.Distance,
			})
			if d.Tier == TierStandard {
				plan.Summary.UncertainHigh++
			} else {
				plan.Summary.UncertainLow++
			}
		default:
			plan.Unknown = append(plan.Unknown, toUnknownFace(d))
		}
	}

	for _, s := range roster {
		if presentSet[s.StudentID] {
			continue
		}
		if _, ok := existing[s.StudentID]; ok {
			continue
		}
		plan.AbsentInserts = append(plan.AbsentInserts, s.StudentID)
	}

	sort.SliceStable(plan.Review, func(i, j int) bool {
		if plan.Review[i].Tier != plan.Review[j].Tier {
			return plan.Review[i].Tier < plan.Review[j].Tier
		}
		return plan.Review[i].Distance < plan.Review[j].Distance
	})

	plan.Summary.TotalStudents = len(roster)
	plan.Summary.Present = len(presentSet)
	plan.Summary.Absent = len(roster) - len(presentSet)
	plan.Summary.UnknownFaces = len(plan.Unknown)
	return plan
}

func storedConfidence(rec ExistingRecord) float64 {
	if rec.Confidence == nil {
		return 0
	}
	return *rec.Confidence
}

func toUnknownFace(d Decision) UnknownFace {
	u := UnknownFace{FaceIndex: d.FaceIndex, BBox: d.BBox, Duplicate: d.Duplicate}
	if d.HasDistance {
		dist, conf := d.Distance, d.Confidence()
		u.Distance = &dist
		u.Confidence = &conf
	}
	return u
}
