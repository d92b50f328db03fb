package recognition

import (
	"math"
	"reflect"
	"sort"
	"testing"
)

func roster(ids ...string) []RosterStudent {
	out := make([]RosterStudent, len(ids))
	for i, id := range ids {
		out[i] = RosterStudent{StudentID: id, Name: "name-" + id, RollNo: "R" + id, PhotoPath: id + ".jpg"}
	}
	return out
}

func f64(v float64) *float64 { return &v }

// 端到端：A、B 两名学生，两张人脸都最接近 A
func TestPipeline_TwoFacesSameStudent(t *testing.T) {
	th := DefaultThresholds()
	g := galleryOf(t,
		GallerySource{StudentID: "A", Encodings: []byte("[[0,0]]")},
		GallerySource{StudentID: "B", Encodings: []byte("[[5,5]]")},
	)
	faces := []DetectedFace{
		{Index: 0, Embedding: Embedding{0.30, 0}},
		{Index: 1, Embedding: Embedding{0, 0.50}},
	}

	cands := ScoreFaces(faces, g, th, 2)
	if cands[0].Tier != TierHigh || cands[1].Tier != TierStandard {
		t.Fatalf("分级不正确: %s / %s", cands[0].Tier, cands[1].Tier)
	}

	decisions := Resolve(cands)
	if !decisions[0].Assigned || decisions[0].StudentID != "A" {
		t.Errorf("第一张人脸应分配给 A: %+v", decisions[0])
	}
	if decisions[1].Assigned || decisions[1].Tier != TierUnknown {
		t.Errorf("第二张人脸应降级为未知: %+v", decisions[1])
	}

	plan := PlanReconciliation(decisions, roster("A", "B"), nil)
	if len(plan.PresentWrites) != 1 {
		t.Fatalf("期望 1 条出勤写入，实际 %d", len(plan.PresentWrites))
	}
	if w := plan.PresentWrites[0]; w.StudentID != "A" || math.Abs(w.Confidence-70) > 1e-9 {
		t.Errorf("出勤写入不正确: %+v", w)
	}
	if !reflect.DeepEqual(plan.AbsentInserts, []string{"B"}) {
		t.Errorf("缺勤名单不正确: %v", plan.AbsentInserts)
	}
	if len(plan.Review) != 0 {
		t.Errorf("不应有待复核: %+v", plan.Review)
	}
	if len(plan.Unknown) != 1 || !plan.Unknown[0].Duplicate {
		t.Fatalf("期望 1 张重复的未知人脸: %+v", plan.Unknown)
	}

	want := Summary{TotalStudents: 2, Present: 1, Absent: 1, UnknownFaces: 1}
	if plan.Summary != want {
		t.Errorf("期望汇总 %+v，实际 %+v", want, plan.Summary)
	}
}

func TestPlanReconciliation_EmptyGalleryMarksAllAbsent(t *testing.T) {
	plan := PlanReconciliation(nil, roster("a", "b", "c"), map[string]ExistingRecord{})

	if len(plan.PresentWrites) != 0 || len(plan.HighConfidence) != 0 {
		t.Errorf("不应有出勤: %+v", plan)
	}
	if !reflect.DeepEqual(plan.AbsentInserts, []string{"a", "b", "c"}) {
		t.Errorf("缺勤名单不正确: %v", plan.AbsentInserts)
	}
	if want := (Summary{TotalStudents: 3, Absent: 3}); plan.Summary != want {
		t.Errorf("期望汇总 %+v，实际 %+v", want, plan.Summary)
	}
}

func TestPlanReconciliation_BetterEvidenceWins(t *testing.T) {
	decisions := []Decision{{FaceIndex: 0, Assigned: true, StudentID: "a", Tier: TierHigh, Distance: 0.30, HasDistance: true}}

	tests := []struct {
		name      string
		existing  ExistingRecord
		wantWrite bool
	}{
		{"已有更高置信度", ExistingRecord{StudentID: "a", Status: StatusPresent, Confidence: f64(80)}, false},
		{"相同置信度", ExistingRecord{StudentID: "a", Status: StatusPresent, Confidence: f64(70)}, false},
		{"已有较低置信度", ExistingRecord{StudentID: "a", Status: StatusPresent, Confidence: f64(60)}, true},
		{"已有缺勤", ExistingRecord{StudentID: "a", Status: StatusAbsent}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanReconciliation(decisions, roster("a"), map[string]ExistingRecord{"a": tt.existing})
			if got := len(plan.PresentWrites) == 1; got != tt.wantWrite {
				t.Errorf("期望写入=%v，实际写入 %d 条", tt.wantWrite, len(plan.PresentWrites))
			}
			if len(plan.HighConfidence) != 1 || plan.Summary.Present != 1 {
				t.Errorf("高置信度匹配应计入出勤: %+v", plan.Summary)
			}
			if len(plan.AbsentInserts) != 0 {
				t.Errorf("已有记录不应新建缺勤: %v", plan.AbsentInserts)
			}
		})
	}
}

func TestPlanReconciliation_AbsentNeverOverwrites(t *testing.T) {
	plan := PlanReconciliation(nil, roster("a", "b"), map[string]ExistingRecord{
		"a": {StudentID: "a", Status: StatusPresent, Confidence: f64(90)},
	})

	if !reflect.DeepEqual(plan.AbsentInserts, []string{"b"}) {
		t.Errorf("只应为无记录的学生新建缺勤: %v", plan.AbsentInserts)
	}
}

func TestPlanReconciliation_ReviewTiers(t *testing.T) {
	decisions := []Decision{
		{FaceIndex: 0, Assigned: true, StudentID: "c", Tier: TierExtended, Distance: 0.65, HasDistance: true},
		{FaceIndex: 1, Assigned: true, StudentID: "b", Tier: TierStandard, Distance: 0.58, HasDistance: true},
		{FaceIndex: 2, Assigned: true, StudentID: "a", Tier: TierStandard, Distance: 0.50, HasDistance: true},
		{FaceIndex: 3, Tier: TierUnknown, Distance: 0.90, HasDistance: true},
	}

	plan := PlanReconciliation(decisions, roster("a", "b", "c", "d"), nil)

	if len(plan.Review) != 3 {
		t.Fatalf("期望 3 条待复核，实际 %d", len(plan.Review))
	}
	order := []string{plan.Review[0].StudentID, plan.Review[1].StudentID, plan.Review[2].StudentID}
	if !reflect.DeepEqual(order, []string{"a", "b", "c"}) {
		t.Errorf("待复核应按距离升序: %v", order)
	}
	if r := plan.Review[2]; r.Tier != TierExtended || r.PhotoPath != "c.jpg" {
		t.Errorf("第 3 级复核项不正确: %+v", r)
	}

	if len(plan.PresentWrites) != 0 {
		t.Errorf("待复核不应写出勤: %+v", plan.PresentWrites)
	}
	absent := append([]string(nil), plan.AbsentInserts...)
	sort.Strings(absent)
	if !reflect.DeepEqual(absent, []string{"a", "b", "c", "d"}) {
		t.Errorf("缺勤名单不正确: %v", plan.AbsentInserts)
	}

	if len(plan.Unknown) != 1 || plan.Unknown[0].Distance == nil {
		t.Fatalf("期望 1 张带距离的未知人脸: %+v", plan.Unknown)
	}
	if u := plan.Unknown[0]; math.Abs(*u.Distance-0.90) > 1e-12 || math.Abs(*u.Confidence-10) > 1e-9 {
		t.Errorf("未知人脸距离/置信度不正确: %v / %v", *u.Distance, *u.Confidence)
	}

	want := Summary{TotalStudents: 4, Absent: 4, UncertainHigh: 2, UncertainLow: 1, UnknownFaces: 1}
	if plan.Summary != want {
		t.Errorf("期望汇总 %+v，实际 %+v", want, plan.Summary)
	}
}

// 成功执行后名册中每个学生恰好对应一条记录（已有 / 出勤写入 / 缺勤新建）
func TestPlanReconciliation_Completeness(t *testing.T) {
	decisions := []Decision{
		{FaceIndex: 0, Assigned: true, StudentID: "a", Tier: TierHigh, Distance: 0.2, HasDistance: true},
		{FaceIndex: 1, Assigned: true, StudentID: "b", Tier: TierHigh, Distance: 0.3, HasDistance: true},
		{FaceIndex: 2, Assigned: true, StudentID: "c", Tier: TierStandard, Distance: 0.5, HasDistance: true},
	}
	existing := map[string]ExistingRecord{
		"b": {StudentID: "b", Status: StatusPresent, Confidence: f64(99)},
		"e": {StudentID: "e", Status: StatusAbsent},
	}
	r := roster("a", "b", "c", "d", "e")

	plan := PlanReconciliation(decisions, r, existing)

	records := map[string]int{}
	for id := range existing {
		records[id]++
	}
	for _, w := range plan.PresentWrites {
		if _, ok := existing[w.StudentID]; !ok {
			records[w.StudentID]++
		}
	}
	for _, id := range plan.AbsentInserts {
		records[id]++
	}
	for _, s := range r {
		if records[s.StudentID] != 1 {
			t.Errorf("学生 %s 对应 %d 条记录", s.StudentID, records[s.StudentID])
		}
	}
}

func TestPlanReconciliation_AssignedOutsideRosterIsUnknown(t *testing.T) {
	decisions := []Decision{{FaceIndex: 0, Assigned: true, StudentID: "ghost", Tier: TierHigh, Distance: 0.1, HasDistance: true}}
	plan := PlanReconciliation(decisions, roster("a"), nil)

	if len(plan.PresentWrites) != 0 || len(plan.Unknown) != 1 {
		t.Errorf("名册外的匹配应视为未知人脸: %+v", plan)
	}
	if !reflect.DeepEqual(plan.AbsentInserts, []string{"a"}) {
		t.Errorf("缺勤名单不正确: %v", plan.AbsentInserts)
	}
}
