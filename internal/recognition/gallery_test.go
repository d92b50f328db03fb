package recognition

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuildGallery_SoftFailures(t *testing.T) {
	g, report := BuildGallery([]GallerySource{
		{StudentID: "s1", Encodings: []byte("[[0.1,0.2],[0.3,0.4]]")},
		{StudentID: "s2", Encodings: nil},
		{StudentID: "s3", Encodings: []byte("{broken")},
		{StudentID: "s4", Encodings: []byte("[0.9,0.9]")},
		{StudentID: "s1", Encodings: []byte("[[9,9]]")},
	})

	if g.Len() != 3 {
		t.Fatalf("期望 3 条特征，实际 %d", g.Len())
	}
	if !reflect.DeepEqual(g.Students(), []string{"s1", "s4"}) {
		t.Errorf("参与识别的学生不正确: %v", g.Students())
	}
	if !reflect.DeepEqual(report.Ineligible, []string{"s2"}) {
		t.Errorf("未登记学生不正确: %v", report.Ineligible)
	}
	if len(report.ParseFailures) != 1 {
		t.Fatalf("期望 1 个解析失败，实际 %d", len(report.ParseFailures))
	}
	if f := report.ParseFailures[0]; f.StudentID != "s3" || !errors.Is(f.Err, ErrMalformedBlob) {
		t.Errorf("解析失败记录不正确: %+v", f)
	}

	entries := g.Entries()
	if entries[0].StudentID != "s1" || entries[0].Index != 0 || entries[1].Index != 1 {
		t.Errorf("s1 的特征序号不正确: %+v", entries[:2])
	}
	// 重复出现的 s1 只取第一次
	if entries[2].StudentID != "s4" {
		t.Errorf("第三条特征应属于 s4，实际 %s", entries[2].StudentID)
	}
}

func TestBuildGallery_AllIneligible(t *testing.T) {
	g, report := BuildGallery([]GallerySource{
		{StudentID: "a"}, {StudentID: "b", Encodings: []byte("[]")}, {StudentID: "c", Encodings: []byte("null")},
	})

	if !g.Empty() {
		t.Errorf("特征库应为空，实际 %d 条", g.Len())
	}
	if !reflect.DeepEqual(report.Ineligible, []string{"a", "b", "c"}) {
		t.Errorf("未登记学生不正确: %v", report.Ineligible)
	}
	if len(report.ParseFailures) != 0 {
		t.Errorf("不应有解析失败: %+v", report.ParseFailures)
	}
}
