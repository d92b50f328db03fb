package recognition

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func galleryOf(t *testing.T, sources ...GallerySource) *Gallery {
	t.Helper()
	g, report := BuildGallery(sources)
	if len(report.ParseFailures) != 0 {
		t.Fatalf("构建特征库失败: %+v", report.ParseFailures)
	}
	return g
}

func TestBestMatch_PicksMinimum(t *testing.T) {
	g := galleryOf(t,
		GallerySource{StudentID: "a", Encodings: []byte("[[1,0],[0.5,0]]")},
		GallerySource{StudentID: "b", Encodings: []byte("[[0,1]]")},
	)

	m, ok := BestMatch(Embedding{0.4, 0}, g)
	if !ok {
		t.Fatal("期望找到匹配")
	}
	if m.StudentID != "a" || m.EntryIndex != 1 || math.Abs(m.Distance-0.1) > 1e-9 {
		t.Errorf("最近匹配不正确: %+v", m)
	}
}

func TestBestMatch_TieKeepsGalleryOrder(t *testing.T) {
	g := galleryOf(t,
		GallerySource{StudentID: "first", Encodings: []byte("[[1,0]]")},
		GallerySource{StudentID: "second", Encodings: []byte("[[-1,0]]")},
	)

	for i := 0; i < 20; i++ {
		m, ok := BestMatch(Embedding{0, 0}, g)
		if !ok || m.StudentID != "first" || m.EntryIndex != 0 {
			t.Fatalf("距离相同时应取特征库中靠前的条目: %+v", m)
		}
	}
}

func TestBestMatch_EmptyGallery(t *testing.T) {
	g, _ := BuildGallery(nil)
	if _, ok := BestMatch(Embedding{0.1, 0.2}, g); ok {
		t.Error("空特征库不应有匹配")
	}
}

func TestBestMatch_SkipsDimensionMismatch(t *testing.T) {
	g := galleryOf(t,
		GallerySource{StudentID: "a", Encodings: []byte("[[0,0,0]]")},
		GallerySource{StudentID: "b", Encodings: []byte("[[3,4]]")},
	)

	m, ok := BestMatch(Embedding{0, 0}, g)
	if !ok || m.StudentID != "b" || math.Abs(m.Distance-5) > 1e-12 {
		t.Errorf("应跳过维度不一致的特征: %+v (ok=%v)", m, ok)
	}

	if _, ok := BestMatch(Embedding{0}, g); ok {
		t.Error("没有同维度特征时不应有匹配")
	}
}

func TestScoreFaces_ParallelMatchesSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randVec := func() []float64 {
		v := make([]float64, 16)
		for i := range v {
			v[i] = rng.Float64()
		}
		return v
	}

	var sources []GallerySource
	for i := 0; i < 30; i++ {
		blob, err := EncodeEmbeddings([]Embedding{randVec(), randVec()})
		if err != nil {
			t.Fatalf("编码失败: %v", err)
		}
		sources = append(sources, GallerySource{StudentID: string(rune('A' + i)), Encodings: blob})
	}
	g := galleryOf(t, sources...)

	faces := make([]DetectedFace, 25)
	for i := range faces {
		faces[i] = DetectedFace{Index: i, Embedding: randVec()}
	}

	th := Thresholds{T1: 0.9, T2: 1.1, T3: 1.3}
	parallel := ScoreFaces(faces, g, th, 8)
	sequential := ScoreFaces(faces, g, th, 1)

	if len(parallel) != len(faces) {
		t.Fatalf("期望 %d 个候选，实际 %d", len(faces), len(parallel))
	}
	if !reflect.DeepEqual(sequential, parallel) {
		t.Error("并行与串行结果不一致")
	}
	for i, c := range parallel {
		if c.FaceIndex != i || !c.HasMatch || c.Tier != th.Classify(c.Match.Distance) {
			t.Errorf("候选 %d 不正确: %+v", i, c)
		}
	}
}

func TestScoreFaces_EmptyGalleryYieldsUnknown(t *testing.T) {
	g, _ := BuildGallery(nil)
	out := ScoreFaces([]DetectedFace{{Index: 0, Embedding: Embedding{1}}}, g, DefaultThresholds(), 0)

	if len(out) != 1 {
		t.Fatalf("期望 1 个候选，实际 %d", len(out))
	}
	if out[0].HasMatch || out[0].Tier != TierUnknown {
		t.Errorf("空特征库应返回未知: %+v", out[0])
	}
}
