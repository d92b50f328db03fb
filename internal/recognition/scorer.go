package recognition

import (
	"runtime"
	"sync"
)

// Match 一张人脸在特征库中的最佳匹配
type Match struct {
	StudentID  string
	EntryIndex int // 在 Gallery.Entries() 中的位置
	Distance   float64
}

// BestMatch 返回与待识别人脸距离最小的特征条目。
// 距离相同时取特征库顺序中靠前的条目；特征库为空或维度全部不匹配时返回 false。
func BestMatch(face Embedding, g *Gallery) (Match, bool) {
	var (
		best  Match
		found bool
	)
	for i, entry := range g.entries {
		d, ok := Distance(face, entry.Embedding)
		if !ok {
			continue
		}
		if !found || d < best.Distance {
			best = Match{StudentID: entry.StudentID, EntryIndex: i, Distance: d}
			found = true
		}
	}
	return best, found
}

// Candidate 单张人脸在冲突消解前的候选结果
type Candidate struct {
	FaceIndex int
	BBox      BoundingBox
	Match     Match
	HasMatch  bool
	Tier      Tier
}

// ScoreFaces 并行计算每张人脸的最佳匹配与分级，结果顺序与 faces 一致
// workers <= 0 时使用 GOMAXPROCS
func ScoreFaces(faces []DetectedFace, g *Gallery, th Thresholds, workers int) []Candidate {
	out := make([]Candidate, len(faces))
	if len(faces) == 0 {
		return out
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(faces) {
		workers = len(faces)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = scoreFace(faces[i], g, th)
			}
		}()
	}
	for i := range faces {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return out
}

func scoreFace(f DetectedFace, g *Gallery, th Thresholds) Candidate {
	c := Candidate{FaceIndex: f.Index, BBox: f.BBox, Tier: TierUnknown}
	m, ok := BestMatch(f.Embedding, g)
	if !ok {
		return c
	}
	c.Match = m
	c.HasMatch = true
	c.Tier = th.Classify(m.Distance)
	return c
}
