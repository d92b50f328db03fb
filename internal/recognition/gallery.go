package recognition

// GallerySource 构建特征库所需的单个学生数据
type GallerySource struct {
	StudentID string
	Encodings []byte
}

// GalleryEntry 特征库中的一条 (学生, 特征) 记录
type GalleryEntry struct {
	StudentID string
	Index     int // 该特征在学生自身特征列表中的序号
	Embedding Embedding
}

// Gallery 一个班级在本次识别时的特征库（只读，每次请求重建）
type Gallery struct {
	entries  []GalleryEntry
	students []string
}

// ParseFailure 单个学生特征解析失败
type ParseFailure struct {
	StudentID string
	Err       error
}

// GalleryReport 构建特征库时的统计
type GalleryReport struct {
	Ineligible    []string       // 没有存储任何特征的学生
	ParseFailures []ParseFailure // 特征数据损坏的学生
}

// BuildGallery 按 sources 顺序构建特征库
//
// 单个学生解析失败不会中断构建：该学生被排除并记录在 report 中。
// 同一学生重复出现时只取第一次。
func BuildGallery(sources []GallerySource) (*Gallery, GalleryReport) {
	g := &Gallery{}
	var report GalleryReport
	seen := make(map[string]bool, len(sources))

	for _, src := range sources {
		if seen[src.StudentID] {
			continue
		}
		seen[src.StudentID] = true

		embs, err := ParseEmbeddings(src.Encodings)
		if err != nil {
			report.ParseFailures = append(report.ParseFailures, ParseFailure{StudentID: src.StudentID, Err: err})
			continue
		}
		if len(embs) == 0 {
			report.Ineligible = append(report.Ineligible, src.StudentID)
			continue
		}

		g.students = append(g.students, src.StudentID)
		for i, e := range embs {
			g.entries = append(g.entries, GalleryEntry{StudentID: src.StudentID, Index: i, Embedding: e})
		}
	}

	return g, report
}

// Entries 返回扁平化的特征列表（即特征库顺序）
func (g *Gallery) Entries() []GalleryEntry { return g.entries }

// Len 特征条目总数
func (g *Gallery) Len() int { return len(g.entries) }

// Empty 特征库是否为空
func (g *Gallery) Empty() bool { return len(g.entries) == 0 }

// Students 参与识别的学生 ID（按构建顺序）
func (g *Gallery) Students() []string { return g.students }
