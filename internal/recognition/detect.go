package recognition

import "context"

// BoundingBox 人脸框，像素坐标 [x1,y1,x2,y2]
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// DetectedFace 从图片中检测到的一张人脸
type DetectedFace struct {
	Index     int
	BBox      BoundingBox
	Score     float64
	Embedding Embedding
}

// Detector 人脸检测与特征提取（外部模型）
type Detector interface {
	DetectFaces(ctx context.Context, image []byte) ([]DetectedFace, error)
}
