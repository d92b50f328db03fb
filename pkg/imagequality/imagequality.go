// Package imagequality 参考照片质量检查：尺寸、清晰度（拉普拉斯方差）与亮度。
package imagequality

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // 注册 JPEG 解码器
	_ "image/png"  // 注册 PNG 解码器

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // 注册 WebP 解码器
	"gonum.org/v1/gonum/stat"
)

// 质量问题代码
const (
	IssueTooSmall  = "too_small"
	IssueBlurry    = "blurry"
	IssueTooDark   = "too_dark"
	IssueTooBright = "too_bright"
)

// ErrUndecodable 无法解码的图片
var ErrUndecodable = errors.New("无法解码图片")

// Config 检查阈值
type Config struct {
	MinWidth      int
	MinHeight     int
	MinSharpness  float64 // 拉普拉斯方差下限
	MinBrightness float64
	MaxBrightness float64
	AnalysisSize  int // 分析前缩放到的最长边
}

// DefaultConfig 默认阈值
func DefaultConfig() Config {
	return Config{
		MinWidth:      200,
		MinHeight:     200,
		MinSharpness:  50,
		MinBrightness: 40,
		MaxBrightness: 220,
		AnalysisSize:  512,
	}
}

// Report 检查结果
type Report struct {
	Format     string   `json:"format"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Sharpness  float64  `json:"sharpness"`
	Brightness float64  `json:"brightness"`
	Issues     []string `json:"issues,omitempty"`
}

// OK 是否通过全部检查
func (r *Report) OK() bool { return len(r.Issues) == 0 }

// Analyze 解码图片并给出质量报告
func Analyze(data []byte, cfg Config) (*Report, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	b := img.Bounds()
	r := &Report{Format: format, Width: b.Dx(), Height: b.Dy()}
	if r.Width < cfg.MinWidth || r.Height < cfg.MinHeight {
		r.Issues = append(r.Issues, IssueTooSmall)
	}

	gray := toGray(img, cfg.AnalysisSize)
	pixels := grayValues(gray)
	r.Brightness = stat.Mean(pixels, nil)
	r.Sharpness = laplacianVariance(gray)

	if r.Sharpness < cfg.MinSharpness {
		r.Issues = append(r.Issues, IssueBlurry)
	}
	switch {
	case r.Brightness < cfg.MinBrightness:
		r.Issues = append(r.Issues, IssueTooDark)
	case r.Brightness > cfg.MaxBrightness:
		r.Issues = append(r.Issues, IssueTooBright)
	}
	return r, nil
}

// toGray 转灰度，最长边超过 maxSide 时等比缩小
func toGray(img image.Image, maxSide int) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide > 0 && (w > maxSide || h > maxSide) {
		if w >= h {
			h = h * maxSide / w
			w = maxSide
		} else {
			w = w * maxSide / h
			h = maxSide
		}
	}
	dst := image.NewGray(image.Rect(0, 0, max(w, 1), max(h, 1)))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	}
	return dst
}

func grayValues(g *image.Gray) []float64 {
	out := make([]float64, 0, len(g.Pix))
	b := g.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+b.Dx()]
		for _, p := range row {
			out = append(out, float64(p))
		}
	}
	return out
}

// laplacianVariance 4 邻域拉普拉斯响应的方差
func laplacianVariance(g *image.Gray) float64 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	at := func(x, y int) float64 { return float64(g.Pix[y*g.Stride+x]) }

	resp := make([]float64, 0, (w-2)*(h-2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			resp = append(resp, v)
		}
	}
	return stat.Variance(resp, nil)
}
