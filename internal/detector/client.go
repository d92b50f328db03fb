package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KYogeshPandey/snaptick-attendance-system/config"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/recognition"
)

const defaultBaseURL = "http://localhost:8000"

// ErrUnavailable 检测服务不可用（网络错误或 5xx）
var ErrUnavailable = errors.New("人脸检测服务不可用")

// ErrBadResponse 检测服务返回了无法解析的数据
var ErrBadResponse = errors.New("人脸检测服务返回数据异常")

// Client 人脸检测 / 特征提取 sidecar 的 HTTP 客户端
// 对应 POST /embed/face，multipart 字段名 file
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient 创建检测客户端
func NewClient(cfg *config.DetectorConfig, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// faceDetection sidecar 返回的单张人脸
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float64 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// DetectFaces 检测图片中的全部人脸并返回特征
// 不做自动重试：识别输入通常不可重试（模糊照片再试仍会失败）
func (c *Client) DetectFaces(ctx context.Context, image []byte) ([]recognition.DetectedFace, error) {
	body, err := c.postImage(ctx, "/embed/face", image)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	faces := make([]recognition.DetectedFace, 0, len(resp.Faces))
	for i, f := range resp.Faces {
		if len(f.Embedding) == 0 {
			return nil, fmt.Errorf("%w: 第 %d 张人脸缺少特征", ErrBadResponse, i)
		}
		face := recognition.DetectedFace{
			Index:     i,
			Score:     f.DetScore,
			Embedding: recognition.Embedding(f.Embedding),
		}
		if len(f.BBox) == 4 {
			face.BBox = recognition.BoundingBox{X1: f.BBox[0], Y1: f.BBox[1], X2: f.BBox[2], Y2: f.BBox[3]}
		}
		faces = append(faces, face)
	}

	c.logger.Debug("人脸检测完成", zap.Int("faces", len(faces)), zap.String("model", resp.Model))
	return faces, nil
}

func (c *Client) postImage(ctx context.Context, endpoint string, image []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", http.DetectContentType(image))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("创建表单失败: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("写入图片失败: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("关闭表单失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应失败: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, truncate(body, 200))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, truncate(body, 200))
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
