package detector

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/KYogeshPandey/snaptick-attendance-system/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&config.DetectorConfig{BaseURL: srv.URL + "/", Timeout: 2 * time.Second}, zap.NewNop())
}

func TestDetectFaces_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed/face" {
			t.Errorf("请求路径不正确: %s", r.URL.Path)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("读取上传文件失败: %v", err)
			return
		}
		data, _ := io.ReadAll(file)
		if string(data) != "fake-image" {
			t.Errorf("上传内容不正确: %q", data)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"faces_count":2,"model":"buffalo_l","faces":[
			{"face_index":0,"dim":3,"embedding":[0.1,0.2,0.3],"bbox":[1,2,11,22],"det_score":0.99},
			{"face_index":1,"dim":3,"embedding":[0.4,0.5,0.6],"bbox":[],"det_score":0.80}]}`))
	})

	faces, err := c.DetectFaces(context.Background(), []byte("fake-image"))
	if err != nil {
		t.Fatalf("检测失败: %v", err)
	}
	if len(faces) != 2 {
		t.Fatalf("期望 2 张人脸，实际 %d", len(faces))
	}
	box := faces[0].BBox
	if faces[0].Index != 0 || box.X2-box.X1 != 10 || box.Y2-box.Y1 != 20 {
		t.Errorf("第一张人脸不正确: %+v", faces[0])
	}
	if box := faces[1].BBox; box.X2-box.X1 != 0 || box.Y2-box.Y1 != 0 {
		t.Errorf("空 bbox 应为零值: %+v", box)
	}
	if len(faces[1].Embedding) != 3 {
		t.Errorf("期望 3 维向量，实际 %d", len(faces[1].Embedding))
	}
}

func TestDetectFaces_NoFaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"faces_count":0,"faces":[]}`))
	})

	faces, err := c.DetectFaces(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("检测失败: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("期望无人脸，实际 %d", len(faces))
	}
}

func TestDetectFaces_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{"服务异常", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model crashed", http.StatusInternalServerError)
		}, ErrUnavailable},
		{"请求被拒", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unsupported image", http.StatusBadRequest)
		}, ErrBadResponse},
		{"响应格式错误", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"faces": [`))
		}, ErrBadResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.DetectFaces(context.Background(), []byte("img"))
			if !errors.Is(err, tt.want) {
				t.Errorf("期望 %v，实际: %v", tt.want, err)
			}
		})
	}
}

func TestDetectFaces_Unreachable(t *testing.T) {
	c := NewClient(&config.DetectorConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, zap.NewNop())

	_, err := c.DetectFaces(context.Background(), []byte("img"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("期望 ErrUnavailable，实际: %v", err)
	}
}
