package recognition

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Embedding 单张人脸的定长特征向量
type Embedding []float64

var (
	ErrMalformedBlob     = errors.New("特征数据格式错误")
	ErrDimensionMismatch = errors.New("特征向量维度不一致")
)

// ParseEmbeddings 解析学生存储的特征数据
//
// 支持两种历史格式：
//   - [[...], [...]]  多张参考照片的特征列表
//   - [...]           单个特征向量
//
// 空数据、null、[] 返回 (nil, nil)，表示该学生没有可用特征。
func ParseEmbeddings(blob []byte) ([]Embedding, error) {
	if len(blob) == 0 {
		return nil, nil
	}

	var raw json.RawMessage
	if err := json.Unmarshal(blob, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if string(raw) == "null" {
		return nil, nil
	}

	var list [][]float64
	if err := json.Unmarshal(raw, &list); err != nil {
		var single []float64
		if err2 := json.Unmarshal(raw, &single); err2 != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
		}
		if len(single) == 0 {
			return nil, nil
		}
		list = [][]float64{single}
	}
	if len(list) == 0 {
		return nil, nil
	}

	dim := len(list[0])
	out := make([]Embedding, 0, len(list))
	for i, v := range list {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: 第 %d 个特征为空", ErrMalformedBlob, i)
		}
		if len(v) != dim {
			return nil, fmt.Errorf("%w: 第 %d 个特征维度 %d，期望 %d", ErrDimensionMismatch, i, len(v), dim)
		}
		for _, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("%w: 第 %d 个特征包含非法数值", ErrMalformedBlob, i)
			}
		}
		out = append(out, Embedding(v))
	}
	return out, nil
}

// EncodeEmbeddings 序列化为存储格式 [[...], ...]
func EncodeEmbeddings(list []Embedding) ([]byte, error) {
	if len(list) == 0 {
		return []byte("[]"), nil
	}
	raw := make([][]float64, len(list))
	for i, e := range list {
		raw[i] = e
	}
	return json.Marshal(raw)
}

// Distance 两个特征之间的欧氏距离
// 维度不同时返回 false
func Distance(a, b Embedding) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	return floats.Distance(a, b, 2), true
}
