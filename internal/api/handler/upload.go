package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/api/middleware"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/response"
)

var errFormFileMissing = errors.New("缺少上传文件")

// readFormFile 读取 multipart 文件字段的全部内容
func readFormFile(c *gin.Context, field string) ([]byte, string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if middleware.IsBodyTooLarge(err) {
			return nil, "", err
		}
		return nil, "", errFormFileMissing
	}

	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}
	return data, fh.Filename, nil
}

// writeUploadError 上传读取失败的响应；missingCode 为缺少文件时的业务码
func writeUploadError(c *gin.Context, err error, missingCode int, missingMsg string) {
	switch {
	case middleware.IsBodyTooLarge(err):
		response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
	case errors.Is(err, errFormFileMissing):
		response.BadRequest(c, missingCode, missingMsg)
	default:
		response.BadRequest(c, 10001, "文件读取失败")
	}
}
