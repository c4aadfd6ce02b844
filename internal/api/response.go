package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 业务状态码。0 表示成功，4xxx 为客户端错误，5xxx 为服务端错误。
const (
	CodeSuccess = 0

	ErrCodeClientInvalidInput = 40001 // 请求参数无效。
	ErrCodeClientNotFound     = 40401 // 请求的资源不存在。
	ErrCodeClientQuotaLimit   = 42901 // 配额超限。
	ErrCodeServerInternal     = 50001 // 服务器内部错误。
	ErrCodeServerUpstream     = 50301 // 上游依赖不可用。
)

// 机器可读的错误类别，写入错误响应的 kind 字段。
// 调用方应基于 kind 而不是 message 做程序化分支。
const (
	KindQuotaExceeded       = "QUOTA_EXCEEDED"
	KindInvalidFilter       = "INVALID_FILTER"
	KindUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	KindNotFound            = "NOT_FOUND"
)

// APIResponse 是所有成功响应共用的信封结构。
type APIResponse struct {
	Code    int         `json:"code"`           // 业务状态码，0 代表成功。
	Message string      `json:"message"`        // 操作结果的文字描述。
	Data    interface{} `json:"data,omitempty"` // 具体的数据负载。
}

// APIError 是所有错误响应共用的信封结构。
type APIError struct {
	Code    int    `json:"code"`    // 业务状态码。
	Kind    string `json:"kind"`    // 机器可读的错误类别。
	Message string `json:"message"` // 面向人类的错误描述。
}

// RespondSuccess 以统一信封写出一个成功响应。
func RespondSuccess(c *gin.Context, data interface{}, message string) {
	c.JSON(http.StatusOK, APIResponse{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// RespondError 以统一信封写出一个错误响应。
func RespondError(c *gin.Context, httpStatus int, code int, kind string, message string) {
	c.JSON(httpStatus, APIError{
		Code:    code,
		Kind:    kind,
		Message: message,
	})
}
