package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradeforge/backtest"
	"tradeforge/database"
	"tradeforge/logger"
	"tradeforge/market"
)

// 错误码
const (
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeBadRequest       = "BAD_REQUEST"
	CodeNotFound         = "NOT_FOUND"
	CodeBusy             = "BUSY"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

var errDisabled = errors.New("component disabled")

// classify 把领域错误映射为 HTTP 状态码、错误码与翻译 key
func classify(err error) (status int, code, key string) {
	switch {
	case errors.Is(err, market.ErrInvalidParameter):
		return http.StatusBadRequest, CodeInvalidParameter, "invalid_parameter"
	case errors.Is(err, market.ErrInsufficientData):
		return http.StatusBadRequest, CodeInsufficientData, "insufficient_data"
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, "report_not_found"
	case errors.Is(err, backtest.ErrCacheMiss):
		return http.StatusNotFound, CodeNotFound, "cache_not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusConflict, CodeBusy, "request_busy"
	case errors.Is(err, errDisabled):
		return http.StatusServiceUnavailable, CodeUnavailable, "storage_disabled"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal_error"
	}
}

// respondError 写出本地化错误响应
func respondError(c *gin.Context, err error, data map[string]interface{}) {
	status, code, key := classify(err)
	if data == nil {
		data = map[string]interface{}{}
	}
	if _, ok := data["Detail"]; !ok {
		data["Detail"] = err.Error()
	}

	if status >= http.StatusInternalServerError {
		logger.Error("❌ %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		_ = c.Error(err)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Success: false,
		Code:    code,
		Message: T(c, key, data),
	})
}

// respondBadRequest 请求体无法解析
func respondBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Success: false,
		Code:    CodeBadRequest,
		Message: T(c, "bad_request", map[string]interface{}{"Detail": err.Error()}),
	})
}
