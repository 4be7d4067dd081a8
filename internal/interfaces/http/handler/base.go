// Package handler 提供 HTTP 请求处理器
package handler

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ell-intel-api/internal/application/retrieval"
	"ell-intel-api/internal/infrastructure/memory/memmachine"
	"ell-intel-api/internal/interfaces/http/dto"
	"ell-intel-api/pkg/errors"
	"ell-intel-api/pkg/logger"
)

// writeError 把错误映射为统一错误响应；非 AppError 按哨兵错误归类
func writeError(c *gin.Context, err error) {
	appErr := classify(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", err, "path", c.FullPath())
	}
	dto.ErrorWithDetail(c, status, appErr.Message, &dto.ErrorDetail{
		ErrorCode: string(appErr.Code),
		Details:   appErr.Detail,
	})
}

func classify(err error) *errors.AppError {
	var appErr *errors.AppError
	switch {
	case stderrors.As(err, &appErr):
		return appErr
	case stderrors.Is(err, retrieval.ErrVectorDisabled), stderrors.Is(err, retrieval.ErrVectorUnavailable):
		return errors.Wrap(err, errors.CodeRetrievalUnavailable, "vector retrieval unavailable")
	case stderrors.Is(err, memmachine.ErrMemoryUnavailable):
		return errors.Wrap(err, errors.CodeMemoryUnavailable, "memory service unavailable")
	default:
		return errors.Wrap(err, errors.CodeInternalError, "internal server error")
	}
}

// bindJSON 绑定失败时直接写 400
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		dto.ErrorWithDetail(c, http.StatusBadRequest, "invalid request body", &dto.ErrorDetail{
			ErrorCode: string(errors.CodeInvalidParam),
			Details:   err.Error(),
		})
		return false
	}
	return true
}

// resolveUserID 请求体优先，其次 X-User-ID 中间件注入的身份
func resolveUserID(c *gin.Context, fromBody string) string {
	if s := strings.TrimSpace(fromBody); s != "" {
		return s
	}
	return c.GetString("user_id")
}
