// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
	Meta    any    `json:"meta,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	ErrorCode   string   `json:"error_code,omitempty"`
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Success 返回成功响应
func Success[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, Response[T]{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
		TraceID: c.GetString("trace_id"),
	})
}

// SuccessWithMeta 返回带元数据的成功响应
func SuccessWithMeta[T any](c *gin.Context, data T, meta any) {
	c.JSON(http.StatusOK, Response[T]{
		Code:    http.StatusOK,
		Message: "success",
		Data:    data,
		Meta:    meta,
		TraceID: c.GetString("trace_id"),
	})
}

// Created 返回创建成功响应 (201)
func Created[T any](c *gin.Context, data T) {
	c.JSON(http.StatusCreated, Response[T]{
		Code:    http.StatusCreated,
		Message: "created",
		Data:    data,
		TraceID: c.GetString("trace_id"),
	})
}

// ErrorWithDetail 返回带详情的错误响应
func ErrorWithDetail(c *gin.Context, httpCode int, message string, detail *ErrorDetail) {
	c.JSON(httpCode, ErrorResponse{
		Code:    httpCode,
		Message: message,
		Error:   detail,
		TraceID: c.GetString("trace_id"),
	})
}
