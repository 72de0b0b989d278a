package v1

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"osaccount/internal/model"
	"osaccount/internal/service"
	"osaccount/pkg/api"
	"osaccount/pkg/async"

	"github.com/gin-gonic/gin"
)

// respond 等待任务完成并写出统一响应
func respond[T any](c *gin.Context, task *async.Task[T]) {
	v, err := task.Await(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	api.Success(c, v)
}

// respondError 按结果码和操作错误码写出错误响应
func respondError(c *gin.Context, err error, data interface{}) {
	api.Failure(c, httpStatus(err), int32(service.CodeOf(err)), service.KitCodeOf(err), data, err)
}

// httpStatus 错误对应的HTTP状态码
func httpStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrPermissionDenied), errors.Is(err, service.ErrConstraintBlocked):
		return http.StatusForbidden
	case errors.Is(err, service.ErrAccountNotFound), errors.Is(err, service.ErrCredentialNotFound),
		errors.Is(err, service.ErrContextNotFound):
		return http.StatusNotFound
	}
	switch service.CodeOf(err) {
	case model.ResultInvalidParameters:
		return http.StatusBadRequest
	case model.ResultBusy:
		return http.StatusConflict
	case model.ResultFail:
		return http.StatusUnauthorized
	case model.ResultLocked:
		return http.StatusLocked
	case model.ResultTimeout:
		return http.StatusGatewayTimeout
	case model.ResultCanceled:
		if errors.Is(err, context.Canceled) {
			// 客户端断开
			return 499
		}
		return http.StatusConflict
	case model.ResultNotEnrolled, model.ResultTypeNotSupport, model.ResultTrustLevelNotSupport:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// badRequest 请求格式错误
func badRequest(c *gin.Context, err error) {
	respondError(c, errors.Join(service.ErrInvalidParameters, err), nil)
}

// intParam 解析路径中的整数参数
func intParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		badRequest(c, err)
		return 0, false
	}
	return v, true
}

// respondWith 等待任务完成，成功时以convert的结果作为响应数据
func respondWith[T any](c *gin.Context, task *async.Task[T], convert func(T) interface{}) {
	v, err := task.Await(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	api.Success(c, convert(v))
}
