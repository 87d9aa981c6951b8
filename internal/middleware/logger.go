package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/logger"
)

const (
	contextRequestID = "requestID"
	headerRequestID  = "X-Request-ID"
)

// RequestID 为每个请求分配ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// GetRequestID 从上下文获取请求ID
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextRequestID)
}

// RequestLogger 记录请求日志
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.LogRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}

// Recovery 捕获panic并返回统一错误响应
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.LogPanic(r, debug.Stack())
				if !c.Writer.Written() {
					AbortWithError(c, apperrors.New(apperrors.ErrUnknown, "服务内部错误"))
					return
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RespondError 以统一格式返回错误
func RespondError(c *gin.Context, err error) {
	appErr := toAppError(err)
	c.JSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(appErr, GetRequestID(c)))
}

// AbortWithError 返回错误并终止后续处理
func AbortWithError(c *gin.Context, err error) {
	RespondError(c, err)
	c.Abort()
}

// toAppError 转换为不含调用栈的应用错误
func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	public := *appErr
	public.Stack = nil
	if public.HTTPStatus() == http.StatusInternalServerError && public.Code == apperrors.ErrUnknown {
		public.Details = ""
	}
	return &public
}
