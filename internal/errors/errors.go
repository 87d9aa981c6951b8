package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown        ErrorCode = 1000
	ErrInvalidParam   ErrorCode = 1001
	ErrNotFound       ErrorCode = 1002
	ErrAlreadyExists  ErrorCode = 1003
	ErrTimeout        ErrorCode = 1005
	ErrNotImplemented ErrorCode = 1007

	// 回合错误 (2000-2099)
	ErrUnseededState      ErrorCode = 2000
	ErrBonusAlreadyActive ErrorCode = 2001
	ErrInvalidBet         ErrorCode = 2002
	ErrSessionClosed      ErrorCode = 2003
	ErrSessionBusy        ErrorCode = 2004

	// 概率表错误 (2100-2199)
	ErrInfeasibleAllocation ErrorCode = 2100
	ErrInvariantViolation   ErrorCode = 2101
	ErrInvalidTable         ErrorCode = 2102

	// 通信错误 (4000-4999)
	ErrWebSocketConnect ErrorCode = 4000
	ErrMessageFormat    ErrorCode = 4007

	// 数据库错误 (5000-5999)
	ErrDatabaseConnect ErrorCode = 5000
	ErrDatabaseQuery   ErrorCode = 5001
	ErrDatabaseInsert  ErrorCode = 5002
	ErrDatabaseUpdate  ErrorCode = 5003
	ErrTransaction     ErrorCode = 5005
	ErrDataIntegrity   ErrorCode = 5006

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigParse    ErrorCode = 6001
	ErrConfigValidate ErrorCode = 6002
	ErrConfigMissing  ErrorCode = 6003

	// 安全错误 (7000-7999)
	ErrAuthentication ErrorCode = 7000
	ErrAuthorization  ErrorCode = 7001
	ErrTokenExpired   ErrorCode = 7002
	ErrTokenInvalid   ErrorCode = 7003
)

// codeSpec 错误码的消息、HTTP状态与分类
type codeSpec struct {
	message   string
	status    int
	retryable bool // 调用方可以原样重试
	critical  bool // 需要人工介入
}

var codeSpecs = map[ErrorCode]codeSpec{
	ErrUnknown:        {message: "未知错误", status: http.StatusInternalServerError},
	ErrInvalidParam:   {message: "无效的参数", status: http.StatusBadRequest},
	ErrNotFound:       {message: "资源未找到", status: http.StatusNotFound},
	ErrAlreadyExists:  {message: "资源已存在", status: http.StatusConflict},
	ErrTimeout:        {message: "操作超时", status: http.StatusRequestTimeout, retryable: true},
	ErrNotImplemented: {message: "功能未实现", status: http.StatusNotImplemented},

	ErrUnseededState:      {message: "种子未设置", status: http.StatusUnprocessableEntity},
	ErrBonusAlreadyActive: {message: "奖励回合已激活", status: http.StatusConflict},
	ErrInvalidBet:         {message: "无效的投注金额", status: http.StatusBadRequest},
	ErrSessionClosed:      {message: "会话已关闭", status: http.StatusConflict},
	ErrSessionBusy:        {message: "会话正在处理其他回合", status: http.StatusConflict, retryable: true},

	ErrInfeasibleAllocation: {message: "无法精确分配概率单位", status: http.StatusUnprocessableEntity},
	ErrInvariantViolation:   {message: "概率表不变量校验失败", status: http.StatusInternalServerError, critical: true},
	ErrInvalidTable:         {message: "无效的概率表", status: http.StatusInternalServerError},

	ErrWebSocketConnect: {message: "WebSocket连接失败", status: http.StatusInternalServerError, retryable: true},
	ErrMessageFormat:    {message: "消息格式错误", status: http.StatusBadRequest},

	ErrDatabaseConnect: {message: "数据库连接失败", status: http.StatusServiceUnavailable, retryable: true, critical: true},
	ErrDatabaseQuery:   {message: "数据库查询失败", status: http.StatusServiceUnavailable},
	ErrDatabaseInsert:  {message: "数据库插入失败", status: http.StatusServiceUnavailable},
	ErrDatabaseUpdate:  {message: "数据库更新失败", status: http.StatusServiceUnavailable},
	ErrTransaction:     {message: "事务处理失败", status: http.StatusServiceUnavailable},
	ErrDataIntegrity:   {message: "数据完整性错误", status: http.StatusServiceUnavailable, critical: true},

	ErrConfigLoad:     {message: "配置加载失败", status: http.StatusInternalServerError, critical: true},
	ErrConfigParse:    {message: "配置解析失败", status: http.StatusInternalServerError},
	ErrConfigValidate: {message: "配置验证失败", status: http.StatusInternalServerError},
	ErrConfigMissing:  {message: "配置项缺失", status: http.StatusInternalServerError, critical: true},

	ErrAuthentication: {message: "认证失败", status: http.StatusUnauthorized},
	ErrAuthorization:  {message: "授权失败", status: http.StatusUnauthorized},
	ErrTokenExpired:   {message: "令牌已过期", status: http.StatusUnauthorized},
	ErrTokenInvalid:   {message: "无效的令牌", status: http.StatusUnauthorized},
}

func specOf(code ErrorCode) codeSpec {
	if spec, ok := codeSpecs[code]; ok {
		return spec
	}
	return codeSpecs[ErrUnknown]
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`            // 错误码
	Message string       `json:"message"`         // 错误消息
	Details string       `json:"details"`         // 详细信息
	Cause   error        `json:"-"`               // 原始错误
	Stack   []StackFrame `json:"stack,omitempty"` // 调用栈
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is 支持 errors.Is 按错误码比较
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	err := &AppError{
		Code:    code,
		Message: specOf(code).message,
	}

	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	err.captureStack(2)

	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return New(code, details)
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，保留原始错误码
	if appErr, ok := err.(*AppError); ok {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	appErr := New(code, details...)
	appErr.Cause = err
	if appErr.Details == "" {
		appErr.Details = err.Error()
	}

	return appErr
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	details := fmt.Sprintf(format, args...)
	return Wrap(err, code, details)
}

// Is 判断错误链中是否包含指定错误码
func Is(err error, code ErrorCode) bool {
	for ; err != nil; err = stderrors.Unwrap(err) {
		if appErr, ok := err.(*AppError); ok && appErr.Code == code {
			return true
		}
	}
	return false
}

// GetCode 获取错误链中第一个应用错误的错误码，没有时返回 ErrUnknown
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrUnknown
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()

		// 跳过runtime和本包的调用
		if strings.Contains(frame.Function, "runtime.") ||
			strings.Contains(frame.Function, "github.com/wfunc/slot-math/internal/errors") {
			if !more {
				break
			}
			continue
		}

		e.Stack = append(e.Stack, StackFrame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})

		if !more || len(e.Stack) >= 10 {
			break
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}

	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	return specOf(e.Code).status
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	return err != nil && specOf(GetCode(err)).retryable
}

// IsCritical 判断是否为严重错误
func IsCritical(err error) bool {
	return err != nil && specOf(GetCode(err)).critical
}

// ErrorResponse API错误响应结构
type ErrorResponse struct {
	Success   bool      `json:"success"`
	Error     *AppError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(err *AppError, requestID string) *ErrorResponse {
	return &ErrorResponse{
		Success:   false,
		Error:     err,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	}
}
