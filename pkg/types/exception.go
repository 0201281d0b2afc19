package types

import "fmt"

// ErrorCode 可跨网络传输的错误码
type ErrorCode uint32

const (
	// CodeUnknown 未分类错误
	CodeUnknown ErrorCode = iota
	// CodeCouldNotDeliver 请求未能发出
	CodeCouldNotDeliver
	// CodeConnectionFailed 承载请求的连接已断开
	CodeConnectionFailed
	// CodeTimeout 请求超时
	CodeTimeout
	// CodeNoRoute 没有到目标的路由
	CodeNoRoute
	// CodeSerialization 参数或结果无法编解码
	CodeSerialization
	// CodeUnknownProtocol 服务端未注册该协议
	CodeUnknownProtocol
	// CodeUnknownFunction 协议中未注册该函数
	CodeUnknownFunction
	// CodeRemote 远端处理函数返回的错误
	CodeRemote
)

var codeNames = map[ErrorCode]string{
	CodeUnknown:          "unknown",
	CodeCouldNotDeliver:  "could not deliver",
	CodeConnectionFailed: "connection failed",
	CodeTimeout:          "timeout",
	CodeNoRoute:          "no route",
	CodeSerialization:    "serialization",
	CodeUnknownProtocol:  "unknown protocol",
	CodeUnknownFunction:  "unknown function",
	CodeRemote:           "remote",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", uint32(c))
}

// Exception 带错误码的错误记录
//
// errors.Is 按错误码比较，本地产生的错误和远端回传的错误可以用同一个哨兵判断。
type Exception struct {
	Code    ErrorCode
	Message string
}

// NewException 创建错误记录
func NewException(code ErrorCode, format string, args ...any) *Exception {
	return &Exception{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Exception) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Message
}

// Is 按错误码匹配
func (e *Exception) Is(target error) bool {
	t, ok := target.(*Exception)
	return ok && t.Code == e.Code
}

// 错误码哨兵，用于 errors.Is
var (
	ErrCouldNotDeliver  = &Exception{Code: CodeCouldNotDeliver}
	ErrConnectionFailed = &Exception{Code: CodeConnectionFailed}
	ErrTimeout          = &Exception{Code: CodeTimeout}
	ErrNoRoute          = &Exception{Code: CodeNoRoute}
	ErrSerialization    = &Exception{Code: CodeSerialization}
	ErrUnknownProtocol  = &Exception{Code: CodeUnknownProtocol}
	ErrUnknownFunction  = &Exception{Code: CodeUnknownFunction}
	ErrRemote           = &Exception{Code: CodeRemote}
)
