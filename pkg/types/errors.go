package types

import "errors"

var (
	// ErrInvalidAddress 地址长度或编码无效
	ErrInvalidAddress = errors.New("invalid address: must be 32 bytes")

	// ErrInvalidURI URI 格式无效
	ErrInvalidURI = errors.New("invalid peer uri")

	// ErrUnsupportedScheme 不支持的 URI scheme
	ErrUnsupportedScheme = errors.New("unsupported uri scheme")
)
