package identity

import "errors"

var (
	// ErrInvalidKeySize 私钥长度无效
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidPEM PEM 数据无效
	ErrInvalidPEM = errors.New("invalid PEM data")

	// ErrKeyNotFound 密钥文件不存在
	ErrKeyNotFound = errors.New("key not found")

	// ErrNoIdentity 既没有密钥文件也不允许生成
	ErrNoIdentity = errors.New("no identity configured")
)
