package config

// IdentityConfig 节点密钥配置
type IdentityConfig struct {
	// KeyFile Ed25519 私钥 PEM 文件路径，为空时在内存中生成临时密钥
	KeyFile string `json:"key_file"`

	// AutoGenerate 密钥文件不存在时生成并保存
	AutoGenerate bool `json:"auto_generate"`
}

// DefaultIdentityConfig 默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		AutoGenerate: true,
	}
}

// Validate 无约束
func (c IdentityConfig) Validate() error {
	return nil
}
