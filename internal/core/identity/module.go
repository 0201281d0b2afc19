package identity

import (
	"crypto/ed25519"

	"go.uber.org/fx"

	"github.com/dep2p/go-muddle/config"
	"github.com/dep2p/go-muddle/internal/util/logger"
)

var log = logger.Logger("muddle.identity")

// ModuleInput 模块输入
type ModuleInput struct {
	fx.In

	Config *config.Config

	// PrivateKey 直接注入的私钥，优先于配置文件
	PrivateKey ed25519.PrivateKey `name:"private_key" optional:"true"`
}

// Provide 按 私钥 > 密钥文件 > 自动生成 的顺序得到身份
func Provide(in ModuleInput) (*Identity, error) {
	if in.PrivateKey != nil {
		return FromPrivateKey(in.PrivateKey)
	}
	return LoadOrGenerate(in.Config.Identity.KeyFile, in.Config.Identity.AutoGenerate)
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(Provide),
	)
}
