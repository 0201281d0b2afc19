package muddle

// Version 当前版本
const Version = "v0.1.0"

// GitCommit Git 提交哈希（通过 ldflags 注入）
var GitCommit string

// VersionInfo 返回完整版本信息字符串
func VersionInfo() string {
	info := "muddle " + Version
	if GitCommit != "" {
		info += " (" + GitCommit[:min(8, len(GitCommit))] + ")"
	}
	return info
}
