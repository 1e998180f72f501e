package config

import (
	"errors"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if g.RootPath == "" {
		return newFieldError("RootPath", "不能为空")
	}
	if g.CacheTTL.DurationValue() < 0 {
		return newFieldError("CacheTTL", "不能为负数")
	}
	if g.CacheSeparator == "" {
		return newFieldError("CacheSeparator", "不能为空")
	}
	if strings.ContainsAny(g.CacheSeparator, " \t") {
		return newFieldError("CacheSeparator", "不允许包含空白字符")
	}
	if g.LogMaxSize < 0 {
		return newFieldError("LogMaxSize", "不能为负数")
	}
	if g.LogMaxBackups < 0 {
		return newFieldError("LogMaxBackups", "不能为负数")
	}

	return nil
}
