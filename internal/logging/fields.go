package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// NodeFields 提供节点路径/命中状态字段，供存储读写日志复用。
func NodeFields(action, nodePath string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"action":    action,
		"node_path": nodePath,
		"cache_hit": cacheHit,
	}
}
