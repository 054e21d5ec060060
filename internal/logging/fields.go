package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ResolveFields 提供播放器实例/缓存键/后端字段，供解析与后台填充日志复用。
func ResolveFields(playerID, key, backend string) logrus.Fields {
	fields := logrus.Fields{
		"cache_key":     key,
		"store_backend": backend,
	}
	if playerID != "" {
		fields["player_id"] = playerID
	}
	return fields
}

// RequestFields 提供 HTTP 请求维度的字段。
func RequestFields(requestID, method, path string, status int) logrus.Fields {
	return logrus.Fields{
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     status,
	}
}
