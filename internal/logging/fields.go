package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// FetchFields 提供批次/地址/来源字段，供回源与缓存日志复用。
func FetchFields(batchID, url, source string) logrus.Fields {
	fields := logrus.Fields{
		"action": "fetch",
		"url":    url,
		"source": source,
	}
	if batchID != "" {
		fields["batch_id"] = batchID
	}
	return fields
}

// BatchFields 汇总一次批量解析的结果计数。
func BatchFields(batchID string, total, cacheHits, network, failed int) logrus.Fields {
	return logrus.Fields{
		"action":     "fetch_all",
		"batch_id":   batchID,
		"total":      total,
		"cache_hits": cacheHits,
		"network":    network,
		"failed":     failed,
	}
}
