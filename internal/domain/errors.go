// Package domain 定义了本地云控制台的核心领域模型。
package domain

import "errors"

// 领域错误定义
// 请求校验类错误（ConfigError）在进入编排之前返回给调用方，不记为操作失败。

var (
	// ========== 请求校验错误 ==========

	// ErrMissingProjectName 表示请求缺少项目名称
	ErrMissingProjectName = errors.New("projectName is required")
	// ErrUnknownResourceKind 表示资源类型无法识别
	ErrUnknownResourceKind = errors.New("unknown resource kind")
	// ErrUnknownTemplate 表示引用的模板不存在
	ErrUnknownTemplate = errors.New("unknown template")
	// ErrMissingField 表示请求缺少必填字段
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidKindConfig 表示资源配置格式不正确
	ErrInvalidKindConfig = errors.New("invalid resource configuration")
	// ErrInvalidRequest 表示请求体不是合法的 JSON 或结构不符
	ErrInvalidRequest = errors.New("invalid request body")

	// ========== 查询类“未找到”信号 ==========

	// ErrTableNotFound 表示表不存在或无法获取表结构
	ErrTableNotFound = errors.New("table not found or failed to get schema")
	// ErrObjectNotFound 表示对象不存在或下载失败
	ErrObjectNotFound = errors.New("object not found")
	// ErrSecretNotFound 表示密钥不存在
	ErrSecretNotFound = errors.New("secret not found")

	// ========== 缓存相关错误 ==========

	// ErrCacheUnavailable 表示未配置或无法连接缓存
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrCacheKeyNotFound 表示缓存键不存在
	ErrCacheKeyNotFound = errors.New("cache key not found")
)

// IsConfigError 判断错误是否属于请求校验错误。
func IsConfigError(err error) bool {
	return errors.Is(err, ErrMissingProjectName) ||
		errors.Is(err, ErrUnknownResourceKind) ||
		errors.Is(err, ErrUnknownTemplate) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidKindConfig) ||
		errors.Is(err, ErrInvalidRequest)
}
