// Package domain 定义了本地云控制台的核心领域模型。
package domain

import (
	"fmt"
	"time"
)

// LogLevel 表示操作日志的级别。
type LogLevel string

const (
	// LevelInfo 普通信息
	LevelInfo LogLevel = "info"
	// LevelSuccess 操作成功
	LevelSuccess LogLevel = "success"
	// LevelWarning 警告（例如后端的诊断输出）
	LevelWarning LogLevel = "warning"
	// LevelError 操作失败
	LevelError LogLevel = "error"
)

// Valid 判断日志级别是否为已知取值。
func (l LogLevel) Valid() bool {
	switch l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return true
	}
	return false
}

// LogSource 表示日志条目的来源。
type LogSource string

const (
	// SourceBackend 模拟环境后端（健康检查等）
	SourceBackend LogSource = "backend"
	// SourceAutomation 资源编排与查询
	SourceAutomation LogSource = "automation"
	// SourceUI 浏览器控制台连接
	SourceUI LogSource = "ui"
)

// LogEntry 表示一条控制台操作日志。
// 创建后不可修改，仅会因为容量溢出被淘汰。
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Source    LogSource `json:"source"`
}

// String 返回便于终端阅读的单行格式。
func (e LogEntry) String() string {
	return fmt.Sprintf("%s [%s] (%s) %s", e.Timestamp.Format(time.RFC3339), e.Level, e.Source, e.Message)
}
