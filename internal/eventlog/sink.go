package eventlog

import (
	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/domain"
)

// LogrusSink 将日志条目写入结构化日志。
// success 级别写为 Info 并附带 level_tag 字段。
type LogrusSink struct {
	logger *logrus.Logger
}

// NewLogrusSink 创建结构化日志出口
func NewLogrusSink(logger *logrus.Logger) *LogrusSink {
	return &LogrusSink{logger: logger}
}

// Write 实现 Sink
func (s *LogrusSink) Write(entry domain.LogEntry) {
	if s.logger == nil {
		return
	}
	fields := logrus.Fields{"source": string(entry.Source)}

	switch entry.Level {
	case domain.LevelSuccess:
		fields["level_tag"] = string(domain.LevelSuccess)
		s.logger.WithFields(fields).WithTime(entry.Timestamp).Info(entry.Message)
	case domain.LevelWarning:
		s.logger.WithFields(fields).WithTime(entry.Timestamp).Warn(entry.Message)
	case domain.LevelError:
		s.logger.WithFields(fields).WithTime(entry.Timestamp).Error(entry.Message)
	default:
		s.logger.WithFields(fields).WithTime(entry.Timestamp).Info(entry.Message)
	}
}
