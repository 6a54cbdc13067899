// Package events 提供控制台事件总线。
// 当前实现基于 NATS JetStream，用于持久化操作日志，并发布资源创建/销毁事件供外部系统订阅。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/domain"
)

// 主题前缀
const (
	// SubjectConsoleLog 操作日志主题前缀，完整主题为 console.log.<level>
	SubjectConsoleLog = "console.log"
	// SubjectResource 资源事件主题前缀，完整主题为 resource.<project>.<event>
	SubjectResource = "resource"

	eventSource = "localcloud-api"

	// logForwardBuffer 待转发日志条目的缓冲上限，超出时丢弃
	logForwardBuffer = 1024
)

// EventBus 封装 NATS/JetStream 连接与常用发布/订阅操作。
type EventBus struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Logger

	logs      chan outboundLog
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type outboundLog struct {
	subject string
	payload []byte
}

// Event 表示控制台事件（JSON 格式）。
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Subject   string          `json:"subject"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventHandler 定义事件处理回调。
type EventHandler func(event *Event) error

// Streams 返回控制台使用的 JetStream Stream 配置
func Streams() []nats.StreamConfig {
	return []nats.StreamConfig{
		{
			Name:     "CONSOLE_LOGS",
			Subjects: []string{SubjectConsoleLog + ".>"},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour, // 保留 1 天
		},
		{
			Name:     "RESOURCES",
			Subjects: []string{SubjectResource + ".>"},
			Storage:  nats.FileStorage,
			MaxAge:   24 * time.Hour * 7, // 保留 7 天
		},
	}
}

// NewEventBus 创建 EventBus 并初始化所需的 JetStream Stream。
func NewEventBus(natsURL string, logger *logrus.Logger) (*EventBus, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name(eventSource),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(nats.PublishAsyncMaxPending(logForwardBuffer))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// 不存在则创建，存在则尝试更新配置
	for _, cfg := range Streams() {
		cfg := cfg
		_, err := js.AddStream(&cfg)
		if err != nil && err != nats.ErrStreamNameAlreadyInUse {
			if _, uerr := js.UpdateStream(&cfg); uerr != nil {
				logger.WithError(uerr).WithField("stream", cfg.Name).Warn("Failed to ensure JetStream stream")
			}
		}
	}

	return newEventBus(nc, js, logger), nil
}

func newEventBus(nc *nats.Conn, js nats.JetStreamContext, logger *logrus.Logger) *EventBus {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	eb := &EventBus{
		conn:   nc,
		js:     js,
		logger: logger,
		logs:   make(chan outboundLog, logForwardBuffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go eb.forwardLogs()
	return eb
}

// forwardLogs 在后台将缓冲的日志条目发布到 JetStream。
func (eb *EventBus) forwardLogs() {
	defer close(eb.done)
	for {
		select {
		case <-eb.stop:
			return
		case m := <-eb.logs:
			if _, err := eb.js.PublishAsync(m.subject, m.payload); err != nil {
				eb.logger.WithError(err).WithField("subject", m.subject).Debug("Failed to forward log entry")
			}
		}
	}
}

// Close 停止日志转发并关闭底层 NATS 连接，可重复调用。
func (eb *EventBus) Close() error {
	eb.closeOnce.Do(func() {
		close(eb.stop)
		<-eb.done
		if eb.conn != nil {
			eb.conn.Close()
		}
	})
	return nil
}

// Publish 发布事件到指定 subject。
func (eb *EventBus) Publish(ctx context.Context, subject string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = eb.js.Publish(subject, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.WithFields(logrus.Fields{
		"subject":  subject,
		"event_id": event.ID,
		"type":     event.Type,
	}).Debug("Event published")

	return nil
}

// Subscribe 订阅匹配 subject 的事件（支持通配符）。
// durable 为空时创建临时消费者；ctx 取消时将自动取消订阅。
func (eb *EventBus) Subscribe(ctx context.Context, subject, durable string, handler EventHandler) error {
	opts := []nats.SubOpt{nats.ManualAck()}
	if durable != "" {
		opts = append(opts, nats.Durable(durable))
	} else {
		opts = append(opts, nats.DeliverNew())
	}

	sub, err := eb.js.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			eb.logger.WithError(err).Error("Failed to unmarshal event")
			_ = msg.Nak()
			return
		}

		if err := handler(&event); err != nil {
			eb.logger.WithError(err).WithField("event_id", event.ID).Error("Failed to handle event")
			_ = msg.Nak()
			return
		}

		_ = msg.Ack()
	}, opts...)

	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return nil
}

// LogSubject 返回日志条目对应的主题
func LogSubject(level domain.LogLevel) string {
	return SubjectConsoleLog + "." + string(level)
}

// Write 将日志条目交给后台转发到 console.log.<level>，实现 eventlog.Sink。
// Write 从不阻塞：缓冲已满时丢弃条目，发布失败只记录调试日志。
func (eb *EventBus) Write(entry domain.LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	subject := LogSubject(entry.Level)
	event := &Event{
		ID:        uuid.New().String(),
		Type:      "console.log",
		Source:    eventSource,
		Subject:   subject,
		Data:      data,
		Timestamp: entry.Timestamp,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case eb.logs <- outboundLog{subject: subject, payload: payload}:
	default:
		eb.logger.WithField("subject", subject).Debug("Log forwarding buffer full, dropping entry")
	}
}

// resourceSubject 返回 resource.<project>.<event>，项目名中的主题分隔符被替换
func resourceSubject(project, event string) string {
	token := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(project)
	if token == "" {
		token = "_"
	}
	return fmt.Sprintf("%s.%s.%s", SubjectResource, token, event)
}

// PublishResourcesCreated 发布“资源创建”事件。
func (eb *EventBus) PublishResourcesCreated(ctx context.Context, project string, result *domain.ResourceCreationResult) error {
	data, _ := json.Marshal(result)
	subject := resourceSubject(project, "created")
	event := &Event{
		ID:        uuid.New().String(),
		Type:      "resource.created",
		Source:    eventSource,
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	return eb.Publish(ctx, subject, event)
}

// PublishResourcesDestroyed 发布“资源销毁”事件。
func (eb *EventBus) PublishResourcesDestroyed(ctx context.Context, project string, ids []string, outcome *domain.OperationOutcome) error {
	data, _ := json.Marshal(struct {
		Project     string                   `json:"project"`
		ResourceIDs []string                 `json:"resourceIds"`
		Outcome     *domain.OperationOutcome `json:"outcome"`
	}{project, ids, outcome})
	subject := resourceSubject(project, "destroyed")
	event := &Event{
		ID:        uuid.New().String(),
		Type:      "resource.destroyed",
		Source:    eventSource,
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	return eb.Publish(ctx, subject, event)
}
