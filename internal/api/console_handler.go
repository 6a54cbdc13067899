// Package api 提供 HTTP API 处理器。
// 本文件实现 Web 控制台的实时日志流。
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/oriys/localcloud/internal/domain"
	"github.com/oriys/localcloud/internal/eventlog"
)

const (
	// writeWait 单条消息的写超时
	writeWait = 10 * time.Second
	// pongWait 等待客户端 pong 的最长时间
	pongWait = 60 * time.Second
	// pingPeriod 发送 ping 的间隔，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10
)

// StreamMessage 日志流中推送的消息。
// 连接建立后先推送一条 snapshot 消息，之后每条新日志推送一条 log 消息。
type StreamMessage struct {
	Type    string            `json:"type"`
	Entries []domain.LogEntry `json:"entries,omitempty"`
	Entry   *domain.LogEntry  `json:"entry,omitempty"`
}

// 消息类型
const (
	StreamSnapshot = "snapshot"
	StreamLog      = "log"
)

// ConsoleHandler 处理 Web 控制台的 WebSocket 连接
type ConsoleHandler struct {
	events *eventlog.EventLog
	logger *logrus.Logger

	// WebSocket 升级器
	upgrader websocket.Upgrader
}

// NewConsoleHandler 创建控制台处理器
func NewConsoleHandler(events *eventlog.EventLog, logger *logrus.Logger) *ConsoleHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ConsoleHandler{
		events: events,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 本地开发环境允许所有来源
			},
		},
	}
}

// LogStream 实时日志流 WebSocket。
// HTTP端点: GET /api/console/logs/stream
func (c *ConsoleHandler) LogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	c.events.Append(domain.LevelInfo, "Client connected", domain.SourceUI)
	defer c.events.Append(domain.LevelInfo, "Client disconnected", domain.SourceUI)

	snapshot, sub := c.events.SubscribeWithSnapshot()
	defer c.events.Unsubscribe(sub)

	// 监听客户端关闭，同时处理 pong
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := c.write(conn, StreamMessage{Type: StreamSnapshot, Entries: snapshot}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case entry, ok := <-sub.C():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.write(conn, StreamMessage{Type: StreamLog, Entry: &entry}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *ConsoleHandler) write(conn *websocket.Conn, msg StreamMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		c.logger.WithError(err).Debug("Log stream write failed")
		return err
	}
	return nil
}
