// Package eventlog 实现控制台操作日志：一个有界、并发安全、只追加的日志缓冲，
// 同时支持快照查询与实时推送给任意数量的订阅者。
//
// 缓冲容量固定，超出后按先进先出淘汰最旧的条目。每个订阅者拥有独立的带缓冲通道，
// 通道已满时只丢弃该订阅者的条目，不会阻塞 Append 或其他订阅者。
package eventlog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/localcloud/internal/domain"
)

const (
	// DefaultCapacity 默认保留的日志条数
	DefaultCapacity = 1000
	// DefaultSubscriberBuffer 默认的订阅者通道缓冲大小
	DefaultSubscriberBuffer = 256
)

// Sink 日志条目的持久化出口（结构化日志、消息总线等）。
// Write 在 Append 返回前被调用，实现必须尽快返回且不应 panic。
type Sink interface {
	Write(entry domain.LogEntry)
}

// SinkFunc 函数形式的 Sink
type SinkFunc func(entry domain.LogEntry)

// Write 实现 Sink
func (f SinkFunc) Write(entry domain.LogEntry) { f(entry) }

// Observer 接收日志缓冲的运行指标，可为 nil。
type Observer interface {
	EntryAppended(level domain.LogLevel)
	EntryDropped()
	SubscribersChanged(active int)
}

// Subscription 一个实时订阅。通过 C 读取条目，取消订阅后通道被关闭。
type Subscription struct {
	id      string
	ch      chan domain.LogEntry
	dropped atomic.Uint64
}

// ID 返回订阅标识
func (s *Subscription) ID() string { return s.id }

// C 返回条目通道
func (s *Subscription) C() <-chan domain.LogEntry { return s.ch }

// Dropped 返回因通道已满而丢弃的条目数
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Options EventLog 的构造参数
type Options struct {
	Capacity         int
	SubscriberBuffer int
	Sinks            []Sink
	Observer         Observer
	// Now 用于测试时注入时钟
	Now func() time.Time
}

// EventLog 有界操作日志。零值不可用，请使用 New 创建。
type EventLog struct {
	mu sync.RWMutex

	// 环形缓冲：start 指向最旧的条目
	buf   []domain.LogEntry
	start int
	size  int

	subscribers map[*Subscription]struct{}
	bufferSize  int

	sinksMu sync.RWMutex
	sinks   []Sink

	observer Observer
	now      func() time.Time
}

// New 创建操作日志
func New(opts Options) *EventLog {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &EventLog{
		buf:         make([]domain.LogEntry, opts.Capacity),
		subscribers: make(map[*Subscription]struct{}),
		bufferSize:  opts.SubscriberBuffer,
		sinks:       append([]Sink(nil), opts.Sinks...),
		observer:    opts.Observer,
		now:         opts.Now,
	}
}

// AddSink 追加一个持久化出口
func (l *EventLog) AddSink(s Sink) {
	if s == nil {
		return
	}
	l.sinksMu.Lock()
	l.sinks = append(l.sinks, s)
	l.sinksMu.Unlock()
}

// Capacity 返回缓冲容量
func (l *EventLog) Capacity() int {
	return len(l.buf)
}

// Append 以当前时间追加一条日志，淘汰超出容量的最旧条目，
// 然后推送给所有订阅者并转发到持久化出口。
func (l *EventLog) Append(level domain.LogLevel, message string, source domain.LogSource) domain.LogEntry {
	// 时间戳在锁内取得，缓冲区中的条目按时间有序
	l.mu.Lock()
	entry := domain.LogEntry{
		Timestamp: l.now().UTC(),
		Level:     level,
		Message:   message,
		Source:    source,
	}
	capacity := len(l.buf)
	if l.size < capacity {
		l.buf[(l.start+l.size)%capacity] = entry
		l.size++
	} else {
		l.buf[l.start] = entry
		l.start = (l.start + 1) % capacity
	}

	// 在持有锁时推送，保证每个订阅者按追加顺序收到条目
	var dropped int
	for sub := range l.subscribers {
		select {
		case sub.ch <- entry:
		default:
			sub.dropped.Add(1)
			dropped++
		}
	}
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.EntryAppended(level)
		for i := 0; i < dropped; i++ {
			l.observer.EntryDropped()
		}
	}

	l.forward(entry)
	return entry
}

// Logf 格式化消息后追加
func (l *EventLog) Logf(level domain.LogLevel, source domain.LogSource, format string, args ...any) domain.LogEntry {
	return l.Append(level, fmt.Sprintf(format, args...), source)
}

func (l *EventLog) forward(entry domain.LogEntry) {
	l.sinksMu.RLock()
	sinks := l.sinks
	l.sinksMu.RUnlock()

	for _, s := range sinks {
		writeSink(s, entry)
	}
}

// writeSink 隔离单个出口的 panic，出口故障不影响日志缓冲本身
func writeSink(s Sink, entry domain.LogEntry) {
	defer func() {
		_ = recover()
	}()
	s.Write(entry)
}

// Snapshot 按时间顺序返回当前缓冲内容的副本
func (l *EventLog) Snapshot() []domain.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *EventLog) snapshotLocked() []domain.LogEntry {
	out := make([]domain.LogEntry, l.size)
	capacity := len(l.buf)
	for i := 0; i < l.size; i++ {
		out[i] = l.buf[(l.start+i)%capacity]
	}
	return out
}

// Len 返回当前条目数
func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Subscribe 注册一个实时订阅，从下一条追加的日志开始接收
func (l *EventLog) Subscribe() *Subscription {
	l.mu.Lock()
	sub := l.subscribeLocked()
	active := len(l.subscribers)
	l.mu.Unlock()

	l.notifySubscribers(active)
	return sub
}

// SubscribeWithSnapshot 原子地获取快照并注册订阅。
// 快照中的最后一条与订阅收到的第一条之间既不重复也不遗漏。
func (l *EventLog) SubscribeWithSnapshot() ([]domain.LogEntry, *Subscription) {
	l.mu.Lock()
	snapshot := l.snapshotLocked()
	sub := l.subscribeLocked()
	active := len(l.subscribers)
	l.mu.Unlock()

	l.notifySubscribers(active)
	return snapshot, sub
}

func (l *EventLog) subscribeLocked() *Subscription {
	sub := &Subscription{
		id: uuid.New().String(),
		ch: make(chan domain.LogEntry, l.bufferSize),
	}
	l.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe 注销订阅并关闭其通道。重复调用是安全的。
func (l *EventLog) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	l.mu.Lock()
	if _, ok := l.subscribers[sub]; !ok {
		l.mu.Unlock()
		return
	}
	delete(l.subscribers, sub)
	close(sub.ch)
	active := len(l.subscribers)
	l.mu.Unlock()

	l.notifySubscribers(active)
}

// SubscriberCount 返回当前订阅者数量
func (l *EventLog) SubscriberCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subscribers)
}

func (l *EventLog) notifySubscribers(active int) {
	if l.observer != nil {
		l.observer.SubscribersChanged(active)
	}
}
