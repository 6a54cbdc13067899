package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oriys/localcloud/internal/domain"
)

func dialLogStream(t *testing.T, env *testEnv) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(env.router)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/console/logs/stream"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("Dial() error = %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func TestLogStream_SnapshotThenLive(t *testing.T) {
	env := newTestEnv(nil)
	env.events.Append(domain.LevelInfo, "before connect", domain.SourceAutomation)

	conn, cleanup := dialLogStream(t, env)
	defer cleanup()

	// 快照包含连接前的日志和连接事件本身
	snap := readMessage(t, conn)
	if snap.Type != StreamSnapshot {
		t.Fatalf("first message type = %q, want snapshot", snap.Type)
	}
	if len(snap.Entries) != 2 || snap.Entries[0].Message != "before connect" || snap.Entries[1].Message != "Client connected" {
		t.Fatalf("snapshot = %+v", snap.Entries)
	}
	if snap.Entries[1].Source != domain.SourceUI {
		t.Errorf("connect source = %q, want ui", snap.Entries[1].Source)
	}

	env.events.Append(domain.LevelSuccess, "bucket created", domain.SourceAutomation)
	live := readMessage(t, conn)
	if live.Type != StreamLog || live.Entry == nil || live.Entry.Message != "bucket created" {
		t.Errorf("live message = %+v", live)
	}
}

func TestLogStream_DisconnectUnsubscribes(t *testing.T) {
	env := newTestEnv(nil)

	conn, cleanup := dialLogStream(t, env)
	readMessage(t, conn)
	if n := env.events.SubscriberCount(); n != 1 {
		t.Fatalf("subscribers = %d, want 1", n)
	}
	cleanup()

	// 服务端在读协程发现连接关闭后注销订阅
	deadline := time.Now().Add(5 * time.Second)
	for env.events.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}

	deadline = time.Now().Add(5 * time.Second)
	for {
		entries := env.events.Snapshot()
		if last := entries[len(entries)-1]; last.Message == "Client disconnected" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("disconnect not logged")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
