// Package cmd 提供 lcctl 命令行工具的所有子命令实现。
// 本文件实现 logs 命令，用于查看与跟随控制台操作日志。
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oriys/localcloud/internal/domain"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View console operation logs",
	Long: `View the console operation log.

Examples:
  # Recent entries
  lcctl logs

  # Only errors, last 20
  lcctl logs --level error --limit 20

  # Follow realtime logs (WebSocket stream)
  lcctl logs --follow`,
	RunE: runLogs,
}

var (
	logsLevel  string
	logsLimit  int
	logsFollow bool
)

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Only show entries of this level (info, success, warning, error)")
	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 0, "Number of most recent entries to show")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow realtime logs (WebSocket stream)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	client := NewClient()
	if logsFollow {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return followLogs(ctx, client.baseURL, domain.LogLevel(logsLevel), cmd.OutOrStdout())
	}

	entries, err := client.Logs(logsLevel, logsLimit)
	if err != nil {
		return err
	}
	return NewPrinter(cmd.OutOrStdout()).PrintLogs(entries)
}

// streamMessage 日志流消息
type streamMessage struct {
	Type    string            `json:"type"`
	Entries []domain.LogEntry `json:"entries,omitempty"`
	Entry   *domain.LogEntry  `json:"entry,omitempty"`
}

// followLogs 连接日志流，先输出快照，再逐条输出新日志，直到 ctx 取消或连接关闭
func followLogs(ctx context.Context, baseURL string, level domain.LogLevel, out io.Writer) error {
	wsURL, err := buildWebSocketURL(baseURL, "/api/console/logs/stream")
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect log stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("log stream closed: %w", err)
		}

		entries := msg.Entries
		if msg.Entry != nil {
			entries = []domain.LogEntry{*msg.Entry}
		}
		for _, e := range entries {
			if level != "" && e.Level != level {
				continue
			}
			if err := printStreamEntry(out, e); err != nil {
				return err
			}
		}
	}
}

func printStreamEntry(out io.Writer, e domain.LogEntry) error {
	switch viper.GetString("output") {
	case "json", "yaml":
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	default:
		_, err := fmt.Fprintln(out, e.String())
		return err
	}
}

func buildWebSocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	u.Path = path
	u.RawQuery = ""
	return u.String(), nil
}
