package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/oriys/localcloud/internal/events"
)

// eventsCmd 直接订阅 NATS 事件总线上的资源事件与操作日志
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Watch resource events published on the NATS event bus",
	Long: `Watch events published by the API server on the NATS event bus.

Examples:
  lcctl events                          # resource.> (created/destroyed)
  lcctl events --subject 'console.log.>'
  lcctl events --subject 'resource.my-app.*'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logrus.New()
		logger.SetOutput(cmd.ErrOrStderr())
		logger.SetLevel(logrus.WarnLevel)

		bus, err := events.NewEventBus(eventsNatsURL, logger)
		if err != nil {
			return err
		}
		defer bus.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		if err := bus.Subscribe(ctx, eventsSubject, "", func(e *events.Event) error {
			return printEvent(out, e)
		}); err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s on %s (Ctrl+C to stop)\n", eventsSubject, eventsNatsURL)
		<-ctx.Done()
		return nil
	},
}

var (
	eventsNatsURL string
	eventsSubject string
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVar(&eventsNatsURL, "nats-url", "nats://localhost:4222", "NATS server URL")
	eventsCmd.Flags().StringVar(&eventsSubject, "subject", events.SubjectResource+".>", "Subject to subscribe (wildcards allowed)")
}

// printEvent 按输出格式打印一条事件；json 格式每行一个对象
func printEvent(w io.Writer, e *events.Event) error {
	if NewPrinter(w).format == "json" {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintf(w, "%s  %-20s %s  %s\n", e.Timestamp.Local().Format(time.RFC3339), e.Type, e.Subject, string(e.Data))
	return err
}
