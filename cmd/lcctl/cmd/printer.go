// Package cmd 提供 lcctl 命令行工具的所有子命令实现。
// 本文件实现输出格式化打印功能，支持 table、json、yaml 三种格式。
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/oriys/localcloud/internal/attribute"
	"github.com/oriys/localcloud/internal/domain"
)

// Printer 根据配置的输出格式打印数据
type Printer struct {
	format string
	writer io.Writer
}

// NewPrinter 创建打印器，输出到 w
func NewPrinter(w io.Writer) *Printer {
	format := viper.GetString("output")
	if format == "" {
		format = "table"
	}
	return &Printer{format: format, writer: w}
}

// print 以 json/yaml 输出 v；table 格式时调用 table
func (p *Printer) print(v any, table func(w *tabwriter.Writer)) error {
	switch p.format {
	case "json":
		return p.printJSON(v)
	case "yaml":
		return p.printYAML(v)
	default:
		w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
		table(w)
		return w.Flush()
	}
}

func (p *Printer) printJSON(v any) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML 经过一次 JSON 编码，使 YAML 字段名与 API 保持一致
func (p *Printer) printYAML(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(p.writer)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}

// PrintStatus 打印模拟环境状态
func (p *Printer) PrintStatus(s *domain.EmulatorStatus) error {
	return p.print(s, func(w *tabwriter.Writer) {
		running := "no"
		if s.Running {
			running = "yes"
		}
		fmt.Fprintf(w, "Running:\t%s\n", running)
		fmt.Fprintf(w, "Health:\t%s\n", s.Health)
		fmt.Fprintf(w, "Endpoint:\t%s\n", s.Endpoint)
		if s.Uptime != nil {
			fmt.Fprintf(w, "Uptime:\t%s\n", *s.Uptime)
		}
	})
}

// PrintLogs 打印日志条目
func (p *Printer) PrintLogs(entries []domain.LogEntry) error {
	return p.print(entries, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "TIME\tLEVEL\tSOURCE\tMESSAGE")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Format(time.RFC3339), e.Level, e.Source, e.Message)
		}
	})
}

// PrintResources 打印资源列表
func (p *Printer) PrintResources(resources []domain.ResourceDescriptor) error {
	return p.print(resources, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS\tCREATED")
		for _, r := range resources {
			created := "-"
			if !r.CreatedAt.IsZero() {
				created = r.CreatedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Type, r.Status, created)
		}
	})
}

// PrintCreation 打印资源创建结果
func (p *Printer) PrintCreation(result *domain.ResourceCreationResult) error {
	return p.print(result, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, result.Message)
		if len(result.CreatedResources) > 0 {
			fmt.Fprintln(w, "\nCREATED\tTYPE\tID")
			for _, r := range result.CreatedResources {
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.Type, r.ID)
			}
		}
		if len(result.Errors) > 0 {
			fmt.Fprintln(w, "\nFAILED\tERROR")
			for _, e := range result.Errors {
				fmt.Fprintf(w, "%s\t%s\n", e.Kind, e.Message)
			}
		}
	})
}

// PrintOutcome 打印操作结果
func (p *Printer) PrintOutcome(o *domain.OperationOutcome) error {
	return p.print(o, func(w *tabwriter.Writer) {
		switch {
		case o.Success && o.Message != "":
			fmt.Fprintln(w, o.Message)
		case o.Success:
			fmt.Fprintln(w, "OK")
		default:
			fmt.Fprintf(w, "Failed: %s\n", o.Error)
		}
		if o.Warning != "" {
			fmt.Fprintf(w, "Warning: %s\n", o.Warning)
		}
	})
}

// PrintTemplates 打印模板目录
func (p *Printer) PrintTemplates(templates []domain.ResourceTemplate) error {
	return p.print(templates, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "ID\tNAME\tRESOURCES\tDESCRIPTION")
		for _, t := range templates {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, strings.Join(templateKinds(t), ","), t.Description)
		}
	})
}

func templateKinds(t domain.ResourceTemplate) []string {
	kinds := []string{}
	for _, k := range t.Selection().Kinds() {
		kinds = append(kinds, string(k))
	}
	return kinds
}

// PrintTables 打印表名
func (p *Printer) PrintTables(tables []string) error {
	return p.print(tables, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "TABLE")
		for _, t := range tables {
			fmt.Fprintln(w, t)
		}
	})
}

// PrintScan 打印扫描/查询结果。table 格式下条目解码为普通 JSON 对象，每行一条。
func (p *Printer) PrintScan(result *domain.ScanResult) error {
	return p.print(result, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "Count: %d\tScanned: %d\n", result.Count, result.ScannedCount)
		for _, item := range result.Items {
			data, err := json.Marshal(attribute.DecodeItem(item))
			if err != nil {
				continue
			}
			fmt.Fprintln(w, string(data))
		}
	})
}

// PrintRaw 打印任意 JSON 文档；table 格式下缩进输出
func (p *Printer) PrintRaw(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if p.format == "yaml" {
		return p.printYAML(v)
	}
	return p.printJSON(v)
}
