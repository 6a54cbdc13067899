// Package cmd 提供 lcctl 命令行工具的所有子命令实现。
// 本文件实现 tables 命令组：浏览与写入表数据。
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oriys/localcloud/internal/attribute"
	"github.com/oriys/localcloud/internal/domain"
)

var tablesCmd = &cobra.Command{
	Use:     "tables",
	Aliases: []string{"table", "dynamodb"},
	Short:   "Browse key-value tables",
}

var tablesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := NewClient().ListTables()
		if err != nil {
			return err
		}
		return NewPrinter(cmd.OutOrStdout()).PrintTables(tables)
	},
}

var tablesScanCmd = &cobra.Command{
	Use:   "scan <table>",
	Short: "Scan a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := NewClient().Scan(args[0], tableLimit)
		if err != nil {
			return err
		}
		return NewPrinter(cmd.OutOrStdout()).PrintScan(result)
	},
}

var tablesQueryCmd = &cobra.Command{
	Use:   "query <table>",
	Short: "Query a table by key",
	Long: `Query a table by partition key and optional sort key.

Examples:
  lcctl tables query orders --pk customerId --pv c-42
  lcctl tables query orders --pk customerId --pv c-42 --sk orderDate --sv 2024-05-01`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if queryPK == "" || queryPV == "" {
			return fmt.Errorf("--pk and --pv are required")
		}
		result, err := NewClient().Query(domain.QuerySpec{
			Table:          args[0],
			PartitionKey:   queryPK,
			PartitionValue: queryPV,
			SortKey:        querySK,
			SortValue:      querySV,
			Limit:          tableLimit,
		})
		if err != nil {
			return err
		}
		return NewPrinter(cmd.OutOrStdout()).PrintScan(result)
	},
}

var tablesDescribeCmd = &cobra.Command{
	Use:   "describe <table>",
	Short: "Show table schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := NewClient().DescribeTable(args[0])
		if err != nil {
			return err
		}
		return NewPrinter(cmd.OutOrStdout()).PrintRaw(schema)
	},
}

var tablesPutCmd = &cobra.Command{
	Use:   "put <table> <item-json>",
	Short: "Put an item in wire form",
	Long: `Put an item. The item uses the tagged wire form.

Example:
  lcctl tables put orders '{"id": {"S": "1"}, "total": {"N": "9.5"}}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var item attribute.Item
		if err := json.Unmarshal([]byte(args[1]), &item); err != nil {
			return fmt.Errorf("invalid item: %w", err)
		}
		if len(item) == 0 {
			return fmt.Errorf("item must have at least one attribute")
		}
		if err := NewClient().PutItem(args[0], json.RawMessage(args[1])); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Item added to table %s\n", args[0])
		return nil
	},
}

var (
	tableLimit int
	queryPK    string
	queryPV    string
	querySK    string
	querySV    string
)

func init() {
	rootCmd.AddCommand(tablesCmd)
	tablesCmd.AddCommand(tablesListCmd, tablesScanCmd, tablesQueryCmd, tablesDescribeCmd, tablesPutCmd)

	for _, c := range []*cobra.Command{tablesScanCmd, tablesQueryCmd} {
		c.Flags().IntVarP(&tableLimit, "limit", "n", 0, "Maximum number of items")
	}
	tablesQueryCmd.Flags().StringVar(&queryPK, "pk", "", "Partition key attribute name")
	tablesQueryCmd.Flags().StringVar(&queryPV, "pv", "", "Partition key value")
	tablesQueryCmd.Flags().StringVar(&querySK, "sk", "", "Sort key attribute name")
	tablesQueryCmd.Flags().StringVar(&querySV, "sv", "", "Sort key value")
}
