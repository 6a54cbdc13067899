package cmd

import (
	"github.com/spf13/cobra"
)

// statusCmd 显示模拟环境状态
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show emulator status",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := NewClient().Status()
		if err != nil {
			return err
		}
		return NewPrinter(cmd.OutOrStdout()).PrintStatus(status)
	},
}

// templatesCmd 列出资源模板
var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List resource templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		templates, err := NewClient().Templates()
		if err != nil {
			return err
		}
		return NewPrinter(cmd.OutOrStdout()).PrintTemplates(templates)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(templatesCmd)
}
