// Package cmd 提供 lcctl 命令行工具的所有子命令实现。
// 本文件实现 resources 命令组：列出、创建与销毁资源。
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oriys/localcloud/internal/domain"
)

var resourcesCmd = &cobra.Command{
	Use:     "resources",
	Aliases: []string{"res"},
	Short:   "Manage emulator resources",
}

var resourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources of the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		resources, err := NewClient().ListResources()
		if err != nil {
			return err
		}
		return NewPrinter(cmd.OutOrStdout()).PrintResources(resources)
	},
}

var resourcesCreateCmd = &cobra.Command{
	Use:   "create [kind...]",
	Short: "Create resources by kind or template",
	Long: `Create resources for the project.

Examples:
  # Create a bucket and a table
  lcctl resources create s3 dynamodb --project demo

  # Expand a template
  lcctl resources create --template serverless --project demo

  # Pass kind-specific configuration
  lcctl resources create dynamodb --project demo --config dynamodb=table.json`,
	RunE: runResourcesCreate,
}

var resourcesDestroyCmd = &cobra.Command{
	Use:   "destroy [resource-id...]",
	Short: "Destroy resources; all resources of the project when no id is given",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewClient()
		outcome, err := client.DestroyResources(&domain.DestroyResourcesRequest{
			ProjectName: client.project,
			ResourceIDs: args,
		})
		if err != nil {
			return err
		}
		return NewPrinter(cmd.OutOrStdout()).PrintOutcome(outcome)
	},
}

var resourcesDeleteCmd = &cobra.Command{
	Use:   "delete <kind> <name>",
	Short: "Destroy a single resource by kind and name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := domain.ParseResourceKind(args[0])
		if err != nil {
			return err
		}
		client := NewClient()
		outcome, err := client.DestroySingle(&domain.DestroySingleResourceRequest{
			ProjectName:  client.project,
			ResourceType: kind,
			ResourceName: args[1],
		})
		if err != nil {
			return err
		}
		return NewPrinter(cmd.OutOrStdout()).PrintOutcome(outcome)
	},
}

var (
	createTemplate string
	createConfigs  []string
)

func init() {
	rootCmd.AddCommand(resourcesCmd)
	resourcesCmd.AddCommand(resourcesListCmd, resourcesCreateCmd, resourcesDestroyCmd, resourcesDeleteCmd)

	resourcesCreateCmd.Flags().StringVarP(&createTemplate, "template", "t", "", "Template id (basic, serverless, storage, database, api)")
	resourcesCreateCmd.Flags().StringArrayVar(&createConfigs, "config", nil, "Kind configuration as kind=file.json (repeatable)")
}

func runResourcesCreate(cmd *cobra.Command, args []string) error {
	client := NewClient()
	req := &domain.CreateResourcesRequest{
		ProjectName: client.project,
		Resources:   domain.ResourceSelection{},
		Template:    createTemplate,
	}
	for _, name := range args {
		kind, err := domain.ParseResourceKind(name)
		if err != nil {
			return err
		}
		req.Resources[kind] = true
	}
	if len(args) == 0 && createTemplate == "" {
		return fmt.Errorf("specify at least one resource kind or --template")
	}

	configs, err := parseKindConfigs(createConfigs)
	if err != nil {
		return err
	}
	req.Config = configs

	result, err := client.CreateResources(req)
	if err != nil {
		return err
	}
	return NewPrinter(cmd.OutOrStdout()).PrintCreation(result)
}

// parseKindConfigs 解析 kind=file.json 形式的配置参数
func parseKindConfigs(specs []string) (map[domain.ResourceKind]json.RawMessage, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	configs := make(map[domain.ResourceKind]json.RawMessage, len(specs))
	for _, spec := range specs {
		name, file, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --config %q, expected kind=file.json", spec)
		}
		kind, err := domain.ParseResourceKind(name)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read config for %s: %w", kind, err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("config for %s is not valid JSON", kind)
		}
		configs[kind] = data
	}
	return configs, nil
}
