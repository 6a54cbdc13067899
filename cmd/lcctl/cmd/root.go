// Package cmd 包含 lcctl CLI 工具的所有命令实现
// 使用 cobra 框架构建命令行接口
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// 全局命令行标志变量
var (
	cfgFile   string // 配置文件路径
	apiURL    string // API 服务器地址
	outputFmt string // 输出格式（table/json/yaml）
	project   string // 项目名称
	token     string // Bearer 令牌
)

// rootCmd 是 CLI 的根命令
var rootCmd = &cobra.Command{
	Use:   "lcctl",
	Short: "LocalCloud - local cloud emulator console CLI",
	Long: `lcctl 是本地云控制台的命令行工具。

使用示例:
  # 查看模拟环境状态
  lcctl status

  # 按模板创建资源
  lcctl resources create --project demo --template serverless

  # 跟随实时操作日志
  lcctl logs --follow

  # 扫描表
  lcctl tables scan orders --limit 20`,
	SilenceUsage: true,
}

// Execute 执行根命令，由 main 包调用
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认为 $HOME/.lcctl.yaml）")
	rootCmd.PersistentFlags().StringVarP(&apiURL, "api-url", "u", "http://localhost:3031", "API 服务器地址")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "输出格式（table、json、yaml）")
	rootCmd.PersistentFlags().StringVarP(&project, "project", "p", "", "项目名称（默认使用服务端配置的项目）")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer 令牌（服务端启用认证时用于写操作）")

	viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

// initConfig 初始化配置
// 按优先级加载配置：命令行标志 > 环境变量 > 配置文件
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".lcctl")
	}

	// 环境变量格式：LCCTL_<KEY>，如 LCCTL_API_URL
	viper.SetEnvPrefix("LCCTL")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}
