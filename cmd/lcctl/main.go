// Package main 是 lcctl 命令行工具的入口点。
// lcctl 用于从终端操作本地云控制台：查看模拟环境状态、跟随操作日志、创建与销毁资源、浏览表数据。
package main

import (
	"os"

	"github.com/oriys/localcloud/cmd/lcctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
