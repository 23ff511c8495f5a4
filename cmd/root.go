package cmd

import (
	"os"

	"CreativeStudio-server/config"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "creative-studio",
	Short: "分镜首尾帧生成服务",
	Long:  "驱动外部图像生成供应商为分镜生成首帧/尾帧，并把结果写回分镜记录",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "配置文件路径")
	cobra.OnInitialize(func() {
		config.InitConfig(configPath)
	})
}
