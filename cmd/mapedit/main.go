package main

import (
	"os"

	"github.com/GrainArc/MapEdit/config"
	"github.com/GrainArc/MapEdit/logger"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "mapedit",
	Short:         "Map feature editor backend and command line client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.xml", "path of config.xml")
	rootCmd.AddCommand(serveCmd, listCmd, createCmd, updateCmd, moveCmd, deleteCmd, recordsCmd, watchCmd)
}

// loadConfig 读取配置并初始化日志
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if _, err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.L().Error(err)
		os.Exit(1)
	}
}
