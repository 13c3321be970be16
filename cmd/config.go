package main

import (
	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Вывод действующей конфигурации",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = pp.Println(cfg)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
