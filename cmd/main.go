package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kirsrus/facegate/pkg/config"
	"github.com/kirsrus/facegate/pkg/logger"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfg        *config.Config
	log        *logrus.Logger
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "facegate",
	Short: "Терминал контроля доступа с распознаванием лица и замером температуры",
	Long: `Терминал контроля доступа: распознаёт лицо субъекта перед камерой, отказывает
в проходе при наличии маски, измеряет температуру инфракрасным датчиком и
записывает события прохода в журнал.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.FileName, "файл конфигурации")
}

func initConfig() {
	cfg = config.GetWithPath(configPath)
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.WarnLevel
	}
	log = logger.GetWithConfig(logger.Config{
		File:    filepath.Join(cfg.Log.Path, cfg.Log.Filename),
		Level:   level,
		Console: cfg.Log.Console,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ОШИБКА: в процессе работы произошла ошибка: %v\n", err)
		if log == nil {
			os.Exit(1)
		}
		fmt.Printf("Для подробностей смотри лог: %s\n", filepath.Join(cfg.Log.Path, cfg.Log.Filename))
		log.Fatal(errors.ErrorStack(err))
	}
}
