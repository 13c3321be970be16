package main

import (
	"fmt"

	"github.com/kirsrus/facegate/service/recognizer"
	"github.com/kirsrus/facegate/store/files"

	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Обучение модели распознавания по сохранённым изображениям лиц",
	Long: `Обучает модель собственных лиц по всем изображениям из директорий личностей
и атомарно заменяет файл модели. Работающий терминал загрузит новую модель при
следующем запуске.`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().Int("components", 0, "максимальное колличество главных компонент (0 - из конфигурации)")
}

func newProgressBar(count int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

// progressTo возвращает функцию хода выполнения, создающую полосу при первом вызове
func progressTo(description string) func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = newProgressBar(total, description)
		}
		_ = bar.Set(done)
		if done == total {
			_ = bar.Finish()
			fmt.Println()
		}
	}
}

func runTrain(cmd *cobra.Command, args []string) error {
	components, err := cmd.Flags().GetInt("components")
	if err != nil {
		return errors.Trace(err)
	}
	if components == 0 {
		components = cfg.Recognize.Components
	}

	ctx, cancel := signalContext()
	defer cancel()

	faces, err := files.NewFaces(&files.ConfigFaces{
		Log:  log,
		Path: cfg.Enrollment.Path,
	})
	if err != nil {
		return errors.Trace(err)
	}
	models := files.NewModels(cfg.Recognize.Model)

	eigen, err := recognizer.Train(ctx, faces, models, &recognizer.ConfigTrainer{
		Log:           log,
		Size:          cfg.Recognize.ThumbSize,
		MaxComponents: components,
		Loaded:        progressTo("Загрузка изображений"),
		Progress:      progressTo("Обучение"),
	})
	if err != nil {
		return errors.Trace(err)
	}

	fmt.Printf("Модель %s: образцов %d, компонент %d\n", models.Path(), len(eigen.Labels), len(eigen.Components))
	return nil
}
