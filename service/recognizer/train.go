package recognizer

import (
	"context"
	"image"
	_ "image/jpeg"
	"io"
	"os"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/logger"
	"github.com/kirsrus/facegate/store"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

// ConfigTrainer конфигурация Train
type ConfigTrainer struct {
	Log *logrus.Logger

	// Сторона миниатюры
	Size int
	// Максимальное колличество компонент (0 - все значимые)
	MaxComponents int
	// Ход загрузки изображений
	Loaded func(done, total int)
	// Ход обучения
	Progress func(done, total int)
}

// Train обучает модель по всем сохранённым лицам и атомарно публикует артефакт
func Train(ctx context.Context, faces store.FaceStore, models store.ModelStore, config *ConfigTrainer) (*Eigenfaces, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	log := config.Log.WithFields(map[string]interface{}{
		"module": "trainer",
		"scope":  "service",
	})
	size := config.Size
	if size <= 0 {
		size = thumbSize
	}

	type entry struct {
		id   uint
		path string
	}
	var entries []entry
	err := faces.Walk(func(identityID uint, path string) error {
		entries = append(entries, entry{id: identityID, path: path})
		return nil
	})
	if err != nil {
		return nil, errors.Annotate(err, "ошибка обхода хранилища лиц")
	}
	if len(entries) == 0 {
		return nil, errors.NotFoundf("изображения лиц")
	}

	samples := make([]Sample, 0, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		gray, err := loadFace(e.path, size)
		if err != nil {
			log.Warnf("пропуск %s: %v", e.path, err)
		} else {
			samples = append(samples, Sample{IdentityID: e.id, Face: gray})
		}
		if config.Loaded != nil {
			config.Loaded(i+1, len(entries))
		}
	}
	log.Infof("загружено %d из %d изображений", len(samples), len(entries))

	eigen, err := TrainEigenfaces(samples, &ConfigTrain{
		Size:          size,
		MaxComponents: config.MaxComponents,
		Progress:      config.Progress,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := models.Publish(eigen.Encode); err != nil {
		return nil, errors.Annotate(err, "ошибка публикации модели")
	}
	log.Infof("модель опубликована: %d образцов, %d компонент", len(eigen.Labels), len(eigen.Components))
	return eigen, nil
}

func loadFace(path string, size int) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	return decodeFace(f, size)
}

func decodeFace(r io.Reader, size int) (*image.Gray, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, errors.Annotate(err, "ошибка декодирования")
	}
	return model.GrayThumbnail(model.ToGray(img), size), nil
}
