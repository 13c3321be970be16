package main

import (
	"github.com/kirsrus/facegate/controller/detection"
	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/config"
	"github.com/kirsrus/facegate/service"
	"github.com/kirsrus/facegate/service/audio"
	"github.com/kirsrus/facegate/service/camera"
	"github.com/kirsrus/facegate/service/cascade"

	"github.com/juju/errors"
)

// closers освобождает ресурсы в обратном порядке
type closers []func() error

func (m *closers) add(fn func() error) {
	*m = append(*m, fn)
}

func (m closers) close() {
	for i := len(m) - 1; i >= 0; i-- {
		if err := m[i](); err != nil {
			log.Warnf("ошибка освобождения ресурса: %v", err)
		}
	}
}

func openCamera() (*camera.Camera, error) {
	return camera.NewCamera(&camera.ConfigCamera{
		Log:          log,
		Device:       cfg.Camera.Device,
		FlipCode:     cfg.Camera.FlipCode,
		Angle:        cfg.Camera.Angle,
		PivotX:       cfg.Camera.PivotX,
		PivotY:       cfg.Camera.PivotY,
		FrameTimeout: config.Ms(cfg.Camera.FrameTimeout),
	})
}

func openCascade(name string, file config.CascadeFile) (*cascade.Cascade, error) {
	return cascade.NewCascade(&cascade.ConfigCascade{
		Log:          log,
		Name:         name,
		Path:         file.Path,
		ScaleFactor:  file.ScaleFactor,
		MinNeighbors: file.MinNeighbors,
		MinSize:      file.MinSize,
	})
}

// openPipeline загружает каскады лица и глаз, а при withNose и носа
func openPipeline(res *closers, withNose bool) (*detection.Pipeline, error) {
	face, err := openCascade("лицо", cfg.Cascade.Face)
	if err != nil {
		return nil, errors.Trace(err)
	}
	res.add(face.Close)
	eye, err := openCascade("глаза", cfg.Cascade.Eye)
	if err != nil {
		return nil, errors.Trace(err)
	}
	res.add(eye.Close)
	var nose service.Cascade
	if withNose {
		noseCascade, err := openCascade("нос", cfg.Cascade.Nose)
		if err != nil {
			return nil, errors.Trace(err)
		}
		res.add(noseCascade.Close)
		nose = noseCascade
	}

	pipeline, err := detection.NewPipeline(face, eye, nose, &detection.ConfigPipeline{
		Log:     log,
		EyeGate: model.EyeGateRegion,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return pipeline, nil
}

func openAudio() (*audio.Player, error) {
	return audio.NewPlayer(&audio.ConfigPlayer{
		Log:    log,
		Player: cfg.Audio.Player,
		Args:   cfg.Audio.Args,
		Sounds: map[model.Cue]string{
			model.CueMask:        cfg.Audio.Mask,
			model.CueCorrect:     cfg.Audio.Correct,
			model.CueTemperature: cfg.Audio.Temperature,
			model.CueDenied:      cfg.Audio.Denied,
		},
	})
}
