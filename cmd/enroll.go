package main

import (
	"fmt"

	"github.com/kirsrus/facegate/controller/enrollment"
	"github.com/kirsrus/facegate/service/web"
	"github.com/kirsrus/facegate/store/db"
	"github.com/kirsrus/facegate/store/files"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Регистрация изображений лица личности",
	Long: `Захват изображений лица зарегистрированной личности для последующего обучения
модели. После каждого снимка выдерживается пауза с обратным отсчётом.

Пример:
  facegate enroll --id 42 --count 20`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.Flags().Uint("id", 0, "идентификатор личности")
	enrollCmd.Flags().Int("count", 20, "колличество снимков (0 - до прерывания)")
	_ = enrollCmd.MarkFlagRequired("id")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	id, err := cmd.Flags().GetUint("id")
	if err != nil {
		return errors.Trace(err)
	}
	count, err := cmd.Flags().GetInt("count")
	if err != nil {
		return errors.Trace(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var res closers
	defer res.close()

	dbStore, err := db.NewDb(ctx, &db.ConfigDb{
		Log:    log,
		DbFile: cfg.Db.Filename,
	})
	if err != nil {
		return errors.Trace(err)
	}
	res.add(dbStore.Close)

	faces, err := files.NewFaces(&files.ConfigFaces{
		Log:  log,
		Path: cfg.Enrollment.Path,
	})
	if err != nil {
		return errors.Trace(err)
	}

	pipeline, err := openPipeline(&res, false)
	if err != nil {
		return errors.Trace(err)
	}
	audioSvc, err := openAudio()
	if err != nil {
		return errors.Trace(err)
	}

	webSvc, err := web.NewWeb(ctx, dbStore, faces, &web.ConfigWeb{
		Log:       log,
		WebPort:   cfg.Http.Port,
		AssetsDir: cfg.Http.AssetsDir,
	})
	if err != nil {
		return errors.Trace(err)
	}

	cameraSvc, err := openCamera()
	if err != nil {
		return errors.Trace(err)
	}

	enrollmentCtl, err := enrollment.NewController(ctx, id, cameraSvc, pipeline, faces, dbStore, audioSvc, webSvc,
		&enrollment.ConfigController{
			Log:       log,
			Warmup:    cfg.Enrollment.Warmup,
			Countdown: cfg.Enrollment.Countdown,
			ThumbSize: cfg.Recognize.ThumbSize,
			Limit:     count,
		})
	if err != nil {
		_ = cameraSvc.Close()
		return errors.Trace(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Завершение регистрации останавливает и киоск
		defer cancel()
		return enrollmentCtl.Serve(gctx)
	})
	g.Go(func() error {
		return webSvc.Serve(gctx)
	})
	if err := g.Wait(); err != nil {
		return errors.Trace(err)
	}

	fmt.Printf("Сохранено изображений лица: %d\n", enrollmentCtl.Captured())
	return nil
}
