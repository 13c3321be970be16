package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirsrus/facegate/controller/attendance"
	"github.com/kirsrus/facegate/controller/manager"
	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/config"
	"github.com/kirsrus/facegate/service/recognizer"
	"github.com/kirsrus/facegate/service/sensor"
	"github.com/kirsrus/facegate/service/web"
	"github.com/kirsrus/facegate/store/db"
	"github.com/kirsrus/facegate/store/files"

	"github.com/juju/errors"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Запуск терминала контроля доступа",
	RunE:  runAttendance,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// signalContext контекст, отменяемый по сигналу завершения работы программы
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		log.Info("получена команда на завершение работы программы")
	}()
	return ctx, cancel
}

func runAttendance(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var res closers
	defer res.close()

	// region Хранилища

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

	// endregion
	// region Оборудование и модели

	recognizerSvc, err := recognizer.NewRecognizer(files.NewModels(cfg.Recognize.Model), &recognizer.ConfigRecognizer{
		Log:       log,
		Threshold: cfg.Recognize.Threshold,
	})
	if err != nil {
		return errors.Trace(err)
	}

	pipeline, err := openPipeline(&res, true)
	if err != nil {
		return errors.Trace(err)
	}

	audioSvc, err := openAudio()
	if err != nil {
		return errors.Trace(err)
	}

	cameraSvc, err := openCamera()
	if err != nil {
		return errors.Trace(err)
	}

	sensorSvc, err := sensor.NewMLX90614(&sensor.ConfigMLX90614{
		Log:     log,
		Bus:     cfg.Sensor.Bus,
		Address: cfg.Sensor.Address,
	})
	if err != nil {
		_ = cameraSvc.Close()
		return errors.Trace(err)
	}

	// endregion
	// region Киоск и контроллер

	webSvc, err := web.NewWeb(ctx, dbStore, faces, &web.ConfigWeb{
		Log:       log,
		WebPort:   cfg.Http.Port,
		AssetsDir: cfg.Http.AssetsDir,
	})
	if err != nil {
		_ = cameraSvc.Close()
		_ = sensorSvc.Close()
		return errors.Trace(err)
	}

	retry, err := manager.NewRetry(dbStore, &manager.ConfigRetry{Log: log})
	if err != nil {
		_ = cameraSvc.Close()
		_ = sensorSvc.Close()
		return errors.Trace(err)
	}

	// Камера и датчик с этого момента принадлежат контроллеру
	attendanceCtl, err := attendance.NewController(ctx, cameraSvc, sensorSvc, pipeline, recognizerSvc, dbStore, dbStore, audioSvc, webSvc,
		&attendance.ConfigController{
			Log:                log,
			PollInterval:       config.Ms(cfg.Attendance.PollInterval),
			DenialWindow:       config.Ms(cfg.Attendance.DenialWindow),
			AcceptWindow:       config.Ms(cfg.Attendance.AcceptWindow),
			Warmup:             cfg.Attendance.Warmup,
			MaxRetries:         cfg.Attendance.MaxRetries,
			HighTemperature:    cfg.Attendance.HighTemperature,
			DurationBias:       cfg.Recognize.DurationBias,
			CalibrationOffset:  cfg.Sensor.Offset,
			CountdownMask:      cfg.Attendance.CountdownMask,
			CountdownAccept:    cfg.Attendance.CountdownAccept,
			CountdownExhausted: cfg.Attendance.CountdownExhausted,
			Unsaved: func(record model.EventRecord) {
				retry.Push(record)
			},
		})
	if err != nil {
		_ = cameraSvc.Close()
		_ = sensorSvc.Close()
		return errors.Trace(err)
	}
	webSvc.Attach(attendanceCtl)

	// endregion
	// region Менеджер управления всеми

	managerCtl, err := manager.NewManager(ctx, &manager.ConfigManager{
		Log:               log,
		AttendanceCtl:     attendanceCtl,
		DisplaySvc:        webSvc,
		WebSvc:            webSvc,
		EventStore:        dbStore,
		Retry:             retry,
		CleanBasePeriod:   time.Hour * 24 * time.Duration(cfg.Db.ArchiveDays),
		CleanBaseInterval: time.Minute * time.Duration(cfg.Db.CleanArchiveInterval),
	})
	if err != nil {
		_ = attendanceCtl.Close()
		return errors.Trace(err)
	}

	// endregion

	return errors.Trace(managerCtl.Serve())
}
