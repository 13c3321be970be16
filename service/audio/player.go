package audio

import (
	"os"
	"os/exec"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/logger"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const player = "omxplayer"

var playerArgs = []string{"-o", "local"}

// Player воспроизведение звуковых сигналов внешним проигрывателем. Инициализируется через NewPlayer
type Player struct {
	log *logrus.Entry

	player string
	args   []string
	sounds map[model.Cue]string
}

// ConfigPlayer конфигурация Player
type ConfigPlayer struct {
	Log *logrus.Logger

	// Команда проигрывателя
	Player string
	// Аргументы проигрывателя перед именем файла
	Args []string
	// Файлы сигналов
	Sounds map[model.Cue]string
}

// NewPlayer конструктор Player. Отсутствующие файлы сигналов не мешают запуску, но попадают в журнал
func NewPlayer(config *ConfigPlayer) (*Player, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	p := Player{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "audio",
			"scope":  "service",
		}),
		player: player,
		args:   playerArgs,
		sounds: make(map[model.Cue]string),
	}
	if config.Player != "" {
		p.player = config.Player
		p.args = nil
	}
	if config.Args != nil {
		p.args = config.Args
	}
	if _, err := exec.LookPath(p.player); err != nil {
		p.log.Warnf("проигрыватель %s не найден: %v", p.player, err)
	}
	for _, cue := range model.Cues {
		file, ok := config.Sounds[cue]
		if !ok || file == "" {
			p.log.Warnf("не задан файл сигнала %s", cue)
			continue
		}
		if _, err := os.Stat(file); err != nil {
			p.log.Warnf("файл сигнала %s недоступен: %v", cue, err)
		}
		p.sounds[cue] = file
	}
	return &p, nil
}

// Play запускает проигрыватель и не дожидается окончания воспроизведения
func (m *Player) Play(cue model.Cue) error {
	file, ok := m.sounds[cue]
	if !ok {
		return errors.NotFoundf("сигнал %s", cue)
	}
	args := append(append([]string{}, m.args...), file)
	cmd := exec.Command(m.player, args...)
	if err := cmd.Start(); err != nil {
		return errors.Annotatef(err, "ошибка запуска %s", m.player)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			m.log.Warnf("проигрыватель завершился с ошибкой для %s: %v", file, err)
		}
	}()
	return nil
}
