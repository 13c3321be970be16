package sensor

import (
	"sync"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/logger"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

const (
	// Адрес MLX90614 на шине по умолчанию
	address = 0x5A
	// Регистр температуры объекта (канал 1)
	regObject1 = 0x07
	// Шаг показаний в кельвинах
	resolution = 0.02
	kelvin     = 273.15
	// Признак ошибки в старшем бите показания
	errorFlag = 0x8000
)

// MLX90614 инфракрасный датчик температуры на шине I2C. Инициализируется через NewMLX90614
type MLX90614 struct {
	log *logrus.Entry

	mu  sync.Mutex
	bus i2c.BusCloser
	dev *i2c.Dev
}

// ConfigMLX90614 конфигурация MLX90614
type ConfigMLX90614 struct {
	Log *logrus.Logger
	// Имя шины I2C ("" - первая доступная)
	Bus string
	// Адрес датчика. По умолчанию 0x5A
	Address uint16
}

// NewMLX90614 открывает шину и проверяет связь с датчиком. Недоступный датчик - ошибка инициализации
func NewMLX90614(config *ConfigMLX90614) (*MLX90614, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if _, err := host.Init(); err != nil {
		return nil, model.NewInitializationError("драйверов шины", err)
	}
	bus, err := i2creg.Open(config.Bus)
	if err != nil {
		return nil, model.NewInitializationError("шины I2C "+config.Bus, err)
	}
	sensor, err := NewMLX90614WithBus(bus, config)
	if err != nil {
		_ = bus.Close()
		return nil, errors.Trace(err)
	}
	return sensor, nil
}

// NewMLX90614WithBus датчик на уже открытой шине. Шина закрывается вместе с датчиком
func NewMLX90614WithBus(bus i2c.BusCloser, config *ConfigMLX90614) (*MLX90614, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	addr := uint16(address)
	if config.Address != 0 {
		addr = config.Address
	}
	sensor := MLX90614{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "mlx90614",
			"scope":  "service",
		}),
		bus: bus,
		dev: &i2c.Dev{Bus: bus, Addr: addr},
	}
	value, err := sensor.Read()
	if err != nil {
		return nil, model.NewInitializationError("датчика температуры", err)
	}
	sensor.log.Infof("датчик температуры 0x%02X на шине %s: %.2f", addr, bus, value)
	return &sensor, nil
}

// Read температура объекта в градусах Цельсия
func (m *MLX90614) Read() (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Младший байт, старший байт, PEC
	buf := make([]byte, 3)
	if err := m.dev.Tx([]byte{regObject1}, buf); err != nil {
		return 0, errors.Annotate(err, "ошибка чтения регистра температуры")
	}
	raw := uint16(buf[0]) | uint16(buf[1])<<8
	if raw&errorFlag != 0 {
		return 0, errors.Errorf("датчик вернул признак ошибки: 0x%04X", raw)
	}
	return Celsius(raw), nil
}

// Close закрывает шину
func (m *MLX90614) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return errors.Trace(m.bus.Close())
}

// Celsius перевод показания датчика в градусы Цельсия
func Celsius(raw uint16) float64 {
	return float64(raw)*resolution - kelvin
}
