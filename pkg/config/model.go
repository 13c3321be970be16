package config

type (

	// Config конфигурация программы
	Config struct {

		// Описание логирования
		Log struct {

			// Путь к файлу лога
			Path string

			// Имя файал логирования
			Filename string `required:"true" default:"facegate.log"`

			// Уровень логирования
			Level string `required:"true" default:"warning"`

			// Выводить лог только на консоль
			Console bool `default:"false"`
		}

		// Описываем подключение к базе данных
		Db struct {

			// Имя файла базы данных
			Filename string `required:"true" default:"facegate.sqlite"`

			// Колличество дней хранения событий
			ArchiveDays int `default:"90"`

			// Период очистки архива до ArchiveDays в минутах
			CleanArchiveInterval int `default:"60"`
		}

		// Камера
		Camera struct {

			// Номер устройства видеозахвата
			Device int `default:"0"`

			// Код отражения кадра (0 - по вертикальной оси, 1 - по горизонтальной, -1 - по обеим)
			FlipCode int `default:"0"`

			// Угол поворота кадра в градусах
			Angle float64 `default:"90"`

			// Центр поворота
			PivotX int `default:"320"`
			PivotY int `default:"320"`

			// Таймаут ожидания кадра в миллисекундах (0 - без ограничения)
			FrameTimeout int `default:"2000"`
		}

		// Инфракрасный датчик температуры
		Sensor struct {

			// Имя шины I2C ("" - первая доступная)
			Bus string `default:"1"`

			// Адрес датчика на шине
			Address uint16 `default:"90"`

			// Калибровочная поправка, прибавляемая к показаниям
			Offset float64 `default:"10.68"`
		}

		// Каскады Хаара
		Cascade struct {
			Face CascadeFile
			Eye  CascadeFile
			Nose CascadeFile
		}

		// Распознавание лица
		Recognize struct {

			// Файл обученной модели
			Model string `default:"models/eigenface.msgpack"`

			// Порог расстояния, ниже которого лицо считается опознанным
			Threshold float64 `default:"4500"`

			// Поправка (в секундах), добавляемая к времени распознавания и замера
			DurationBias float64 `default:"8"`

			// Сторона миниатюры лица
			ThumbSize int `default:"150"`

			// Максимальное колличество главных компонент при обучении (0 - все)
			Components int `default:"0"`
		}

		// Процесс контроля доступа
		Attendance struct {

			// Период опроса камеры в миллисекундах
			PollInterval int `default:"125"`

			// Колличество опросов после старта до начала распознавания
			Warmup int `default:"15"`

			// Колличество неудачных попыток распознавания до отказа
			MaxRetries int `default:"10"`

			// Температура, выше которой подаётся тревожный сигнал
			HighTemperature float64 `default:"38.0"`

			// Время показа результата в миллисекундах
			DenialWindow int `default:"1000"`
			AcceptWindow int `default:"1500"`

			// Начальные значения обратного отсчёта
			CountdownMask      int `default:"5"`
			CountdownAccept    int `default:"5"`
			CountdownExhausted int `default:"3"`
		}

		// Регистрация лиц
		Enrollment struct {

			// Корень директорий с изображениями лиц
			Path string `default:"data"`

			// Обратный отсчёт после сохранения кадра
			Countdown int `default:"4"`

			// Колличество опросов после старта до начала поиска лица
			Warmup int `default:"15"`
		}

		// Звуковое оповещение
		Audio struct {

			// Проигрыватель
			Player string `default:"omxplayer"`

			// Аргументы проигрывателя перед именем файла
			Args []string `default:"[\"-o\",\"local\"]"`

			// Файлы сигналов
			Mask        string `default:"sound/mascarilla.mp3"`
			Correct     string `default:"sound/correcto.mp3"`
			Temperature string `default:"sound/temperatura.mp3"`
			Denied      string `default:"sound/denegado.mp3"`
		}

		// Обслуживание WEB-сервера
		Http struct {

			// Порт WEB-сервера
			Port uint `required:"true" default:"8080"`

			// Корень директории со статическим контентом
			AssetsDir string `default:"assets"`
		}
	}

	// CascadeFile описание одного каскада
	CascadeFile struct {

		// Путь к XML файлу каскада
		Path string `required:"true"`

		// Коэффициент масштабирования окна поиска
		ScaleFactor float64 `default:"1.3"`

		// Минимальное колличество соседей
		MinNeighbors int `default:"5"`

		// Минимальный размер объекта
		MinSize int
	}
)
