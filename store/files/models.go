package files

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/juju/errors"
)

const modelFile = "models/eigenface.msgpack"

// Models хранилище артефакта обученной модели в одном файле
type Models struct {
	path string
}

// NewModels конструктор Models. При пустом path используется путь по умолчанию
func NewModels(path string) *Models {
	if path == "" {
		path = modelFile
	}
	return &Models{path: path}
}

// Path путь к артефакту
func (m *Models) Path() string {
	return m.path
}

// Open открывает текущий артефакт
func (m *Models) Open() (io.ReadCloser, error) {
	file, err := os.Open(m.path)
	if err != nil {
		return nil, errors.Annotatef(err, "ошибка открытия модели %s", m.path)
	}
	return file, nil
}

// Publish записывает артефакт во временный файл рядом с текущим и атомарно заменяет его.
// При ошибке write текущий артефакт не меняется
func (m *Models) Publish(write func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(m.path), os.ModePerm); err != nil {
		return errors.Trace(err)
	}
	pending, err := renameio.TempFile("", m.path)
	if err != nil {
		return errors.Annotate(err, "ошибка создания временного файла модели")
	}
	defer func() { _ = pending.Cleanup() }()

	if err := write(pending); err != nil {
		return errors.Annotate(err, "ошибка записи модели")
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return errors.Annotate(err, "ошибка публикации модели")
	}
	return nil
}
