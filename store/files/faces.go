package files

import (
	"bytes"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kirsrus/facegate/pkg/logger"
	"github.com/kirsrus/facegate/pkg/tool"

	"github.com/google/renameio"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
)

const (
	facesDir    = "data"
	jpegQuality = 95
)

// Faces хранилище миниатюр лиц на диске: директория на личность, файлы с именем по времени
// снимка. Инициализируется через NewFaces
type Faces struct {
	log  *logrus.Entry
	root string
}

// ConfigFaces конфигурация Faces
type ConfigFaces struct {
	Log *logrus.Logger
	// Корень директорий личностей
	Path string
}

// NewFaces конструктор Faces. Создаёт корневую директорию, если её нет
func NewFaces(config *ConfigFaces) (*Faces, error) {
	if config == nil {
		return nil, errors.New("не указана конфигурация")
	}
	if config.Log == nil {
		config.Log = logger.Discard()
	}
	faces := Faces{
		log: config.Log.WithFields(map[string]interface{}{
			"module": "faces",
			"scope":  "store",
		}),
		root: facesDir,
	}
	if config.Path != "" {
		faces.root = config.Path
	}
	if err := os.MkdirAll(faces.root, os.ModePerm); err != nil {
		return nil, errors.Annotatef(err, "ошибка создания директории %s", faces.root)
	}
	return &faces, nil
}

// SaveFace сохраняет миниатюру в JPEG и возвращает имя созданного файла
func (m *Faces) SaveFace(identityID uint, at time.Time, thumb image.Image) (string, error) {
	dir := m.identityDir(identityID)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", errors.Annotatef(err, "ошибка создания директории %s", dir)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", errors.Annotate(err, "ошибка кодирования JPEG")
	}
	name := tool.ThumbName(at)
	if err := renameio.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0644); err != nil {
		return "", errors.Annotatef(err, "ошибка записи %s", name)
	}
	m.log.Debugf("сохранена миниатюра %s/%s", dir, name)
	return name, nil
}

// LatestFace содержимое последней по времени записи миниатюры личности
func (m *Faces) LatestFace(identityID uint) ([]byte, error) {
	entries, err := m.thumbs(m.identityDir(identityID))
	if err != nil {
		return nil, errors.Trace(err)
	}
	var (
		latest   string
		latestAt time.Time
	)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestAt) {
			latest, latestAt = entry.Name(), info.ModTime()
		}
	}
	if latest == "" {
		return nil, errors.NotFoundf("миниатюры личности ID:%d", identityID)
	}
	content, err := os.ReadFile(filepath.Join(m.identityDir(identityID), latest))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return content, nil
}

// Walk обходит миниатюры всех личностей в порядке идентификаторов и имён файлов.
// Директории, имя которых не является идентификатором, пропускаются
func (m *Faces) Walk(fn func(identityID uint, path string) error) error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return errors.Annotatef(err, "ошибка чтения %s", m.root)
	}
	ids := make([]uint, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := strconv.ParseUint(entry.Name(), 10, 32)
		if err != nil || id == 0 {
			m.log.Debugf("пропущена директория %s", entry.Name())
			continue
		}
		ids = append(ids, uint(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		dir := m.identityDir(id)
		thumbs, err := m.thumbs(dir)
		if err != nil {
			return errors.Trace(err)
		}
		for _, thumb := range thumbs {
			if err := fn(id, filepath.Join(dir, thumb.Name())); err != nil {
				return errors.Trace(err)
			}
		}
	}
	return nil
}

func (m *Faces) identityDir(identityID uint) string {
	return filepath.Join(m.root, strconv.Itoa(int(identityID)))
}

// Файлы миниатюр в директории личности
func (m *Faces) thumbs(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Annotatef(err, "ошибка чтения %s", dir)
	}
	result := make([]os.DirEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".jpg") {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}
