package recognizer

import (
	"image"
	"io"
	"math"
	"sort"

	"github.com/kirsrus/facegate/model"

	"github.com/juju/errors"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// Версия формата артефакта модели
	artifactVersion = 1
	// Собственные значения не больше eigenEps считаются нулевыми
	eigenEps = 1e-6
)

// Sample размеченное изображение лица для обучения
type Sample struct {
	IdentityID uint
	Face       *image.Gray
}

// Eigenfaces обученная модель главных компонент (собственных лиц)
type Eigenfaces struct {
	Version int `msgpack:"version"`
	// Сторона квадратной миниатюры
	Size int `msgpack:"size"`
	// Среднее лицо
	Mean []float64 `msgpack:"mean"`
	// Главные компоненты (нормированные, по убыванию собственных значений)
	Components [][]float64 `msgpack:"components"`
	// Проекции обучающих образцов
	Projections [][]float64 `msgpack:"projections"`
	// Личности обучающих образцов
	Labels []uint `msgpack:"labels"`
}

// ConfigTrain параметры обучения
type ConfigTrain struct {
	// Сторона миниатюры
	Size int
	// Максимальное колличество компонент (0 - все значимые)
	MaxComponents int
	// Вызывается после каждого этапа обучения
	Progress func(done, total int)
}

// TrainEigenfaces строит модель по образцам. Изображения приводятся к размеру config.Size
func TrainEigenfaces(samples []Sample, config *ConfigTrain) (*Eigenfaces, error) {
	if config == nil {
		return nil, errors.New("не установлен config")
	}
	size := config.Size
	if size <= 0 {
		size = thumbSize
	}
	if len(samples) == 0 {
		return nil, errors.New("нет образцов для обучения")
	}
	progress := config.Progress
	if progress == nil {
		progress = func(int, int) {}
	}

	n, d := len(samples), size*size
	// Этапы: векторизация каждого образца, разложение, проекция каждого образца
	total := 2*n + 1
	done := 0

	vectors := make([][]float64, n)
	labels := make([]uint, n)
	mean := make([]float64, d)
	for i, sample := range samples {
		if sample.Face == nil {
			return nil, errors.Errorf("образец %d без изображения", i)
		}
		vectors[i] = vectorize(model.GrayThumbnail(sample.Face, size))
		labels[i] = sample.IdentityID
		floats.Add(mean, vectors[i])
		done++
		progress(done, total)
	}
	floats.Scale(1/float64(n), mean)

	a := mat.NewDense(n, d, nil)
	for i, v := range vectors {
		row := make([]float64, d)
		floats.SubTo(row, v, mean)
		a.SetRow(i, row)
	}

	// Разложение матрицы Грама n x n вместо ковариационной d x d
	var gram mat.SymDense
	gram.SymOuterK(1, a)
	var eigen mat.EigenSym
	if ok := eigen.Factorize(&gram, true); !ok {
		return nil, errors.New("не удалось выполнить разложение матрицы Грама")
	}
	values := eigen.Values(nil)
	var vecs mat.Dense
	eigen.VectorsTo(&vecs)

	order := make([]int, 0, len(values))
	for i, value := range values {
		if value > eigenEps {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return values[order[i]] > values[order[j]]
	})
	if config.MaxComponents > 0 && len(order) > config.MaxComponents {
		order = order[:config.MaxComponents]
	}

	components := make([][]float64, 0, len(order))
	for _, idx := range order {
		var u mat.VecDense
		u.MulVec(a.T(), vecs.ColView(idx))
		norm := mat.Norm(&u, 2)
		if norm <= eigenEps {
			continue
		}
		u.ScaleVec(1/norm, &u)
		components = append(components, mat.Col(nil, 0, &u))
	}
	// Без компонент все проекции нулевые и любое лицо совпадает с первым образцом
	if len(components) == 0 {
		return nil, errors.New("недостаточно различающихся образцов для обучения")
	}
	done++
	progress(done, total)

	result := Eigenfaces{
		Version:     artifactVersion,
		Size:        size,
		Mean:        mean,
		Components:  components,
		Projections: make([][]float64, n),
		Labels:      labels,
	}
	for i, v := range vectors {
		result.Projections[i] = result.project(v)
		done++
		progress(done, total)
	}
	return &result, nil
}

// Project проекция изображения лица на главные компоненты
func (m *Eigenfaces) Project(face *image.Gray) []float64 {
	return m.project(vectorize(model.GrayThumbnail(face, m.Size)))
}

func (m *Eigenfaces) project(v []float64) []float64 {
	centered := make([]float64, len(v))
	floats.SubTo(centered, v, m.Mean)
	weights := make([]float64, len(m.Components))
	for i, component := range m.Components {
		weights[i] = floats.Dot(centered, component)
	}
	return weights
}

// Nearest ближайший обучающий образец. Возвращает личность и евклидово расстояние
// в пространстве главных компонент
func (m *Eigenfaces) Nearest(face *image.Gray) (uint, float64, error) {
	if len(m.Projections) == 0 {
		return 0, 0, errors.New("модель не содержит образцов")
	}
	weights := m.Project(face)
	best, distance := 0, math.Inf(1)
	for i, projection := range m.Projections {
		if dist := floats.Distance(weights, projection, 2); dist < distance {
			best, distance = i, dist
		}
	}
	return m.Labels[best], distance, nil
}

// Encode запись модели в формате msgpack
func (m *Eigenfaces) Encode(w io.Writer) error {
	return errors.Trace(msgpack.NewEncoder(w).Encode(m))
}

// Decode чтение модели с проверкой версии и размерностей
func Decode(r io.Reader) (*Eigenfaces, error) {
	var result Eigenfaces
	if err := msgpack.NewDecoder(r).Decode(&result); err != nil {
		return nil, errors.Annotate(err, "ошибка чтения модели")
	}
	if result.Version != artifactVersion {
		return nil, errors.Errorf("неподдерживаемая версия модели %d (ожидается %d)", result.Version, artifactVersion)
	}
	if err := result.check(); err != nil {
		return nil, errors.Trace(err)
	}
	return &result, nil
}

func (m *Eigenfaces) check() error {
	d := m.Size * m.Size
	if m.Size <= 0 || len(m.Mean) != d {
		return errors.Errorf("некорректный размер модели %d", m.Size)
	}
	if len(m.Components) == 0 {
		return errors.New("модель не содержит главных компонент")
	}
	for i, component := range m.Components {
		if len(component) != d {
			return errors.Errorf("компонента %d некорректной длины %d", i, len(component))
		}
	}
	if len(m.Labels) != len(m.Projections) {
		return errors.Errorf("число меток %d не совпадает с числом образцов %d", len(m.Labels), len(m.Projections))
	}
	for i, projection := range m.Projections {
		if len(projection) != len(m.Components) {
			return errors.Errorf("проекция %d некорректной длины %d", i, len(projection))
		}
	}
	return nil
}

func vectorize(img *image.Gray) []float64 {
	bounds := img.Bounds()
	v := make([]float64, 0, bounds.Dx()*bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			v = append(v, float64(img.GrayAt(x, y).Y))
		}
	}
	return v
}
