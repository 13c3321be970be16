package recognizer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/store/files"
)

// pattern изображение 4x4 по шаблону класса с отклонением delta в пикселе (dx, dy)
func pattern(class int, dx, dy int, delta int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			var v int
			switch class {
			case 1:
				v = 20
				if x < 2 {
					v = 200
				}
			case 2:
				v = 20
				if y < 2 {
					v = 200
				}
			default:
				v = 20
				if (x+y)%2 == 0 {
					v = 200
				}
			}
			if x == dx && y == dy {
				v += delta
			}
			img.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}
	return img
}

func trainingSet() []Sample {
	var samples []Sample
	for class := 1; class <= 3; class++ {
		samples = append(samples,
			Sample{IdentityID: uint(class), Face: pattern(class, 0, 0, 5)},
			Sample{IdentityID: uint(class), Face: pattern(class, 3, 3, -5)},
		)
	}
	return samples
}

// singleton модель 2x2 с одной компонентой и одним образцом на расстоянии weight от нулевого лица
func singleton(weight float64) *Eigenfaces {
	return &Eigenfaces{
		Version:     artifactVersion,
		Size:        2,
		Mean:        []float64{0, 0, 0, 0},
		Components:  [][]float64{{1, 0, 0, 0}},
		Projections: [][]float64{{weight}},
		Labels:      []uint{7},
	}
}

func TestRecognizer_Threshold(t *testing.T) {
	tests := []struct {
		name    string
		weight  float64
		matched bool
	}{
		{name: "явное совпадение", weight: 3000, matched: true},
		{name: "у самого порога", weight: 4499.99, matched: true},
		{name: "ровно порог", weight: 4500, matched: false},
		{name: "за порогом", weight: 9000, matched: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRecognizerWithModel(singleton(tt.weight), &ConfigRecognizer{})
			if err != nil {
				t.Fatal(err)
			}
			got, err := r.Predict(image.NewGray(image.Rect(0, 0, 2, 2)))
			if err != nil {
				t.Fatal(err)
			}
			if got.Matched != tt.matched {
				t.Errorf("Matched = %v, want %v (distance %v)", got.Matched, tt.matched, got.Distance)
			}
			if got.Distance != tt.weight {
				t.Errorf("Distance = %v, want %v", got.Distance, tt.weight)
			}
			wantID := uint(0)
			if tt.matched {
				wantID = 7
			}
			if got.IdentityID != wantID {
				t.Errorf("IdentityID = %d, want %d", got.IdentityID, wantID)
			}
		})
	}
}

func TestRecognizer_EmptyFace(t *testing.T) {
	r, err := NewRecognizerWithModel(singleton(1), &ConfigRecognizer{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Predict(image.NewGray(image.Rectangle{})); err == nil {
		t.Error("Predict() пустого изображения не вернул ошибку")
	}
}

func TestTrainEigenfaces(t *testing.T) {
	var steps int
	eigen, err := TrainEigenfaces(trainingSet(), &ConfigTrain{
		Size:     4,
		Progress: func(done, total int) { steps = done },
	})
	if err != nil {
		t.Fatal(err)
	}
	if steps != 2*6+1 {
		t.Errorf("этапов обучения %d, want %d", steps, 2*6+1)
	}
	if len(eigen.Components) == 0 || len(eigen.Components) > 5 {
		t.Errorf("компонент %d", len(eigen.Components))
	}

	r, err := NewRecognizerWithModel(eigen, &ConfigRecognizer{})
	if err != nil {
		t.Fatal(err)
	}
	for class := 1; class <= 3; class++ {
		got, err := r.Predict(pattern(class, 1, 2, 3))
		if err != nil {
			t.Fatal(err)
		}
		if !got.Matched || got.IdentityID != uint(class) {
			t.Errorf("класс %d: получено %+v", class, got)
		}
	}
}

func TestTrainEigenfaces_MaxComponents(t *testing.T) {
	eigen, err := TrainEigenfaces(trainingSet(), &ConfigTrain{Size: 4, MaxComponents: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(eigen.Components) != 2 {
		t.Errorf("компонент %d, want 2", len(eigen.Components))
	}
	for i, p := range eigen.Projections {
		if len(p) != 2 {
			t.Errorf("проекция %d длины %d", i, len(p))
		}
	}
}

func TestTrainEigenfaces_Degenerate(t *testing.T) {
	tests := []struct {
		name    string
		samples []Sample
	}{
		{name: "нет образцов", samples: nil},
		{name: "один образец", samples: []Sample{{IdentityID: 1, Face: pattern(1, 0, 0, 0)}}},
		{name: "одинаковые образцы", samples: []Sample{
			{IdentityID: 1, Face: pattern(2, 0, 0, 0)},
			{IdentityID: 2, Face: pattern(2, 0, 0, 0)},
			{IdentityID: 3, Face: pattern(2, 0, 0, 0)},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if eigen, err := TrainEigenfaces(tt.samples, &ConfigTrain{Size: 4}); err == nil {
				t.Errorf("TrainEigenfaces() без ошибки, компонент %d", len(eigen.Components))
			}
		})
	}
}

func TestEigenfaces_EncodeDecode(t *testing.T) {
	eigen, err := TrainEigenfaces(trainingSet(), &ConfigTrain{Size: 4})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := eigen.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	query := pattern(2, 2, 1, -4)
	wantID, wantDist, _ := eigen.Nearest(query)
	gotID, gotDist, err := decoded.Nearest(query)
	if err != nil {
		t.Fatal(err)
	}
	if gotID != wantID || gotDist != wantDist {
		t.Errorf("после чтения (%d, %v), до записи (%d, %v)", gotID, gotDist, wantID, wantDist)
	}
}

func TestDecode_Invalid(t *testing.T) {
	wrongVersion := singleton(1)
	wrongVersion.Version = artifactVersion + 1
	wrongMean := singleton(1)
	wrongMean.Mean = []float64{0}
	wrongLabels := singleton(1)
	wrongLabels.Labels = nil
	noComponents := singleton(1)
	noComponents.Components = nil
	noComponents.Projections = [][]float64{{}}

	tests := []struct {
		name  string
		model *Eigenfaces
	}{
		{name: "другая версия", model: wrongVersion},
		{name: "размер среднего", model: wrongMean},
		{name: "метки", model: wrongLabels},
		{name: "нет компонент", model: noComponents},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.model.Encode(&buf); err != nil {
				t.Fatal(err)
			}
			if _, err := Decode(&buf); err == nil {
				t.Error("Decode() не вернул ошибку")
			}
		})
	}

	t.Run("мусор", func(t *testing.T) {
		if _, err := Decode(bytes.NewReader([]byte("not a model"))); err == nil {
			t.Error("Decode() не вернул ошибку")
		}
	})
}

func TestNewRecognizer_MissingArtifact(t *testing.T) {
	models := files.NewModels(filepath.Join(t.TempDir(), "missing.msgpack"))
	_, err := NewRecognizer(models, &ConfigRecognizer{})
	if !model.IsInitialization(err) {
		t.Errorf("NewRecognizer() error = %v, want ошибку инициализации", err)
	}
}

func TestNewRecognizer_NoComponents(t *testing.T) {
	eigen := singleton(1)
	eigen.Components = nil
	eigen.Projections = [][]float64{{}}
	models := files.NewModels(filepath.Join(t.TempDir(), "eigenface.msgpack"))
	if err := models.Publish(eigen.Encode); err != nil {
		t.Fatal(err)
	}
	_, err := NewRecognizer(models, &ConfigRecognizer{})
	if !model.IsInitialization(err) {
		t.Errorf("NewRecognizer() error = %v, want ошибку инициализации", err)
	}
	if _, err := NewRecognizerWithModel(eigen, &ConfigRecognizer{}); err == nil {
		t.Error("NewRecognizerWithModel() принял модель без компонент")
	}
}

func TestTrain(t *testing.T) {
	dir := t.TempDir()
	faces, err := files.NewFaces(&files.ConfigFaces{Path: filepath.Join(dir, "data")})
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2021, 3, 4, 5, 6, 7, 0, time.Local)
	for i, sample := range trainingSet() {
		if _, err := faces.SaveFace(sample.IdentityID, at.Add(time.Duration(i)*time.Second), sample.Face); err != nil {
			t.Fatal(err)
		}
	}
	models := files.NewModels(filepath.Join(dir, "models", "eigenface.msgpack"))

	var loaded int
	eigen, err := Train(context.Background(), faces, models, &ConfigTrainer{
		Size:   4,
		Loaded: func(done, total int) { loaded = total },
	})
	if err != nil {
		t.Fatal(err)
	}
	if loaded != 6 || len(eigen.Labels) != 6 {
		t.Errorf("загружено %d, образцов %d, want 6", loaded, len(eigen.Labels))
	}

	r, err := NewRecognizer(models, &ConfigRecognizer{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Predict(pattern(3, 0, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Matched || got.IdentityID != 3 {
		t.Errorf("получено %+v", got)
	}
}

func TestTrain_Empty(t *testing.T) {
	dir := t.TempDir()
	faces, err := files.NewFaces(&files.ConfigFaces{Path: dir})
	if err != nil {
		t.Fatal(err)
	}
	_, err = Train(context.Background(), faces, files.NewModels(filepath.Join(dir, "m.msgpack")), &ConfigTrainer{Size: 4})
	if err == nil {
		t.Error("Train() без изображений не вернул ошибку")
	}
}
