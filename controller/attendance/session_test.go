package attendance

import (
	"testing"
	"time"

	"github.com/kirsrus/facegate/model"
	"github.com/kirsrus/facegate/pkg/scheduler"

	"github.com/juju/errors"
)

func TestSession_AverageOnFirstAccess(t *testing.T) {
	session := NewSession()
	for i, v := range []float64{36.0, 36.2, 36.1, 36.3, 36.0} {
		session.AddReading(model.TemperatureReading{
			CreateAt: testStart.Add(time.Duration(i) * 100 * time.Millisecond),
			Value:    v,
		})
	}

	first, ok := session.AverageOnFirstAccess(testStart.Add(time.Second))
	if !ok || first != 36.12 {
		t.Fatalf("AverageOnFirstAccess() = %v, %t, want 36.12", first, ok)
	}
	session.AddReading(model.TemperatureReading{CreateAt: testStart.Add(2 * time.Second), Value: 40})
	second, ok := session.AverageOnFirstAccess(testStart.Add(3 * time.Second))
	if !ok || second != 36.12 {
		t.Errorf("повторный AverageOnFirstAccess() = %v, %t, want 36.12", second, ok)
	}
	if session.GaugeDuration() != 1 {
		t.Errorf("GaugeDuration() = %v, want 1", session.GaugeDuration())
	}
	if session.Readings() != 6 {
		t.Errorf("Readings() = %d, want 6", session.Readings())
	}
}

func TestSession_AverageWithoutReadings(t *testing.T) {
	session := NewSession()
	if _, ok := session.AverageOnFirstAccess(testStart); ok {
		t.Fatal("AverageOnFirstAccess() без замеров вернул значение")
	}
	session.AddReading(model.TemperatureReading{CreateAt: testStart, Value: 36.6})
	average, ok := session.AverageOnFirstAccess(testStart.Add(500 * time.Millisecond))
	if !ok || average != 36.6 {
		t.Errorf("AverageOnFirstAccess() = %v, %t, want 36.6", average, ok)
	}
	if session.GaugeDuration() != 0.5 {
		t.Errorf("GaugeDuration() = %v, want 0.5", session.GaugeDuration())
	}
}

func TestSession_Recognition(t *testing.T) {
	session := NewSession()
	session.FaceSeen(testStart)
	session.FaceSeen(testStart.Add(time.Second))
	session.StartRecognition(testStart.Add(1500 * time.Millisecond))
	session.StartRecognition(testStart.Add(5 * time.Second))

	if !session.RecognitionStarted() {
		t.Error("RecognitionStarted() = false")
	}
	if session.RecognitionDuration() != 1.5 {
		t.Errorf("RecognitionDuration() = %v, want 1.5", session.RecognitionDuration())
	}
}

func TestSession_Finalize(t *testing.T) {
	session := NewSession()
	session.IncRetries()
	session.AddReading(model.TemperatureReading{CreateAt: testStart, Value: 36.6})
	session.Finalize()
	session.IncRetries()
	session.AddReading(model.TemperatureReading{CreateAt: testStart, Value: 36.6})

	if session.Retries() != 1 || session.Readings() != 1 {
		t.Errorf("после Finalize() попыток %d, замеров %d, want 1, 1", session.Retries(), session.Readings())
	}
}

func TestSampler_Sample(t *testing.T) {
	tests := []struct {
		name      string
		result    model.DetectionResult
		sensorErr error
		want      bool
		wantReads int
	}{
		{
			name:      "лица нет",
			result:    model.DetectionResult{},
			want:      false,
			wantReads: 0,
		},
		{
			name:      "лицо без глаз",
			result:    faceOnly(),
			want:      false,
			wantReads: 0,
		},
		{
			name:      "глаза найдены",
			result:    faceEyes(),
			want:      true,
			wantReads: 1,
		},
		{
			name:      "ошибка датчика пропускает замер",
			result:    faceEyesNose(),
			sensorErr: errors.New("нет ответа"),
			want:      false,
			wantReads: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sensor := &fakeSensor{values: []float64{25.5}, err: tt.sensorErr}
			clock := scheduler.NewManualClock(testStart)
			sampler, err := NewSampler(sensor, &ConfigSampler{Clock: clock})
			if err != nil {
				t.Fatal(err)
			}
			session := NewSession()
			if got := sampler.Sample(session, tt.result); got != tt.want {
				t.Errorf("Sample() = %t, want %t", got, tt.want)
			}
			if sensor.reads != tt.wantReads {
				t.Errorf("датчик прочитан %d раз, want %d", sensor.reads, tt.wantReads)
			}
			if !tt.want {
				if session.Readings() != 0 {
					t.Errorf("замеров %d, want 0", session.Readings())
				}
				return
			}
			average, _ := session.AverageOnFirstAccess(testStart)
			if average != 36.18 {
				t.Errorf("замер %v, want 36.18", average)
			}
		})
	}
}
