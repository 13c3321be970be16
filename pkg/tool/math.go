package tool

import "math"

// Round округление value до places знаков после запятой
func Round(value float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(value*pow) / pow
}
