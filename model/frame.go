package model

import (
	"image"
	"image/color"
	"math"
	"time"

	"golang.org/x/image/draw"
)

// Размеры кадра после зеркального отражения и поворота на 90°
const (
	FrameWidth  = 480
	FrameHeight = 640
)

// EyeGateRegion прямоугольник на экране, в который субъект должен поместить глаза.
// Поиск глаз ведётся только внутри него
var EyeGateRegion = image.Rect(110, 225, 370, 300)

// Frame кадр с камеры в канонической ориентации. Создаётся через NewFrame и после
// создания не меняется
type Frame struct {
	CreateAt time.Time
	color    image.Image
	gray     *image.Gray
}

// NewFrame конструктор Frame. Если gray не передан, полутоновое изображение строится из color
func NewFrame(createAt time.Time, color image.Image, gray *image.Gray) *Frame {
	if gray == nil {
		gray = ToGray(color)
	}
	return &Frame{
		CreateAt: createAt,
		color:    color,
		gray:     gray,
	}
}

// Image цветное изображение кадра
func (m *Frame) Image() image.Image {
	return m.color
}

// Gray полутоновое изображение кадра
func (m *Frame) Gray() *image.Gray {
	return m.gray
}

// Bounds границы кадра
func (m *Frame) Bounds() image.Rectangle {
	return m.gray.Bounds()
}

// GrayCrop копия полутонового фрагмента кадра в границах rect
func (m *Frame) GrayCrop(rect image.Rectangle) *image.Gray {
	rect = rect.Intersect(m.gray.Bounds())
	dst := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), m.gray, rect.Min, draw.Src)
	return dst
}

// ColorCrop копия цветного фрагмента кадра в границах rect
func (m *Frame) ColorCrop(rect image.Rectangle) *image.RGBA {
	rect = rect.Intersect(m.color.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), m.color, rect.Min, draw.Src)
	return dst
}

// ToGray перевод изображения в оттенки серого
func ToGray(img image.Image) *image.Gray {
	if gray, ok := img.(*image.Gray); ok {
		return gray
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// LowerHalf нижняя половина прямоугольника (область поиска носа)
func LowerHalf(rect image.Rectangle) image.Rectangle {
	return image.Rect(rect.Min.X, rect.Min.Y+rect.Dy()/2, rect.Max.X, rect.Max.Y)
}

// Thumbnail масштабирование изображения до квадрата size x size
func Thumbnail(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// GrayThumbnail масштабирование полутонового изображения до квадрата size x size
func GrayThumbnail(img *image.Gray, size int) *image.Gray {
	if img.Bounds().Dx() == size && img.Bounds().Dy() == size {
		return img
	}
	dst := image.NewGray(image.Rect(0, 0, size, size))
	if img.Bounds().Dx() < size || img.Bounds().Dy() < size {
		draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		return dst
	}
	areaScale(dst, img)
	return dst
}

// Уменьшение усреднением по площади: каждый пиксель dst равен среднему покрываемых им пикселей src
// с учётом долей пограничных пикселей
func areaScale(dst, src *image.Gray) {
	sb, db := src.Bounds(), dst.Bounds()
	sx := float64(sb.Dx()) / float64(db.Dx())
	sy := float64(sb.Dy()) / float64(db.Dy())
	for y := 0; y < db.Dy(); y++ {
		y0, y1 := float64(y)*sy, float64(y+1)*sy
		for x := 0; x < db.Dx(); x++ {
			x0, x1 := float64(x)*sx, float64(x+1)*sx
			var sum, area float64
			for iy := int(y0); iy < sb.Dy() && float64(iy) < y1; iy++ {
				wy := math.Min(y1, float64(iy+1)) - math.Max(y0, float64(iy))
				for ix := int(x0); ix < sb.Dx() && float64(ix) < x1; ix++ {
					w := wy * (math.Min(x1, float64(ix+1)) - math.Max(x0, float64(ix)))
					sum += w * float64(src.GrayAt(sb.Min.X+ix, sb.Min.Y+iy).Y)
					area += w
				}
			}
			dst.SetGray(db.Min.X+x, db.Min.Y+y, color.Gray{Y: uint8(math.Round(sum / area))})
		}
	}
}
