package tool

import (
	"fmt"
	"time"
)

// RoundToDate округляет дату в t до круглого дня
func RoundToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ThumbName имя файла миниатюры лица по времени её создания, например "2021-3-7_9-5-2_123456.jpg"
func ThumbName(t time.Time) string {
	return fmt.Sprintf("%d-%d-%d_%d-%d-%d_%d.jpg",
		t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1000)
}
