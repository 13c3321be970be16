package tool

import (
	"sync"
	"time"
)

// WaitTimeout ожидает wg не дольше d. Возвращает false, если время истекло.
// Отрицательное d означает ожидание без ограничения
func WaitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	if d < 0 {
		wg.Wait()
		return true
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
