package schedule

import (
	"context"
	"sync"
	"time"
)

// SleepFunc espera d o hasta que ctx se cancele.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep es la SleepFunc real.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Throttle espacia llamadas consecutivas a una API externa: un retardo fijo
// entre llamadas y una pausa más larga cada N llamadas.
type Throttle struct {
	mu    sync.Mutex
	delay time.Duration
	pause time.Duration
	every int
	calls int
	sleep SleepFunc
}

// NewThrottle crea un throttle. every <= 0 desactiva la pausa larga.
func NewThrottle(delay time.Duration, every int, pause time.Duration) *Throttle {
	return &Throttle{delay: delay, pause: pause, every: every, sleep: Sleep}
}

// WithSleep sustituye la función de espera (tests).
func (t *Throttle) WithSleep(fn SleepFunc) *Throttle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sleep = fn
	return t
}

// Wait se llama entre dos llamadas externas. La llamada número N con
// N % every == 0 espera la pausa larga; el resto, el retardo fijo.
// Devuelve el error del contexto si se cancela durante la espera.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	t.calls++
	d := t.delay
	if t.every > 0 && t.calls%t.every == 0 && t.pause > d {
		d = t.pause
	}
	sleep := t.sleep
	t.mu.Unlock()

	return sleep(ctx, d)
}

// Calls devuelve cuántas veces se ha llamado a Wait.
func (t *Throttle) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
