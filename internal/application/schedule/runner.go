package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job es una tarea periódica. El error solo se loguea: la siguiente
// ejecución programada es el reintento.
type Job func(ctx context.Context) error

// Runner ejecuta Jobs con specs de cron (con segundos y descriptores @every).
// Todos los jobs comparten un único worker: nunca corren dos a la vez, y el
// que llega mientras otro corre espera su turno. Una ejecución de un job que
// todavía no terminó hace que la siguiente del mismo job se salte, y un
// panic en un job se recupera y se loguea.
type Runner struct {
	cron    *cron.Cron
	log     *slog.Logger
	baseCtx context.Context
	worker  sync.Mutex
}

// NewRunner crea un Runner. Los jobs reciben baseCtx, que se cancela en el shutdown.
func NewRunner(baseCtx context.Context, logger *slog.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{log: logger.With("component", "cron")}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     logger,
		baseCtx: baseCtx,
	}
}

// Add registra un job con nombre. Devuelve error si el spec no es válido.
func (r *Runner) Add(name, spec string, job Job) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, r.wrap(name, job))
	if err != nil {
		return 0, fmt.Errorf("schedule.Add %s %q: %w", name, spec, err)
	}
	r.log.Info("job scheduled", "job", name, "spec", spec)
	return id, nil
}

// Len devuelve el número de jobs registrados.
func (r *Runner) Len() int {
	return len(r.cron.Entries())
}

// Start arranca el scheduler en background.
func (r *Runner) Start() {
	r.log.Info("cron started", "jobs", r.Len())
	r.cron.Start()
}

// Stop detiene el scheduler y espera a los jobs en curso.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info("cron stopped")
}

func (r *Runner) wrap(name string, job Job) func() {
	return func() {
		r.worker.Lock()
		defer r.worker.Unlock()
		if r.baseCtx.Err() != nil {
			return
		}
		start := time.Now()
		if err := job(r.baseCtx); err != nil {
			r.log.Error("job failed", "job", name, "err", err, "duration", time.Since(start).Round(time.Millisecond))
			return
		}
		r.log.Debug("job done", "job", name, "duration", time.Since(start).Round(time.Millisecond))
	}
}

// cronLogger adapta slog a cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append([]any{"err", err}, keysAndValues...)...)
}
