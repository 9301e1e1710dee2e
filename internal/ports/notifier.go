package ports

import (
	"context"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

// Notifier entrega un mensaje ya formateado a un destino opaco
// (un chat de Telegram, la consola). Quien llama no reintenta: solo loguea.
type Notifier interface {
	Send(ctx context.Context, destination, text string) error
}

// ReportSink exporta el snapshot del dashboard. El core nunca lo relee.
type ReportSink interface {
	Export(ctx context.Context, snap domain.Snapshot) error
}

// ProgressSink publica el progreso de una pasada larga de resolución.
type ProgressSink interface {
	WriteProgress(ctx context.Context, p domain.Progress) error
}
