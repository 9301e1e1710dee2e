// Package report exporta el snapshot del dashboard y el progreso de las
// pasadas largas como ficheros JSON. Las escrituras son atómicas (tmp + rename)
// para que un lector nunca vea un documento a medias.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alejandrodnm/polywhale/internal/domain"
)

// JSONFile implementa ports.ReportSink y ports.ProgressSink.
type JSONFile struct {
	snapshotPath string
	progressPath string
}

// NewJSONFile crea el sink. Una ruta vacía deshabilita esa salida.
func NewJSONFile(snapshotPath, progressPath string) *JSONFile {
	return &JSONFile{snapshotPath: snapshotPath, progressPath: progressPath}
}

// Export escribe el snapshot del dashboard.
func (f *JSONFile) Export(ctx context.Context, snap domain.Snapshot) error {
	if f.snapshotPath == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("report.Export: %w", err)
	}
	if err := writeJSON(f.snapshotPath, normalize(snap)); err != nil {
		return fmt.Errorf("report.Export: %w", err)
	}
	return nil
}

// WriteProgress escribe el último estado de progreso.
func (f *JSONFile) WriteProgress(_ context.Context, p domain.Progress) error {
	if f.progressPath == "" {
		return nil
	}
	if err := writeJSON(f.progressPath, p); err != nil {
		return fmt.Errorf("report.WriteProgress: %w", err)
	}
	return nil
}

// normalize cambia los slices nil por vacíos para que el dashboard reciba [] y no null.
func normalize(s domain.Snapshot) domain.Snapshot {
	if s.Whales == nil {
		s.Whales = []domain.SnapshotWhale{}
	}
	if s.OpenPositions == nil {
		s.OpenPositions = []domain.SnapshotPosition{}
	}
	if s.Resolved == nil {
		s.Resolved = []domain.SnapshotPosition{}
	}
	if s.Signals == nil {
		s.Signals = []domain.SnapshotSignal{}
	}
	if s.Consensus == nil {
		s.Consensus = []domain.SnapshotSignal{}
	}
	return s
}

func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("encode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
