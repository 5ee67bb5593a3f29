package out

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"roomscan/internal/modules/capture/domain"
	captureout "roomscan/internal/modules/capture/port/out"
	"roomscan/internal/platform/id"
)

type FileExporter struct {
	ids  id.Generator
	mode domain.ExportMode
}

func NewFileExporter(ids id.Generator) captureout.Exporter {
	return &FileExporter{ids: ids, mode: domain.ExportParametric}
}

// Export writes <id>.json and <id>.usdz into workDir. Either write failing
// fails the export; files already written are left in place.
func (e *FileExporter) Export(_ context.Context, room *domain.CapturedRoom, workDir string) (domain.ExportArtifacts, error) {
	if room == nil {
		return domain.ExportArtifacts{}, fmt.Errorf("%w: no captured room", domain.ErrExport)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return domain.ExportArtifacts{}, fmt.Errorf("%w: create export dir: %v", domain.ErrExport, err)
	}

	exportID := e.ids.New()
	artifacts := domain.ExportArtifacts{
		ID:        exportID,
		DataPath:  filepath.Join(workDir, exportID+".json"),
		ModelPath: filepath.Join(workDir, exportID+".usdz"),
	}

	payload, err := json.MarshalIndent(room, "", "  ")
	if err != nil {
		return domain.ExportArtifacts{}, fmt.Errorf("%w: encode room: %v", domain.ErrExport, err)
	}
	if err := os.WriteFile(artifacts.DataPath, payload, 0o644); err != nil {
		return domain.ExportArtifacts{}, fmt.Errorf("%w: write data file: %v", domain.ErrExport, err)
	}
	if err := writeUSDZ(artifacts.ModelPath, room, e.mode); err != nil {
		return domain.ExportArtifacts{}, fmt.Errorf("%w: write model file: %v", domain.ErrExport, err)
	}
	return artifacts, nil
}
