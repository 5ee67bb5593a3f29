package out_test

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	captureout "roomscan/internal/modules/capture/adapter/out"
	"roomscan/internal/modules/capture/domain"
)

type fixedID string

func (f fixedID) New() string { return string(f) }

func exportRoom() *domain.CapturedRoom {
	return &domain.CapturedRoom{
		Identifier: "room-1",
		Version:    2,
		Walls: []domain.Surface{
			{Identifier: "w1", Category: "wall", Dimensions: [3]float64{4, 2.5, 0.1}},
			{Identifier: "w2", Category: "wall", Dimensions: [3]float64{3, 2.5, 0.1}, Transform: [16]float64{0, 0, -1, 0, 0, 1, 0, 0, 1, 0, 0, 0, 2, 0, 1.5, 1}},
		},
		Windows: []domain.Surface{{Identifier: "win1", Category: "window", Dimensions: [3]float64{1.2, 1, 0}}},
		Objects: []domain.Object{{Identifier: "o1", Category: "sofa", Dimensions: [3]float64{2, 0.8, 0.9}}},
	}
}

func TestFileExporterWritesDataAndModelWithSharedID(t *testing.T) {
	t.Parallel()
	workDir := filepath.Join(t.TempDir(), "tmp", "cordova-room-plan")
	exporter := captureout.NewFileExporter(fixedID("3F2504E0-4F89-11D3-9A0C-0305E82C3301"))

	art, err := exporter.Export(context.Background(), exportRoom(), workDir)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if art.DataPath != filepath.Join(workDir, art.ID+".json") || art.ModelPath != filepath.Join(workDir, art.ID+".usdz") {
		t.Fatalf("unexpected artifact paths: %+v", art)
	}

	raw, err := os.ReadFile(art.DataPath)
	if err != nil {
		t.Fatalf("read data: %v", err)
	}
	var decoded domain.CapturedRoom
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("data file is not json: %v", err)
	}
	if decoded.Counts() != exportRoom().Counts() {
		t.Fatalf("data file lost elements: %+v", decoded.Counts())
	}

	archive, err := zip.OpenReader(art.ModelPath)
	if err != nil {
		t.Fatalf("open usdz: %v", err)
	}
	defer archive.Close()
	if len(archive.File) != 1 || archive.File[0].Name != "room.usda" {
		t.Fatalf("unexpected usdz entries: %d", len(archive.File))
	}
	entry := archive.File[0]
	if entry.Method != zip.Store {
		t.Fatalf("usdz entries must be stored uncompressed")
	}
	offset, err := entry.DataOffset()
	if err != nil {
		t.Fatalf("data offset: %v", err)
	}
	if offset%64 != 0 {
		t.Fatalf("entry data must be 64 byte aligned, got offset %d", offset)
	}
	rc, err := entry.Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	defer rc.Close()
	layer, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	text := string(layer)
	for _, want := range []string{"#usda 1.0", `exportMode = "parametric"`, `def Cube "Wall_1"`, `def Cube "Window_0"`, `def Cube "Sofa_0"`, "float3 xformOp:scale = (4, 2.5, 0.1)", "(2, 0, 1.5, 1)"} {
		if !strings.Contains(text, want) {
			t.Fatalf("usda layer missing %q:\n%s", want, text)
		}
	}
}

func TestFileExporterRejectsNilRoom(t *testing.T) {
	t.Parallel()
	exporter := captureout.NewFileExporter(fixedID("A"))
	if _, err := exporter.Export(context.Background(), nil, t.TempDir()); !errors.Is(err, domain.ErrExport) {
		t.Fatalf("expected export error, got %v", err)
	}
}

func TestFileExporterFailsWhenModelWriteFails(t *testing.T) {
	t.Parallel()
	workDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(workDir, "B.usdz"), 0o755); err != nil {
		t.Fatalf("block model path: %v", err)
	}
	exporter := captureout.NewFileExporter(fixedID("B"))
	if _, err := exporter.Export(context.Background(), exportRoom(), workDir); !errors.Is(err, domain.ErrExport) {
		t.Fatalf("expected export error, got %v", err)
	}
}

func TestFileExporterFailsWhenDirCannotBeCreated(t *testing.T) {
	t.Parallel()
	parent := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(parent, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	exporter := captureout.NewFileExporter(fixedID("C"))
	if _, err := exporter.Export(context.Background(), exportRoom(), filepath.Join(parent, "out")); !errors.Is(err, domain.ErrExport) {
		t.Fatalf("expected export error, got %v", err)
	}
}
