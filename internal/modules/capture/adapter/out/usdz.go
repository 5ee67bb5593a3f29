package out

import (
	"archive/zip"
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strconv"
	"strings"

	"roomscan/internal/modules/capture/domain"
)

const (
	usdzLayerName  = "room.usda"
	usdzAlignment  = 64
	localHeaderLen = 30
	paddingExtraID = 0x1986
)

var identity = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// writeUSDZ packages the room as an uncompressed zip holding one USDA layer.
// Entry data must start on a 64 byte boundary, which is reached by padding
// the local header's extra field.
func writeUSDZ(path string, room *domain.CapturedRoom, mode domain.ExportMode) (err error) {
	layer := renderUSDA(room, mode)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	buf := bufio.NewWriter(f)
	cw := &countingWriter{w: buf}
	zw := zip.NewWriter(cw)
	if err := zw.Flush(); err != nil {
		return err
	}
	header := &zip.FileHeader{
		Name:               usdzLayerName,
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(layer),
		CompressedSize64:   uint64(len(layer)),
		UncompressedSize64: uint64(len(layer)),
		Extra:              alignmentPadding(cw.n, len(usdzLayerName)),
	}
	w, err := zw.CreateRaw(header)
	if err != nil {
		return fmt.Errorf("create usdz entry: %w", err)
	}
	if _, err := w.Write(layer); err != nil {
		return fmt.Errorf("write usdz entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close usdz archive: %w", err)
	}
	return buf.Flush()
}

func alignmentPadding(offset int64, nameLen int) []byte {
	dataStart := offset + localHeaderLen + int64(nameLen)
	pad := int((usdzAlignment - dataStart%usdzAlignment) % usdzAlignment)
	if pad == 0 {
		return nil
	}
	// an extra record needs 4 bytes for its id and size
	for pad < 4 {
		pad += usdzAlignment
	}
	extra := make([]byte, pad)
	binary.LittleEndian.PutUint16(extra[0:], paddingExtraID)
	binary.LittleEndian.PutUint16(extra[2:], uint16(pad-4))
	return extra
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func renderUSDA(room *domain.CapturedRoom, mode domain.ExportMode) []byte {
	var b strings.Builder
	b.WriteString("#usda 1.0\n(\n")
	b.WriteString("    defaultPrim = \"Room\"\n")
	b.WriteString("    metersPerUnit = 1\n")
	b.WriteString("    upAxis = \"Y\"\n")
	fmt.Fprintf(&b, "    customLayerData = {\n        string exportMode = %q\n        int story = %d\n    }\n", string(mode), room.Story)
	b.WriteString(")\n\ndef Xform \"Room\"\n{\n")

	groups := []struct {
		name     string
		prim     string
		surfaces []domain.Surface
	}{
		{"Walls", "Wall", room.Walls},
		{"Doors", "Door", room.Doors},
		{"Windows", "Window", room.Windows},
		{"Openings", "Opening", room.Openings},
		{"Floors", "Floor", room.Floors},
	}
	for _, group := range groups {
		if len(group.surfaces) == 0 {
			continue
		}
		fmt.Fprintf(&b, "    def Xform %q\n    {\n", group.name)
		for i, s := range group.surfaces {
			writeCube(&b, fmt.Sprintf("%s_%d", group.prim, i), s.Category, s.Dimensions, s.Transform)
		}
		b.WriteString("    }\n")
	}
	if len(room.Objects) > 0 {
		b.WriteString("    def Xform \"Objects\"\n    {\n")
		for i, o := range room.Objects {
			writeCube(&b, fmt.Sprintf("%s_%d", primName(o.Category), i), o.Category, o.Dimensions, o.Transform)
		}
		b.WriteString("    }\n")
	}
	b.WriteString("}\n")
	return []byte(b.String())
}

func writeCube(b *strings.Builder, name, category string, dims [3]float64, transform [16]float64) {
	if transform == ([16]float64{}) {
		transform = identity
	}
	fmt.Fprintf(b, "        def Cube %q\n        {\n", name)
	b.WriteString("            double size = 1\n")
	fmt.Fprintf(b, "            custom string roomscan:category = %q\n", category)
	fmt.Fprintf(b, "            matrix4d xformOp:transform = %s\n", formatMatrix(transform))
	fmt.Fprintf(b, "            float3 xformOp:scale = (%s, %s, %s)\n", formatFloat(dims[0]), formatFloat(dims[1]), formatFloat(dims[2]))
	b.WriteString("            uniform token[] xformOpOrder = [\"xformOp:transform\", \"xformOp:scale\"]\n")
	b.WriteString("        }\n")
}

// formatMatrix emits the column-major transform as USD rows; USD uses row
// vectors, so each source column becomes one row.
func formatMatrix(m [16]float64) string {
	rows := make([]string, 4)
	for r := 0; r < 4; r++ {
		rows[r] = fmt.Sprintf("(%s, %s, %s, %s)", formatFloat(m[r*4]), formatFloat(m[r*4+1]), formatFloat(m[r*4+2]), formatFloat(m[r*4+3]))
	}
	return "( " + strings.Join(rows, ", ") + " )"
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func primName(category string) string {
	var b strings.Builder
	upper := true
	for _, r := range category {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			if upper && r >= 'a' && r <= 'z' {
				r -= 'a' - 'A'
			}
			b.WriteRune(r)
			upper = false
		default:
			upper = true
		}
	}
	name := b.String()
	if name == "" {
		return "Object"
	}
	if name[0] >= '0' && name[0] <= '9' {
		return "Object" + name
	}
	return name
}
