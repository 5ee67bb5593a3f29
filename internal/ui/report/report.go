package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"gopkg.in/yaml.v3"

	"roomscan/internal/modules/capture/dto"
)

type frontmatter struct {
	ID        string `yaml:"id"`
	Session   string `yaml:"session"`
	CreatedAt string `yaml:"created_at"`
	Model     string `yaml:"model"`
	Data      string `yaml:"data"`
}

// Markdown describes a recorded scan as a markdown document with a YAML
// frontmatter header.
func Markdown(scan dto.ScanOutput) (string, error) {
	meta, err := yaml.Marshal(frontmatter{
		ID:        scan.ID,
		Session:   scan.SessionID,
		CreatedAt: scan.CreatedAt.UTC().Format(time.RFC3339),
		Model:     scan.ModelPath,
		Data:      scan.DataPath,
	})
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(meta)
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# Scan %s\n\n", scan.ID)
	if total(scan.Counts) == 0 {
		buf.WriteString("No structural elements were captured.\n\n")
	}
	buf.WriteString("| Element | Count |\n|---|---:|\n")
	c := scan.Counts
	for _, row := range []struct {
		label string
		n     int
	}{
		{"Walls", c.Walls},
		{"Doors", c.Doors},
		{"Windows", c.Windows},
		{"Openings", c.Openings},
		{"Floors", c.Floors},
		{"Objects", c.Objects},
		{"Sections", c.Sections},
	} {
		fmt.Fprintf(&buf, "| %s | %d |\n", row.label, row.n)
	}
	fmt.Fprintf(&buf, "\n- Model: `%s`\n- Data: `%s`\n", scan.ModelPath, scan.DataPath)
	return buf.String(), nil
}

// Render formats the report for a terminal of the given width. A width of
// zero disables wrapping.
func Render(scan dto.ScanOutput, width int) (string, error) {
	doc, err := Markdown(scan)
	if err != nil {
		return "", err
	}
	body := doc
	if idx := strings.Index(doc, "---\n\n"); idx >= 0 {
		body = doc[idx+len("---\n\n"):]
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	out, err := r.Render(body)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return out, nil
}

func total(c dto.Counts) int {
	return c.Walls + c.Doors + c.Windows + c.Openings + c.Floors + c.Objects + c.Sections
}
