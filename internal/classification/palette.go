package classification

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/doc-classifier/dashboard/internal/models"
	"gopkg.in/yaml.v3"
)

// NormalizeLabel lowercases a label and replaces spaces with hyphens.
func NormalizeLabel(label string) string {
	return strings.ReplaceAll(strings.ToLower(label), " ", "-")
}

// Palette assigns display colors to labels. The color depends only on the
// normalized label text, so a label keeps its color across runs and sessions.
type Palette struct {
	overrides    map[string]string
	defaultColor string
}

// DefaultPalette maps every label onto its chart CSS variable.
func DefaultPalette() *Palette {
	return &Palette{overrides: map[string]string{}}
}

// NewPalette builds a palette from a parsed palette file.
func NewPalette(file *models.PaletteFile) *Palette {
	p := DefaultPalette()
	if file == nil {
		return p
	}
	p.defaultColor = file.DefaultColor
	for _, lc := range file.Labels {
		if lc.Label == "" || lc.Color == "" {
			continue
		}
		p.overrides[NormalizeLabel(lc.Label)] = lc.Color
	}
	return p
}

// Color returns the display color for label.
func (p *Palette) Color(label string) string {
	norm := NormalizeLabel(strings.TrimSpace(label))
	if p != nil {
		if c, ok := p.overrides[norm]; ok {
			return c
		}
		if norm == "" && p.defaultColor != "" {
			return p.defaultColor
		}
	}
	return fmt.Sprintf("var(--chart-%s)", norm)
}

// LoadPalette reads a YAML palette file from disk.
func LoadPalette(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParsePalette(f)
}

// ParsePalette parses a YAML palette from r.
func ParsePalette(r io.Reader) (*Palette, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var file models.PaletteFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing palette: %w", err)
	}

	return NewPalette(&file), nil
}
