package models

// PaletteFile is the YAML layout of a label color override file.
//
//	default_color: "#9ca3af"
//	labels:
//	  - label: Legal Document
//	    color: "#e11d48"
type PaletteFile struct {
	DefaultColor string       `json:"defaultColor" yaml:"default_color"`
	Labels       []LabelColor `json:"labels" yaml:"labels"`
}

// LabelColor pins a label to an explicit color.
type LabelColor struct {
	Label string `json:"label" yaml:"label"`
	Color string `json:"color" yaml:"color"`
}
