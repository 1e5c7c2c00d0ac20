// Package export renders the memory state into portable formats.
package export

import (
	"github.com/mnemex/mnemex/internal/buffer"
	"github.com/mnemex/mnemex/internal/hierarchy"
)

// ExportData is passed to every Exporter.
type ExportData struct {
	Items    []buffer.Item
	Episodes []hierarchy.EpisodicRecord
	Patterns []hierarchy.TacticalPattern
	Rules    []hierarchy.StrategicRule
}

// Exporter renders ExportData to a string in a specific format.
type Exporter interface {
	Export(data ExportData) (string, error)
}

// registry maps format names to Exporter implementations.
var registry = map[string]Exporter{
	"markdown": &MarkdownExporter{},
	"json":     &JSONExporter{},
}

// Get returns the Exporter registered under name, and whether it was found.
func Get(name string) (Exporter, bool) {
	e, ok := registry[name]
	return e, ok
}

// ValidFormats returns the list of supported export format names.
func ValidFormats() []string {
	formats := make([]string, 0, len(registry))
	for k := range registry {
		formats = append(formats, k)
	}
	return formats
}
