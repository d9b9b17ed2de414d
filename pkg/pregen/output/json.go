package output

import (
	"bytes"
	"encoding/json"

	"github.com/jamesainslie/pregen/pkg/pregen/report"
)

// JSONFormatter writes the report as a single indented JSON document.
type JSONFormatter struct{}

// Format implements Formatter.
func (f *JSONFormatter) Format(w *bytes.Buffer, r *report.Report) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

func init() {
	Register("json", func() Formatter {
		return &JSONFormatter{}
	})
}

var _ Formatter = (*JSONFormatter)(nil)
