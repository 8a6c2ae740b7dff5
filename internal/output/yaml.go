package output

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/bidharvest/pkg/bid"
)

// YAMLWriter writes all bids as one YAML sequence on Close.
type YAMLWriter struct {
	w    *bufio.Writer
	bids []bid.ExtractedBid
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{
		w:    bufio.NewWriter(w),
		bids: make([]bid.ExtractedBid, 0),
	}
}

func (w *YAMLWriter) Write(b bid.ExtractedBid) error {
	w.bids = append(w.bids, b)
	return nil
}

func (w *YAMLWriter) WriteAll(bids []bid.ExtractedBid) error {
	w.bids = append(w.bids, bids...)
	return nil
}

func (w *YAMLWriter) Close() error {
	encoder := yaml.NewEncoder(w.w)
	encoder.SetIndent(2)
	if err := encoder.Encode(w.bids); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	return w.w.Flush()
}
