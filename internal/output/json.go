package output

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/jmylchreest/bidharvest/pkg/bid"
)

// JSONWriter writes all bids as one JSON array on Close. An empty run still
// produces "[]".
type JSONWriter struct {
	w      *bufio.Writer
	pretty bool
	indent string
	bids   []bid.ExtractedBid
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string) *JSONWriter {
	return &JSONWriter{
		w:      bufio.NewWriter(w),
		pretty: pretty,
		indent: indent,
		bids:   make([]bid.ExtractedBid, 0),
	}
}

func (w *JSONWriter) Write(b bid.ExtractedBid) error {
	w.bids = append(w.bids, b)
	return nil
}

func (w *JSONWriter) WriteAll(bids []bid.ExtractedBid) error {
	w.bids = append(w.bids, bids...)
	return nil
}

func (w *JSONWriter) Close() error {
	var (
		out []byte
		err error
	)
	if w.pretty {
		out, err = json.MarshalIndent(w.bids, "", w.indent)
	} else {
		out, err = json.Marshal(w.bids)
	}
	if err != nil {
		return err
	}
	if _, err := w.w.Write(out); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// JSONLWriter writes one JSON object per line as bids arrive.
type JSONLWriter struct {
	enc *json.Encoder
	w   *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	bw := bufio.NewWriter(w)
	return &JSONLWriter{enc: json.NewEncoder(bw), w: bw}
}

func (w *JSONLWriter) Write(b bid.ExtractedBid) error {
	if err := w.enc.Encode(b); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLWriter) WriteAll(bids []bid.ExtractedBid) error {
	for _, b := range bids {
		if err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func (w *JSONLWriter) Close() error {
	return w.w.Flush()
}
