package extract

import (
	"bytes"

	"github.com/ledongthuc/pdf"
)

// DocumentInfo is a cheap metadata probe used for metrics and diagnostics by
// downstream consumers. It is independent of the extraction strategies.
type DocumentInfo struct {
	PageCount int   `json:"page_count"`
	SizeBytes int   `json:"size_bytes"`
	Encrypted bool  `json:"encrypted"`
	HasText   bool  `json:"has_text"`
	IsPDF     bool  `json:"is_pdf"`
}

// Info probes raw document bytes without running the extraction chain. It
// never fails: unparseable input yields a zero-page, no-text report.
func Info(data []byte) DocumentInfo {
	info := DocumentInfo{
		SizeBytes: len(data),
		IsPDF:     bytes.HasPrefix(bytes.TrimSpace(data), []byte("%PDF-")),
	}
	if !info.IsPDF {
		return info
	}
	// The marker appears in the trailer of protected files even when the
	// reader refuses to open them.
	info.Encrypted = bytes.Contains(data, []byte("/Encrypt"))

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return info
	}
	info.PageCount = reader.NumPage()

	// Sample the first few pages for an embedded text layer.
	sample := info.PageCount
	if sample > 3 {
		sample = 3
	}
	for i := 1; i <= sample; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		if text, err := page.GetPlainText(nil); err == nil && len(bytes.TrimSpace([]byte(text))) > 0 {
			info.HasText = true
			break
		}
	}
	return info
}
