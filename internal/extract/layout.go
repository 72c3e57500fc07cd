package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// LayoutText extracts text through the MuPDF renderer, which copes with
// irregular embedded-text encodings the structured reader chokes on.
type LayoutText struct{}

func (LayoutText) Name() string { return "layout" }

func (LayoutText) Attempt(ctx context.Context, data []byte, maxPages int) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	var b strings.Builder
	for i := 0; i < pages; i++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		text, err := doc.Text(i)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	if b.Len() == 0 {
		return "", errors.New("renderer produced no text")
	}
	return b.String(), nil
}
