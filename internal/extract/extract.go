// Package extract turns raw document bytes into plain text by trying an
// ordered list of strategies, cheapest first, until one produces output that
// passes a validity check. Adding a strategy means adding one implementer,
// not editing a branching chain.
package extract

import (
	"context"

	"github.com/rs/zerolog/log"
)

// MethodFailed tags the result when every strategy failed or produced
// invalid text. A failed extraction is a normal outcome, not an error.
const MethodFailed = "failed"

// Result is the surviving outcome of an extraction run.
type Result struct {
	Text   string `json:"text"`
	Method string `json:"method"`
}

// Strategy is one extraction tactic. Attempt returns the raw text it managed
// to pull out; errors mean "this tactic produced nothing usable here" and are
// logged by the chain, never propagated.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, data []byte, maxPages int) (string, error)
}

// Config tunes the default strategy chain and its validity check.
type Config struct {
	// OCRDPI is the rasterization resolution for the standard OCR pass.
	OCRDPI float64
	// OCREnhancedDPI is the resolution for the pre-processed OCR pass.
	OCREnhancedDPI float64
	// OCRLanguage is the tesseract language model, e.g. "eng".
	OCRLanguage string
	// Validity overrides the default thresholds when non-zero.
	Validity Validity
}

// Extractor iterates strategies in priority order.
type Extractor struct {
	Strategies []Strategy
	Validity   Validity
}

// New builds an extractor with the default chain: HTML text for pages served
// as markup, then embedded PDF text, layout-aware PDF text, plain OCR, and
// finally OCR with image pre-processing for scanned or low-quality inputs.
func New(cfg Config) *Extractor {
	if cfg.OCRDPI <= 0 {
		cfg.OCRDPI = 150
	}
	if cfg.OCREnhancedDPI <= 0 {
		cfg.OCREnhancedDPI = 300
	}
	if cfg.OCRLanguage == "" {
		cfg.OCRLanguage = "eng"
	}
	v := cfg.Validity
	if v.IsZero() {
		v = DefaultValidity()
	}
	return &Extractor{
		Strategies: []Strategy{
			&HTMLText{},
			&StructuredText{},
			&LayoutText{},
			&OCR{DPI: cfg.OCRDPI, Language: cfg.OCRLanguage},
			&OCR{DPI: cfg.OCREnhancedDPI, Language: cfg.OCRLanguage, Enhance: true},
		},
		Validity: v,
	}
}

// Extract runs the chain and returns the first valid result with its method
// tag. When all strategies fail it returns empty text tagged MethodFailed;
// it never returns an error to the caller.
func (e *Extractor) Extract(ctx context.Context, data []byte, maxPages int) Result {
	for _, s := range e.Strategies {
		if ctx.Err() != nil {
			break
		}
		text, err := s.Attempt(ctx, data, maxPages)
		if err != nil {
			log.Debug().Err(err).Str("method", s.Name()).Msg("extraction strategy failed")
			continue
		}
		if !e.Validity.Valid(text) {
			log.Debug().Str("method", s.Name()).Int("chars", len(text)).Msg("extraction output failed validity check")
			continue
		}
		return Result{Text: text, Method: s.Name()}
	}
	return Result{Text: "", Method: MethodFailed}
}
