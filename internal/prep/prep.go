package prep

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"prepmind/internal/ai"
	"prepmind/internal/metrics"
)

const (
	DefaultPDFCharLimit  = 50000
	DefaultTextCharLimit = 20000
	DefaultMinOCRChars   = 20
	DefaultFileTimeout   = 10 * time.Second
)

type OCREngine interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

type PDFExtractor interface {
	ExtractText(data []byte, charLimit int) (text string, pages int, err error)
}

// Processor converts one attachment into a provider-appropriate fragment.
// Failures never propagate: anything that cannot be extracted degrades to a
// descriptive note appended to the prompt.
type Processor struct {
	ocr           OCREngine
	pdf           PDFExtractor
	pdfCharLimit  int
	textCharLimit int
	minOCRChars   int
	fileTimeout   time.Duration
	logger        zerolog.Logger
	metrics       *metrics.Metrics
}

type Config struct {
	OCR           OCREngine
	PDF           PDFExtractor
	PDFCharLimit  int
	TextCharLimit int
	MinOCRChars   int
	FileTimeout   time.Duration
	Logger        zerolog.Logger
	Metrics       *metrics.Metrics
}

func New(cfg Config) *Processor {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.PDF == nil {
		cfg.PDF = pdfExtractor{}
	}
	if cfg.PDFCharLimit <= 0 {
		cfg.PDFCharLimit = DefaultPDFCharLimit
	}
	if cfg.TextCharLimit <= 0 {
		cfg.TextCharLimit = DefaultTextCharLimit
	}
	if cfg.MinOCRChars <= 0 {
		cfg.MinOCRChars = DefaultMinOCRChars
	}
	if cfg.FileTimeout <= 0 {
		cfg.FileTimeout = DefaultFileTimeout
	}
	return &Processor{
		ocr:           cfg.OCR,
		pdf:           cfg.PDF,
		pdfCharLimit:  cfg.PDFCharLimit,
		textCharLimit: cfg.TextCharLimit,
		minOCRChars:   cfg.MinOCRChars,
		fileTimeout:   cfg.FileTimeout,
		logger:        cfg.Logger,
		metrics:       m,
	}
}

var _ ai.Preprocessor = (*Processor)(nil)

func (p *Processor) Process(ctx context.Context, att ai.Attachment, caps ai.Capabilities) ai.Fragment {
	ctx, cancel := context.WithTimeout(ctx, p.fileTimeout)
	defer cancel()

	mime := strings.ToLower(strings.TrimSpace(att.MimeType))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return p.processImage(ctx, att, caps)
	case mime == "application/pdf":
		return p.processPDF(att, caps)
	case strings.HasPrefix(mime, "text/"):
		return p.processText(att)
	default:
		// last resort: some clients upload PDFs as application/octet-stream
		if strings.HasSuffix(strings.ToLower(att.Name), ".pdf") {
			return p.processPDF(att, caps)
		}
		return p.note(att, fmt.Sprintf("[Attached file %q has unsupported format %q and was not included]", att.Name, att.MimeType))
	}
}

func (p *Processor) processImage(ctx context.Context, att ai.Attachment, caps ai.Capabilities) ai.Fragment {
	if caps.Images {
		return ai.Fragment{Kind: ai.FragmentInline, Name: att.Name, MimeType: att.MimeType, Data: att.Data}
	}
	if p.ocr == nil {
		return p.note(att, fmt.Sprintf("[Attached image %q (%s) could not be analyzed: no text recognition available]", att.Name, att.MimeType))
	}

	text, err := p.ocr.ExtractText(ctx, att.Data)
	if err != nil {
		p.logger.Warn().Str("file", att.Name).Err(err).Msg("ocr failed")
		return p.note(att, fmt.Sprintf("[Attached image %q could not be read: it may be handwritten, low quality, or non-textual]", att.Name))
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < p.minOCRChars {
		return p.note(att, fmt.Sprintf("[Attached image %q contained little or no recognizable text: it may be a diagram or handwriting]", att.Name))
	}
	return ai.Fragment{
		Kind: ai.FragmentText,
		Name: att.Name,
		Text: fmt.Sprintf("Text recognized from attached image %q:\n%s", att.Name, text),
	}
}

func (p *Processor) processPDF(att ai.Attachment, caps ai.Capabilities) ai.Fragment {
	if caps.PDFs {
		return ai.Fragment{Kind: ai.FragmentInline, Name: att.Name, MimeType: "application/pdf", Data: att.Data}
	}

	text, pages, err := p.pdf.ExtractText(att.Data, p.pdfCharLimit)
	if err != nil {
		p.logger.Warn().Str("file", att.Name).Err(err).Msg("pdf extraction failed")
		return p.note(att, fmt.Sprintf("[Attached PDF %q could not be parsed and was not included]", att.Name))
	}

	body, truncated := capRunes(text, p.pdfCharLimit)
	if truncated {
		body += fmt.Sprintf("\n[content truncated at %d characters]", p.pdfCharLimit)
	}
	return ai.Fragment{
		Kind: ai.FragmentText,
		Name: att.Name,
		Text: fmt.Sprintf("Content of attached PDF %q (%d pages):\n%s", att.Name, pages, body),
	}
}

func (p *Processor) processText(att ai.Attachment) ai.Fragment {
	body, truncated := capRunes(string(att.Data), p.textCharLimit)
	if truncated {
		body += fmt.Sprintf("\n[content truncated at %d characters]", p.textCharLimit)
	}
	return ai.Fragment{
		Kind: ai.FragmentText,
		Name: att.Name,
		Text: fmt.Sprintf("Content of attached file %q:\n%s", att.Name, body),
	}
}

func (p *Processor) note(att ai.Attachment, text string) ai.Fragment {
	p.metrics.PreprocessDegraded.Inc()
	return ai.Fragment{Kind: ai.FragmentNote, Name: att.Name, Text: text}
}

func capRunes(s string, limit int) (string, bool) {
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	runes := []rune(s)
	return string(runes[:limit]), true
}
