package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"

	"lotflow/internal/infra"

	"github.com/rs/zerolog"
)

// Engine names the path that produced a PDF.
type Engine string

const (
	EngineChrome Engine = "chrome"
	EngineFPDF   Engine = "fpdf"
)

// Result is a rendered report.
type Result struct {
	PDF    []byte
	Engine Engine
	Rows   int
}

// Printer turns an HTML page into a PDF.
type Printer interface {
	PrintPDF(ctx context.Context, html []byte) ([]byte, error)
}

// Renderer prints reports from an HTML template through a headless browser and
// falls back to direct fpdf drawing when no template is available or the
// browser fails.
type Renderer struct {
	templatePath string
	printer      Printer
	breaker      *infra.Breaker
	log          zerolog.Logger
}

// NewRenderer builds a renderer. A nil printer or an empty template path means
// every render goes through fpdf.
func NewRenderer(templatePath string, printer Printer, log zerolog.Logger) *Renderer {
	return &Renderer{
		templatePath: templatePath,
		printer:      printer,
		breaker:      infra.NewBreaker(infra.BreakerConfig{FailureThreshold: 3}),
		log:          log,
	}
}

// Render produces the PDF of doc. It only fails when the fallback path fails.
func (r *Renderer) Render(ctx context.Context, doc *Document) (*Result, error) {
	if r.printer != nil && r.templatePath != "" {
		pdf, err := r.renderChrome(ctx, doc)
		if err == nil {
			return &Result{PDF: pdf, Engine: EngineChrome, Rows: len(doc.Rows)}, nil
		}
		ev := r.log.Warn().Err(err).Str("lot_id", doc.Header.LotID)
		if errors.Is(err, errNoTemplate) {
			ev = r.log.Info().Str("lot_id", doc.Header.LotID)
		}
		ev.Msg("document: falling back to fpdf")
	}

	pdf, err := renderFPDF(doc)
	if err != nil {
		return nil, err
	}
	return &Result{PDF: pdf, Engine: EngineFPDF, Rows: len(doc.Rows)}, nil
}

var errNoTemplate = errors.New("document: template not available")

func (r *Renderer) renderChrome(ctx context.Context, doc *Document) ([]byte, error) {
	html, err := r.fillTemplate(doc)
	if err != nil {
		return nil, err
	}

	var pdf []byte
	err = r.breaker.Execute(func() error {
		out, err := r.printer.PrintPDF(ctx, html)
		if err != nil {
			return err
		}
		pdf = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("document: print: %w", err)
	}
	return pdf, nil
}

func (r *Renderer) fillTemplate(doc *Document) ([]byte, error) {
	src, err := os.ReadFile(r.templatePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errNoTemplate
		}
		return nil, fmt.Errorf("document: read template: %w", err)
	}
	tmpl, err := template.New("lot").Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("document: parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("document: execute template: %w", err)
	}
	return buf.Bytes(), nil
}
