package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lotflow/internal/apierror"
	"lotflow/internal/archive"
	"lotflow/internal/document"
	"lotflow/internal/dto"
	"lotflow/internal/events"
	"lotflow/internal/infra"
	"lotflow/internal/model"
	"lotflow/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

var pdfMagic = []byte("%PDF-")

// StoredPDF locates a lot's stored report.
type StoredPDF struct {
	Path     string
	FileName string
}

// DocumentService keeps the server copy of lot reports: it stores uploads,
// renders on demand, streams and mails them, and exports lots to XLSX.
type DocumentService interface {
	Store(ctx context.Context, lotID uuid.UUID, req dto.UploadPDFRequest) (*dto.PDFResponse, error)
	Regenerate(ctx context.Context, lotID uuid.UUID) (*dto.PDFResponse, error)
	Open(ctx context.Context, lotID uuid.UUID) (*StoredPDF, error)
	Email(ctx context.Context, lotID uuid.UUID, to string) error
	ExportXLSX(ctx context.Context, lotID uuid.UUID, w io.Writer) (string, error)
}

type documentService struct {
	lots        repository.LotRepository
	renderer    archive.Renderer
	jobs        JobQueue
	events      events.Publisher
	storagePath string
	log         zerolog.Logger
}

func NewDocumentService(
	lots repository.LotRepository,
	renderer archive.Renderer,
	jobs JobQueue,
	pub events.Publisher,
	storagePath string,
	log zerolog.Logger,
) DocumentService {
	return &documentService{
		lots:        lots,
		renderer:    renderer,
		jobs:        jobs,
		events:      pub,
		storagePath: storagePath,
		log:         log,
	}
}

// Store persists an uploaded report, or renders one when the request carries
// no document. The previous pdf_path stays in place on any failure.
func (s *documentService) Store(ctx context.Context, lotID uuid.UUID, req dto.UploadPDFRequest) (*dto.PDFResponse, error) {
	if req.PDFBase64 == "" {
		return s.Regenerate(ctx, lotID)
	}
	if _, err := s.lots.FindByID(ctx, lotID); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(req.PDFBase64)
	if err != nil {
		return nil, fmt.Errorf("pdf_base64 illisible: %w", apierror.ErrValidation)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, fmt.Errorf("le document transmis n'est pas un PDF: %w", apierror.ErrValidation)
	}
	return s.save(ctx, lotID, data, "upload")
}

func (s *documentService) Regenerate(ctx context.Context, lotID uuid.UUID) (*dto.PDFResponse, error) {
	lot, err := s.lots.GetWithItems(ctx, lotID)
	if err != nil {
		return nil, err
	}
	res, err := s.renderer.Render(ctx, document.Build(*lot, lot.Items, document.ReportDate(*lot)))
	if err != nil {
		return nil, fmt.Errorf("render lot %s: %w", lotID, err)
	}
	return s.save(ctx, lotID, res.PDF, string(res.Engine))
}

func (s *documentService) save(ctx context.Context, lotID uuid.UUID, data []byte, source string) (*dto.PDFResponse, error) {
	path := filepath.Join(s.storagePath, "lot_"+lotID.String()+".pdf")
	if err := infra.WriteFileAtomic(path, data); err != nil {
		return nil, fmt.Errorf("store pdf of lot %s: %w", lotID, err)
	}
	if _, err := s.lots.SetPDFPath(ctx, lotID, path); err != nil {
		return nil, err
	}
	s.log.Info().Str("lot_id", lotID.String()).Str("path", path).Str("source", source).
		Int("bytes", len(data)).Msg("lot pdf stored")
	s.events.Publish(events.Event{Type: events.LotPDFUpdated, LotID: lotID, At: time.Now().UTC()})
	return &dto.PDFResponse{PDFPath: path}, nil
}

func (s *documentService) Open(ctx context.Context, lotID uuid.UUID) (*StoredPDF, error) {
	lot, err := s.lots.FindByID(ctx, lotID)
	if err != nil {
		return nil, err
	}
	if lot.PDFPath == nil || *lot.PDFPath == "" {
		return nil, fmt.Errorf("aucun PDF pour ce lot: %w", apierror.ErrNotFound)
	}
	if _, err := os.Stat(*lot.PDFPath); err != nil {
		return nil, fmt.Errorf("PDF du lot absent du stockage: %w", apierror.ErrNotFound)
	}
	return &StoredPDF{Path: *lot.PDFPath, FileName: reportFileName(*lot, ".pdf")}, nil
}

// Email queues the report for sending, rendering it first when none is stored.
func (s *documentService) Email(ctx context.Context, lotID uuid.UUID, to string) error {
	lot, err := s.lots.FindByID(ctx, lotID)
	if err != nil {
		return err
	}
	path := ""
	if lot.PDFPath != nil {
		path = *lot.PDFPath
	}
	if _, statErr := os.Stat(path); path == "" || statErr != nil {
		res, err := s.Regenerate(ctx, lotID)
		if err != nil {
			return err
		}
		path = res.PDFPath
	}
	return s.jobs.EnqueueEmail(ctx, lotID, to, path)
}

const xlsxSheet = "Lot"

// ExportXLSX writes the lot as a workbook: one sheet of rows, one summary sheet.
func (s *documentService) ExportXLSX(ctx context.Context, lotID uuid.UUID, w io.Writer) (string, error) {
	lot, err := s.lots.GetWithItems(ctx, lotID)
	if err != nil {
		return "", err
	}
	doc := document.Build(*lot, lot.Items, document.ReportDate(*lot))

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return "", err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return "", err
	}

	headers := []interface{}{"N°", "N° de série", "Type", "Marque", "Modèle", "Date", "État", "Technicien"}
	if err := f.SetSheetRow(xlsxSheet, "A1", &headers); err != nil {
		return "", err
	}
	if err := f.SetCellStyle(xlsxSheet, "A1", "H1", headerStyle); err != nil {
		return "", err
	}
	for i, r := range doc.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{r.Number, r.Serial, r.Type, r.Brand, r.Model, r.Date, r.State, r.Technician}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return "", err
		}
	}
	_ = f.SetColWidth(xlsxSheet, "A", "A", 6)
	_ = f.SetColWidth(xlsxSheet, "B", "H", 18)

	const summary = "Résumé"
	if _, err := f.NewSheet(summary); err != nil {
		return "", err
	}
	lines := [][]interface{}{
		{"Lot", displayOrID(*lot)},
		{"Créé le", doc.Header.CreatedAt},
		{"Terminé le", doc.Header.FinishedAt},
		{"Récupéré le", doc.Header.RecoveredAt},
		{"Total", doc.Summary.Total},
		{"En attente", doc.Summary.Pending},
	}
	for _, c := range doc.Summary.Cards {
		lines = append(lines, []interface{}{c.Label, c.Count, c.Share})
	}
	for i, line := range lines {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summary, cell, &line); err != nil {
			return "", err
		}
	}
	_ = f.SetColWidth(summary, "A", "C", 20)

	if err := f.Write(w); err != nil {
		return "", err
	}
	return reportFileName(*lot, ".xlsx"), nil
}

func reportFileName(lot model.Lot, ext string) string {
	return strings.TrimSuffix(filepath.Base(archive.Path("", lot)), ".pdf") + ext
}

func displayOrID(lot model.Lot) string {
	if name := lot.DisplayName(); name != "" {
		return name
	}
	return lot.ID.String()
}
