package dto

import (
	"time"

	"lotflow/internal/completion"
	"lotflow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ── Request DTOs ──────────────────────────────────────────────────────────────

type LotItemInput struct {
	SerialNumber string     `json:"serial_number" validate:"required,max=120"`
	Type         string     `json:"type"          validate:"required,oneof=portable fixe ecran autres"`
	MarqueID     *uuid.UUID `json:"marque_id"`
	ModeleID     *uuid.UUID `json:"modele_id"`
	EntryType    string     `json:"entry_type"    validate:"omitempty,oneof=scan manual"`
	State        string     `json:"state"`
	Technician   string     `json:"technician"    validate:"max=120"`
}

type CreateLotRequest struct {
	LotName *string        `json:"lot_name" validate:"omitempty,max=200"`
	Items   []LotItemInput `json:"items"    validate:"required,min=1,dive"`
}

// UpdateLotRequest is a partial update: nil fields are left alone.
type UpdateLotRequest struct {
	LotName     *string    `json:"lot_name"     validate:"omitempty,max=200"`
	Status      *string    `json:"status"       validate:"omitempty,oneof=finished recovered"`
	FinishedAt  *time.Time `json:"finished_at"`
	RecoveredAt *time.Time `json:"recovered_at"`
}

type UpdateItemRequest struct {
	State      *string `json:"state"`
	Technician *string `json:"technician" validate:"omitempty,max=120"`
}

type UploadPDFRequest struct {
	PDFBase64  string `json:"pdf_base64"`
	Regenerate bool   `json:"regenerate"`
}

type EmailLotRequest struct {
	To string `json:"to" validate:"required,email"`
}

// ── Response DTOs ─────────────────────────────────────────────────────────────

type CreateLotResponse struct {
	ID    uuid.UUID `json:"id"`
	Total int       `json:"total"`
}

type LotItemResponse struct {
	ID             uuid.UUID  `json:"id"`
	LotID          uuid.UUID  `json:"lot_id"`
	Position       int        `json:"position"`
	SerialNumber   string     `json:"serial_number"`
	Type           string     `json:"type"`
	MarqueID       *uuid.UUID `json:"marque_id"`
	MarqueName     string     `json:"marque_name,omitempty"`
	ModeleID       *uuid.UUID `json:"modele_id"`
	ModeleName     string     `json:"modele_name,omitempty"`
	EntryType      string     `json:"entry_type"`
	Date           string     `json:"date"`
	Time           string     `json:"time"`
	State          string     `json:"state"`
	Technician     string     `json:"technician"`
	StateChangedAt *time.Time `json:"state_changed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LotResponse is a lot with its counters, as listed.
type LotResponse struct {
	ID          uuid.UUID         `json:"id"`
	LotName     *string           `json:"lot_name"`
	FinishedAt  *time.Time        `json:"finished_at"`
	RecoveredAt *time.Time        `json:"recovered_at"`
	PDFPath     *string           `json:"pdf_path"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Total       int               `json:"total"`
	Pending     int               `json:"pending"`
	Recond      int               `json:"recond"`
	Pieces      int               `json:"pieces"`
	HS          int               `json:"hs"`
}

// LotDetailResponse is a single lot read. Items is always present on the
// wire, an empty lot sends "items": [].
type LotDetailResponse struct {
	LotResponse
	Items []LotItemResponse `json:"items"`
}

type LotEnvelope struct {
	Item LotDetailResponse `json:"item"`
}

type LotListResponse struct {
	Items []LotResponse `json:"items"`
}

type UpdateItemResponse struct {
	Item        LotItemResponse `json:"item"`
	LotFinished bool            `json:"lotFinished"`
}

type PDFResponse struct {
	PDFPath string `json:"pdf_path"`
}

// ── Mapping ───────────────────────────────────────────────────────────────────

func ItemFromModel(it model.LotItem) LotItemResponse {
	return LotItemResponse{
		ID:             it.ID,
		LotID:          it.LotID,
		Position:       it.Position,
		SerialNumber:   it.SerialNumber,
		Type:           it.Type,
		MarqueID:       it.MarqueID,
		MarqueName:     it.MarqueName,
		ModeleID:       it.ModeleID,
		ModeleName:     it.ModeleName,
		EntryType:      it.EntryType,
		Date:           it.Date,
		Time:           it.Time,
		State:          it.State,
		Technician:     it.Technician,
		StateChangedAt: it.StateChangedAt,
		CreatedAt:      it.CreatedAt,
		UpdatedAt:      it.UpdatedAt,
	}
}

func (r LotItemResponse) ToModel() model.LotItem {
	return model.LotItem{
		ID:             r.ID,
		LotID:          r.LotID,
		Position:       r.Position,
		SerialNumber:   r.SerialNumber,
		Type:           r.Type,
		MarqueID:       r.MarqueID,
		MarqueName:     r.MarqueName,
		ModeleID:       r.ModeleID,
		ModeleName:     r.ModeleName,
		EntryType:      r.EntryType,
		Date:           r.Date,
		Time:           r.Time,
		State:          r.State,
		Technician:     r.Technician,
		StateChangedAt: r.StateChangedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// SummaryFromModel maps a listing row.
func SummaryFromModel(s model.LotSummary) LotResponse {
	return LotResponse{
		ID:          s.ID,
		LotName:     s.LotName,
		FinishedAt:  s.FinishedAt,
		RecoveredAt: s.RecoveredAt,
		PDFPath:     s.PDFPath,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		Total:       s.Total,
		Pending:     s.Pending,
		Recond:      s.Recond,
		Pieces:      s.Pieces,
		HS:          s.HS,
	}
}

// LotFromModel maps a lot with its items; counters are computed from the items.
func LotFromModel(lot model.Lot) LotDetailResponse {
	resp := LotDetailResponse{LotResponse: SummaryFromModel(completion.Summarize(lot, lot.Items))}
	resp.Items = make([]LotItemResponse, 0, len(lot.Items))
	for _, it := range lot.Items {
		resp.Items = append(resp.Items, ItemFromModel(it))
	}
	return resp
}

// NormalizeSummary converts a listed lot read from the wire into the internal
// summary. Listing rows carry no items, so the received counters are kept.
func NormalizeSummary(log zerolog.Logger, r LotResponse) (model.LotSummary, []model.LotItem) {
	return normalize(log, r, nil)
}

// NormalizeDetail converts a single lot read from the wire. The counters are
// recomputed from the items and any disagreement with the received counters
// is logged.
func NormalizeDetail(log zerolog.Logger, r LotDetailResponse) (model.LotSummary, []model.LotItem) {
	wire := r.Items
	if wire == nil {
		wire = []LotItemResponse{}
	}
	return normalize(log, r.LotResponse, wire)
}

func normalize(log zerolog.Logger, r LotResponse, wire []LotItemResponse) (model.LotSummary, []model.LotItem) {
	lot := model.Lot{
		ID:          r.ID,
		LotName:     r.LotName,
		FinishedAt:  r.FinishedAt,
		RecoveredAt: r.RecoveredAt,
		PDFPath:     r.PDFPath,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	received := model.LotSummary{
		Lot:     lot,
		Total:   r.Total,
		Pending: r.Pending,
		Recond:  r.Recond,
		Pieces:  r.Pieces,
		HS:      r.HS,
	}
	if wire == nil {
		return received, nil
	}
	items := make([]model.LotItem, 0, len(wire))
	for _, it := range wire {
		items = append(items, it.ToModel())
	}
	received.Lot.Items = items
	fresh := completion.Reconcile(log, received, items)
	return fresh, items
}
