package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lotflow/internal/apierror"
	"lotflow/internal/completion"
	"lotflow/internal/dto"
	"lotflow/internal/events"
	"lotflow/internal/model"
	"lotflow/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobQueue schedules background work. The worker dispatcher implements it.
type JobQueue interface {
	EnqueuePDF(ctx context.Context, lotID uuid.UUID) error
	EnqueueEmail(ctx context.Context, lotID uuid.UUID, to, pdfPath string) error
}

// LotService owns the lot lifecycle: creation, item edits, finishing and
// recovery. Finishing is always confirmed against the stored items.
type LotService interface {
	Create(ctx context.Context, req dto.CreateLotRequest) (*dto.CreateLotResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.LotDetailResponse, error)
	List(ctx context.Context, status string) ([]dto.LotResponse, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, req dto.UpdateItemRequest) (*dto.UpdateItemResponse, error)
	Update(ctx context.Context, id uuid.UUID, req dto.UpdateLotRequest) (*dto.LotDetailResponse, error)
}

type lotService struct {
	lots    repository.LotRepository
	catalog repository.ReferenceDataRepository
	events  events.Publisher
	jobs    JobQueue
	log     zerolog.Logger
	now     func() time.Time
}

func NewLotService(
	lots repository.LotRepository,
	catalog repository.ReferenceDataRepository,
	pub events.Publisher,
	jobs JobQueue,
	log zerolog.Logger,
) LotService {
	return &lotService{
		lots:    lots,
		catalog: catalog,
		events:  pub,
		jobs:    jobs,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *lotService) Create(ctx context.Context, req dto.CreateLotRequest) (*dto.CreateLotResponse, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("un lot doit contenir au moins un équipement: %w", apierror.ErrValidation)
	}

	now := s.now()
	lot := &model.Lot{LotName: cleanName(req.LotName), CreatedAt: now, UpdatedAt: now}
	items := make([]model.LotItem, 0, len(req.Items))
	seen := make(map[string]int, len(req.Items))

	for i, in := range req.Items {
		serial := strings.TrimSpace(in.SerialNumber)
		if serial == "" {
			return nil, fmt.Errorf("ligne %d: numéro de série requis: %w", i+1, apierror.ErrValidation)
		}
		key := model.SerialKey(serial)
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("ligne %d: numéro de série %q déjà présent ligne %d: %w", i+1, serial, prev, apierror.ErrConflict)
		}
		seen[key] = i + 1

		if !model.ValidType(in.Type) {
			return nil, fmt.Errorf("ligne %d: type %q inconnu: %w", i+1, in.Type, apierror.ErrValidation)
		}
		entry := in.EntryType
		if entry == "" {
			entry = model.EntryManual
		}
		if !model.ValidEntryType(entry) {
			return nil, fmt.Errorf("ligne %d: origine %q inconnue: %w", i+1, entry, apierror.ErrValidation)
		}
		if in.State != "" && !model.ValidState(in.State) {
			return nil, fmt.Errorf("ligne %d: état %q inconnu: %w", i+1, in.State, apierror.ErrValidation)
		}
		if err := s.checkBrandModel(ctx, in.MarqueID, in.ModeleID); err != nil {
			return nil, fmt.Errorf("ligne %d: %w", i+1, err)
		}

		it := model.LotItem{
			SerialNumber: serial,
			Type:         in.Type,
			MarqueID:     in.MarqueID,
			ModeleID:     in.ModeleID,
			EntryType:    entry,
			Date:         now.Format("2006-01-02"),
			Time:         now.Format("15:04:05"),
			State:        in.State,
			Technician:   strings.TrimSpace(in.Technician),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if it.State != "" {
			it.StateChangedAt = &now
		}
		items = append(items, it)
	}

	if err := s.lots.CreateLot(ctx, lot, items); err != nil {
		return nil, err
	}
	s.log.Info().Str("lot_id", lot.ID.String()).Int("items", len(items)).Msg("lot created")
	s.events.Publish(events.Event{Type: events.LotCreated, LotID: lot.ID, At: now})

	// a lot created with every item already classified is finished at once
	if completion.Evaluate(items).Complete {
		if _, err := s.finish(ctx, lot, now); err != nil {
			return nil, err
		}
	}
	return &dto.CreateLotResponse{ID: lot.ID, Total: len(items)}, nil
}

// checkBrandModel verifies the brand exists and the model belongs to it.
func (s *lotService) checkBrandModel(ctx context.Context, marqueID, modeleID *uuid.UUID) error {
	if modeleID != nil && marqueID == nil {
		return fmt.Errorf("modèle sans marque: %w", apierror.ErrValidation)
	}
	if marqueID == nil {
		return nil
	}
	if _, err := s.catalog.FindMarque(ctx, *marqueID); err != nil {
		if errors.Is(err, apierror.ErrNotFound) {
			return fmt.Errorf("marque inconnue: %w", apierror.ErrValidation)
		}
		return err
	}
	if modeleID == nil {
		return nil
	}
	m, err := s.catalog.FindModele(ctx, *modeleID)
	if err != nil {
		if errors.Is(err, apierror.ErrNotFound) {
			return fmt.Errorf("modèle inconnu: %w", apierror.ErrValidation)
		}
		return err
	}
	if m.MarqueID != *marqueID {
		return fmt.Errorf("le modèle n'appartient pas à la marque: %w", apierror.ErrValidation)
	}
	return nil
}

func (s *lotService) Get(ctx context.Context, id uuid.UUID) (*dto.LotDetailResponse, error) {
	lot, err := s.lots.GetWithItems(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := dto.LotFromModel(*lot)
	return &resp, nil
}

func (s *lotService) List(ctx context.Context, status string) ([]dto.LotResponse, error) {
	st, ok := model.ParseLotStatus(status)
	if !ok {
		return nil, fmt.Errorf("statut %q inconnu: %w", status, apierror.ErrValidation)
	}
	list, err := s.lots.List(ctx, st)
	if err != nil {
		return nil, err
	}
	result := make([]dto.LotResponse, 0, len(list))
	for _, l := range list {
		result = append(result, dto.SummaryFromModel(l))
	}
	return result, nil
}

// UpdateItem applies a partial edit. Completion is evaluated on the item set
// read back after the write. Edits to a finished lot are accepted only when
// the item stays complete: there is no reopening.
func (s *lotService) UpdateItem(ctx context.Context, itemID uuid.UUID, req dto.UpdateItemRequest) (*dto.UpdateItemResponse, error) {
	patch := model.ItemPatch{State: req.State, Technician: req.Technician}
	if patch.State != nil && *patch.State != "" && !model.ValidState(*patch.State) {
		return nil, fmt.Errorf("état %q inconnu: %w", *patch.State, apierror.ErrValidation)
	}
	if patch.Technician != nil {
		t := strings.TrimSpace(*patch.Technician)
		patch.Technician = &t
	}

	current, err := s.lots.FindItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	lot, err := s.lots.FindByID(ctx, current.LotID)
	if err != nil {
		return nil, err
	}
	if lot.IsFinished() {
		next := *current
		if patch.State != nil {
			next.State = *patch.State
		}
		if patch.Technician != nil {
			next.Technician = *patch.Technician
		}
		if !next.IsComplete() {
			return nil, fmt.Errorf("lot déjà terminé, l'équipement doit rester complet: %w", apierror.ErrConflict)
		}
	}

	now := s.now()
	updated, err := s.lots.UpdateItem(ctx, itemID, patch, now)
	if err != nil {
		return nil, err
	}
	s.events.Publish(events.Event{Type: events.ItemUpdated, LotID: lot.ID, ItemID: &updated.ID, At: now})

	items, err := s.lots.ListItems(ctx, lot.ID)
	if err != nil {
		return nil, err
	}
	res := completion.Evaluate(items)
	if res.Complete && !lot.IsFinished() {
		if _, err := s.finish(ctx, lot, now); err != nil {
			return nil, err
		}
	}
	return &dto.UpdateItemResponse{Item: dto.ItemFromModel(*updated), LotFinished: res.Complete}, nil
}

// Update applies a partial lot update: rename, finish, recover. Every
// precondition is checked before the first write, so a rejected request
// leaves the lot untouched.
func (s *lotService) Update(ctx context.Context, id uuid.UUID, req dto.UpdateLotRequest) (*dto.LotDetailResponse, error) {
	lot, err := s.lots.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()

	status := ""
	if req.Status != nil {
		status = *req.Status
	}
	wantFinish := status == "finished" || req.FinishedAt != nil
	wantRecover := status == "recovered" || req.RecoveredAt != nil

	if wantFinish {
		items, err := s.lots.ListItems(ctx, id)
		if err != nil {
			return nil, err
		}
		res := completion.Evaluate(items)
		if !res.Complete {
			return nil, fmt.Errorf("lot incomplet (%d/%d en attente): %w", res.Pending, res.Total, apierror.ErrConflict)
		}
	}
	if wantRecover && !wantFinish && !lot.IsFinished() {
		return nil, fmt.Errorf("lot non terminé, récupération impossible: %w", apierror.ErrConflict)
	}

	if req.LotName != nil {
		if lot, err = s.lots.Rename(ctx, id, cleanName(req.LotName)); err != nil {
			return nil, err
		}
		s.events.Publish(events.Event{Type: events.LotUpdated, LotID: id, At: now})
	}

	if wantFinish {
		at := now
		if req.FinishedAt != nil {
			at = req.FinishedAt.UTC()
		}
		if lot, err = s.finish(ctx, lot, at); err != nil {
			return nil, err
		}
	}

	if wantRecover {
		at := now
		if req.RecoveredAt != nil {
			at = req.RecoveredAt.UTC()
		}
		wasRecovered := lot.IsRecovered()
		if lot, err = s.lots.MarkRecovered(ctx, id, at); err != nil {
			return nil, err
		}
		if !wasRecovered {
			s.log.Info().Str("lot_id", id.String()).Msg("lot recovered")
			s.events.Publish(events.Event{Type: events.LotRecovered, LotID: id, At: now})
		}
	}

	return s.Get(ctx, lot.ID)
}

// finish stamps finished_at once and schedules the server-side PDF so the
// pointer converges even when no station archives the lot.
func (s *lotService) finish(ctx context.Context, lot *model.Lot, at time.Time) (*model.Lot, error) {
	wasFinished := lot.IsFinished()
	finished, err := s.lots.MarkFinished(ctx, lot.ID, at)
	if err != nil {
		return nil, err
	}
	if wasFinished {
		return finished, nil
	}
	s.log.Info().Str("lot_id", lot.ID.String()).Time("finished_at", *finished.FinishedAt).Msg("lot finished")
	s.events.Publish(events.Event{Type: events.LotFinished, LotID: lot.ID, At: s.now()})
	if err := s.jobs.EnqueuePDF(ctx, lot.ID); err != nil {
		// the retry cron picks up finished lots without a PDF
		s.log.Warn().Err(err).Str("lot_id", lot.ID.String()).Msg("lot finished: PDF job not enqueued")
	}
	return finished, nil
}

func cleanName(name *string) *string {
	if name == nil {
		return nil
	}
	n := strings.TrimSpace(*name)
	if n == "" {
		return nil
	}
	return &n
}
