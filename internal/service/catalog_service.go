package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"lotflow/internal/apierror"
	"lotflow/internal/dto"
	"lotflow/internal/model"
	"lotflow/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// CatalogService manages the brand/model reference data.
type CatalogService interface {
	ListMarques(ctx context.Context) ([]dto.MarqueResponse, error)
	ListAll(ctx context.Context) ([]dto.MarqueResponse, error)
	ListModeles(ctx context.Context, marqueID uuid.UUID) ([]dto.ModeleResponse, error)
	CreateMarque(ctx context.Context, req dto.CreateMarqueRequest) (*dto.MarqueResponse, error)
	CreateModele(ctx context.Context, marqueID uuid.UUID, req dto.CreateModeleRequest) (*dto.ModeleResponse, error)
	Seed(ctx context.Context, path string) error
}

type catalogService struct {
	repo repository.ReferenceDataRepository
	log  zerolog.Logger
}

func NewCatalogService(repo repository.ReferenceDataRepository, log zerolog.Logger) CatalogService {
	return &catalogService{repo: repo, log: log}
}

func (s *catalogService) ListMarques(ctx context.Context) ([]dto.MarqueResponse, error) {
	list, err := s.repo.ListMarques(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]dto.MarqueResponse, 0, len(list))
	for _, m := range list {
		m.Modeles = nil
		result = append(result, dto.MarqueFromModel(m))
	}
	return result, nil
}

func (s *catalogService) ListAll(ctx context.Context) ([]dto.MarqueResponse, error) {
	list, err := s.repo.ListMarquesWithModeles(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]dto.MarqueResponse, 0, len(list))
	for _, m := range list {
		result = append(result, dto.MarqueFromModel(m))
	}
	return result, nil
}

func (s *catalogService) ListModeles(ctx context.Context, marqueID uuid.UUID) ([]dto.ModeleResponse, error) {
	if _, err := s.repo.FindMarque(ctx, marqueID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListModeles(ctx, marqueID)
	if err != nil {
		return nil, err
	}
	result := make([]dto.ModeleResponse, 0, len(list))
	for _, m := range list {
		result = append(result, dto.ModeleFromModel(m))
	}
	return result, nil
}

func (s *catalogService) CreateMarque(ctx context.Context, req dto.CreateMarqueRequest) (*dto.MarqueResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("nom de marque requis: %w", apierror.ErrValidation)
	}
	existing, err := s.repo.FindMarqueByName(ctx, name)
	if err != nil && !errors.Is(err, apierror.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("la marque %q existe déjà: %w", existing.Name, apierror.ErrConflict)
	}

	m := &model.Marque{Name: name}
	if err := s.repo.CreateMarque(ctx, m); err != nil {
		return nil, err
	}
	resp := dto.MarqueFromModel(*m)
	return &resp, nil
}

func (s *catalogService) CreateModele(ctx context.Context, marqueID uuid.UUID, req dto.CreateModeleRequest) (*dto.ModeleResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("nom de modèle requis: %w", apierror.ErrValidation)
	}
	if _, err := s.repo.FindMarque(ctx, marqueID); err != nil {
		return nil, err
	}
	m := &model.Modele{MarqueID: marqueID, Name: name}
	if err := s.repo.CreateModele(ctx, m); err != nil {
		if errors.Is(err, apierror.ErrConflict) {
			return nil, fmt.Errorf("le modèle %q existe déjà pour cette marque: %w", name, apierror.ErrConflict)
		}
		return nil, err
	}
	resp := dto.ModeleFromModel(*m)
	return &resp, nil
}

// seedFile is the catalog seed format:
//
//	marques:
//	  - name: Dell
//	    modeles: [Latitude 5490, OptiPlex 7050]
type seedFile struct {
	Marques []struct {
		Name    string   `yaml:"name"`
		Modeles []string `yaml:"modeles"`
	} `yaml:"marques"`
}

// Seed loads brands and models from a YAML file. Entries that already exist
// are skipped, so it is safe to run on every start.
func (s *catalogService) Seed(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog seed: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("catalog seed: parse %s: %w", path, err)
	}

	added := 0
	for _, entry := range seed.Marques {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}
		marque, err := s.repo.FindMarqueByName(ctx, name)
		if errors.Is(err, apierror.ErrNotFound) {
			marque = &model.Marque{Name: name}
			if err := s.repo.CreateMarque(ctx, marque); err != nil {
				return fmt.Errorf("catalog seed: marque %q: %w", name, err)
			}
			added++
		} else if err != nil {
			return fmt.Errorf("catalog seed: marque %q: %w", name, err)
		}

		existing, err := s.repo.ListModeles(ctx, marque.ID)
		if err != nil {
			return fmt.Errorf("catalog seed: modeles of %q: %w", name, err)
		}
		known := make(map[string]bool, len(existing))
		for _, m := range existing {
			known[strings.ToLower(m.Name)] = true
		}
		for _, mn := range entry.Modeles {
			mn = strings.TrimSpace(mn)
			if mn == "" || known[strings.ToLower(mn)] {
				continue
			}
			if err := s.repo.CreateModele(ctx, &model.Modele{MarqueID: marque.ID, Name: mn}); err != nil {
				return fmt.Errorf("catalog seed: modele %q: %w", mn, err)
			}
			known[strings.ToLower(mn)] = true
			added++
		}
	}
	s.log.Info().Str("file", path).Int("added", added).Msg("catalog seed applied")
	return nil
}
