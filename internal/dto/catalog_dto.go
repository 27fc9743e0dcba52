package dto

import (
	"lotflow/internal/model"

	"github.com/google/uuid"
)

type CreateMarqueRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type CreateModeleRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type ModeleResponse struct {
	ID       uuid.UUID `json:"id"`
	MarqueID uuid.UUID `json:"marque_id"`
	Name     string    `json:"name"`
}

type MarqueResponse struct {
	ID      uuid.UUID        `json:"id"`
	Name    string           `json:"name"`
	Modeles []ModeleResponse `json:"modeles,omitempty"`
}

type MarqueListResponse struct {
	Items []MarqueResponse `json:"items"`
}

type ModeleListResponse struct {
	Items []ModeleResponse `json:"items"`
}

func ModeleFromModel(m model.Modele) ModeleResponse {
	return ModeleResponse{ID: m.ID, MarqueID: m.MarqueID, Name: m.Name}
}

// MarqueFromModel maps a brand; nested models are included when loaded.
func MarqueFromModel(m model.Marque) MarqueResponse {
	resp := MarqueResponse{ID: m.ID, Name: m.Name}
	if m.Modeles != nil {
		resp.Modeles = make([]ModeleResponse, 0, len(m.Modeles))
		for _, md := range m.Modeles {
			resp.Modeles = append(resp.Modeles, ModeleFromModel(md))
		}
	}
	return resp
}
