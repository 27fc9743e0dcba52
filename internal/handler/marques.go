package handler

import (
	"net/http"

	"lotflow/internal/dto"
	"lotflow/internal/service"

	"github.com/gin-gonic/gin"
)

type MarquesHandler struct{ svc service.CatalogService }

func NewMarquesHandler(svc service.CatalogService) *MarquesHandler {
	return &MarquesHandler{svc: svc}
}

// List GET /v1/marques
func (h *MarquesHandler) List(c *gin.Context) {
	list, err := h.svc.ListMarques(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MarqueListResponse{Items: list})
}

// ListAll GET /v1/marques/all returns brands with their models.
func (h *MarquesHandler) ListAll(c *gin.Context) {
	list, err := h.svc.ListAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MarqueListResponse{Items: list})
}

// ListModeles GET /v1/marques/:id/modeles
func (h *MarquesHandler) ListModeles(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	list, err := h.svc.ListModeles(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ModeleListResponse{Items: list})
}

// Create POST /v1/marques
func (h *MarquesHandler) Create(c *gin.Context) {
	var req dto.CreateMarqueRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateMarque(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// CreateModele POST /v1/marques/:id/modeles
func (h *MarquesHandler) CreateModele(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.CreateModeleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateModele(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
