package handler

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"lotflow/internal/apierror"
	"lotflow/internal/dto"
	"lotflow/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type LotsHandler struct {
	lots service.LotService
	docs service.DocumentService
}

func NewLotsHandler(lots service.LotService, docs service.DocumentService) *LotsHandler {
	return &LotsHandler{lots: lots, docs: docs}
}

// List godoc
// @Summary Lister les lots
// @Tags lots
// @Produce json
// @Param status query string false "active | finished | all" default(active)
// @Success 200 {object} dto.LotListResponse
// @Failure 400 {object} apierror.APIError
// @Router /v1/lots [get]
func (h *LotsHandler) List(c *gin.Context) {
	list, err := h.lots.List(c.Request.Context(), c.DefaultQuery("status", "active"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.LotListResponse{Items: list})
}

// Get godoc
// @Summary Détail d'un lot avec ses équipements
// @Tags lots
// @Produce json
// @Param id path string true "Lot ID"
// @Success 200 {object} dto.LotEnvelope
// @Failure 404 {object} apierror.APIError
// @Router /v1/lots/{id} [get]
func (h *LotsHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	lot, err := h.lots.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.LotEnvelope{Item: *lot})
}

// Create godoc
// @Summary Créer un lot et ses équipements
// @Tags lots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.CreateLotRequest true "Lot"
// @Success 201 {object} dto.CreateLotResponse
// @Failure 409 {object} apierror.APIError
// @Failure 422 {object} apierror.ValidationError
// @Router /v1/lots [post]
func (h *LotsHandler) Create(c *gin.Context) {
	var req dto.CreateLotRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.lots.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Update godoc
// @Summary Renommer, terminer ou marquer récupéré un lot
// @Tags lots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Lot ID"
// @Param body body dto.UpdateLotRequest true "Modifications"
// @Success 200 {object} dto.LotEnvelope
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/lots/{id} [put]
func (h *LotsHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateLotRequest
	if !bindAndValidate(c, &req) {
		return
	}
	lot, err := h.lots.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.LotEnvelope{Item: *lot})
}

// UpdateItem godoc
// @Summary Modifier l'état ou le technicien d'un équipement
// @Tags lots
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Item ID"
// @Param body body dto.UpdateItemRequest true "Modifications"
// @Success 200 {object} dto.UpdateItemResponse
// @Failure 404 {object} apierror.APIError
// @Failure 409 {object} apierror.APIError
// @Router /v1/lots/items/{id} [put]
func (h *LotsHandler) UpdateItem(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateItemRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.lots.UpdateItem(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// UploadPDF godoc
// @Summary Déposer ou régénérer le PDF d'un lot
// @Description Sans pdf_base64 (ou avec regenerate=true) le serveur génère le document.
// @Tags documents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Lot ID"
// @Param body body dto.UploadPDFRequest false "PDF encodé en base64"
// @Success 200 {object} dto.PDFResponse
// @Failure 400 {object} apierror.APIError
// @Failure 404 {object} apierror.APIError
// @Router /v1/lots/{id}/pdf [post]
func (h *LotsHandler) UploadPDF(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.UploadPDFRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalide: "+err.Error()))
		return
	}
	resp, err := h.docs.Store(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// DownloadPDF godoc
// @Summary Télécharger le PDF d'un lot
// @Tags documents
// @Produce application/pdf
// @Param id path string true "Lot ID"
// @Success 200 {file} binary
// @Failure 404 {object} apierror.APIError
// @Router /v1/lots/{id}/pdf [get]
func (h *LotsHandler) DownloadPDF(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	stored, err := h.docs.Open(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Type", "application/pdf")
	c.FileAttachment(stored.Path, stored.FileName)
}

// Email godoc
// @Summary Envoyer le PDF d'un lot par e-mail
// @Tags documents
// @Accept json
// @Security BearerAuth
// @Param id path string true "Lot ID"
// @Param body body dto.EmailLotRequest true "Destinataire"
// @Success 202
// @Failure 404 {object} apierror.APIError
// @Router /v1/lots/{id}/email [post]
func (h *LotsHandler) Email(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.EmailLotRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if err := h.docs.Email(c.Request.Context(), id, req.To); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// ExportXLSX godoc
// @Summary Exporter un lot au format XLSX
// @Tags documents
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Lot ID"
// @Success 200 {file} binary
// @Failure 404 {object} apierror.APIError
// @Router /v1/lots/{id}/export.xlsx [get]
func (h *LotsHandler) ExportXLSX(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var buf bytes.Buffer
	name, err := h.docs.ExportXLSX(c.Request.Context(), id, &buf)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
