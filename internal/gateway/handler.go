package gateway

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dikshant-ux/vellkopoint/internal/catalog"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/internal/source"
	"github.com/dikshant-ux/vellkopoint/pkg/errors"
)

type Handler struct {
	service *Service
	catalog *catalog.Service
	logger  logger.Logger
}

func NewHandler(service *Service, cat *catalog.Service, log logger.Logger) *Handler {
	return &Handler{
		service: service,
		catalog: cat,
		logger:  log,
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/ingest/:apiKey", h.Ingest)
		v1.GET("/ingest/:apiKey", h.Ingest)

		schema := v1.Group("/schema/unknown-fields")
		{
			schema.GET("", h.ListUnknownFields)
			schema.POST("/map", h.MapUnknownField)
			schema.POST("/ignore", h.IgnoreUnknownField)
		}
	}
}

// Ingest godoc
// @Summary      Ingest a lead for a source
// @Description  Accepts a lead payload and queues it for processing. POST bodies are JSON or form encoded; GET payloads come from query parameters.
// @Tags         ingest
// @Accept       json
// @Produce      json
// @Param        apiKey  path      string                  true  "Source API key"
// @Param        lead    body      map[string]interface{}  true  "Lead payload"
// @Success      202     {object}  IntakeResponse
// @Failure      401     {object}  map[string]interface{}
// @Failure      403     {object}  map[string]interface{}
// @Failure      503     {object}  map[string]interface{}
// @Router       /ingest/{apiKey} [post]
func (h *Handler) Ingest(c *gin.Context) {
	payload := h.extractPayload(c)

	resp, err := h.service.Intake(c.Request.Context(), c.Param("apiKey"), payload)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// extractPayload pulls lead data from wherever the vendor put it: JSON
// body, form body, or query string. Vendors integrate however their
// tooling allows; being strict here loses leads.
func (h *Handler) extractPayload(c *gin.Context) map[string]interface{} {
	payload := make(map[string]interface{})

	if c.Request.Method == http.MethodPost {
		if err := c.ShouldBindJSON(&payload); err == nil && len(payload) > 0 {
			return payload
		}
		if err := c.Request.ParseForm(); err == nil {
			for k, v := range c.Request.PostForm {
				if len(v) > 0 {
					payload[k] = v[0]
				}
			}
			if len(payload) > 0 {
				return payload
			}
		}
	}

	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			payload[k] = v[0]
		}
	}
	return payload
}

// ListUnknownFields godoc
// @Summary      List unknown fields
// @Description  Returns payload keys the mapper could not place, most recently seen first
// @Tags         schema
// @Produce      json
// @Param        tenant_id  query     string  true   "Tenant ID"
// @Param        status     query     string  false  "Status filter (default unmapped)"
// @Param        limit      query     int     false  "Maximum entries to return"
// @Success      200        {array}   catalog.UnknownField
// @Failure      400        {object}  map[string]interface{}
// @Router       /schema/unknown-fields [get]
func (h *Handler) ListUnknownFields(c *gin.Context) {
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithDetail("field", "tenant_id")))
		return
	}

	status := c.DefaultQuery("status", catalog.UnknownStatusUnmapped)
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "0"), 10, 64)

	fields, err := h.catalog.ListUnknownFields(c.Request.Context(), tenantID, status, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, fields)
}

type MapFieldRequest struct {
	TenantID      string `json:"tenant_id" binding:"required"`
	OwnerID       string `json:"owner_id"`
	SourceID      string `json:"source_id" binding:"required"`
	FieldName     string `json:"field_name" binding:"required"`
	TargetField   string `json:"target_field" binding:"required"`
	CreateField   bool   `json:"create_field"`
	FieldLabel    string `json:"field_label"`
	FieldDataType string `json:"field_data_type"`
	Scope         string `json:"scope"`
	Confidence    string `json:"confidence"`
}

// MapUnknownField godoc
// @Summary      Map an unknown field to a canonical field
// @Description  Promotes pending rules, registers the alias at the requested scope, and queues reprocessing for affected sources
// @Tags         schema
// @Accept       json
// @Produce      json
// @Param        mapping  body      MapFieldRequest  true  "Mapping request"
// @Success      200      {object}  catalog.RemapResult
// @Failure      400      {object}  map[string]interface{}
// @Router       /schema/unknown-fields/map [post]
func (h *Handler) MapUnknownField(c *gin.Context) {
	var req MapFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	result, err := h.catalog.MapUnknownField(c.Request.Context(), catalog.RemapRequest{
		TenantID:      req.TenantID,
		OwnerID:       req.OwnerID,
		SourceID:      req.SourceID,
		FieldName:     req.FieldName,
		TargetField:   req.TargetField,
		CreateField:   req.CreateField,
		FieldLabel:    req.FieldLabel,
		FieldDataType: req.FieldDataType,
		Scope:         req.Scope,
		Confidence:    req.Confidence,
	})
	if err != nil {
		if stderrors.Is(err, catalog.ErrFieldNotFound) || stderrors.Is(err, source.ErrSourceNotFound) {
			c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
			return
		}
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type IgnoreFieldRequest struct {
	TenantID  string `json:"tenant_id" binding:"required"`
	FieldName string `json:"field_name" binding:"required"`
}

// IgnoreUnknownField godoc
// @Summary      Ignore an unknown field
// @Description  Marks the field ignored; future sightings are dropped without tracking
// @Tags         schema
// @Accept       json
// @Produce      json
// @Param        field  body      IgnoreFieldRequest  true  "Field to ignore"
// @Success      204    "ignored"
// @Failure      400    {object}  map[string]interface{}
// @Router       /schema/unknown-fields/ignore [post]
func (h *Handler) IgnoreUnknownField(c *gin.Context) {
	var req IgnoreFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	if err := h.catalog.IgnoreUnknownField(c.Request.Context(), req.TenantID, req.FieldName); err != nil {
		h.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
