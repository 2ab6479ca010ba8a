package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	semanticmodeldomain "github.com/smallbiznis/lunara/internal/semanticmodel/domain"
	"github.com/smallbiznis/lunara/pkg/db/pagination"
)

type generateSemanticModelRequest struct {
	ID           *string  `json:"id"`
	DataSourceID string   `json:"data_source_id"`
	Name         string   `json:"name"`
	Description  *string  `json:"description"`
	Tables       []string `json:"tables"`
}

type createSemanticModelRequest struct {
	DataSourceID *string        `json:"data_source_id"`
	SourceType   string         `json:"source_type"`
	Name         string         `json:"name"`
	Description  *string        `json:"description"`
	Model        map[string]any `json:"model"`
}

type updateSemanticModelRequest struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Model       map[string]any `json:"model"`
}

// GenerateSemanticModel scans the data source into a model. Passing an id
// regenerates that model in place.
func (s *Server) GenerateSemanticModel(c *gin.Context) {
	var req generateSemanticModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.semanticModelSvc.Generate(c.Request.Context(), semanticmodeldomain.GenerateRequest{
		ProjectID:    projectIDParam(c),
		DataSourceID: strings.TrimSpace(req.DataSourceID),
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		ID:           req.ID,
		Tables:       req.Tables,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if req.ID != nil {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) CreateSemanticModel(c *gin.Context) {
	var req createSemanticModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.semanticModelSvc.Create(c.Request.Context(), semanticmodeldomain.CreateRequest{
		ProjectID:    projectIDParam(c),
		DataSourceID: req.DataSourceID,
		SourceType:   strings.TrimSpace(req.SourceType),
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Model:        req.Model,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListSemanticModels(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.semanticModelSvc.List(c.Request.Context(), semanticmodeldomain.ListRequest{
		ProjectID:  projectIDParam(c),
		Pagination: query,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.SemanticModels, "page_info": resp.PageInfo})
}

func (s *Server) GetSemanticModelByID(c *gin.Context) {
	resp, err := s.semanticModelSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateSemanticModel(c *gin.Context) {
	var req updateSemanticModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.semanticModelSvc.Update(c.Request.Context(), semanticmodeldomain.UpdateRequest{
		ID:          strings.TrimSpace(c.Param("id")),
		Name:        req.Name,
		Description: req.Description,
		Model:       req.Model,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteSemanticModel(c *gin.Context) {
	if err := s.semanticModelSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
