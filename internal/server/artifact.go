package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	artifactdomain "github.com/smallbiznis/lunara/internal/artifact/domain"
	"github.com/smallbiznis/lunara/pkg/db/pagination"
)

type createArtifactRequest struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description *string        `json:"description"`
	Content     map[string]any `json:"content"`
	Status      string         `json:"status"`
}

type updateArtifactRequest struct {
	Type        *string        `json:"type"`
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Content     map[string]any `json:"content"`
	Status      *string        `json:"status"`
}

func (s *Server) CreateArtifact(c *gin.Context) {
	var req createArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.artifactSvc.Create(c.Request.Context(), artifactdomain.CreateRequest{
		ProjectID:   projectIDParam(c),
		Type:        strings.TrimSpace(req.Type),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Content:     req.Content,
		Status:      strings.TrimSpace(req.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListArtifacts(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Type   string `form:"type"`
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.artifactSvc.List(c.Request.Context(), artifactdomain.ListRequest{
		ProjectID:  projectIDParam(c),
		Type:       strings.TrimSpace(query.Type),
		Status:     strings.TrimSpace(query.Status),
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Artifacts, "page_info": resp.PageInfo})
}

func (s *Server) GetArtifactByID(c *gin.Context) {
	resp, err := s.artifactSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetArtifactContent serves the typed content view consumed by renderers.
func (s *Server) GetArtifactContent(c *gin.Context) {
	resp, err := s.artifactSvc.Content(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateArtifact(c *gin.Context) {
	var req updateArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.artifactSvc.Update(c.Request.Context(), artifactdomain.UpdateRequest{
		ID:          strings.TrimSpace(c.Param("id")),
		Type:        req.Type,
		Name:        req.Name,
		Description: req.Description,
		Content:     req.Content,
		Status:      req.Status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteArtifact(c *gin.Context) {
	if err := s.artifactSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
