package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	datasourcedomain "github.com/smallbiznis/lunara/internal/datasource/domain"
	"github.com/smallbiznis/lunara/pkg/db/pagination"
)

type registerDataSourceRequest struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

type updateDataSourceRequest struct {
	Name   *string        `json:"name"`
	Config map[string]any `json:"config"`
}

type setCredentialsRequest struct {
	Credentials map[string]any `json:"credentials"`
}

func (s *Server) RegisterDataSource(c *gin.Context) {
	var req registerDataSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.dataSourceSvc.Register(c.Request.Context(), datasourcedomain.RegisterRequest{
		ProjectID: projectIDParam(c),
		Type:      strings.TrimSpace(req.Type),
		Name:      strings.TrimSpace(req.Name),
		Config:    req.Config,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListDataSources(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.dataSourceSvc.List(c.Request.Context(), datasourcedomain.ListRequest{
		ProjectID:  projectIDParam(c),
		Pagination: query,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.DataSources, "page_info": resp.PageInfo})
}

func (s *Server) GetDataSourceByID(c *gin.Context) {
	resp, err := s.dataSourceSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateDataSource(c *gin.Context) {
	var req updateDataSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.dataSourceSvc.Update(c.Request.Context(), datasourcedomain.UpdateRequest{
		ID:     strings.TrimSpace(c.Param("id")),
		Name:   req.Name,
		Config: req.Config,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteDataSource(c *gin.Context) {
	if err := s.dataSourceSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ProbeDataSource runs the connectivity check. A failed probe answers 502;
// the stored error status is visible on the next read.
func (s *Server) ProbeDataSource(c *gin.Context) {
	resp, err := s.dataSourceSvc.TestAndActivate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ListDataSourceTables lists warehouse tables that can be passed to semantic
// model generation.
func (s *Server) ListDataSourceTables(c *gin.Context) {
	resp, err := s.dataSourceSvc.ListTables(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetDataSourceCredentials(c *gin.Context) {
	var req setCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.dataSourceSvc.SetCredentials(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Credentials); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ClearDataSourceCredentials(c *gin.Context) {
	if err := s.dataSourceSvc.ClearCredentials(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
