package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	agentdomain "github.com/smallbiznis/lunara/internal/agent/domain"
	"github.com/smallbiznis/lunara/pkg/db/pagination"
)

type createAgentRequest struct {
	Name         string         `json:"name"`
	Description  *string        `json:"description"`
	Instructions *string        `json:"instructions"`
	Config       map[string]any `json:"config"`
}

type updateAgentRequest struct {
	Name         *string        `json:"name"`
	Description  *string        `json:"description"`
	Instructions *string        `json:"instructions"`
	Config       map[string]any `json:"config"`
}

func (s *Server) CreateAgent(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.agentSvc.Create(c.Request.Context(), agentdomain.CreateRequest{
		ProjectID:    projectIDParam(c),
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Instructions: req.Instructions,
		Config:       req.Config,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListAgents(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.agentSvc.List(c.Request.Context(), agentdomain.ListRequest{
		ProjectID:  projectIDParam(c),
		Pagination: query,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Agents, "page_info": resp.PageInfo})
}

func (s *Server) GetAgentByID(c *gin.Context) {
	resp, err := s.agentSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateAgent(c *gin.Context) {
	var req updateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.agentSvc.Update(c.Request.Context(), agentdomain.UpdateRequest{
		ID:           strings.TrimSpace(c.Param("id")),
		Name:         req.Name,
		Description:  req.Description,
		Instructions: req.Instructions,
		Config:       req.Config,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteAgent(c *gin.Context) {
	if err := s.agentSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ResolveAgentSemanticModel(c *gin.Context) {
	resp, err := s.agentSvc.ResolveSemanticModel(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
