package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/lunara/internal/access"
	"github.com/smallbiznis/lunara/internal/agent"
	agentdomain "github.com/smallbiznis/lunara/internal/agent/domain"
	"github.com/smallbiznis/lunara/internal/artifact"
	artifactdomain "github.com/smallbiznis/lunara/internal/artifact/domain"
	"github.com/smallbiznis/lunara/internal/audit"
	auditdomain "github.com/smallbiznis/lunara/internal/audit/domain"
	"github.com/smallbiznis/lunara/internal/config"
	"github.com/smallbiznis/lunara/internal/credential"
	"github.com/smallbiznis/lunara/internal/datasource"
	datasourcedomain "github.com/smallbiznis/lunara/internal/datasource/domain"
	"github.com/smallbiznis/lunara/internal/observability"
	obsmiddleware "github.com/smallbiznis/lunara/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/lunara/internal/observability/metrics"
	obstracing "github.com/smallbiznis/lunara/internal/observability/tracing"
	"github.com/smallbiznis/lunara/internal/organization"
	organizationdomain "github.com/smallbiznis/lunara/internal/organization/domain"
	"github.com/smallbiznis/lunara/internal/project"
	projectdomain "github.com/smallbiznis/lunara/internal/project/domain"
	"github.com/smallbiznis/lunara/internal/ratelimit"
	"github.com/smallbiznis/lunara/internal/semanticmodel"
	semanticmodeldomain "github.com/smallbiznis/lunara/internal/semanticmodel/domain"
	"github.com/smallbiznis/lunara/internal/warehouse"
	"github.com/smallbiznis/lunara/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	access.Module,
	audit.Module,
	organization.Module,
	project.Module,
	credential.Module,
	warehouse.Module,
	ratelimit.Module,
	telemetry.Module,
	datasource.Module,
	semanticmodel.Module,
	agent.Module,
	artifact.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine           *gin.Engine
	cfg              config.Config
	directory        organizationdomain.Directory
	organizationSvc  organizationdomain.Service
	projectSvc       projectdomain.Service
	dataSourceSvc    datasourcedomain.Service
	semanticModelSvc semanticmodeldomain.Service
	agentSvc         agentdomain.Service
	artifactSvc      artifactdomain.Service
	auditSvc         auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	Directory        organizationdomain.Directory
	OrganizationSvc  organizationdomain.Service
	ProjectSvc       projectdomain.Service
	DataSourceSvc    datasourcedomain.Service
	SemanticModelSvc semanticmodeldomain.Service
	AgentSvc         agentdomain.Service
	ArtifactSvc      artifactdomain.Service
	AuditSvc         auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		directory:        p.Directory,
		organizationSvc:  p.OrganizationSvc,
		projectSvc:       p.ProjectSvc,
		dataSourceSvc:    p.DataSourceSvc,
		semanticModelSvc: p.SemanticModelSvc,
		agentSvc:         p.AgentSvc,
		artifactSvc:      p.ArtifactSvc,
		auditSvc:         p.AuditSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.Identity())

	// -------- Organizations --------
	api.POST("/organizations", s.CreateOrganization)
	api.GET("/organization", s.GetCurrentOrganization)
	api.GET("/organizations/:id", s.GetOrganizationByID)
	api.DELETE("/organizations/:id", s.DeleteOrganization)
	api.POST("/organizations/:id/members", s.AddOrganizationMember)
	api.GET("/organizations/:id/members", s.ListOrganizationMembers)
	api.PATCH("/profile", s.UpdateProfile)

	// -------- Projects --------
	api.POST("/projects", s.CreateProject)
	api.GET("/projects", s.ListProjects)
	api.GET("/projects/:projectId", s.GetProjectByID)
	api.PATCH("/projects/:projectId", s.UpdateProject)
	api.DELETE("/projects/:projectId", s.DeleteProject)

	// -------- Data Sources --------
	api.POST("/projects/:projectId/data-sources", s.RegisterDataSource)
	api.GET("/projects/:projectId/data-sources", s.ListDataSources)
	api.GET("/data-sources/:id", s.GetDataSourceByID)
	api.PATCH("/data-sources/:id", s.UpdateDataSource)
	api.DELETE("/data-sources/:id", s.DeleteDataSource)
	api.POST("/data-sources/:id/probe", s.ProbeDataSource)
	api.GET("/data-sources/:id/tables", s.ListDataSourceTables)
	api.PUT("/data-sources/:id/credentials", s.SetDataSourceCredentials)
	api.DELETE("/data-sources/:id/credentials", s.ClearDataSourceCredentials)

	// -------- Semantic Models --------
	api.POST("/projects/:projectId/semantic-models", s.CreateSemanticModel)
	api.POST("/projects/:projectId/semantic-models/generate", s.GenerateSemanticModel)
	api.GET("/projects/:projectId/semantic-models", s.ListSemanticModels)
	api.GET("/semantic-models/:id", s.GetSemanticModelByID)
	api.PATCH("/semantic-models/:id", s.UpdateSemanticModel)
	api.DELETE("/semantic-models/:id", s.DeleteSemanticModel)

	// -------- Agents --------
	api.POST("/projects/:projectId/agents", s.CreateAgent)
	api.GET("/projects/:projectId/agents", s.ListAgents)
	api.GET("/agents/:id", s.GetAgentByID)
	api.PATCH("/agents/:id", s.UpdateAgent)
	api.DELETE("/agents/:id", s.DeleteAgent)
	api.GET("/agents/:id/semantic-model", s.ResolveAgentSemanticModel)

	// -------- Artifacts --------
	api.POST("/projects/:projectId/artifacts", s.CreateArtifact)
	api.GET("/projects/:projectId/artifacts", s.ListArtifacts)
	api.GET("/artifacts/:id", s.GetArtifactByID)
	api.GET("/artifacts/:id/content", s.GetArtifactContent)
	api.PATCH("/artifacts/:id", s.UpdateArtifact)
	api.DELETE("/artifacts/:id", s.DeleteArtifact)

	api.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
