package server

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/lunara/internal/observability/context"
	organizationdomain "github.com/smallbiznis/lunara/internal/organization/domain"
	"github.com/smallbiznis/lunara/internal/orgcontext"
)

const (
	// HeaderPrincipal carries the principal asserted by the identity proxy.
	HeaderPrincipal = "X-Principal-ID"

	actorTypeUser = "user"
)

// Identity trusts the principal header and resolves the caller organization
// when the principal already has a profile. Principals without a profile
// pass through so they can bootstrap an organization.
func (s *Server) Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := strings.TrimSpace(c.GetHeader(HeaderPrincipal))
		if principal == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := orgcontext.WithPrincipal(c.Request.Context(), principal)
		ctx = obscontext.WithActor(ctx, actorTypeUser, principal)

		orgID, err := s.directory.OrganizationOf(ctx, principal)
		switch {
		case err == nil:
			ctx = orgcontext.WithOrgID(ctx, orgID)
		case errors.Is(err, organizationdomain.ErrNoProfile):
		default:
			AbortWithError(c, err)
			return
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
