package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/smallbiznis/lunara/internal/organization/domain"
)

type directory struct {
	repo domain.Repository
}

// NewDirectory resolves principals through their profile row.
func NewDirectory(repo domain.Repository) domain.Directory {
	return &directory{repo: repo}
}

func (d *directory) OrganizationOf(ctx context.Context, principalID string) (uuid.UUID, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return uuid.Nil, domain.ErrNoProfile
	}
	profile, err := d.repo.FindProfile(ctx, principalID)
	if err != nil {
		return uuid.Nil, err
	}
	if profile == nil {
		return uuid.Nil, domain.ErrNoProfile
	}
	return profile.OrganizationID, nil
}
