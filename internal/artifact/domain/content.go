package domain

import (
	"encoding/json"
	"fmt"
)

// ReportContent is the renderer view of a report artifact.
type ReportContent struct {
	Blocks []map[string]any `json:"blocks"`
	Title  string           `json:"title"`
	Theme  string           `json:"theme"`
}

// SlideContent is the renderer view of a slide artifact.
type SlideContent struct {
	Slides   []map[string]any `json:"slides"`
	Template string           `json:"template"`
}

// DashboardContent is the renderer view of a dashboard artifact.
// RefreshInterval is in seconds.
type DashboardContent struct {
	Widgets         []map[string]any `json:"widgets"`
	Layout          string           `json:"layout"`
	RefreshInterval int              `json:"refresh_interval"`
}

func (a *Artifact) Report() (*ReportContent, error) {
	var out ReportContent
	if err := a.decode(TypeReport, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Artifact) Slides() (*SlideContent, error) {
	var out SlideContent
	if err := a.decode(TypeSlide, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Artifact) Dashboard() (*DashboardContent, error) {
	var out DashboardContent
	if err := a.decode(TypeDashboard, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// View decodes the content into the typed view matching the artifact type.
func (a *Artifact) View() (any, error) {
	switch a.Type {
	case TypeReport:
		return a.Report()
	case TypeSlide:
		return a.Slides()
	case TypeDashboard:
		return a.Dashboard()
	default:
		return nil, fmt.Errorf("%w: unknown artifact type %q", ErrContentMismatch, a.Type)
	}
}

func (a *Artifact) decode(want string, out any) error {
	if a.Type != want {
		return fmt.Errorf("%w: artifact is a %s, not a %s", ErrContentMismatch, a.Type, want)
	}
	raw, err := json.Marshal(a.Content)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %w", ErrContentMismatch, err)
	}
	return nil
}
