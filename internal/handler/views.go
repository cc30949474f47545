package handler

import (
	"time"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/aryan0dhankhar/datingapp/internal/service"
)

// ProfileResponse is the JSON form of a profile. Which fields are filled
// depends on who is looking.
type ProfileResponse struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email,omitempty"`
	OpenInfo   string     `json:"openInfo"`
	ClosedInfo string     `json:"closedInfo,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
}

// Visibility levels for profile views
type Visibility int

const (
	VisibilityPublic  Visibility = iota // strangers and listings
	VisibilityContact                   // approved contacts see closed info
	VisibilityOwner                     // the owner sees everything
)

func profileView(p *domain.Profile, v Visibility) ProfileResponse {
	resp := ProfileResponse{ID: p.ID, Name: p.Name, OpenInfo: p.OpenInfo}
	if v >= VisibilityContact {
		resp.ClosedInfo = p.ClosedInfo
	}
	if v == VisibilityOwner {
		resp.Email = p.Email
		created := p.CreatedAt
		resp.CreatedAt = &created
	}
	return resp
}

func profileViews(ps []*domain.Profile, v Visibility) []ProfileResponse {
	out := make([]ProfileResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, profileView(p, v))
	}
	return out
}

// RelationResponse is the JSON form of a relation
type RelationResponse struct {
	ID          int64                `json:"id"`
	InitiatorID int64                `json:"initiatorId"`
	AimID       int64                `json:"aimId"`
	State       domain.RelationState `json:"state"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

func relationView(rel *domain.Relation) RelationResponse {
	return RelationResponse{
		ID:          rel.ID,
		InitiatorID: rel.InitiatorID,
		AimID:       rel.AimID,
		State:       rel.State,
		CreatedAt:   rel.CreatedAt,
		UpdatedAt:   rel.UpdatedAt,
	}
}

func relationViews(rels []*domain.Relation) []RelationResponse {
	out := make([]RelationResponse, 0, len(rels))
	for _, rel := range rels {
		out = append(out, relationView(rel))
	}
	return out
}

// OverviewEntry is a relation with the other participant's public profile
type OverviewEntry struct {
	Relation     RelationResponse `json:"relation"`
	Counterparty *ProfileResponse `json:"counterparty,omitempty"`
}

// OverviewResponse groups relations like the profile page
type OverviewResponse struct {
	PendingSent     []OverviewEntry `json:"pendingSent"`
	PendingReceived []OverviewEntry `json:"pendingReceived"`
	Approved        []OverviewEntry `json:"approved"`
	Rejected        []OverviewEntry `json:"rejected"`
}

func overviewEntries(views []service.RelationView, v Visibility) []OverviewEntry {
	out := make([]OverviewEntry, 0, len(views))
	for _, rv := range views {
		entry := OverviewEntry{Relation: relationView(rv.Relation)}
		if rv.Counterparty != nil {
			p := profileView(rv.Counterparty, v)
			entry.Counterparty = &p
		}
		out = append(out, entry)
	}
	return out
}

func overviewView(ov *service.Overview) OverviewResponse {
	return OverviewResponse{
		PendingSent:     overviewEntries(ov.PendingSent, VisibilityPublic),
		PendingReceived: overviewEntries(ov.PendingReceived, VisibilityPublic),
		Approved:        overviewEntries(ov.Approved, VisibilityContact),
		Rejected:        overviewEntries(ov.Rejected, VisibilityPublic),
	}
}
