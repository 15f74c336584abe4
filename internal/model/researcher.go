// Package model defines the durable and transient entities of the harvester.
package model

import (
	"slices"
	"strings"
	"time"
)

// LattesBaseURL is the public mirror that serves one profile per external id.
const LattesBaseURL = "http://lattes.cnpq.br"

// EntityStub is a minimal reference to a researcher found during discovery,
// prior to enrichment. Stubs are transient; they are merged into Researcher
// rows when the enrichment phase persists them.
type EntityStub struct {
	ExternalID       string `json:"external_id"`
	DisplayName      string `json:"display_name"`
	InstitutionGuess string `json:"institution_guess,omitempty"`
	SearchTerm       string `json:"search_term"`
}

// Researcher is the durable profile entity, keyed by the stable external id
// assigned by the source service.
type Researcher struct {
	ID                int64     `json:"id,omitempty"`
	ExternalID        string    `json:"external_id"`
	Name              string    `json:"name"`
	Institution       string    `json:"institution,omitempty"`
	Area              string    `json:"area,omitempty"`
	City              string    `json:"city,omitempty"`
	State             string    `json:"state,omitempty"`
	Country           string    `json:"country,omitempty"`
	ProfileURL        string    `json:"profile_url"`
	SearchTerms       []string  `json:"discovered_search_terms"`
	LastProfileUpdate string    `json:"last_profile_update,omitempty"`
	CreatedAt         time.Time `json:"created_at,omitempty"`
	UpdatedAt         time.Time `json:"updated_at,omitempty"`

	Projects []Project `json:"projects,omitempty"`
}

// ProjectStatus tracks whether a project is still running.
type ProjectStatus string

const (
	StatusOngoing   ProjectStatus = "ongoing"
	StatusCompleted ProjectStatus = "completed"
	StatusUnknown   ProjectStatus = "unknown"
)

// Project is a structured research project extracted from a profile. Each
// project belongs to exactly one researcher; the external id is denormalized
// for direct lookup.
type Project struct {
	ID                  string        `json:"id,omitempty"`
	ResearcherID        int64         `json:"researcher_id,omitempty"`
	ExternalID          string        `json:"external_id"`
	Title               string        `json:"title"`
	StartDate           string        `json:"start_date,omitempty"`
	EndDate             string        `json:"end_date,omitempty"`
	Status              ProjectStatus `json:"status"`
	Description         string        `json:"description,omitempty"`
	FundingSources      string        `json:"funding_sources,omitempty"`
	CoordinatorName     string        `json:"coordinator_name,omitempty"`
	TeamMembers         string        `json:"team_members,omitempty"`
	IndustryCooperation string        `json:"industry_cooperation,omitempty"`
	ConceptTags         string        `json:"concept_tags,omitempty"`
	ToolTags            string        `json:"tool_tags,omitempty"`
	FormalMethods       bool          `json:"is_formal_methods_related"`
}

// ProfileURL derives the canonical public profile URL for an external id.
func ProfileURL(externalID string) string {
	return LattesBaseURL + "/" + externalID
}

// FromStub builds the minimal Researcher a discovery stub can support.
func FromStub(stub EntityStub) Researcher {
	return Researcher{
		ExternalID:  stub.ExternalID,
		Name:        stub.DisplayName,
		Institution: stub.InstitutionGuess,
		ProfileURL:  ProfileURL(stub.ExternalID),
		SearchTerms: []string{stub.SearchTerm},
	}
}

// MergeResearcher merges an incoming record into an existing row with
// first-non-null-wins semantics for scalar fields. The search-term set only
// grows; UpdatedAt is always refreshed by the caller.
func MergeResearcher(existing, incoming Researcher) Researcher {
	out := existing
	out.Name = coalesce(existing.Name, incoming.Name)
	out.Institution = coalesce(existing.Institution, incoming.Institution)
	out.Area = coalesce(existing.Area, incoming.Area)
	out.City = coalesce(existing.City, incoming.City)
	out.State = coalesce(existing.State, incoming.State)
	out.Country = coalesce(existing.Country, incoming.Country)
	out.ProfileURL = coalesce(existing.ProfileURL, incoming.ProfileURL)
	out.LastProfileUpdate = coalesce(existing.LastProfileUpdate, incoming.LastProfileUpdate)
	out.SearchTerms = UnionTerms(existing.SearchTerms, incoming.SearchTerms)
	out.Projects = incoming.Projects
	return out
}

// UnionTerms appends the terms of b not already present in a, preserving
// the order of first discovery.
func UnionTerms(a, b []string) []string {
	out := slices.Clone(a)
	for _, t := range b {
		t = strings.TrimSpace(t)
		if t == "" || slices.Contains(out, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func coalesce(existing, incoming string) string {
	if strings.TrimSpace(existing) != "" {
		return existing
	}
	return incoming
}

// UpsertCounts summarizes one persisted batch.
type UpsertCounts struct {
	Inserted        int `json:"inserted"`
	Updated         int `json:"updated"`
	ProjectsWritten int `json:"projects_written"`
}

// Add accumulates counts across batches.
func (c *UpsertCounts) Add(other UpsertCounts) {
	c.Inserted += other.Inserted
	c.Updated += other.Updated
	c.ProjectsWritten += other.ProjectsWritten
}

// Failure records a recoverable per-entity error with enough context to
// retry that entity later.
type Failure struct {
	ExternalID string    `json:"external_id"`
	Stage      string    `json:"stage"`
	Strategy   string    `json:"strategy,omitempty"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// InstitutionCount is one row of the per-institution aggregate.
type InstitutionCount struct {
	Institution string `json:"institution"`
	Researchers int    `json:"researchers"`
}

// StoreStats aggregates the harvested corpus for reporting.
type StoreStats struct {
	Researchers           int                `json:"researchers"`
	Projects              int                `json:"projects"`
	FormalMethodsProjects int                `json:"formal_methods_projects"`
	TopInstitutions       []InstitutionCount `json:"top_institutions,omitempty"`
}
