// Package storage defines the persistence contract for resolved profiles.
//
// The interface is intentionally small: the engine persists finalized
// profiles as durable records and the web layer reads them back for entity
// listing and export. Backends (SQLite, PostgreSQL) implement the same
// interface and are selected at startup from configuration.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested profile was not found.
	ErrNotFound = errors.New("profile not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// StoredProfile is the persisted form of a resolved profile. Signals and
// sources are carried as JSON blobs; the storage layer does not interpret
// them beyond round-tripping.
type StoredProfile struct {
	// ID is the stable cluster identifier of the winning candidate.
	ID string

	// Query is the raw query text this profile was resolved for.
	Query string

	// EntityType is the declared entity type of the query.
	EntityType string

	// CanonicalName is the resolved display name.
	CanonicalName string

	// Description is the resolved summary text.
	Description string

	// Confidence is the aggregate confidence score in [0, 1].
	Confidence float64

	// SignalsJSON is the JSON-encoded signal map (kind -> values).
	SignalsJSON []byte

	// SourcesJSON is the JSON-encoded list of contributing source references.
	SourcesJSON []byte

	// EventsJSON is the JSON-encoded timeline, or nil when empty.
	EventsJSON []byte

	// CreatedAt is when this profile was first persisted.
	CreatedAt time.Time

	// UpdatedAt is when this profile was last re-resolved.
	UpdatedAt time.Time
}

// ListOptions provides pagination and filtering for profile listings.
type ListOptions struct {
	// Page is the page number to retrieve (1-indexed, default: 1).
	Page int

	// Limit is the number of items per page (default: 20, max: 100).
	Limit int

	// EntityType filters by entity type. Empty string means no filter.
	EntityType string
}

// Normalize applies defaults and bounds to the ListOptions.
func (o *ListOptions) Normalize() {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.Limit < 1 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
}

// Offset calculates the SQL offset for the current page.
func (o *ListOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// PaginatedProfiles is a page of stored profiles plus the total row count.
type PaginatedProfiles struct {
	Items   []*StoredProfile
	Total   int
	Page    int
	Limit   int
	HasMore bool
}

// ProfileStore persists resolved profiles.
type ProfileStore interface {
	// Save creates or updates a profile record (upsert on ID).
	Save(ctx context.Context, p *StoredProfile) error

	// Get retrieves a profile by its cluster ID.
	// Returns ErrNotFound if no such profile exists.
	Get(ctx context.Context, id string) (*StoredProfile, error)

	// List retrieves stored profiles with pagination, newest first.
	List(ctx context.Context, opts ListOptions) (*PaginatedProfiles, error)

	// Delete removes a profile record by ID.
	// Returns ErrNotFound if no such profile exists.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}
