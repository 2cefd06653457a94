package models

import "time"

// Repository is a bound local checkout with optional remote
// coordinates. It is read-only input to the engine; only the binding
// flow and re-detection mutate it.
type Repository struct {
	ID            string     `json:"id"`
	Path          string     `json:"path"           validate:"required"`
	Owner         string     `json:"owner,omitempty"`
	Name          string     `json:"name,omitempty"`
	DefaultBranch string     `json:"default_branch"`
	BuildSystem   string     `json:"build_system,omitempty"`
	LatestTag     string     `json:"latest_tag,omitempty"`
	ClonedAt      *time.Time `json:"cloned_at,omitempty"`
}

// RemoteSlug returns "owner/name" or the empty string when the
// repository has no remote coordinates.
func (r *Repository) RemoteSlug() string {
	if r == nil || r.Owner == "" || r.Name == "" {
		return ""
	}

	return r.Owner + "/" + r.Name
}
