// internal/model/models.go
package model

import (
	"strings"
	"time"
)

// TrackedLanguages is the language set that a query for "all" expands to.
var TrackedLanguages = []string{"python", "javascript"}

// IsTracked reports whether lang is one of the tracked languages.
// Comparison is case-insensitive to match how the store filters.
func IsTracked(lang string) bool {
	for _, l := range TrackedLanguages {
		if strings.EqualFold(l, lang) {
			return true
		}
	}
	return false
}

// Repo is the most-recently-fetched snapshot of one repository, keyed by its
// full "owner/repo" name. A later fetch of the same name replaces the whole row.
type Repo struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Language    string    `json:"language"`
	Topics      []string  `json:"topics"`
	// StarGrowth is stored equal to Stars at write time. The replace-on-upsert
	// model keeps no prior snapshot to diff against.
	StarGrowth float64   `json:"star_growth"`
	FetchTime  time.Time `json:"fetch_time"`
}

// UpdateHistory is one append-only log row per persisted fetch batch.
type UpdateHistory struct {
	ID         int64     `json:"id"`
	UpdateTime time.Time `json:"update_time"`
	RepoCount  int       `json:"repo_count"`
}

// RepoPage is the read-path envelope: one page of snapshots plus pagination totals.
type RepoPage struct {
	Repos       []Repo `json:"repos"`
	TotalPages  int    `json:"total_pages"`
	CurrentPage int    `json:"current_page"`
	TotalCount  int    `json:"total_count"`
}

// EmptyPage is the sentinel the read path degrades to on any store failure.
func EmptyPage() RepoPage {
	return RepoPage{Repos: []Repo{}, TotalPages: 1, CurrentPage: 1, TotalCount: 0}
}
