// Package record manages the data records owners upload and service users
// discover. The record itself is metadata; file bytes live in the blob store
// and are referenced by key.
package record

import (
	"strings"
	"time"

	"datashare/pkg/domain"
)

// Kind distinguishes inline text records from file-backed records.
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

// OwnerSnapshot denormalizes the owner's identifying fields onto the record
// so discovery can filter by owner reference without joining users. Refreshed
// whenever the owner edits their profile.
type OwnerSnapshot struct {
	RefID                string `json:"refId"`
	UUID                 string `json:"uuid"`
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Phone                string `json:"phone,omitempty"`
	ReferenceDescription string `json:"referenceDescription,omitempty"`
}

// DataRecord is a shareable piece of data. OwnerID never changes after upload.
type DataRecord struct {
	ID            domain.DataID `json:"id"`
	OwnerID       domain.UserID `json:"ownerId"`
	Owner         OwnerSnapshot `json:"ownerReference"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	Category      string        `json:"category"`
	Tags          []string      `json:"tags,omitempty"`
	Kind          Kind          `json:"dataType"`
	Content       string        `json:"content,omitempty"`
	FileRef       string        `json:"-"`
	FileName      string        `json:"fileName,omitempty"`
	FileSize      int64         `json:"fileSize,omitempty"`
	FileMime      string        `json:"fileMimeType,omitempty"`
	ReferenceHint string        `json:"ownerReferenceHint,omitempty"`
	OwnerIdent    string        `json:"ownerIdentifier,omitempty"`
	AllowDownload bool          `json:"allowDownload"`
	Deleted       bool          `json:"-"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Filter narrows a discovery query. Zero values mean "no constraint".
type Filter struct {
	Title      string
	Category   string
	Tags       []string
	Search     string
	OwnerRefID string
	OwnerUUID  string
	OwnerEmail string
	OwnerPhone string
	OwnerName  string

	// ExcludeOwner removes the caller's own records from discovery results.
	ExcludeOwner domain.UserID

	// IncludeDeleted lets the admin surface see soft-deleted records.
	// Discovery never sets it.
	IncludeDeleted bool

	Page  int
	Limit int
}

// Normalize clamps pagination to sane bounds.
func (f *Filter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
}

// Matches reports whether the record satisfies every set filter field. Used
// by the memory store; the postgres store expresses the same predicate in SQL.
func (f Filter) Matches(rec *DataRecord) bool {
	if rec.Deleted && !f.IncludeDeleted {
		return false
	}
	if !f.ExcludeOwner.IsNil() && rec.OwnerID == f.ExcludeOwner {
		return false
	}
	if f.Title != "" && !containsFold(rec.Title, f.Title) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(rec.Category, f.Category) {
		return false
	}
	for _, tag := range f.Tags {
		if !hasTagFold(rec.Tags, tag) {
			return false
		}
	}
	if f.Search != "" &&
		!containsFold(rec.Title, f.Search) &&
		!containsFold(rec.Description, f.Search) &&
		!containsFold(rec.Owner.Name, f.Search) {
		return false
	}
	if f.OwnerRefID != "" && !strings.EqualFold(rec.Owner.RefID, f.OwnerRefID) {
		return false
	}
	if f.OwnerUUID != "" && !strings.EqualFold(rec.Owner.UUID, f.OwnerUUID) {
		return false
	}
	if f.OwnerEmail != "" && !strings.EqualFold(rec.Owner.Email, f.OwnerEmail) {
		return false
	}
	if f.OwnerPhone != "" && rec.Owner.Phone != f.OwnerPhone {
		return false
	}
	if f.OwnerName != "" && !containsFold(rec.Owner.Name, f.OwnerName) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func hasTagFold(tags []string, tag string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Pagination is the page envelope returned alongside discovery results.
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPagination computes the page count from a total and normalized filter.
func NewPagination(total, page, limit int) Pagination {
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return Pagination{Total: total, Page: page, Limit: limit, Pages: pages}
}
