package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// StorageKey is the single logical key the post collection is persisted under.
const StorageKey = "cropPosts"

// PlaceholderUserID attributes posts when no authenticated user is known.
const PlaceholderUserID = "currentUser"

// Post represents a single crop listing in the feed.
// Posts are immutable once created; the collection is kept newest first.
type Post struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Location    string    `json:"location"`
	Image       string    `json:"image"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Available   string    `json:"available"`
	Timestamp   time.Time `json:"timestamp"`
}

// PostFields are the caller supplied attributes of a new post.
type PostFields struct {
	UserID      string
	Title       string
	Category    string
	Location    string
	Image       string
	Description string
	Price       string
	Available   string
}

// ValidationError lists the fields that were missing or malformed.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "Missing fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "Invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// NewPost builds a post from fields, assigning the id and creation instant.
// The timestamp is derived from the id so both orderings always agree.
func NewPost(fields PostFields, id int64) (*Post, error) {
	f := fields.normalized()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, fmt.Errorf("post id must be positive, got %d", id)
	}

	userID := f.UserID
	if userID == "" {
		userID = PlaceholderUserID
	}

	return &Post{
		ID:          id,
		UserID:      userID,
		Title:       f.Title,
		Category:    f.Category,
		Location:    f.Location,
		Image:       f.Image,
		Description: f.Description,
		Price:       f.Price,
		Available:   f.Available,
		Timestamp:   time.UnixMilli(id).UTC(),
	}, nil
}

// Validate checks required-field presence. Price is free text; the feed
// decides how to show it. Image is optional, but when set it must be a local
// path or an http(s) URL.
func (f PostFields) Validate() error {
	f = f.normalized()
	verr := &ValidationError{}

	required := []struct {
		name  string
		value string
	}{
		{"title", f.Title},
		{"description", f.Description},
		{"available", f.Available},
		{"price", f.Price},
		{"category", f.Category},
		{"location", f.Location},
	}
	for _, r := range required {
		if r.value == "" {
			verr.Missing = append(verr.Missing, r.name)
		}
	}

	if f.Image != "" && !validImageRef(f.Image) {
		verr.Invalid = append(verr.Invalid, "image")
	}

	if len(verr.Missing) > 0 || len(verr.Invalid) > 0 {
		return verr
	}
	return nil
}

func validImageRef(ref string) bool {
	if strings.HasPrefix(ref, "/") && !strings.HasPrefix(ref, "//") {
		return true
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (f PostFields) normalized() PostFields {
	return PostFields{
		UserID:      strings.TrimSpace(f.UserID),
		Title:       strings.TrimSpace(f.Title),
		Category:    strings.TrimSpace(f.Category),
		Location:    strings.TrimSpace(f.Location),
		Image:       strings.TrimSpace(f.Image),
		Description: strings.TrimSpace(f.Description),
		Price:       strings.TrimSpace(f.Price),
		Available:   strings.TrimSpace(f.Available),
	}
}
