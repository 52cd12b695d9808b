package store

import (
	"errors"
	"time"
)

// Ownership says where an object's files live.
type Ownership string

const (
	// OwnershipOwned objects live in a directory the server manages under
	// its data root. Removing the object removes the files.
	OwnershipOwned Ownership = "owned"

	// OwnershipLinked objects point at a pre-existing path elsewhere on
	// disk. Removing the object leaves the files alone.
	OwnershipLinked Ownership = "linked"
)

// Valid reports whether o is a known ownership kind.
func (o Ownership) Valid() bool {
	return o == OwnershipOwned || o == OwnershipLinked
}

// Object is one shared entry in the registry.
type Object struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Ownership Ownership `json:"ownership"`

	// LinkedPath is the absolute source path for linked objects, empty for
	// owned ones.
	LinkedPath string `json:"linkedPath,omitempty"`

	// UnlistedKey, when set, hides the object from listings and gates
	// access behind ?key=.
	UnlistedKey string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`

	// ExpiresAt is nil for objects that never expire.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// Unlisted reports whether the object is hidden behind an access key.
func (o Object) Unlisted() bool {
	return o.UnlistedKey != ""
}

// Expired reports whether the object's expiry has passed at time now.
func (o Object) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && now.After(*o.ExpiresAt)
}

var (
	// ErrNotFound is returned for unknown object IDs. Expired objects
	// resolve to this as well; an expired share must be indistinguishable
	// from one that never existed.
	ErrNotFound = errors.New("object not found")

	// ErrForbidden is returned when an unlisted object is accessed with a
	// missing or wrong key.
	ErrForbidden = errors.New("access key required")

	// ErrInvalidObject is returned when a registration fails validation.
	ErrInvalidObject = errors.New("invalid object")
)
