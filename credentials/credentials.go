// Package credentials holds the client's rotating credential pair and the
// storage capability used to persist it across restarts.
package credentials

import "errors"

// ErrNotFound is returned by Repo.Load when no credential pair has been
// persisted.
var ErrNotFound = errors.New("no stored credentials")

// Pair is the rotating access/refresh credential pair. Access is a
// short-lived signed token; Refresh is long-lived and opaque to the client.
// Refresh may be empty: identity-provider flows sometimes issue only an
// access token.
type Pair struct {
	Access  string `json:"access_token"`
	Refresh string `json:"refresh_token,omitempty"`
}

// Empty reports whether the pair carries no access token.
func (p Pair) Empty() bool {
	return p.Access == ""
}

// Repo is the persistence capability for the credential pair. It stands in
// for whatever local key-value storage the host platform provides; the
// session store and the request gateway only ever talk to this interface.
type Repo interface {
	// Load returns the persisted pair, or ErrNotFound when nothing is stored.
	Load() (Pair, error)
	// Save persists the pair, replacing any previous one. Saving a pair
	// with an empty Refresh keeps the previously stored refresh token.
	Save(pair Pair) error
	// Clear removes both tokens. Clearing an empty store is a no-op.
	Clear() error
}
