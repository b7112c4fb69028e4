package repofakes

import (
	"sync"

	"github.com/codecompass/compass-go/credentials"
)

var _ credentials.Repo = (*FakeCredentialRepo)(nil)

// FakeCredentialRepo is an in-memory credentials.Repo for tests. Call
// counters are exposed so tests can assert on persistence behaviour.
type FakeCredentialRepo struct {
	lock sync.RWMutex

	pair   credentials.Pair
	stored bool

	SaveCalls  int
	ClearCalls int

	// Optional error injection.
	LoadErr  error
	SaveErr  error
	ClearErr error
}

func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{}
}

// Seed stores a pair directly, bypassing the Save bookkeeping.
func (r *FakeCredentialRepo) Seed(pair credentials.Pair) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.pair = pair
	r.stored = true
}

func (r *FakeCredentialRepo) Load() (credentials.Pair, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	if r.LoadErr != nil {
		return credentials.Pair{}, r.LoadErr
	}
	if !r.stored {
		return credentials.Pair{}, credentials.ErrNotFound
	}
	return r.pair, nil
}

func (r *FakeCredentialRepo) Save(pair credentials.Pair) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.SaveCalls++
	if r.SaveErr != nil {
		return r.SaveErr
	}
	if pair.Refresh == "" {
		pair.Refresh = r.pair.Refresh
	}
	r.pair = pair
	r.stored = true
	return nil
}

func (r *FakeCredentialRepo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.ClearCalls++
	if r.ClearErr != nil {
		return r.ClearErr
	}
	r.pair = credentials.Pair{}
	r.stored = false
	return nil
}
