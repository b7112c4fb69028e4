// Package filerepo persists the credential pair as a JSON file in the
// client's data folder, the desktop analog of browser local storage.
package filerepo

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/codecompass/compass-go/credentials"
	"github.com/pkg/errors"
)

const credentialsFileName = "credentials.json"

var _ credentials.Repo = (*Repo)(nil)

// Repo stores the pair at <folder>/credentials.json with 0600 permissions.
type Repo struct {
	path string
	lock sync.Mutex
}

// New creates the data folder if needed and returns a file-backed repo.
func New(folder string) (*Repo, error) {
	if err := os.MkdirAll(folder, 0o700); err != nil {
		return nil, errors.Wrap(err, "[filerepo.New] MkdirAll")
	}
	return &Repo{path: filepath.Join(folder, credentialsFileName)}, nil
}

func (r *Repo) Load() (credentials.Pair, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	raw, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return credentials.Pair{}, credentials.ErrNotFound
	}
	if err != nil {
		return credentials.Pair{}, errors.Wrap(err, "[filerepo.Load] ReadFile")
	}

	var pair credentials.Pair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return credentials.Pair{}, errors.Wrap(err, "[filerepo.Load] Unmarshal")
	}
	if pair.Empty() {
		return credentials.Pair{}, credentials.ErrNotFound
	}
	return pair, nil
}

func (r *Repo) Save(pair credentials.Pair) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if pair.Refresh == "" {
		if previous, err := r.read(); err == nil {
			pair.Refresh = previous.Refresh
		}
	}

	b, err := json.MarshalIndent(pair, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[filerepo.Save] Marshal")
	}
	if err := os.WriteFile(r.path, append(b, '\n'), 0o600); err != nil {
		return errors.Wrap(err, "[filerepo.Save] WriteFile")
	}
	return nil
}

func (r *Repo) Clear() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[filerepo.Clear] Remove")
	}
	return nil
}

func (r *Repo) read() (credentials.Pair, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return credentials.Pair{}, err
	}
	var pair credentials.Pair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return credentials.Pair{}, err
	}
	return pair, nil
}
