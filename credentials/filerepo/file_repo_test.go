package filerepo_test

import (
	"testing"

	"github.com/codecompass/compass-go/credentials"
	"github.com/codecompass/compass-go/credentials/filerepo"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutSavedPair(t *testing.T) {
	repo, err := filerepo.New(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Load()
	require.ErrorIs(t, err, credentials.ErrNotFound)
}

func TestSaveLoadClear(t *testing.T) {
	repo, err := filerepo.New(t.TempDir())
	require.NoError(t, err)

	pair := credentials.Pair{Access: "access-1", Refresh: "refresh-1"}
	require.NoError(t, repo.Save(pair))

	loaded, err := repo.Load()
	require.NoError(t, err)
	require.Equal(t, pair, loaded)

	require.NoError(t, repo.Clear())
	_, err = repo.Load()
	require.ErrorIs(t, err, credentials.ErrNotFound)

	// Clearing again is a no-op.
	require.NoError(t, repo.Clear())
}

func TestSaveKeepsRefreshTokenWhenOmitted(t *testing.T) {
	repo, err := filerepo.New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, repo.Save(credentials.Pair{Access: "access-1", Refresh: "refresh-1"}))
	require.NoError(t, repo.Save(credentials.Pair{Access: "access-2"}))

	loaded, err := repo.Load()
	require.NoError(t, err)
	require.Equal(t, "access-2", loaded.Access)
	require.Equal(t, "refresh-1", loaded.Refresh)
}
