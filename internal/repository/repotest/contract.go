// Package repotest holds the behavioural contract every UserRepository must satisfy.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deafauth/internal/domain"
	"deafauth/internal/repository"
)

// RunUserRepositoryContract runs the shared suite. newRepo must return an empty,
// initialised repository on every call.
func RunUserRepositoryContract(t *testing.T, newRepo func(t *testing.T) repository.UserRepository) {
	t.Helper()

	t.Run("create then find by email", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Create(ctx, newUser("a@x.com"))
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Empty(t, created.PasswordHash)
		assert.False(t, created.CreatedAt.IsZero())

		found, err := repo.FindByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
		assert.Equal(t, "a@x.com", found.Email)
		assert.Equal(t, "hash:a@x.com", found.PasswordHash)
		assert.Equal(t, domain.DefaultPreferences(), found.AccessibilityPreferences)
		assert.Nil(t, found.LastLoginAt)

		byID, err := repo.FindByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", byID.Email)
	})

	t.Run("identifiers are distinct", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		seen := make(map[string]struct{})
		for i := 0; i < 20; i++ {
			u, err := repo.Create(ctx, newUser(fmt.Sprintf("user%d@x.com", i)))
			require.NoError(t, err)
			_, dup := seen[u.ID]
			require.False(t, dup, "id %s reused", u.ID)
			seen[u.ID] = struct{}{}
		}
	})

	t.Run("duplicate email rejected without mutation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first, err := repo.Create(ctx, newUser("dup@x.com"))
		require.NoError(t, err)

		second := newUser("dup@x.com")
		second.Username = "someone-else"
		_, err = repo.Create(ctx, second)
		require.ErrorIs(t, err, repository.ErrDuplicateEmail)

		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		found, err := repo.FindByEmail(ctx, "dup@x.com")
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)
		assert.Equal(t, "user", found.Username)
	})

	t.Run("email lookup is exact", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Create(ctx, newUser("Case@x.com"))
		require.NoError(t, err)

		for _, probe := range []string{"case@x.com", "Case@x.co", "Case@", ""} {
			_, err := repo.FindByEmail(ctx, probe)
			assert.ErrorIs(t, err, repository.ErrNotFound, probe)
		}
	})

	t.Run("find unknown", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.FindByID(context.Background(), "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("record login", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		u, err := repo.Create(ctx, newUser("login@x.com"))
		require.NoError(t, err)

		at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
		require.NoError(t, repo.RecordLogin(ctx, u.ID, at))

		found, err := repo.FindByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, found.LastLoginAt)
		assert.True(t, at.Equal(*found.LastLoginAt))

		assert.NoError(t, repo.RecordLogin(ctx, "unknown", at))
	})

	t.Run("update preferences merges", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		u, err := repo.Create(ctx, newUser("prefs@x.com"))
		require.NoError(t, err)

		updated, err := repo.UpdatePreferences(ctx, u.ID, domain.Preferences{"high_contrast_mode": true})
		require.NoError(t, err)
		assert.Empty(t, updated.PasswordHash)
		assert.Equal(t, true, updated.AccessibilityPreferences["high_contrast_mode"])
		for key, want := range domain.DefaultPreferences() {
			if key == "high_contrast_mode" {
				continue
			}
			assert.Equal(t, want, updated.AccessibilityPreferences[key], key)
		}

		_, err = repo.UpdatePreferences(ctx, u.ID, domain.Preferences{"reading_speed": "slow"})
		require.NoError(t, err)

		found, err := repo.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, true, found.AccessibilityPreferences["high_contrast_mode"])
		assert.Equal(t, "slow", found.AccessibilityPreferences["reading_speed"])
		assert.Len(t, found.AccessibilityPreferences, 7)
	})

	t.Run("update preferences unknown id", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.UpdatePreferences(context.Background(), "missing", domain.Preferences{"x": 1})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("returned records are copies", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		u, err := repo.Create(ctx, newUser("copy@x.com"))
		require.NoError(t, err)
		u.AccessibilityPreferences["captions_enabled"] = false

		found, err := repo.FindByEmail(ctx, "copy@x.com")
		require.NoError(t, err)
		found.AccessibilityPreferences["vibration_alerts"] = false

		again, err := repo.FindByEmail(ctx, "copy@x.com")
		require.NoError(t, err)
		assert.Equal(t, true, again.AccessibilityPreferences["captions_enabled"])
		assert.Equal(t, true, again.AccessibilityPreferences["vibration_alerts"])
	})

	t.Run("concurrent duplicate registrations", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		const workers = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			dupes     int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Create(ctx, newUser("race@x.com"))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case assert.ErrorIs(t, err, repository.ErrDuplicateEmail):
					dupes++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		assert.Equal(t, workers-1, dupes)
		n, err := repo.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("concurrent preference merges are not lost", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		u, err := repo.Create(ctx, newUser("merge@x.com"))
		require.NoError(t, err)

		const workers = 16
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.UpdatePreferences(ctx, u.ID, domain.Preferences{fmt.Sprintf("key_%d", i): true})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		found, err := repo.FindByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, found.AccessibilityPreferences, 6+workers)
	})
}

func newUser(email string) *domain.User {
	return &domain.User{
		Username:                 "user",
		Email:                    email,
		PasswordHash:             "hash:" + email,
		PreferredSignLanguage:    domain.DefaultSignLanguage,
		AccessibilityPreferences: domain.DefaultPreferences(),
	}
}
