package provider

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mailer/internal/config"
	"mailer/internal/mailerr"
	"mailer/internal/store"
	"mailer/pkg/models"
)

func placeholderLegacy() config.LegacyConfig {
	return config.LegacyConfig{
		Transport:        "smtp",
		SMTPServer:       "notset",
		SMTPPort:         465,
		SMTPUser:         "user",
		SMTPPass:         "pass",
		SMTPSecure:       true,
		MailgunAPIKey:    "notakey",
		MailgunHost:      "api.mailgun.net",
		SendInBlueAPIKey: "notakey",
		SendInBlueURL:    "https://api.sendinblue.com/v3",
	}
}

func mockProvider(name string, weight int, active, def bool) *models.Provider {
	return &models.Provider{Name: name, Type: models.ProviderMock, Active: active, Weight: weight, Default: def}
}

func newTestRouter(t *testing.T, s store.ProviderStore) *Router {
	t.Helper()
	return NewRouter(s, placeholderLegacy(), Options{Logger: zaptest.NewLogger(t)}, rand.New(rand.NewSource(42)))
}

func TestRouterWeightedSelection(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	a := mockProvider("a", 1, true, false)
	b := mockProvider("b", 1, true, false)
	c := mockProvider("c", 2, true, false)
	off := mockProvider("off", 5, false, true)
	for _, p := range []*models.Provider{a, b, c, off} {
		require.NoError(t, s.InsertProvider(ctx, p))
	}

	r := newTestRouter(t, s)

	const draws = 40000
	counts := map[int64]int{}
	for i := 0; i < draws; i++ {
		tr, err := r.Select(ctx, nil)
		require.NoError(t, err)
		counts[tr.ID]++
	}

	assert.Zero(t, counts[off.ID], "inactive provider must never be selected")
	assert.InDelta(t, 0.25, float64(counts[a.ID])/draws, 0.02)
	assert.InDelta(t, 0.25, float64(counts[b.ID])/draws, 0.02)
	assert.InDelta(t, 0.50, float64(counts[c.ID])/draws, 0.02)

	t.Run("PinnedActiveWins", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			tr, err := r.Select(ctx, &b.ID)
			require.NoError(t, err)
			assert.Equal(t, b.ID, tr.ID)
		}
	})

	t.Run("PinnedInactiveFallsBack", func(t *testing.T) {
		tr, err := r.Select(ctx, &off.ID)
		require.NoError(t, err)
		assert.NotEqual(t, off.ID, tr.ID)
	})

	t.Run("TransportsAreCachedAcrossReload", func(t *testing.T) {
		before, err := r.Select(ctx, &a.ID)
		require.NoError(t, err)
		require.NoError(t, r.Reload(ctx))
		after, err := r.Select(ctx, &a.ID)
		require.NoError(t, err)
		assert.Same(t, before, after)
	})
}

func TestRouterDefaultSelection(t *testing.T) {
	ctx := context.Background()

	t.Run("LastMarkedDefault", func(t *testing.T) {
		s := store.NewMemoryStore()
		first := mockProvider("first", 0, true, true)
		second := mockProvider("second", 0, true, true)
		third := mockProvider("third", 0, true, false)
		for _, p := range []*models.Provider{first, second, third} {
			require.NoError(t, s.InsertProvider(ctx, p))
		}

		r := newTestRouter(t, s)
		for i := 0; i < 10; i++ {
			tr, err := r.Select(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, second.ID, tr.ID)
		}
	})

	t.Run("FirstLoadedWithoutDefault", func(t *testing.T) {
		s := store.NewMemoryStore()
		first := mockProvider("first", 0, true, false)
		second := mockProvider("second", 0, true, false)
		require.NoError(t, s.InsertProvider(ctx, first))
		require.NoError(t, s.InsertProvider(ctx, second))

		r := newTestRouter(t, s)
		tr, err := r.Select(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, first.ID, tr.ID)
	})

	t.Run("NoActiveProviders", func(t *testing.T) {
		s := store.NewMemoryStore()
		require.NoError(t, s.InsertProvider(ctx, mockProvider("off", 1, false, true)))

		r := newTestRouter(t, s)
		_, err := r.Select(ctx, nil)
		require.Error(t, err)
		assert.True(t, mailerr.Is(err, mailerr.KindConfiguration))

		count, err := s.CountProviders(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, "legacy settings must not be converted")
	})
}

func TestRouterLegacyConversion(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := newTestRouter(t, s)

	tr, err := r.Select(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ProviderMock, tr.Type)
	assert.True(t, tr.Default)

	all, err := s.Providers(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)

	// A second reload finds rows and converts nothing.
	require.NoError(t, r.Reload(ctx))
	all, err = s.Providers(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRouterAdministration(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := newTestRouter(t, s)

	t.Run("AddRejectsInvalidSettings", func(t *testing.T) {
		_, err := r.Add(ctx, &models.Provider{Name: "broken", Type: models.ProviderSMTP, Active: true})
		require.Error(t, err)
		assert.True(t, mailerr.Is(err, mailerr.KindConfiguration))

		count, err := s.CountProviders(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	added, err := r.Add(ctx, &models.Provider{
		ID:     99,
		Name:   "gun",
		Type:   models.ProviderMailgun,
		Active: true,
		Weight: 1,
		Mailgun: &models.MailgunSettings{
			APIKey: "key-1",
			Host:   "api.mailgun.net",
			Domain: "mg.example.com",
		},
	})
	require.NoError(t, err)
	assert.NotEqual(t, int64(99), added.ID)

	t.Run("PatchMergesActiveTypeSettings", func(t *testing.T) {
		name := "gun-eu"
		patched, err := r.Patch(ctx, added.ID, models.ProviderPatch{
			Name:    &name,
			Mailgun: &models.MailgunSettings{Host: "api.eu.mailgun.net"},
			SMTP:    &models.SMTPSettings{Host: "ignored"},
		})
		require.NoError(t, err)
		assert.Equal(t, "gun-eu", patched.Name)
		assert.Equal(t, "api.eu.mailgun.net", patched.Mailgun.Host)
		assert.Equal(t, "key-1", patched.Mailgun.APIKey)
		assert.Nil(t, patched.SMTP)

		stored, err := r.Get(ctx, added.ID)
		require.NoError(t, err)
		assert.Equal(t, "api.eu.mailgun.net", stored.Mailgun.Host)
	})

	t.Run("UpdateRequiresID", func(t *testing.T) {
		_, err := r.Update(ctx, mockProvider("x", 0, true, false))
		assert.True(t, mailerr.Is(err, mailerr.KindConfiguration))
	})

	t.Run("PatchUnknown", func(t *testing.T) {
		_, err := r.Patch(ctx, 12345, models.ProviderPatch{})
		assert.True(t, mailerr.Is(err, mailerr.KindNotFound))
	})

	t.Run("ReloadPicksUpChanges", func(t *testing.T) {
		require.NoError(t, r.Reload(ctx))
		tr, err := r.Select(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, added.ID, tr.ID)
		assert.Len(t, r.Active(), 1)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, r.Delete(ctx, added.ID))
		assert.True(t, mailerr.Is(r.Delete(ctx, added.ID), mailerr.KindNotFound))

		list, err := r.List(ctx, false)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}
