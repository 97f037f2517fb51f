package story_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/talewise/storyteller/pkg/billing"
	"github.com/talewise/storyteller/pkg/file"
	"github.com/talewise/storyteller/pkg/validator"
	"github.com/talewise/storyteller/svc/quota"
	"github.com/talewise/storyteller/svc/story"
	"github.com/talewise/storyteller/svc/subscription"
	"github.com/talewise/storyteller/svc/user"
)

var t0 = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)

const completion = "El Dragón Valiente\n\nHabía una vez un dragón."

func clock() time.Time { return t0 }

func seedUser(t *testing.T, users user.Store, email string, fn func(*user.User)) *user.User {
	t.Helper()
	u := user.New(email, t0)
	if fn != nil {
		fn(u)
	}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func newService(users user.Store, gen story.TextGenerator, opts ...story.Option) (*story.Service, story.Store) {
	stories := story.NewMemoryStore()
	opts = append([]story.Option{story.WithClock(clock)}, opts...)
	return story.NewService(users, stories, gen, opts...), stories
}

func okGenerator() *mockGenerator {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(completion, nil)
	return gen
}

func TestNewService_Panics(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { story.NewService(nil, story.NewMemoryStore(), &mockGenerator{}) })
	assert.Panics(t, func() { story.NewService(user.NewMemoryStore(), nil, &mockGenerator{}) })
	assert.Panics(t, func() { story.NewService(user.NewMemoryStore(), story.NewMemoryStore(), nil) })
}

func TestGenerate_Validation(t *testing.T) {
	t.Parallel()
	gen := &mockGenerator{}
	svc, _ := newService(user.NewMemoryStore(), gen)

	_, err := svc.Generate(context.Background(), "", story.Params{Topic: "  "})
	ve := validator.ExtractValidationErrors(err)
	require.NotNil(t, ve, "got %v", err)
	assert.True(t, ve.Has("email"))
	assert.True(t, ve.Has("topic"))

	_, err = svc.Generate(context.Background(), "kid@example.com", story.Params{Topic: "x", AgeGroup: "2-3"})
	ve = validator.ExtractValidationErrors(err)
	require.NotNil(t, ve)
	assert.Equal(t, []string{"ageGroup"}, ve.Fields())

	gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestGenerate_FreeTier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := user.NewMemoryStore()
	gen := okGenerator()
	svc, stories := newService(users, gen)

	for i := 1; i <= quota.FreeLimit; i++ {
		res, err := svc.Generate(ctx, " Kid@Example.com ", story.Params{Topic: "dragones"})
		require.NoError(t, err, "generation %d", i)
		assert.Equal(t, quota.FreeLimit-i, res.StoriesRemaining)
		assert.Equal(t, "El Dragón Valiente", res.Story.Title)
		assert.Equal(t, "Había una vez un dragón.", res.Story.Content)
		assert.Equal(t, "es", res.Story.Parameters.Language)

		stored, err := stories.FindByID(ctx, res.Story.ID)
		require.NoError(t, err)
		assert.Equal(t, res.Story.UserID, stored.UserID)
	}

	_, err := svc.Generate(ctx, "kid@example.com", story.Params{Topic: "dragones"})
	require.ErrorIs(t, err, quota.ErrQuotaExceeded)
	exceeded, ok := quota.AsExceeded(err)
	require.True(t, ok)
	assert.True(t, exceeded.SubscriptionRequired())

	u, err := users.FindByEmail(ctx, "kid@example.com")
	require.NoError(t, err)
	assert.Equal(t, quota.FreeLimit, u.StoriesGeneratedLifetime)
	assert.Equal(t, 0, u.StoriesGeneratedThisMonth)
	gen.AssertNumberOfCalls(t, "Generate", quota.FreeLimit)
}

func TestGenerate_SubscribingLiftsTheFreeLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := user.NewMemoryStore()
	gen := okGenerator()
	svc, _ := newService(users, gen)
	r := subscription.NewReconciler(webhookOnlyProvider{}, users,
		subscription.WithReconcilerClock(clock))
	params := story.Params{Topic: "dragones"}

	for want := quota.FreeLimit - 1; want >= 0; want-- {
		res, err := svc.Generate(ctx, "kid@example.com", params)
		require.NoError(t, err)
		assert.Equal(t, want, res.StoriesRemaining)
	}
	_, err := svc.Generate(ctx, "kid@example.com", params)
	exceeded, ok := quota.AsExceeded(err)
	require.True(t, ok, "got %v", err)
	assert.True(t, exceeded.SubscriptionRequired())

	u, err := users.FindByEmail(ctx, "kid@example.com")
	require.NoError(t, err)
	end := t0.AddDate(0, 1, 0)
	res, err := r.ApplyEvent(ctx, billing.CheckoutCompleted{
		Meta:            billing.Meta{ID: "evt_1", Provider: "test", Kind: billing.KindCheckoutCompleted, OccurredAt: t0},
		CorrelationID:   u.ID.String(),
		CustomerRef:     "cus_1",
		SubscriptionRef: "sub_1",
		PeriodEnd:       &end,
	})
	require.NoError(t, err)
	require.Equal(t, subscription.OutcomeApplied, res.Outcome)

	for want := quota.MonthlyLimit - 1; want >= 0; want-- {
		res, err := svc.Generate(ctx, "kid@example.com", params)
		require.NoError(t, err)
		assert.Equal(t, want, res.StoriesRemaining)
	}
	_, err = svc.Generate(ctx, "kid@example.com", params)
	require.ErrorIs(t, err, quota.ErrQuotaExceeded)
	exceeded, ok = quota.AsExceeded(err)
	require.True(t, ok)
	assert.Equal(t, quota.ReasonMonthlyLimit, exceeded.Reason)
	assert.False(t, exceeded.SubscriptionRequired())

	u, err = users.FindByEmail(ctx, "kid@example.com")
	require.NoError(t, err)
	assert.Equal(t, quota.FreeLimit+quota.MonthlyLimit, u.StoriesGeneratedLifetime)
	assert.Equal(t, quota.MonthlyLimit, u.StoriesGeneratedThisMonth)
	gen.AssertNumberOfCalls(t, "Generate", quota.FreeLimit+quota.MonthlyLimit)
}

func TestGenerate_ProviderFailureIsNotCharged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := user.NewMemoryStore()
	seedUser(t, users, "kid@example.com", nil)

	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("503 from provider")).Once()
	svc, _ := newService(users, gen)

	_, err := svc.Generate(ctx, "kid@example.com", story.Params{Topic: "x"})
	assert.ErrorIs(t, err, story.ErrUpstreamFailure)

	u, err := users.FindByEmail(ctx, "kid@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, u.StoriesGeneratedLifetime)
}

func TestGenerate_Premium(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("monthly limit", func(t *testing.T) {
		users := user.NewMemoryStore()
		seedUser(t, users, "p@example.com", func(u *user.User) {
			u.SubscriptionStatus = user.StatusActive
			u.StoriesGeneratedLifetime = 80
			u.StoriesGeneratedThisMonth = quota.MonthlyLimit
		})
		gen := &mockGenerator{}
		svc, _ := newService(users, gen)

		_, err := svc.Generate(ctx, "p@example.com", story.Params{Topic: "x"})
		exceeded, ok := quota.AsExceeded(err)
		require.True(t, ok, "got %v", err)
		assert.False(t, exceeded.SubscriptionRequired())
		gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("new month resets the counter", func(t *testing.T) {
		users := user.NewMemoryStore()
		seedUser(t, users, "p@example.com", func(u *user.User) {
			u.SubscriptionStatus = user.StatusActive
			u.StoriesGeneratedLifetime = 80
			u.StoriesGeneratedThisMonth = quota.MonthlyLimit
			u.LastMonthlyReset = t0.AddDate(0, -1, 0)
		})
		svc, _ := newService(users, okGenerator())

		res, err := svc.Generate(ctx, "p@example.com", story.Params{Topic: "x", Language: "en"})
		require.NoError(t, err)
		assert.Equal(t, quota.MonthlyLimit-1, res.StoriesRemaining)

		u, err := users.FindByEmail(ctx, "p@example.com")
		require.NoError(t, err)
		assert.Equal(t, 1, u.StoriesGeneratedThisMonth)
		assert.Equal(t, 81, u.StoriesGeneratedLifetime)
		assert.True(t, t0.Equal(u.LastMonthlyReset))
	})

	t.Run("lapsed subscription falls back to free tier", func(t *testing.T) {
		users := user.NewMemoryStore()
		seedUser(t, users, "p@example.com", func(u *user.User) {
			end := t0.Add(-time.Hour)
			u.SubscriptionStatus = user.StatusActive
			u.SubscriptionEndDate = &end
			u.StoriesGeneratedLifetime = 10
		})
		svc, _ := newService(users, &mockGenerator{})

		_, err := svc.Generate(ctx, "p@example.com", story.Params{Topic: "x"})
		exceeded, ok := quota.AsExceeded(err)
		require.True(t, ok, "got %v", err)
		assert.True(t, exceeded.SubscriptionRequired())
	})
}

func TestGenerate_CommitRechecksQuota(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := user.NewMemoryStore()
	seeded := seedUser(t, users, "kid@example.com", func(u *user.User) {
		u.StoriesGeneratedLifetime = quota.FreeLimit - 1
	})

	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			// another instance takes the last slot while the provider is busy
			u, err := users.FindByID(ctx, seeded.ID)
			if err == nil {
				u.StoriesGeneratedLifetime++
				_ = users.Save(ctx, u)
			}
		}).
		Return(completion, nil).Once()
	svc, _ := newService(users, gen)

	_, err := svc.Generate(ctx, "kid@example.com", story.Params{Topic: "x"})
	require.ErrorIs(t, err, quota.ErrQuotaExceeded)

	u, err := users.FindByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, quota.FreeLimit, u.StoriesGeneratedLifetime)
}

func TestGenerate_CommitConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("one conflict is retried", func(t *testing.T) {
		base := user.NewMemoryStore()
		seeded := seedUser(t, base, "kid@example.com", nil)
		users := &racingStore{Store: base, races: 1}
		svc, _ := newService(users, okGenerator())

		res, err := svc.Generate(ctx, "kid@example.com", story.Params{Topic: "x"})
		require.NoError(t, err)
		assert.Equal(t, quota.FreeLimit-1, res.StoriesRemaining)

		u, err := base.FindByID(ctx, seeded.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, u.StoriesGeneratedLifetime)
	})

	t.Run("second conflict is an upstream failure", func(t *testing.T) {
		base := user.NewMemoryStore()
		seeded := seedUser(t, base, "kid@example.com", nil)
		users := &racingStore{Store: base, races: 2}
		svc, _ := newService(users, okGenerator())

		_, err := svc.Generate(ctx, "kid@example.com", story.Params{Topic: "x"})
		require.ErrorIs(t, err, story.ErrUpstreamFailure)
		assert.ErrorIs(t, err, user.ErrConcurrencyConflict)

		u, err := base.FindByID(ctx, seeded.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, u.StoriesGeneratedLifetime)
	})
}

func TestGenerate_ConcurrentRequestsNeverExceedQuota(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := user.NewMemoryStore()
	svc, _ := newService(users, okGenerator())

	var (
		wg       sync.WaitGroup
		ok       atomic.Int32
		exceeded atomic.Int32
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Generate(ctx, "kid@example.com", story.Params{Topic: "x"})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, quota.ErrQuotaExceeded):
				exceeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(quota.FreeLimit), ok.Load())
	assert.Equal(t, int32(10-quota.FreeLimit), exceeded.Load())

	u, err := users.FindByEmail(ctx, "kid@example.com")
	require.NoError(t, err)
	assert.Equal(t, quota.FreeLimit, u.StoriesGeneratedLifetime)
}

func TestGenerate_Archive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	archive, err := file.NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)
	svc, _ := newService(user.NewMemoryStore(), okGenerator(), story.WithArchive(archive))

	res, err := svc.Generate(ctx, "kid@example.com", story.Params{Topic: "dragones", AgeGroup: "3-6"})
	require.NoError(t, err)

	key := story.ArchiveKey(res.Story)
	assert.Equal(t, "stories/2026/05/"+res.Story.ID.String()+".json", key)
	data, err := archive.Get(ctx, key)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "El Dragón Valiente", doc["title"])
	assert.Equal(t, res.Story.UserID.String(), doc["userId"])
}

func TestRecordAudio(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	users := user.NewMemoryStore()
	seedUser(t, users, "other@example.com", nil)
	svc, _ := newService(users, okGenerator())

	res, err := svc.Generate(ctx, "kid@example.com", story.Params{Topic: "x"})
	require.NoError(t, err)
	id := res.Story.ID

	_, err = svc.RecordAudio(ctx, id, "other@example.com")
	assert.ErrorIs(t, err, story.ErrForbidden)

	st, err := svc.RecordAudio(ctx, id, "KID@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, st.AudioGenerations)
	assert.False(t, st.CanGenerateAudio())

	_, err = svc.RecordAudio(ctx, id, "kid@example.com")
	assert.ErrorIs(t, err, story.ErrAudioLimit)

	_, err = svc.RecordAudio(ctx, uuid.New(), "kid@example.com")
	assert.ErrorIs(t, err, story.ErrNotFound)

	_, err = svc.RecordAudio(ctx, id, "nobody@example.com")
	assert.ErrorIs(t, err, user.ErrNotFound)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AudioGenerations)
}
