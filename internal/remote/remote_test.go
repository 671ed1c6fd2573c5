package remote

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/rpansync/internal/docstore"
	"github.com/desertthunder/rpansync/internal/models"
	"github.com/desertthunder/rpansync/internal/shared"
	tu "github.com/desertthunder/rpansync/internal/testing"
)

func setupRepository(t *testing.T) (*Repository, *tu.FlakyStore) {
	t.Helper()
	_, store := tu.MustRedisStore(t)
	flaky := tu.NewFlakyStore(store)
	return NewRepository(flaky, nil), flaky
}

func TestDocumentID(t *testing.T) {
	assert.Equal(t, "u1+alice", DocumentID("u1", "alice"))
}

func TestField(t *testing.T) {
	assert.True(t, FieldSettings.Has(FieldNotify))
	assert.True(t, FieldSettings.Has(FieldNotify|FieldSound))
	assert.False(t, FieldSettings.Has(FieldIconURL))
}

func TestRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("BatchUpsert then FetchAll", func(t *testing.T) {
		repo, flaky := setupRepository(t)
		subs := []models.UserSubscription{
			models.NewUserSubscription("bob", "https://example.com/bob.png").WithCooldown(true),
			models.NewUserSubscription("alice", "https://example.com/alice.png").WithSubredditBlacklist([]string{"pan"}),
		}

		require.NoError(t, repo.BatchUpsert(ctx, subs, "u1", "me"))
		assert.Equal(t, []int{2}, flaky.Commits())

		got, err := repo.FetchAll(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []string{"alice", "bob"}, models.Usernames(got))
		assert.True(t, got[0].Notify)
		assert.True(t, got[0].Blacklists("pan"))
		assert.True(t, got[1].Cooldown)
		assert.Equal(t, "https://example.com/bob.png", got[1].IconURL)
	})

	t.Run("stored document shape", func(t *testing.T) {
		repo, flaky := setupRepository(t)
		sub := models.NewUserSubscription("alice", "https://example.com/alice.png")
		require.NoError(t, repo.BatchUpsert(ctx, []models.UserSubscription{sub}, "u1", "me"))

		doc, err := flaky.Get(ctx, CollectionSubscriptions, "u1+alice")
		require.NoError(t, err)
		assert.Equal(t, "u1", doc.Fields["userId"])
		assert.Equal(t, "alice", doc.Fields["broadcaster"])
		assert.Equal(t, "me", doc.Fields["follower"])
		assert.Equal(t, true, doc.Fields["notify"])
		assert.Equal(t, false, doc.Fields["cooldown"])
		assert.Equal(t, models.DefaultSound, doc.Fields["sound"])
		assert.Equal(t, []any{}, doc.Fields["subBlacklist"])
		assert.Equal(t, "https://example.com/alice.png", doc.Fields["iconUrl"])
	})

	t.Run("BatchUpsert empty list writes nothing", func(t *testing.T) {
		repo, flaky := setupRepository(t)
		require.NoError(t, repo.BatchUpsert(ctx, nil, "u1", "me"))
		assert.Empty(t, flaky.Commits())
	})

	t.Run("BatchUpsert failure is ErrWrite and atomic", func(t *testing.T) {
		repo, flaky := setupRepository(t)
		flaky.FailCommit(fmt.Errorf("%w: injected", shared.ErrWrite))

		subs := []models.UserSubscription{models.NewUserSubscription("alice", ""), models.NewUserSubscription("bob", "")}
		err := repo.BatchUpsert(ctx, subs, "u1", "me")
		assert.ErrorIs(t, err, shared.ErrWrite)

		flaky.FailCommit(nil)
		got, err := repo.FetchAll(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("requires identity", func(t *testing.T) {
		repo, _ := setupRepository(t)
		_, err := repo.FetchAll(ctx, "")
		assert.ErrorIs(t, err, shared.ErrAuth)
		assert.ErrorIs(t, repo.BatchUpsert(ctx, nil, "", "me"), shared.ErrAuth)
		assert.ErrorIs(t, repo.Delete(ctx, models.NewUserSubscription("a", ""), ""), shared.ErrAuth)
	})

	t.Run("FetchAll is scoped to the user", func(t *testing.T) {
		repo, _ := setupRepository(t)
		require.NoError(t, repo.BatchUpsert(ctx, []models.UserSubscription{models.NewUserSubscription("alice", "")}, "u1", "me"))
		require.NoError(t, repo.BatchUpsert(ctx, []models.UserSubscription{models.NewUserSubscription("bob", "")}, "u2", "me"))

		got, err := repo.FetchAll(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, models.Usernames(got))
	})

	t.Run("FetchAll applies defaults", func(t *testing.T) {
		repo, flaky := setupRepository(t)
		require.NoError(t, flaky.Set(ctx, CollectionSubscriptions, "u1+carol", docstore.Fields{
			"userId":      "u1",
			"broadcaster": "carol",
		}, false))

		got, err := repo.FetchAll(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.False(t, got[0].Notify)
		assert.False(t, got[0].Cooldown)
		assert.Equal(t, models.DefaultSound, got[0].Sound)
		assert.Empty(t, got[0].SubredditBlacklist)
		assert.True(t, slices.Contains(models.DefaultIcons, got[0].IconURL))
	})

	t.Run("FetchAll network failure", func(t *testing.T) {
		repo, flaky := setupRepository(t)
		flaky.FailQuery(fmt.Errorf("%w: injected", shared.ErrNetwork))

		_, err := repo.FetchAll(ctx, "u1")
		assert.ErrorIs(t, err, shared.ErrNetwork)
	})

	t.Run("Update merges only selected fields", func(t *testing.T) {
		repo, _ := setupRepository(t)
		alice := models.NewUserSubscription("alice", "https://example.com/alice.png").WithSound("soft-bell")
		require.NoError(t, repo.BatchUpsert(ctx, []models.UserSubscription{alice}, "u1", "me"))

		changed := alice.WithNotifications(false).WithSound("loud")
		require.NoError(t, repo.Update(ctx, changed, FieldNotify, "u1"))

		got, err := repo.FetchAll(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.False(t, got[0].Notify)
		assert.Equal(t, "soft-bell", got[0].Sound)
	})

	t.Run("Update blacklist and cooldown", func(t *testing.T) {
		repo, _ := setupRepository(t)
		alice := models.NewUserSubscription("alice", "")
		require.NoError(t, repo.BatchUpsert(ctx, []models.UserSubscription{alice}, "u1", "me"))

		changed := alice.WithSubredditBlacklist([]string{"talentshow"}).WithCooldown(true)
		require.NoError(t, repo.Update(ctx, changed, FieldSubredditBlacklist|FieldCooldown, "u1"))

		got, _ := repo.FetchAll(ctx, "u1")
		require.Len(t, got, 1)
		assert.True(t, got[0].Cooldown)
		assert.Equal(t, []string{"talentshow"}, got[0].SubredditBlacklist)
		assert.True(t, got[0].Notify)
	})

	t.Run("Delete", func(t *testing.T) {
		repo, _ := setupRepository(t)
		alice := models.NewUserSubscription("alice", "")
		require.NoError(t, repo.BatchUpsert(ctx, []models.UserSubscription{alice}, "u1", "me"))

		require.NoError(t, repo.Delete(ctx, alice, "u1"))
		err := repo.Delete(ctx, alice, "u1")
		assert.True(t, errors.Is(err, shared.ErrNotFound), "second delete should be not found, got %v", err)
	})

	t.Run("PersistIcons", func(t *testing.T) {
		repo, flaky := setupRepository(t)
		subs := []models.UserSubscription{models.NewUserSubscription("alice", ""), models.NewUserSubscription("bob", "")}
		require.NoError(t, repo.BatchUpsert(ctx, subs, "u1", "me"))

		withIcons := []models.UserSubscription{subs[0].WithIconURL("https://example.com/new.png"), subs[1]}
		require.NoError(t, repo.PersistIcons(ctx, withIcons, "u1"))
		assert.Equal(t, []int{2, 1}, flaky.Commits())

		doc, err := flaky.Get(ctx, CollectionSubscriptions, "u1+alice")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/new.png", doc.Fields["iconUrl"])
		assert.Equal(t, "alice", doc.Fields["broadcaster"])
	})

	t.Run("PersistIcons skips subscriptions without a document", func(t *testing.T) {
		repo, flaky := setupRepository(t)
		alice := models.NewUserSubscription("alice", "")
		require.NoError(t, repo.BatchUpsert(ctx, []models.UserSubscription{alice}, "u1", "me"))

		withIcons := []models.UserSubscription{
			alice.WithIconURL("https://example.com/a.png"),
			models.NewUserSubscription("bob", "https://example.com/b.png"),
		}
		require.NoError(t, repo.PersistIcons(ctx, withIcons, "u1"))

		_, err := flaky.Get(ctx, CollectionSubscriptions, "u1+bob")
		assert.ErrorIs(t, err, shared.ErrNotFound)

		got, err := repo.FetchAll(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "https://example.com/a.png", got[0].IconURL)
	})

	t.Run("Get", func(t *testing.T) {
		repo, _ := setupRepository(t)
		alice := models.NewUserSubscription("alice", "https://example.com/a.png").
			WithNotifications(false).
			WithSound("soft-bell").
			WithSubredditBlacklist([]string{"pan"})
		require.NoError(t, repo.BatchUpsert(ctx, []models.UserSubscription{alice}, "u1", "me"))

		got, err := repo.Get(ctx, "alice", "u1")
		require.NoError(t, err)
		assert.Equal(t, alice, got)

		_, err = repo.Get(ctx, "bob", "u1")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("DeleteAll", func(t *testing.T) {
		repo, _ := setupRepository(t)
		subs := []models.UserSubscription{models.NewUserSubscription("alice", ""), models.NewUserSubscription("bob", "")}
		require.NoError(t, repo.BatchUpsert(ctx, subs, "u1", "me"))
		require.NoError(t, repo.BatchUpsert(ctx, subs[:1], "u2", "me"))

		n, err := repo.DeleteAll(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, _ := repo.FetchAll(ctx, "u1")
		assert.Empty(t, got)
		other, _ := repo.FetchAll(ctx, "u2")
		assert.Len(t, other, 1)
	})
}

func TestRepositoryUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateUser defaults", func(t *testing.T) {
		repo, _ := setupRepository(t)
		require.NoError(t, repo.CreateUser(ctx, "u1"))

		user, err := repo.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", user.UserID)
		assert.True(t, user.NotificationsOn)
		assert.Empty(t, user.Username)
	})

	t.Run("AssociateUsername and SetGlobalNotifications", func(t *testing.T) {
		repo, _ := setupRepository(t)
		require.NoError(t, repo.CreateUser(ctx, "u1"))
		require.NoError(t, repo.AssociateUsername(ctx, "u1", "alice"))
		require.NoError(t, repo.SetGlobalNotifications(ctx, "u1", false))

		user, err := repo.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
		assert.False(t, user.NotificationsOn)

		require.NoError(t, repo.CreateUser(ctx, "u1"))
		user, _ = repo.GetUser(ctx, "u1")
		assert.Equal(t, "alice", user.Username, "re-creating a user keeps its fields")
	})

	t.Run("AssociateUsername requires a name", func(t *testing.T) {
		repo, _ := setupRepository(t)
		assert.ErrorIs(t, repo.AssociateUsername(ctx, "u1", ""), shared.ErrInvalidInput)
	})

	t.Run("GetUser missing", func(t *testing.T) {
		repo, _ := setupRepository(t)
		_, err := repo.GetUser(ctx, "ghost")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("CreateUser failure", func(t *testing.T) {
		repo, flaky := setupRepository(t)
		flaky.FailSet(fmt.Errorf("%w: injected", shared.ErrNetwork))
		assert.ErrorIs(t, repo.CreateUser(ctx, "u1"), shared.ErrNetwork)
	})
}

func TestRepositorySubreddits(t *testing.T) {
	ctx := context.Background()

	t.Run("ListSubreddits", func(t *testing.T) {
		repo, flaky := setupRepository(t)
		require.NoError(t, flaky.Set(ctx, CollectionSubreddits, "2", docstore.Fields{"name": "RedditSessions", "iconUrl": "not a url"}, false))
		require.NoError(t, flaky.Set(ctx, CollectionSubreddits, "1", docstore.Fields{"name": "pan", "iconUrl": "https://example.com/pan.png"}, false))
		require.NoError(t, flaky.Set(ctx, CollectionSubreddits, "3", docstore.Fields{"iconUrl": "https://example.com/x.png"}, false))

		got, err := repo.ListSubreddits(ctx)
		require.NoError(t, err)
		assert.Equal(t, []models.RpanSubreddit{
			{Name: "pan", IconURL: "https://example.com/pan.png"},
			{Name: "RedditSessions"},
		}, got)
	})

	t.Run("ListSubreddits empty catalog", func(t *testing.T) {
		repo, _ := setupRepository(t)
		got, err := repo.ListSubreddits(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ListSubreddits failure", func(t *testing.T) {
		repo, flaky := setupRepository(t)
		flaky.FailQuery(fmt.Errorf("%w: injected", shared.ErrNetwork))
		_, err := repo.ListSubreddits(ctx)
		assert.ErrorIs(t, err, shared.ErrNetwork)
	})
}
