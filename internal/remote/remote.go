// Package remote is the server-side record of a device's favorited broadcasters.
//
// Each subscription is one document in the "subscriptions" collection keyed by "<userId>+<username>"; the device
// identity lives in the "users" collection and the shared subreddit catalog in "subreddits". Every operation requires the opaque user ID issued by the identity
// provider.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/rpansync/internal/docstore"
	"github.com/desertthunder/rpansync/internal/models"
	"github.com/desertthunder/rpansync/internal/shared"
)

const (
	CollectionSubscriptions = "subscriptions"
	CollectionUsers         = "users"
	CollectionSubreddits    = "subreddits"
)

// DocumentID is the deterministic key of a subscription document.
func DocumentID(userID, username string) string {
	return userID + "+" + username
}

// Field selects subscription fields for a partial [Repository.Update].
type Field uint8

const (
	FieldNotify Field = 1 << iota
	FieldCooldown
	FieldSound
	FieldSubredditBlacklist
	FieldIconURL

	// FieldSettings is every user-editable setting.
	FieldSettings = FieldNotify | FieldCooldown | FieldSound | FieldSubredditBlacklist
)

// Has reports whether all of other is selected.
func (f Field) Has(other Field) bool {
	return f&other == other
}

// subscriptionDoc is the stored shape of a subscription.
type subscriptionDoc struct {
	UserID       string   `json:"userId"`
	Broadcaster  string   `json:"broadcaster"`
	Follower     string   `json:"follower"`
	Notify       bool     `json:"notify"`
	IconURL      string   `json:"iconUrl"`
	Cooldown     bool     `json:"cooldown"`
	Sound        string   `json:"sound"`
	SubBlacklist []string `json:"subBlacklist"`
}

func (d subscriptionDoc) subscription() models.UserSubscription {
	icon, ok := models.ParseIconURL(d.IconURL)
	if !ok {
		icon = models.RandomIcon()
	}
	return models.NewUserSubscription(d.Broadcaster, icon).
		WithNotifications(d.Notify).
		WithCooldown(d.Cooldown).
		WithSound(d.Sound).
		WithSubredditBlacklist(d.SubBlacklist)
}

func subscriptionFields(sub models.UserSubscription, userID, follower string) docstore.Fields {
	fields := docstore.Fields{
		"userId":      userID,
		"broadcaster": sub.Username,
		"follower":    follower,
	}
	for k, v := range settingFields(sub, FieldSettings|FieldIconURL) {
		fields[k] = v
	}
	return fields
}

func settingFields(sub models.UserSubscription, which Field) docstore.Fields {
	fields := docstore.Fields{}
	if which.Has(FieldNotify) {
		fields["notify"] = sub.Notify
	}
	if which.Has(FieldCooldown) {
		fields["cooldown"] = sub.Cooldown
	}
	if which.Has(FieldSound) {
		fields["sound"] = sub.Sound
	}
	if which.Has(FieldSubredditBlacklist) {
		blacklist := sub.SubredditBlacklist
		if blacklist == nil {
			blacklist = []string{}
		}
		fields["subBlacklist"] = blacklist
	}
	if which.Has(FieldIconURL) && sub.HasIcon() {
		fields["iconUrl"] = sub.IconURL
	}
	return fields
}

// Repository reads and writes subscription and user documents.
type Repository struct {
	store docstore.Store
	log   *log.Logger
}

// NewRepository creates a [Repository] over store.
func NewRepository(store docstore.Store, logger *log.Logger) *Repository {
	if logger == nil {
		logger = shared.DiscardLogger()
	}
	return &Repository{store: store, log: shared.WithLogger(logger, "component", "remote")}
}

// FetchAll returns every subscription stored for userID, ordered by document key.
//
// Missing fields take the defaults notify=false, cooldown=false, empty blacklist and the default sound;
// a missing or unusable icon is replaced with a stock avatar.
func (r *Repository) FetchAll(ctx context.Context, userID string) ([]models.UserSubscription, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}

	docs, err := r.store.Query(ctx, CollectionSubscriptions, "userId", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions: %w", err)
	}

	subs := make([]models.UserSubscription, 0, len(docs))
	for _, doc := range docs {
		var d subscriptionDoc
		if err := doc.Decode(&d); err != nil {
			r.log.Warn("skipping unreadable subscription", "id", doc.ID, "err", err)
			continue
		}
		if d.Broadcaster == "" {
			r.log.Warn("skipping subscription without broadcaster", "id", doc.ID)
			continue
		}
		subs = append(subs, d.subscription())
	}
	return models.Dedupe(subs), nil
}

// Get returns the stored subscription of username. The error wraps [shared.ErrNotFound] when there is none.
func (r *Repository) Get(ctx context.Context, username, userID string) (models.UserSubscription, error) {
	if err := requireUser(userID); err != nil {
		return models.UserSubscription{}, err
	}

	doc, err := r.store.Get(ctx, CollectionSubscriptions, DocumentID(userID, username))
	if err != nil {
		return models.UserSubscription{}, fmt.Errorf("failed to get subscription %s: %w", username, err)
	}

	var d subscriptionDoc
	if err := doc.Decode(&d); err != nil {
		return models.UserSubscription{}, err
	}
	if d.Broadcaster == "" {
		d.Broadcaster = username
	}
	return d.subscription(), nil
}

// BatchUpsert writes subs in a single atomic batch. Callers pass only entries that are not yet stored.
// An empty list writes nothing.
func (r *Repository) BatchUpsert(ctx context.Context, subs []models.UserSubscription, userID, follower string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	b := docstore.NewBatch()
	for _, sub := range subs {
		if err := sub.Validate(); err != nil {
			return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
		}
		b.Set(CollectionSubscriptions, DocumentID(userID, sub.Username), subscriptionFields(sub, userID, follower))
	}

	if err := r.store.Commit(ctx, b); err != nil {
		return fmt.Errorf("failed to persist %d subscriptions: %w", len(subs), err)
	}
	r.log.Debug("persisted subscriptions", "count", len(subs))
	return nil
}

// Update merges the selected fields of sub into its document, leaving the others untouched.
func (r *Repository) Update(ctx context.Context, sub models.UserSubscription, which Field, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	fields := settingFields(sub, which)
	if len(fields) == 0 {
		return nil
	}

	id := DocumentID(userID, sub.Username)
	if err := r.store.Set(ctx, CollectionSubscriptions, id, fields, true); err != nil {
		return fmt.Errorf("failed to update subscription %s: %w", sub.Username, err)
	}
	return nil
}

// Delete removes the document of sub. The error wraps [shared.ErrNotFound] when it was already gone.
func (r *Repository) Delete(ctx context.Context, sub models.UserSubscription, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := r.store.Delete(ctx, CollectionSubscriptions, DocumentID(userID, sub.Username)); err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", sub.Username, err)
	}
	return nil
}

// PersistIcons sets the icon URL of every sub that has one, in one batch. Subscriptions with no document are
// skipped rather than created.
func (r *Repository) PersistIcons(ctx context.Context, subs []models.UserSubscription, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}

	b := docstore.NewBatch()
	for _, sub := range subs {
		if !sub.HasIcon() {
			continue
		}
		b.Update(CollectionSubscriptions, DocumentID(userID, sub.Username), docstore.Fields{"iconUrl": sub.IconURL})
	}
	if b.Len() == 0 {
		return nil
	}

	if err := r.store.Commit(ctx, b); err != nil {
		return fmt.Errorf("failed to persist %d icons: %w", b.Len(), err)
	}
	return nil
}

// DeleteAll removes every subscription of userID in one batch and returns how many were removed.
func (r *Repository) DeleteAll(ctx context.Context, userID string) (int, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}

	docs, err := r.store.Query(ctx, CollectionSubscriptions, "userId", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	b := docstore.NewBatch()
	for _, doc := range docs {
		b.Delete(CollectionSubscriptions, doc.ID)
	}
	if err := r.store.Commit(ctx, b); err != nil {
		return 0, fmt.Errorf("failed to delete subscriptions: %w", err)
	}
	return b.Len(), nil
}

// CreateUser registers a device identity. Existing user documents keep their other fields.
func (r *Repository) CreateUser(ctx context.Context, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	fields := docstore.Fields{"userId": userID, "createdAt": time.Now().UTC().Format(time.RFC3339)}
	if err := r.store.Set(ctx, CollectionUsers, userID, fields, true); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// AssociateUsername records the Reddit account name behind the device identity.
func (r *Repository) AssociateUsername(ctx context.Context, userID, username string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if username == "" {
		return fmt.Errorf("%w: username is required", shared.ErrInvalidInput)
	}
	if err := r.store.Set(ctx, CollectionUsers, userID, docstore.Fields{"username": username}, true); err != nil {
		return fmt.Errorf("failed to associate username: %w", err)
	}
	return nil
}

// SetGlobalNotifications toggles every notification for the device.
func (r *Repository) SetGlobalNotifications(ctx context.Context, userID string, on bool) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	if err := r.store.Set(ctx, CollectionUsers, userID, docstore.Fields{"notificationsOn": on}, true); err != nil {
		return fmt.Errorf("failed to update notification setting: %w", err)
	}
	return nil
}

// GetUser reads the device identity record.
func (r *Repository) GetUser(ctx context.Context, userID string) (models.AppUser, error) {
	if err := requireUser(userID); err != nil {
		return models.AppUser{}, err
	}

	doc, err := r.store.Get(ctx, CollectionUsers, userID)
	if err != nil {
		return models.AppUser{}, fmt.Errorf("failed to get user: %w", err)
	}

	var u struct {
		Username        string `json:"username"`
		NotificationsOn *bool  `json:"notificationsOn"`
	}
	if err := doc.Decode(&u); err != nil {
		return models.AppUser{}, err
	}

	user := models.AppUser{UserID: userID, Username: u.Username, NotificationsOn: true}
	if u.NotificationsOn != nil {
		user.NotificationsOn = *u.NotificationsOn
	}
	return user, nil
}

// ListSubreddits returns the subreddit catalog ordered by document id. Entries without a name are skipped and an
// unusable icon is dropped.
func (r *Repository) ListSubreddits(ctx context.Context) ([]models.RpanSubreddit, error) {
	docs, err := r.store.List(ctx, CollectionSubreddits)
	if err != nil {
		return nil, fmt.Errorf("failed to list subreddits: %w", err)
	}

	subreddits := make([]models.RpanSubreddit, 0, len(docs))
	for _, doc := range docs {
		var sr models.RpanSubreddit
		if err := doc.Decode(&sr); err != nil || sr.Name == "" {
			r.log.Warn("skipping unreadable subreddit", "id", doc.ID, "err", err)
			continue
		}
		if icon, ok := models.ParseIconURL(sr.IconURL); ok {
			sr.IconURL = icon
		} else {
			sr.IconURL = ""
		}
		subreddits = append(subreddits, sr)
	}
	return subreddits, nil
}

func requireUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: no user identity", shared.ErrAuth)
	}
	return nil
}
