package models

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"
)

const (
	// DefaultSound is the notification sound assigned to new subscriptions.
	DefaultSound = "default"

	// CooldownWindow is how long repeat go-live notifications from one broadcaster are suppressed when cooldown is on.
	CooldownWindow = 4 * time.Hour
)

// UserSubscription represents a user's opt-in to be notified about one broadcaster.
//
// Two values describe the same logical subscription iff their usernames match, see [SameIdentity].
type UserSubscription struct {
	Username           string   `json:"username"`
	IconURL            string   `json:"iconUrl,omitempty"`
	Notify             bool     `json:"notify"`
	SubredditBlacklist []string `json:"subredditBlacklist"`
	Cooldown           bool     `json:"cooldown"`
	Sound              string   `json:"sound"`
}

// NewUserSubscription builds a subscription with import defaults: notifications on, empty blacklist, no cooldown
// and the default sound.
func NewUserSubscription(username, iconURL string) UserSubscription {
	return UserSubscription{
		Username:           username,
		IconURL:            iconURL,
		Notify:             true,
		SubredditBlacklist: []string{},
		Cooldown:           false,
		Sound:              DefaultSound,
	}
}

// UnmarshalJSON decodes a subscription, filling in the default sound and an empty blacklist for records written
// before those fields existed.
func (s *UserSubscription) UnmarshalJSON(data []byte) error {
	type alias UserSubscription
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Sound == "" {
		a.Sound = DefaultSound
	}
	if a.SubredditBlacklist == nil {
		a.SubredditBlacklist = []string{}
	}
	*s = UserSubscription(a)
	return nil
}

// Validate checks the identity invariant.
func (s UserSubscription) Validate() error {
	if strings.TrimSpace(s.Username) == "" {
		return fmt.Errorf("username is required")
	}
	return nil
}

// HasIcon reports whether an icon URL is attached.
func (s UserSubscription) HasIcon() bool {
	return s.IconURL != ""
}

// WithNotifications returns a copy with notify set to enabled.
func (s UserSubscription) WithNotifications(enabled bool) UserSubscription {
	c := s.clone()
	c.Notify = enabled
	return c
}

// WithIconURL returns a copy with the icon replaced. An empty string clears it.
func (s UserSubscription) WithIconURL(iconURL string) UserSubscription {
	c := s.clone()
	c.IconURL = iconURL
	return c
}

// WithSubredditBlacklist returns a copy whose blacklist is the de-duplicated, sorted set of subreddits.
func (s UserSubscription) WithSubredditBlacklist(subreddits []string) UserSubscription {
	c := s.clone()
	c.SubredditBlacklist = normalizeSet(subreddits)
	return c
}

// WithCooldown returns a copy with cooldown set to enabled.
func (s UserSubscription) WithCooldown(enabled bool) UserSubscription {
	c := s.clone()
	c.Cooldown = enabled
	return c
}

// WithSound returns a copy using the named sound. An empty name resets to [DefaultSound].
func (s UserSubscription) WithSound(sound string) UserSubscription {
	c := s.clone()
	if sound == "" {
		sound = DefaultSound
	}
	c.Sound = sound
	return c
}

// Blacklists reports whether notifications from the named subreddit are suppressed.
func (s UserSubscription) Blacklists(subreddit string) bool {
	return slices.Contains(s.SubredditBlacklist, subreddit)
}

// SoundDisplayName formats the sound asset name for display: "soft-bell" becomes "Soft Bell".
func (s UserSubscription) SoundDisplayName() string {
	parts := strings.Split(s.Sound, "-")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + strings.ToLower(p[1:])
	}
	return strings.Join(parts, " ")
}

func (s UserSubscription) clone() UserSubscription {
	c := s
	c.SubredditBlacklist = slices.Clone(s.SubredditBlacklist)
	if c.SubredditBlacklist == nil {
		c.SubredditBlacklist = []string{}
	}
	return c
}

func normalizeSet(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// SameIdentity reports whether a and b are the same logical subscription.
func SameIdentity(a, b UserSubscription) bool {
	return a.Username == b.Username
}

// IsSubscribedTo reports whether username has a subscription in list. Matching is exact and case-sensitive.
func IsSubscribedTo(username string, list []UserSubscription) bool {
	return IndexOf(username, list) >= 0
}

// IndexOf returns the position of username in list or -1.
func IndexOf(username string, list []UserSubscription) int {
	return slices.IndexFunc(list, func(s UserSubscription) bool { return s.Username == username })
}

// Usernames returns the usernames of list in order.
func Usernames(list []UserSubscription) []string {
	names := make([]string, 0, len(list))
	for _, s := range list {
		names = append(names, s.Username)
	}
	return names
}

// Dedupe keeps the first occurrence of each username.
func Dedupe(list []UserSubscription) []UserSubscription {
	seen := make(map[string]struct{}, len(list))
	out := make([]UserSubscription, 0, len(list))
	for _, s := range list {
		if _, ok := seen[s.Username]; ok {
			continue
		}
		seen[s.Username] = struct{}{}
		out = append(out, s)
	}
	return out
}

// NewlyAdded returns the entries of after whose username does not appear in before.
//
// Comparison is by identity only, so a settings change on an existing subscription is never reported as new.
func NewlyAdded(before, after []UserSubscription) []UserSubscription {
	known := make(map[string]struct{}, len(before))
	for _, s := range before {
		known[s.Username] = struct{}{}
	}
	added := []UserSubscription{}
	for _, s := range after {
		if _, ok := known[s.Username]; !ok {
			added = append(added, s)
		}
	}
	return added
}

// ParseIconURL validates raw as an absolute http(s) URL. Reddit escapes ampersands in icon URLs, those are restored.
func ParseIconURL(raw string) (string, bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "&amp;", "&"))
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return u.String(), true
}
