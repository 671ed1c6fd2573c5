package models

import (
	"math/rand/v2"
	"strings"
)

// Cursor is the opaque resume token of a paged Reddit listing.
//
// The zero value requests the first page; a response carrying the zero value has no further pages.
type Cursor string

// IsVacant reports whether the cursor marks the end of the listing.
func (c Cursor) IsVacant() bool {
	return c == ""
}

// Page is one page of the followed-accounts listing.
type Page struct {
	Items []FollowedAccount
	Next  Cursor
}

// FollowedAccount is an entry of the "subreddits I subscribe to" listing. User profiles show up as subreddits of
// type "user" named "u_<username>".
type FollowedAccount struct {
	DisplayName   string `json:"display_name"`
	SubredditType string `json:"subreddit_type"`
	IconImg       string `json:"icon_img"`
}

// IsUser reports whether the entry is an individual user's profile rather than a community.
func (a FollowedAccount) IsUser() bool {
	return a.SubredditType == "user"
}

// Username strips the "u_" profile prefix from the display name.
func (a FollowedAccount) Username() string {
	return strings.TrimPrefix(a.DisplayName, "u_")
}

// ToSubscription converts an importable entry into a subscription with import defaults.
//
// ok is false for communities and for entries without a usable icon URL; those are not importable.
func (a FollowedAccount) ToSubscription() (UserSubscription, bool) {
	if !a.IsUser() {
		return UserSubscription{}, false
	}
	icon, ok := ParseIconURL(a.IconImg)
	if !ok {
		return UserSubscription{}, false
	}
	username := a.Username()
	if username == "" {
		return UserSubscription{}, false
	}
	return NewUserSubscription(username, icon), true
}

// SubscriptionsFromPage converts the importable entries of a page, preserving order.
func SubscriptionsFromPage(p Page) []UserSubscription {
	subs := make([]UserSubscription, 0, len(p.Items))
	for _, item := range p.Items {
		if s, ok := item.ToSubscription(); ok {
			subs = append(subs, s)
		}
	}
	return subs
}

// RedditProfile is the display information resolved for a username.
type RedditProfile struct {
	Username string
	IconURL  string
}

// DefaultIcons are Reddit's stock avatars, used when an account has no usable icon.
var DefaultIcons = []string{
	"https://www.redditstatic.com/avatars/avatar_default_01_008985.png",
	"https://www.redditstatic.com/avatars/avatar_default_02_FFD635.png",
	"https://www.redditstatic.com/avatars/avatar_default_03_24A0ED.png",
	"https://www.redditstatic.com/avatars/avatar_default_04_0DD3BB.png",
	"https://www.redditstatic.com/avatars/avatar_default_05_EA0027.png",
	"https://www.redditstatic.com/avatars/avatar_default_06_FF66AC.png",
	"https://www.redditstatic.com/avatars/avatar_default_07_0DD3BB.png",
	"https://www.redditstatic.com/avatars/avatar_default_08_4856A3.png",
	"https://www.redditstatic.com/avatars/avatar_default_09_94E044.png",
	"https://www.redditstatic.com/avatars/avatar_default_10_7E53C1.png",
	"https://www.redditstatic.com/avatars/avatar_default_11_FF66AC.png",
	"https://www.redditstatic.com/avatars/avatar_default_12_DB0064.png",
	"https://www.redditstatic.com/avatars/avatar_default_13_DDBD37.png",
	"https://www.redditstatic.com/avatars/avatar_default_14_DB0064.png",
	"https://www.redditstatic.com/avatars/avatar_default_15_D4E815.png",
	"https://www.redditstatic.com/avatars/avatar_default_16_008985.png",
	"https://www.redditstatic.com/avatars/avatar_default_17_FF4500.png",
	"https://www.redditstatic.com/avatars/avatar_default_18_A06A42.png",
	"https://www.redditstatic.com/avatars/avatar_default_19_7E53C1.png",
	"https://www.redditstatic.com/avatars/avatar_default_20_FFD635.png",
}

// RandomIcon picks one of [DefaultIcons].
func RandomIcon() string {
	return DefaultIcons[rand.IntN(len(DefaultIcons))]
}

// RpanSubreddit is a subreddit that hosts broadcasts. The catalog of them is what a blacklist is chosen from.
type RpanSubreddit struct {
	Name    string `json:"name"`
	IconURL string `json:"iconUrl,omitempty"`
}

// AppUser is the per-device identity record stored in the remote users collection.
type AppUser struct {
	UserID          string
	Username        string
	NotificationsOn bool
}
