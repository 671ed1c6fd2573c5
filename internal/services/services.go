package services

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/desertthunder/rpansync/internal/models"
)

// FollowLister pages through the accounts the authenticated Reddit user follows.
type FollowLister interface {
	// FollowedPage fetches the page after cursor. The zero cursor requests the first page; a vacant
	// [models.Page.Next] marks the last one.
	FollowedPage(ctx context.Context, cursor models.Cursor) (models.Page, error)
}

// ProfileLookup resolves the display icon of a username.
type ProfileLookup interface {
	UserProfile(ctx context.Context, username string) (models.RedditProfile, error)
}

// AccountLookup names the authenticated account.
type AccountLookup interface {
	Me(ctx context.Context) (string, error)
}

// OAuthService is implemented by providers that log in through an authorization code flow.
type OAuthService interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Upstream is the full Reddit surface consumed by the CLI.
type Upstream interface {
	FollowLister
	ProfileLookup
	AccountLookup
}
