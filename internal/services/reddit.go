// Reddit API implementation of [Upstream]
//
// Response types follow https://www.reddit.com/dev/api/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/rpansync/internal/models"
	"github.com/desertthunder/rpansync/internal/shared"
)

const (
	redditAuthURL  = "https://www.reddit.com/api/v1/authorize"
	redditTokenURL = "https://www.reddit.com/api/v1/access_token"
	redditBaseURL  = "https://oauth.reddit.com"

	defaultUserAgent = "rpansync/0.1"
	defaultPageSize  = 100
)

// RedditThing is the envelope of every Reddit object.
type RedditThing[T any] struct {
	Kind string `json:"kind"`
	Data T      `json:"data"`
}

// RedditListing is a cursor-paginated list.
type RedditListing[T any] struct {
	After    *string          `json:"after"`
	Before   *string          `json:"before"`
	Children []RedditThing[T] `json:"children"`
}

// RedditSubreddit is a subscribed subreddit. User profiles are subreddits of type "user".
type RedditSubreddit struct {
	DisplayName   string `json:"display_name"`
	SubredditType string `json:"subreddit_type"`
	IconImg       string `json:"icon_img"`
	CommunityIcon string `json:"community_icon"`
}

// RedditAccount is a user account as returned by /user/<name>/about and /api/v1/me.
type RedditAccount struct {
	Name    string `json:"name"`
	IconImg string `json:"icon_img"`
}

// RedditOptions configures a [RedditService].
type RedditOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	UserAgent    string
	BaseURL      string
	PageSize     int
	// RateLimit is requests per second; zero or less disables pacing.
	RateLimit float64
	// HTTPClient is the transport beneath the OAuth client.
	HTTPClient *http.Client
}

// RedditService talks to the OAuth Reddit API. Requests are paced by a token bucket limiter.
type RedditService struct {
	config    *oauth2.Config
	base      *http.Client
	baseURL   string
	userAgent string
	pageSize  int
	limiter   *rate.Limiter
	log       *log.Logger

	mu          sync.Mutex
	tokenSource oauth2.TokenSource
	httpClient  *http.Client
}

// NewRedditService creates a Reddit service. Call [RedditService.Authenticate] or [RedditService.Exchange]
// before making requests.
func NewRedditService(opts RedditOptions, logger *log.Logger) (*RedditService, error) {
	if opts.ClientID == "" {
		return nil, fmt.Errorf("%w: missing reddit client_id", shared.ErrMissingCredentials)
	}
	if opts.RedirectURI == "" {
		opts.RedirectURI = "http://localhost:3000/callback"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.BaseURL == "" {
		opts.BaseURL = redditBaseURL
	}
	if opts.PageSize <= 0 || opts.PageSize > 100 {
		opts.PageSize = defaultPageSize
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if logger == nil {
		logger = shared.DiscardLogger()
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	config := &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		RedirectURL:  opts.RedirectURI,
		Scopes:       []string{"identity", "mysubreddits", "read"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   redditAuthURL,
			TokenURL:  redditTokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	return &RedditService{
		config:    config,
		base:      opts.HTTPClient,
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		pageSize:  opts.PageSize,
		limiter:   rate.NewLimiter(limit, 1),
		log:       shared.WithLogger(logger, "service", "reddit"),
	}, nil
}

func (s *RedditService) Name() string {
	return "Reddit"
}

// AuthURL returns the authorization URL for user login. A permanent grant is requested so a refresh token is issued.
func (s *RedditService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.SetAuthURLParam("duration", "permanent"))
}

// Exchange trades an authorization code for a token and starts using it.
func (s *RedditService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(s.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %w", shared.ErrAuthFailed, err)
	}
	s.Authenticate(ctx, token)
	return token, nil
}

// Authenticate starts using token. Expired access tokens are refreshed automatically when a refresh token exists.
func (s *RedditService) Authenticate(ctx context.Context, token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The token source outlives ctx: it must not be tied to a request-scoped context.
	octx := s.oauthContext(context.WithoutCancel(ctx))
	s.tokenSource = s.config.TokenSource(octx, token)
	s.httpClient = oauth2.NewClient(octx, s.tokenSource)
}

// Token returns the current token, refreshed if needed, so callers can persist it.
func (s *RedditService) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	ts := s.tokenSource
	s.mu.Unlock()

	if ts == nil {
		return nil, shared.ErrNotAuthenticated
	}
	token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrTokenExpired, err)
	}
	return token, nil
}

func (s *RedditService) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.base)
}

// doRequest performs an authenticated GET against the Reddit API and decodes the JSON body into result.
func (s *RedditService) doRequest(ctx context.Context, endpoint string, query url.Values, result any) error {
	s.mu.Lock()
	client := s.httpClient
	s.mu.Unlock()

	if client == nil {
		return shared.ErrNotAuthenticated
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limiter: %w", shared.ErrNetwork, err)
	}

	apiURL := s.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: %w", shared.ErrTokenExpired, err)
		}
		return fmt.Errorf("%w: %s: %w", shared.ErrNetwork, endpoint, err)
	}
	defer resp.Body.Close()

	s.log.Debug("reddit request", "endpoint", endpoint, "status", resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", shared.ErrTokenExpired, endpoint)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrNotFound, endpoint)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: reddit API error: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %w", shared.ErrAPIRequest, err)
		}
	}
	return nil
}

// FollowedPage implements [FollowLister] with /subreddits/mine/subscriber.
func (s *RedditService) FollowedPage(ctx context.Context, cursor models.Cursor) (models.Page, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(s.pageSize))
	query.Set("raw_json", "1")
	if !cursor.IsVacant() {
		query.Set("after", string(cursor))
	}

	var listing RedditThing[RedditListing[RedditSubreddit]]
	if err := s.doRequest(ctx, "/subreddits/mine/subscriber", query, &listing); err != nil {
		return models.Page{}, err
	}

	page := models.Page{Items: make([]models.FollowedAccount, 0, len(listing.Data.Children))}
	for _, child := range listing.Data.Children {
		page.Items = append(page.Items, models.FollowedAccount{
			DisplayName:   child.Data.DisplayName,
			SubredditType: child.Data.SubredditType,
			IconImg:       child.Data.IconImg,
		})
	}
	if listing.Data.After != nil {
		page.Next = models.Cursor(*listing.Data.After)
	}
	return page, nil
}

// UserProfile implements [ProfileLookup] with /user/<name>/about. A missing or unusable icon is replaced by one of
// the stock avatars.
func (s *RedditService) UserProfile(ctx context.Context, username string) (models.RedditProfile, error) {
	if username == "" {
		return models.RedditProfile{}, fmt.Errorf("%w: username is required", shared.ErrInvalidInput)
	}

	var about RedditThing[RedditAccount]
	endpoint := "/user/" + url.PathEscape(username) + "/about"
	if err := s.doRequest(ctx, endpoint, url.Values{"raw_json": {"1"}}, &about); err != nil {
		return models.RedditProfile{}, err
	}

	icon, ok := models.ParseIconURL(about.Data.IconImg)
	if !ok {
		icon = models.RandomIcon()
	}
	return models.RedditProfile{Username: username, IconURL: icon}, nil
}

// Me implements [AccountLookup] with /api/v1/me.
func (s *RedditService) Me(ctx context.Context) (string, error) {
	var me RedditAccount
	if err := s.doRequest(ctx, "/api/v1/me", nil, &me); err != nil {
		return "", err
	}
	if me.Name == "" {
		return "", fmt.Errorf("%w: empty account name", shared.ErrAPIRequest)
	}
	return me.Name, nil
}
