package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/greyledger/sitrep/internal/domain"
)

const defaultSocialBaseURL = "https://api.twitter.com/2"

// maxPostsPerAccount caps how many posts are pulled per account per round.
const maxPostsPerAccount = 10

// APISource fetches recent posts for one monitored account through the
// authenticated social API (v2). It is the preferred head of a fallback
// chain; auth errors, quota exhaustion, and timeouts all surface as
// domain.ErrSourceUnavailable so the chain can fall through to mirrors.
type APISource struct {
	handle     string
	bearer     string
	baseURL    string
	httpClient *http.Client
}

// NewAPISource creates the authenticated client for one account handle.
func NewAPISource(handle, bearer string, timeout time.Duration) *APISource {
	return &APISource{
		handle:     handle,
		bearer:     bearer,
		baseURL:    defaultSocialBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *APISource) ID() string                { return "social:api:" + s.handle }
func (s *APISource) Label() string             { return "@" + s.handle }
func (s *APISource) Class() domain.SourceClass { return domain.ClassSocial }

type userResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type timelineResponse struct {
	Data []struct {
		Text        string `json:"text"`
		CreatedAt   string `json:"created_at"`
		Attachments struct {
			MediaKeys []string `json:"media_keys"`
		} `json:"attachments"`
	} `json:"data"`
	Includes struct {
		Media []struct {
			MediaKey        string `json:"media_key"`
			URL             string `json:"url"`
			PreviewImageURL string `json:"preview_image_url"`
		} `json:"media"`
	} `json:"includes"`
}

func (s *APISource) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	userID, err := s.lookupUserID(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"max_results":  {fmt.Sprint(maxPostsPerAccount)},
		"tweet.fields": {"created_at,entities,attachments"},
		"expansions":   {"attachments.media_keys"},
		"media.fields": {"url,preview_image_url,type"},
	}
	var timeline timelineResponse
	if err := s.get(ctx, fmt.Sprintf("%s/users/%s/tweets?%s", s.baseURL, userID, params.Encode()), &timeline); err != nil {
		return nil, err
	}

	media := make(map[string]string, len(timeline.Includes.Media))
	for _, m := range timeline.Includes.Media {
		media[m.MediaKey] = firstNonEmpty(m.URL, m.PreviewImageURL)
	}

	now := time.Now().UTC()
	items := make([]domain.RawItem, 0, len(timeline.Data))
	for _, post := range timeline.Data {
		var mediaURLs []string
		for _, key := range post.Attachments.MediaKeys {
			if u := media[key]; u != "" {
				mediaURLs = append(mediaURLs, u)
			}
		}

		payload := domain.SocialPayload{
			Account:   s.handle,
			Text:      post.Text,
			URL:       "https://x.com/" + s.handle,
			Published: post.CreatedAt,
			MediaURLs: mediaURLs,
			Method:    "api",
		}
		data, err := json.Marshal(payload)
		if err != nil {
			continue
		}
		items = append(items, domain.RawItem{
			SourceID:  s.ID(),
			Label:     s.Label(),
			Class:     domain.ClassSocial,
			FetchedAt: now,
			Payload:   data,
		})
	}
	return items, nil
}

func (s *APISource) lookupUserID(ctx context.Context) (string, error) {
	var user userResponse
	if err := s.get(ctx, fmt.Sprintf("%s/users/by/username/%s", s.baseURL, url.PathEscape(s.handle)), &user); err != nil {
		return "", err
	}
	if user.Data.ID == "" {
		return "", fmt.Errorf("social api: no user id for @%s: %w", s.handle, domain.ErrSourceUnavailable)
	}
	return user.Data.ID, nil
}

func (s *APISource) get(ctx context.Context, fullURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("build social request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.bearer)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("social api request: %w: %w", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 401/403 auth failures and 429 quota exhaustion are equally
		// unavailable from the chain's point of view.
		return fmt.Errorf("social api status %d for @%s: %w", resp.StatusCode, s.handle, domain.ErrSourceUnavailable)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode social response: %w: %w", domain.ErrSourceUnavailable, err)
	}
	return nil
}
