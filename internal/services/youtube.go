// YouTube Data API v3 [Gateway] implementation.
//
// Talks directly to https://www.googleapis.com/youtube/v3 using a bearer
// token supplied by the HTTP client (see shared.NewAuthClient). Status codes
// and error reasons are normalized onto the shared sentinel errors.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/ytr/internal/models"
	"github.com/desertthunder/ytr/internal/shared"
)

const defaultBaseURL = "https://www.googleapis.com/youtube/v3"

// YouTubeGateway implements [Gateway] against the YouTube Data API v3.
type YouTubeGateway struct {
	baseURL    string
	pageSize   int
	httpClient *http.Client
}

// NewYouTubeGateway creates a gateway. The client must already attach
// credentials; pageSize is clamped to the API maximum of 50.
func NewYouTubeGateway(baseURL string, pageSize int, client *http.Client) *YouTubeGateway {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if pageSize <= 0 || pageSize > 50 {
		pageSize = 50
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &YouTubeGateway{
		baseURL:    baseURL,
		pageSize:   pageSize,
		httpClient: client,
	}
}

// apiError is the error envelope the Data API returns on non-2xx responses.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func (y *YouTubeGateway) doRequest(ctx context.Context, method, endpoint string, query url.Values, body, result any) error {
	apiURL := y.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", shared.ErrTransient, err)
		}
		return fmt.Errorf("%w: %v", shared.ErrRemote, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return y.mapError(resp)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// mapError converts a non-2xx API response into a sentinel-wrapped error.
func (y *YouTubeGateway) mapError(resp *http.Response) error {
	var envelope apiError
	reason := ""
	message := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
		if envelope.Error.Message != "" {
			message = envelope.Error.Message
		}
		if len(envelope.Error.Errors) > 0 {
			reason = envelope.Error.Errors[0].Reason
		}
	}

	switch {
	case resp.StatusCode == http.StatusForbidden && strings.Contains(reason, "quotaExceeded"):
		return fmt.Errorf("%w: %s", shared.ErrQuotaExceeded, message)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", shared.ErrAuth, message)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrNotFound, message)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", shared.ErrTransient, resp.StatusCode, message)
	default:
		return fmt.Errorf("%w: status %d: %s", shared.ErrRemote, resp.StatusCode, message)
	}
}

type playlistResource struct {
	ID      string `json:"id"`
	ETag    string `json:"etag"`
	Snippet struct {
		Title       string `json:"title"`
		PublishedAt string `json:"publishedAt"`
	} `json:"snippet"`
	ContentDetails struct {
		ItemCount int `json:"itemCount"`
	} `json:"contentDetails"`
}

type playlistItemResource struct {
	ID      string `json:"id"`
	Snippet struct {
		PlaylistID  string `json:"playlistId"`
		Title       string `json:"title"`
		Position    int    `json:"position"`
		PublishedAt string `json:"publishedAt"`
		ResourceID  struct {
			VideoID string `json:"videoId"`
		} `json:"resourceId"`
		VideoPublishedAt string `json:"videoPublishedAt"`
	} `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
}

// ListCollections fetches one page of the authenticated user's playlists.
func (y *YouTubeGateway) ListCollections(ctx context.Context, pageToken string) (*CollectionPage, error) {
	query := url.Values{}
	query.Set("part", "snippet,contentDetails")
	query.Set("mine", "true")
	query.Set("maxResults", fmt.Sprintf("%d", y.pageSize))
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	var response struct {
		Items         []playlistResource `json:"items"`
		NextPageToken string             `json:"nextPageToken"`
	}

	if err := y.doRequest(ctx, http.MethodGet, "/playlists", query, nil, &response); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	page := &CollectionPage{NextPageToken: response.NextPageToken}
	for _, item := range response.Items {
		page.Collections = append(page.Collections, models.Collection{
			ID:        item.ID,
			Title:     item.Snippet.Title,
			Kind:      models.CollectionReal,
			ItemCount: item.ContentDetails.ItemCount,
			ETag:      item.ETag,
			CachedAt:  now,
		})
	}

	return page, nil
}

// ListItems fetches one page of a playlist's items in remote order.
func (y *YouTubeGateway) ListItems(ctx context.Context, collectionID, pageToken string) (*ItemPage, error) {
	query := url.Values{}
	query.Set("part", "snippet,contentDetails")
	query.Set("playlistId", collectionID)
	query.Set("maxResults", fmt.Sprintf("%d", y.pageSize))
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}

	var response struct {
		Items         []playlistItemResource `json:"items"`
		NextPageToken string                 `json:"nextPageToken"`
	}

	if err := y.doRequest(ctx, http.MethodGet, "/playlistItems", query, nil, &response); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	page := &ItemPage{NextPageToken: response.NextPageToken}
	for _, item := range response.Items {
		published, _ := time.Parse(time.RFC3339, item.Snippet.VideoPublishedAt)
		page.Items = append(page.Items, models.Item{
			ID:          item.ID,
			VideoID:     item.Snippet.ResourceID.VideoID,
			ParentID:    item.Snippet.PlaylistID,
			Position:    item.Snippet.Position,
			Title:       item.Snippet.Title,
			Duration:    item.ContentDetails.Duration,
			PublishedAt: published,
			CachedAt:    now,
		})
	}

	return page, nil
}

// InsertItem adds a video to a playlist, returning the new playlist-item ID.
func (y *YouTubeGateway) InsertItem(ctx context.Context, collectionID, videoID string, position int) (string, error) {
	query := url.Values{}
	query.Set("part", "snippet")

	snippet := map[string]any{
		"playlistId": collectionID,
		"resourceId": map[string]string{
			"kind":    "youtube#video",
			"videoId": videoID,
		},
	}
	if position >= 0 {
		snippet["position"] = position
	}

	var response struct {
		ID string `json:"id"`
	}

	body := map[string]any{"snippet": snippet}
	if err := y.doRequest(ctx, http.MethodPost, "/playlistItems", query, body, &response); err != nil {
		return "", err
	}

	return response.ID, nil
}

// DeleteItem removes a playlist-item by ID.
func (y *YouTubeGateway) DeleteItem(ctx context.Context, itemID string) error {
	query := url.Values{}
	query.Set("id", itemID)
	return y.doRequest(ctx, http.MethodDelete, "/playlistItems", query, nil, nil)
}

// MoveItem repositions an existing playlist-item within its playlist.
func (y *YouTubeGateway) MoveItem(ctx context.Context, itemID, collectionID, videoID string, position int) error {
	query := url.Values{}
	query.Set("part", "snippet")

	body := map[string]any{
		"id": itemID,
		"snippet": map[string]any{
			"playlistId": collectionID,
			"resourceId": map[string]string{
				"kind":    "youtube#video",
				"videoId": videoID,
			},
			"position": position,
		},
	}

	return y.doRequest(ctx, http.MethodPut, "/playlistItems", query, body, nil)
}

// UpdateTitle retitles a playlist.
func (y *YouTubeGateway) UpdateTitle(ctx context.Context, collectionID, title string) error {
	query := url.Values{}
	query.Set("part", "snippet")

	body := map[string]any{
		"id": collectionID,
		"snippet": map[string]string{
			"title": title,
		},
	}

	return y.doRequest(ctx, http.MethodPut, "/playlists", query, body, nil)
}

// CreateCollection creates a playlist with the given title and privacy.
func (y *YouTubeGateway) CreateCollection(ctx context.Context, title, privacy string) (*models.Collection, error) {
	if privacy == "" {
		privacy = "private"
	}

	query := url.Values{}
	query.Set("part", "snippet,status")

	body := map[string]any{
		"snippet": map[string]string{"title": title},
		"status":  map[string]string{"privacyStatus": privacy},
	}

	var response playlistResource
	if err := y.doRequest(ctx, http.MethodPost, "/playlists", query, body, &response); err != nil {
		return nil, err
	}

	return &models.Collection{
		ID:       response.ID,
		Title:    response.Snippet.Title,
		Kind:     models.CollectionReal,
		ETag:     response.ETag,
		CachedAt: time.Now().UTC(),
	}, nil
}

// DeleteCollection deletes a playlist and all its memberships.
func (y *YouTubeGateway) DeleteCollection(ctx context.Context, collectionID string) error {
	query := url.Values{}
	query.Set("id", collectionID)
	return y.doRequest(ctx, http.MethodDelete, "/playlists", query, nil, nil)
}
