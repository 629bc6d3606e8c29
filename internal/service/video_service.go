package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dittotube/watchparty/internal/dto"
	"github.com/dittotube/watchparty/internal/observability"
)

const (
	videoIDLength      = 11
	videoCacheKeyBase  = "watchparty:video:oembed"
	videoLookupTimeout = 10 * time.Second
)

// ErrVideoIDNotFound indicates no YouTube video id could be extracted
// from the submitted link.
var ErrVideoIDNotFound = errors.New("no video id found in link")

// videoIDPattern is the fallback for non-URL inputs and exotic link shapes.
var videoIDPattern = regexp.MustCompile(`(?:youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*)`)

// unavailableVideo is returned when the lookup endpoint reports an
// error for the id; it is a sentinel, not a failure.
var unavailableVideo = dto.VideoInfoResponse{
	Title:      "Video not found or unavailable",
	AuthorName: "Unknown Channel",
}

// VideoService resolves pasted YouTube links to display metadata. The
// core protocol has no dependency on this beyond showing the result.
type VideoService interface {
	Lookup(ctx context.Context, link string) (dto.VideoInfoResponse, error)
}

type videoService struct {
	httpClient *http.Client
	endpoint   string
	cache      *redis.Client
	cacheTTL   time.Duration
	logger     zerolog.Logger
}

// NewVideoService builds the oEmbed lookup service. cache may be nil,
// which disables caching entirely.
func NewVideoService(endpoint string, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) VideoService {
	return &videoService{
		httpClient: &http.Client{Timeout: videoLookupTimeout},
		endpoint:   endpoint,
		cache:      cache,
		cacheTTL:   ttl,
		logger:     logger.With().Str("component", "video_service").Logger(),
	}
}

// ExtractVideoID pulls the 11-character YouTube id out of a pasted
// link. Accepts youtu.be short links, watch/embed URLs, and raw ids.
func ExtractVideoID(link string) (string, bool) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", false
	}

	if parsed, err := url.Parse(link); err == nil && parsed.Host != "" {
		if parsed.Host == "youtu.be" {
			if id := strings.Trim(parsed.Path, "/"); len(id) == videoIDLength {
				return id, true
			}
		}
		if strings.Contains(parsed.Host, "youtube.com") {
			if id := parsed.Query().Get("v"); len(id) == videoIDLength {
				return id, true
			}
		}
	}

	if match := videoIDPattern.FindStringSubmatch(link); len(match) == 2 && len(match[1]) == videoIDLength {
		return match[1], true
	}

	if len(link) == videoIDLength && !strings.ContainsAny(link, "/?&#. ") {
		return link, true
	}

	return "", false
}

type oembedResponse struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
	Error      string `json:"error"`
}

func (s *videoService) Lookup(ctx context.Context, link string) (dto.VideoInfoResponse, error) {
	videoID, ok := ExtractVideoID(link)
	if !ok {
		observability.VideoLookups().WithLabelValues("invalid_link").Inc()
		return dto.VideoInfoResponse{}, ErrVideoIDNotFound
	}

	cacheKey := fmt.Sprintf("%s:%s", videoCacheKeyBase, videoID)
	if cached, ok := s.readCache(ctx, cacheKey); ok {
		observability.VideoLookups().WithLabelValues("cache_hit").Inc()
		return cached, nil
	}

	info, err := s.fetch(ctx, videoID)
	if err != nil {
		observability.VideoLookups().WithLabelValues("error").Inc()
		return dto.VideoInfoResponse{}, err
	}

	if info != unavailableVideo {
		s.writeCache(ctx, cacheKey, info)
	}

	observability.VideoLookups().WithLabelValues("ok").Inc()
	return info, nil
}

func (s *videoService) fetch(ctx context.Context, videoID string) (dto.VideoInfoResponse, error) {
	watchURL := "https://www.youtube.com/watch?v=" + videoID
	lookupURL := fmt.Sprintf("%s?url=%s", s.endpoint, url.QueryEscape(watchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return dto.VideoInfoResponse{}, fmt.Errorf("failed to build lookup request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return dto.VideoInfoResponse{}, fmt.Errorf("video lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn().Int("status", resp.StatusCode).Str("video_id", videoID).Msg("lookup endpoint returned non-200")
		return unavailableVideo, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return dto.VideoInfoResponse{}, fmt.Errorf("failed to read lookup response: %w", err)
	}

	var payload oembedResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return dto.VideoInfoResponse{}, fmt.Errorf("failed to decode lookup response: %w", err)
	}

	if payload.Error != "" {
		s.logger.Debug().Str("video_id", videoID).Str("error", payload.Error).Msg("video reported unavailable")
		return unavailableVideo, nil
	}

	return dto.VideoInfoResponse{Title: payload.Title, AuthorName: payload.AuthorName}, nil
}

func (s *videoService) readCache(ctx context.Context, key string) (dto.VideoInfoResponse, bool) {
	if s.cache == nil {
		return dto.VideoInfoResponse{}, false
	}

	cached, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read video cache")
		}
		return dto.VideoInfoResponse{}, false
	}

	var info dto.VideoInfoResponse
	if err := json.Unmarshal([]byte(cached), &info); err != nil {
		return dto.VideoInfoResponse{}, false
	}
	return info, true
}

func (s *videoService) writeCache(ctx context.Context, key string, info dto.VideoInfoResponse) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(info)
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache video metadata")
	}
}
