package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dittotube/watchparty/internal/models"
)

const avatarBaseURL = "https://i.pravatar.cc/40"

// ErrIdentityNotSet indicates no session user has been created yet.
var ErrIdentityNotSet = errors.New("session identity not set")

// ErrUsernameEmpty indicates the username was blank after trimming.
var ErrUsernameEmpty = errors.New("username must not be empty")

// IdentityService manages the anonymous session identity. The id lives
// only as long as the gateway process; there is no authenticated
// identity anywhere in the system.
type IdentityService interface {
	Setup(ctx context.Context, username string) (models.User, error)
	Current(ctx context.Context) (models.User, error)
}

type identityService struct {
	mu     sync.RWMutex
	user   *models.User
	logger zerolog.Logger
	now    func() time.Time
}

// NewIdentityService creates the in-memory session identity holder.
func NewIdentityService(logger zerolog.Logger) IdentityService {
	return &identityService{
		logger: logger.With().Str("component", "identity_service").Logger(),
		now:    time.Now,
	}
}

// Setup creates or replaces the session user. The id combines the
// clock with a random component; uniqueness is only as strong as that
// randomness, which the protocol accepts.
func (s *identityService) Setup(_ context.Context, username string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, ErrUsernameEmpty
	}

	user := models.User{
		ID:        fmt.Sprintf("user-%d-%s", s.now().UnixMilli(), strings.SplitN(uuid.NewString(), "-", 2)[0]),
		Username:  username,
		AvatarURL: fmt.Sprintf("%s?u=%s", avatarBaseURL, url.QueryEscape(username)),
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()

	s.logger.Info().Str("username", username).Str("user_id", user.ID).Msg("session identity created")
	return user, nil
}

// Current returns the session user, or ErrIdentityNotSet.
func (s *identityService) Current(context.Context) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return models.User{}, ErrIdentityNotSet
	}
	return *s.user, nil
}
