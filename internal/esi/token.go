package esi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"rsm-inventory-bot/internal/cache"
	"rsm-inventory-bot/internal/model"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	// TokenKey is the cache key of the persisted token record.
	TokenKey = "esi_tokens"

	// DefaultTokenURL is the upstream OAuth2 token endpoint.
	DefaultTokenURL = "https://login.eveonline.com/v2/oauth/token"

	// defaultTokenLifetime applies when the token endpoint omits expires_in.
	defaultTokenLifetime = 20 * time.Minute
)

// TokenConfig holds the OAuth2 client settings.
type TokenConfig struct {
	ClientID     string
	SecretKey    string
	CallbackURL  string
	TokenURL     string
	RefreshToken string
}

// RefreshObserver is notified after every successful refresh.
type RefreshObserver func(ctx context.Context, tok model.Token)

// TokenStore owns the single bearer token of the process.
// At most one refresh is in flight; concurrent callers share its result.
type TokenStore struct {
	oauth       *oauth2.Config
	seedRefresh string
	kv          cache.Cache
	httpClient  *http.Client
	group       singleflight.Group
	log         zerolog.Logger

	mu        sync.RWMutex
	token     model.Token
	observers []RefreshObserver
}

// TokenOption customizes TokenStore.
type TokenOption func(*TokenStore)

// WithTokenHTTPClient sets the client used against the token endpoint.
func WithTokenHTTPClient(hc *http.Client) TokenOption {
	return func(s *TokenStore) {
		if hc != nil {
			s.httpClient = hc
		}
	}
}

// NewTokenStore creates a token store persisting its record in kv.
// Call Load before first use.
func NewTokenStore(cfg TokenConfig, kv cache.Cache, opts ...TokenOption) *TokenStore {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	s := &TokenStore{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.SecretKey,
			RedirectURL:  cfg.CallbackURL,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		seedRefresh: cfg.RefreshToken,
		kv:          kv,
		httpClient:  http.DefaultClient,
		log:         log.With().Str("component", "token").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load restores the persisted token record. An expired record keeps only
// its refresh token; without a record the configured refresh token is used.
// No refresh happens here: the first Current call performs it.
func (s *TokenStore) Load(ctx context.Context) error {
	tok := model.Token{RefreshToken: s.seedRefresh}

	data, err := s.kv.Get(ctx, TokenKey)
	switch {
	case err == nil:
		var stored model.Token
		if err := json.Unmarshal(data, &stored); err != nil {
			s.log.Warn().Err(err).Msg("persisted token record unreadable, using configured refresh token")
			break
		}
		if stored.RefreshToken != "" {
			tok = stored
		}
		if tok.Expired(time.Now()) {
			tok.AccessToken = ""
		}
	case errors.Is(err, cache.ErrCacheMiss):
		s.log.Info().Msg("no persisted token record, using configured refresh token")
	default:
		return fmt.Errorf("failed to load token record: %w", err)
	}

	if tok.RefreshToken == "" {
		return &AuthError{Err: errors.New("no refresh token available")}
	}

	s.mu.Lock()
	s.token = tok
	s.mu.Unlock()
	return nil
}

// OnRefresh registers an observer called after each successful refresh.
func (s *TokenStore) OnRefresh(fn RefreshObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Current returns a non-expired token, refreshing first if needed.
func (s *TokenStore) Current(ctx context.Context) (*model.Token, error) {
	s.mu.RLock()
	tok := s.token
	s.mu.RUnlock()

	if !tok.Expired(time.Now()) {
		return &tok, nil
	}
	return s.refresh(ctx, false)
}

// Refresh forces a refresh-token exchange.
func (s *TokenStore) Refresh(ctx context.Context) (*model.Token, error) {
	return s.refresh(ctx, true)
}

func (s *TokenStore) refresh(ctx context.Context, force bool) (*model.Token, error) {
	ch := s.group.DoChan("refresh", func() (any, error) {
		if !force {
			s.mu.RLock()
			tok := s.token
			s.mu.RUnlock()
			if !tok.Expired(time.Now()) {
				return &tok, nil
			}
		}
		return s.exchange(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		tok := *res.Val.(*model.Token)
		return &tok, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *TokenStore) exchange(ctx context.Context) (*model.Token, error) {
	s.mu.RLock()
	refreshToken := s.token.RefreshToken
	s.mu.RUnlock()

	if refreshToken == "" {
		return nil, &AuthError{Err: errors.New("no refresh token available")}
	}

	octx := context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	fresh, err := s.oauth.TokenSource(octx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		s.log.Error().Err(err).Msg("token refresh failed")
		return nil, &AuthError{Err: err}
	}

	tok := model.Token{
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		TokenType:    fresh.Type(),
		ExpiresAt:    fresh.Expiry,
	}
	if tok.ExpiresAt.IsZero() {
		tok.ExpiresAt = time.Now().Add(defaultTokenLifetime)
	}

	s.mu.Lock()
	s.token = tok
	observers := append([]RefreshObserver(nil), s.observers...)
	s.mu.Unlock()

	if data, err := json.Marshal(tok); err == nil {
		if err := s.kv.Set(ctx, TokenKey, data, 0); err != nil {
			s.log.Error().Err(err).Msg("failed to persist token record")
		}
	}

	s.log.Info().Time("expires_at", tok.ExpiresAt).Msg("token refreshed")
	for _, fn := range observers {
		fn(ctx, tok)
	}

	return &tok, nil
}
