package mailstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailcrawl/internal/config"
)

// DefaultSessionTTL bounds how long an idle session may outlive the unit of
// work that opened it before the liveness poll tears it down.
const DefaultSessionTTL = 300 * time.Second

// Session owns the lazily-connected store and folder handles for one
// connector instance. It is used by one goroutine at a time; the connector
// contract guarantees no concurrent calls.
type Session struct {
	endpoint config.Endpoint
	ttl      time.Duration
	now      func() time.Time
	dial     DialFunc
	logger   *zap.Logger

	store     Store
	folder    Folder
	expiresAt time.Time
}

// SessionOption customizes session behavior.
type SessionOption func(*Session)

// WithTTL overrides the session expiry window.
func WithTTL(ttl time.Duration) SessionOption {
	return func(s *Session) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the wall clock, primarily for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDialer overrides how the mail store is reached, primarily for tests.
func WithDialer(dial DialFunc) SessionOption {
	return func(s *Session) {
		if dial != nil {
			s.dial = dial
		}
	}
}

// WithLogger overrides the logger used for session diagnostics.
func WithLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSession(ep config.Endpoint, opts ...SessionOption) *Session {
	s := &Session{
		endpoint: ep,
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		dial:     Dial,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the mail store and opens the named folder read-only
// (the store's default folder when name is empty). Calling Open while a
// session is live is a no-op and does not reset the expiry.
func (s *Session) Open(ctx context.Context, folderName string) error {
	if s.store != nil {
		return nil
	}

	store, err := s.dial(ctx, s.endpoint)
	if err != nil {
		return err
	}

	if folderName == "" || !config.SupportsFolders(s.endpoint.Protocol) {
		folderName = store.DefaultFolder()
	}
	folder, err := store.OpenFolder(ctx, folderName)
	if err != nil {
		if closeErr := store.Close(); closeErr != nil {
			s.logger.Debug("error closing store after failed folder open", zap.Error(closeErr))
		}
		return err
	}

	s.store = store
	s.folder = folder
	s.expiresAt = s.now().Add(s.ttl)
	return nil
}

// Folder returns the open folder handle, or nil when no session is live.
func (s *Session) Folder() Folder {
	return s.folder
}

// IsOpen reports whether a session is currently live.
func (s *Session) IsOpen() bool {
	return s.store != nil
}

// Close tears the session down: folder first, then store. Close failures
// are logged and swallowed; both handles are reset regardless, so Close is
// safe to call repeatedly and from any error path.
func (s *Session) Close() {
	if s.folder != nil {
		if err := s.folder.Close(); err != nil {
			s.logger.Debug("error closing folder", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Debug("error closing store connection", zap.Error(err))
		}
	}
	s.folder = nil
	s.store = nil
	s.expiresAt = time.Time{}
}

// Poll is the cooperative liveness check: it closes the session when the
// expiry has been reached, and reports whether it did. A session is never
// closed before its expiry.
func (s *Session) Poll(now time.Time) bool {
	if s.store == nil {
		return false
	}
	if now.Before(s.expiresAt) {
		return false
	}
	s.logger.Debug("session expired, closing",
		zap.Time("expires_at", s.expiresAt),
		zap.Time("now", now))
	s.Close()
	return true
}

// PollNow runs Poll against the session's own clock.
func (s *Session) PollNow() bool {
	return s.Poll(s.now())
}

// Check opens a throwaway session to validate the endpoint, credentials and
// protocol, then closes it. The result is a short status string; transport
// errors are folded into it rather than propagated, and teardown errors are
// only logged.
func (s *Session) Check(ctx context.Context) string {
	if err := config.ValidateEndpoint(s.endpoint); err != nil {
		return "Connection failed: " + err.Error()
	}

	store, err := s.dial(ctx, s.endpoint)
	if err != nil {
		return checkFailure(err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			s.logger.Debug("error closing check connection", zap.Error(closeErr))
		}
	}()

	folder, err := store.OpenFolder(ctx, store.DefaultFolder())
	if err != nil {
		return checkFailure(err)
	}
	if err := folder.Close(); err != nil {
		s.logger.Debug("error closing check folder", zap.Error(err))
	}

	return "Connection working"
}

func checkFailure(err error) string {
	if IsInterruption(err) {
		return fmt.Sprintf("Connection temporarily failed: %v", err)
	}
	return fmt.Sprintf("Connection failed: %v", err)
}
