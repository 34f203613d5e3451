package crawler

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"mailcrawl/internal/config"
	"mailcrawl/internal/mailstore"
)

// ErrNotConnected is returned by crawl operations before Connect succeeds.
var ErrNotConnected = errors.New("connector is not connected to an endpoint")

// Connector drives the three crawl phases against one configured mail store
// endpoint. It holds at most one live mailbox session at a time. A mutex
// serializes every operation, so a host may run the liveness Poll on a
// different goroutine than the crawl phases; the Session underneath still
// only ever sees one goroutine.
type Connector struct {
	logger      *zap.Logger
	sessionOpts []mailstore.SessionOption

	mu       sync.Mutex
	endpoint *config.Endpoint
	session  *mailstore.Session
}

// Option customizes a Connector.
type Option func(*Connector)

// WithLogger sets the connector's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Connector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSessionOptions forwards options to every session the connector opens.
func WithSessionOptions(opts ...mailstore.SessionOption) Option {
	return func(c *Connector) {
		c.sessionOpts = append(c.sessionOpts, opts...)
	}
}

func New(opts ...Option) *Connector {
	c := &Connector{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect binds the connector to an endpoint. It validates the configuration
// but opens no network connection; sessions are dialed lazily by the first
// operation that needs one.
func (c *Connector) Connect(ep config.Endpoint) error {
	if err := config.ValidateEndpoint(ep); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	epCopy := ep
	c.endpoint = &epCopy

	opts := append([]mailstore.SessionOption{mailstore.WithLogger(c.logger)}, c.sessionOpts...)
	c.session = mailstore.NewSession(ep, opts...)
	return nil
}

// Connected reports whether an endpoint is bound.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Disconnect releases the live session, if any, and unbinds the endpoint.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Close()
	}
	c.session = nil
	c.endpoint = nil
}

// Poll is the periodic liveness hook: it tears down the session once it has
// sat idle past its expiry. Safe to call while disconnected, and safe to
// call from a goroutine other than the one crawling; a crawl in flight
// holds the connector lock, so Poll can never interrupt one mid-batch.
func (c *Connector) Poll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return
	}
	if c.session.PollNow() {
		c.logger.Debug("idle session closed by poll")
	}
}

// Check verifies the endpoint is reachable and the credentials work, and
// reports the result as a status string rather than an error.
func (c *Connector) Check(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return "Connection failed: " + ErrNotConnected.Error()
	}
	return c.session.Check(ctx)
}

// BinNames returns the throttling bin for a document: all documents from one
// endpoint share the server's bin.
func (c *Connector) BinNames(string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.endpoint == nil {
		return nil
	}
	return []string{c.endpoint.Server}
}

// MaxDocumentRequest caps how many documents a host may hand to
// ProcessDocuments or DocumentVersions in one batch.
func (c *Connector) MaxDocumentRequest() int { return 50 }

// Model reports the connector's crawl model.
func (c *Connector) Model() string { return ModelAdd }

// withSession opens the session (or reuses the live one), runs fn against
// the open folder, and guarantees the session is released afterwards even
// when fn fails. The connector lock is held for the whole cycle.
func (c *Connector) withSession(ctx context.Context, folder string, fn func(mailstore.Folder) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ErrNotConnected
	}
	if err := c.session.Open(ctx, folder); err != nil {
		return err
	}
	defer c.session.Close()
	return fn(c.session.Folder())
}
