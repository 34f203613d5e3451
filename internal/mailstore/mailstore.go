package mailstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mailcrawl/internal/config"
)

// ErrMessageNotFound is returned by Folder.Fetch when no message in the
// folder carries the requested identifier.
var ErrMessageNotFound = errors.New("message not found")

// InterruptionError marks a transport failure that is plausibly transient
// (DNS, connect timeout, auth hiccup, dropped connection mid-search). Hosts
// should retry these after backoff; everything else is fatal.
type InterruptionError struct {
	Err error
}

func (e *InterruptionError) Error() string { return e.Err.Error() }
func (e *InterruptionError) Unwrap() error { return e.Err }

// Interruption wraps err as a retryable service interruption.
func Interruption(err error) error {
	if err == nil {
		return nil
	}
	return &InterruptionError{Err: err}
}

// IsInterruption reports whether err is (or wraps) a service interruption.
func IsInterruption(err error) bool {
	var ie *InterruptionError
	return errors.As(err, &ie)
}

// Store is an authenticated connection to one mail store.
type Store interface {
	// DefaultFolder is the folder opened when the job does not select one.
	DefaultFolder() string
	// OpenFolder opens the named folder read-only. Backends without a
	// folder concept ignore the name and open the single mailbox.
	OpenFolder(ctx context.Context, name string) (Folder, error)
	Close() error
}

// Folder is an open, read-only view of one mailbox folder.
type Folder interface {
	Name() string
	// Search returns the envelopes of all messages matching the criteria.
	Search(ctx context.Context, crit Criteria) ([]Envelope, error)
	// Fetch retrieves the full message carrying the given identifier.
	Fetch(ctx context.Context, id string) (*FullMessage, error)
	Close() error
}

// Envelope is the lightweight per-message record returned by Search.
type Envelope struct {
	// MessageID is the normalized Message-ID header, without angle
	// brackets. It is the document identifier for the whole crawl.
	MessageID string
	Subject   string
	From      []string
	To        []string
	Date      time.Time
	Size      int64
}

// FullMessage is an envelope plus the raw RFC 822 payload.
type FullMessage struct {
	Envelope
	Raw []byte
}

// Kind selects which predicate a Criteria applies.
type Kind int

const (
	// KindAll matches every message in the folder.
	KindAll Kind = iota
	// KindSubject matches messages whose subject contains the value.
	KindSubject
	// KindFrom matches messages whose sender address contains the value.
	KindFrom
	// KindTo matches messages with a TO recipient containing the value.
	KindTo
	// KindBody matches messages whose body contains the value.
	KindBody
	// KindMessageID matches the message with exactly this identifier.
	KindMessageID
)

// Criteria is one search predicate, optionally bounded by a time window
// over the sent date. Since is inclusive, Before exclusive.
type Criteria struct {
	Kind   Kind
	Value  string
	Since  time.Time
	Before time.Time
}

func (c Criteria) String() string {
	switch c.Kind {
	case KindSubject:
		return fmt.Sprintf("subject contains %q", c.Value)
	case KindFrom:
		return fmt.Sprintf("from matches %q", c.Value)
	case KindTo:
		return fmt.Sprintf("to matches %q", c.Value)
	case KindBody:
		return fmt.Sprintf("body contains %q", c.Value)
	case KindMessageID:
		return fmt.Sprintf("message-id %q", c.Value)
	default:
		return "all messages"
	}
}

// MatchesEnvelope evaluates every predicate except KindBody against an
// envelope. Matching is case-insensitive, mirroring IMAP SEARCH semantics;
// backends without server-side search use this directly.
func (c Criteria) MatchesEnvelope(env Envelope) bool {
	if !c.Since.IsZero() && env.Date.Before(c.Since) {
		return false
	}
	if !c.Before.IsZero() && !env.Date.Before(c.Before) {
		return false
	}
	switch c.Kind {
	case KindSubject:
		return containsFold(env.Subject, c.Value)
	case KindFrom:
		return anyContainsFold(env.From, c.Value)
	case KindTo:
		return anyContainsFold(env.To, c.Value)
	case KindMessageID:
		return NormalizeMessageID(env.MessageID) == NormalizeMessageID(c.Value)
	case KindBody:
		// Body content is not part of the envelope; the caller decides.
		return true
	default:
		return true
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func anyContainsFold(values []string, substr string) bool {
	for _, v := range values {
		if containsFold(v, substr) {
			return true
		}
	}
	return false
}

// NormalizeMessageID strips the angle brackets and surrounding whitespace
// from a Message-ID header value.
func NormalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return id
}

// DialFunc opens an authenticated Store for an endpoint. It exists so tests
// and embedders can substitute fake stores.
type DialFunc func(ctx context.Context, ep config.Endpoint) (Store, error)

// Dial resolves the protocol-appropriate backend and connects. Connect and
// auth failures come back wrapped as interruptions; an unknown protocol is
// a configuration error.
func Dial(ctx context.Context, ep config.Endpoint) (Store, error) {
	switch config.NormalizeProtocol(ep.Protocol) {
	case config.ProtocolIMAP, config.ProtocolIMAPS:
		return dialIMAP(ctx, ep)
	case config.ProtocolPOP3, config.ProtocolPOP3S:
		return dialPOP3(ctx, ep)
	default:
		return nil, fmt.Errorf("no mail store backend for protocol %q", ep.Protocol)
	}
}
