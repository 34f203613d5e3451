package mailstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/knadh/go-pop3"
	"go.uber.org/zap"

	"mailcrawl/internal/config"
)

const pop3DialTimeout = 10 * time.Second

// pop3Conn is the slice of go-pop3's connection the store uses. Reads are
// non-destructive: Dele is deliberately absent.
type pop3Conn interface {
	Auth(user, password string) error
	Quit() error
	Uidl(msgID int) ([]pop3.MessageID, error)
	List(msgID int) ([]pop3.MessageID, error)
	Top(msgID int, numLines int) (*message.Entity, error)
	RetrRaw(msgID int) (*bytes.Buffer, error)
}

type pop3Store struct {
	conn pop3Conn

	// POP3 has no server-side search; envelopes are assembled from TOP
	// once per session and every predicate is evaluated client-side.
	entries []pop3Entry
	loaded  bool
}

type pop3Entry struct {
	seq int
	env Envelope
}

func dialPOP3(ctx context.Context, ep config.Endpoint) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port := ep.Port
	if port == 0 {
		port = config.DefaultPort(ep.Protocol)
	}

	client := pop3.New(pop3.Opt{
		Host:          ep.Server,
		Port:          port,
		DialTimeout:   pop3DialTimeout,
		TLSEnabled:    config.NormalizeProtocol(ep.Protocol) == config.ProtocolPOP3S,
		TLSSkipVerify: ep.Properties["insecure_skip_verify"] == "true",
	})
	conn, err := client.NewConn()
	if err != nil {
		return nil, Interruption(fmt.Errorf("pop3 connect %s:%d: %w", ep.Server, port, err))
	}
	if err := conn.Auth(ep.Username, ep.Password); err != nil {
		_ = conn.Quit()
		return nil, Interruption(fmt.Errorf("pop3 auth %s: %w", ep.Username, err))
	}

	return &pop3Store{conn: conn}, nil
}

func (s *pop3Store) DefaultFolder() string { return "INBOX" }

// OpenFolder ignores the folder name: POP3 exposes a single mailbox.
func (s *pop3Store) OpenFolder(ctx context.Context, _ string) (Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &pop3Folder{store: s}, nil
}

func (s *pop3Store) Close() error {
	return s.conn.Quit()
}

func (s *pop3Store) envelopes(ctx context.Context) ([]pop3Entry, error) {
	if s.loaded {
		return s.entries, nil
	}

	ids, err := s.conn.Uidl(0)
	if err != nil {
		return nil, Interruption(fmt.Errorf("pop3 uidl: %w", err))
	}
	sizes := map[int]int64{}
	if listed, err := s.conn.List(0); err != nil {
		// Sizes stay zero; the crawl goes on without them.
		zap.L().Debug("pop3 list failed, message sizes unavailable", zap.Error(err))
	} else {
		for _, m := range listed {
			sizes[m.ID] = int64(m.Size)
		}
	}

	entries := make([]pop3Entry, 0, len(ids))
	for _, meta := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ent, err := s.conn.Top(meta.ID, 0)
		if err != nil {
			return nil, Interruption(fmt.Errorf("pop3 top %d: %w", meta.ID, err))
		}
		env, ok := envelopeFromHeader(ent)
		if !ok {
			continue
		}
		env.Size = sizes[meta.ID]
		entries = append(entries, pop3Entry{seq: meta.ID, env: env})
	}

	s.entries = entries
	s.loaded = true
	return entries, nil
}

func (s *pop3Store) fetchRaw(seq int) ([]byte, error) {
	buf, err := s.conn.RetrRaw(seq)
	if err != nil {
		return nil, Interruption(fmt.Errorf("pop3 retr %d: %w", seq, err))
	}
	return buf.Bytes(), nil
}

type pop3Folder struct {
	store *pop3Store
}

func (f *pop3Folder) Name() string { return f.store.DefaultFolder() }

func (f *pop3Folder) Close() error { return nil }

func (f *pop3Folder) Search(ctx context.Context, crit Criteria) ([]Envelope, error) {
	entries, err := f.store.envelopes(ctx)
	if err != nil {
		return nil, err
	}

	var out []Envelope
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !crit.MatchesEnvelope(e.env) {
			continue
		}
		if crit.Kind == KindBody {
			raw, err := f.store.fetchRaw(e.seq)
			if err != nil {
				return nil, err
			}
			if !containsFold(string(raw), crit.Value) {
				continue
			}
		}
		out = append(out, e.env)
	}
	return out, nil
}

func (f *pop3Folder) Fetch(ctx context.Context, id string) (*FullMessage, error) {
	entries, err := f.store.envelopes(ctx)
	if err != nil {
		return nil, err
	}

	want := NormalizeMessageID(id)
	for _, e := range entries {
		if e.env.MessageID != want {
			continue
		}
		raw, err := f.store.fetchRaw(e.seq)
		if err != nil {
			return nil, err
		}
		full := &FullMessage{Envelope: e.env, Raw: raw}
		if full.Size == 0 {
			full.Size = int64(len(raw))
		}
		return full, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
}

func envelopeFromHeader(ent *message.Entity) (Envelope, bool) {
	if ent == nil {
		return Envelope{}, false
	}
	hdr := mail.Header{Header: ent.Header}

	id, err := hdr.MessageID()
	if err != nil || id == "" {
		return Envelope{}, false
	}

	subject, _ := hdr.Subject()
	date, _ := hdr.Date()

	return Envelope{
		MessageID: NormalizeMessageID(id),
		Subject:   subject,
		From:      addressStrings(hdr, "From"),
		To:        addressStrings(hdr, "To"),
		Date:      date,
	}, true
}

func addressStrings(hdr mail.Header, key string) []string {
	addrs, err := hdr.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		if a.Name != "" {
			out = append(out, fmt.Sprintf("%s <%s>", a.Name, a.Address))
		} else {
			out = append(out, a.Address)
		}
	}
	return out
}
