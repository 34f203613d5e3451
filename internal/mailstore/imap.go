package mailstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"mailcrawl/internal/config"
)

// imapDialTimeout bounds the TCP connect; in-flight commands are governed
// by the server, not by us.
const imapDialTimeout = 10 * time.Second

// imapClient is the slice of go-imap's client the store actually uses,
// kept narrow so tests can substitute a fake.
type imapClient interface {
	Login(username, password string) error
	Logout() error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Close() error
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
}

type imapStore struct {
	client imapClient
}

func dialIMAP(ctx context.Context, ep config.Endpoint) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	port := ep.Port
	if port == 0 {
		port = config.DefaultPort(ep.Protocol)
	}
	addr := fmt.Sprintf("%s:%d", ep.Server, port)

	tlsConfig := &tls.Config{
		ServerName:         ep.Server,
		InsecureSkipVerify: ep.Properties["insecure_skip_verify"] == "true",
	}
	dialer := &net.Dialer{Timeout: imapDialTimeout}

	var c *imapclient.Client
	var err error
	if config.NormalizeProtocol(ep.Protocol) == config.ProtocolIMAPS {
		c, err = imapclient.DialWithDialerTLS(dialer, addr, tlsConfig)
	} else {
		c, err = imapclient.DialWithDialer(dialer, addr)
		if err == nil && ep.Properties["starttls"] == "true" {
			if startErr := c.StartTLS(tlsConfig); startErr != nil {
				_ = c.Logout()
				return nil, Interruption(fmt.Errorf("imap starttls %s: %w", addr, startErr))
			}
		}
	}
	if err != nil {
		return nil, Interruption(fmt.Errorf("imap connect %s: %w", addr, err))
	}

	if err := c.Login(ep.Username, ep.Password); err != nil {
		_ = c.Logout()
		return nil, Interruption(fmt.Errorf("imap login %s: %w", ep.Username, err))
	}

	return &imapStore{client: c}, nil
}

func (s *imapStore) DefaultFolder() string { return "INBOX" }

func (s *imapStore) OpenFolder(ctx context.Context, name string) (Folder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		name = s.DefaultFolder()
	}
	if _, err := s.client.Select(name, true); err != nil {
		return nil, Interruption(fmt.Errorf("imap select %s: %w", name, err))
	}
	return &imapFolder{client: s.client, name: name}, nil
}

func (s *imapStore) Close() error {
	return s.client.Logout()
}

type imapFolder struct {
	client imapClient
	name   string
}

func (f *imapFolder) Name() string { return f.name }

// Close issues CLOSE for the selected mailbox. The folder is opened
// read-only, so no deletions can be expunged by it.
func (f *imapFolder) Close() error {
	return f.client.Close()
}

func (f *imapFolder) Search(ctx context.Context, crit Criteria) ([]Envelope, error) {
	uids, err := f.client.UidSearch(imapSearchCriteria(crit))
	if err != nil {
		return nil, Interruption(fmt.Errorf("imap search: %w", err))
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchRFC822Size}
	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- f.client.UidFetch(seqset, items, ch)
	}()

	var envelopes []Envelope
	for msg := range ch {
		if err := ctx.Err(); err != nil {
			<-done
			return nil, err
		}
		env, ok := envelopeFromMessage(msg)
		if !ok {
			continue
		}
		envelopes = append(envelopes, env)
	}
	if err := <-done; err != nil {
		return nil, Interruption(fmt.Errorf("imap fetch envelopes: %w", err))
	}

	return envelopes, nil
}

func (f *imapFolder) Fetch(ctx context.Context, id string) (*FullMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	uids, err := f.client.UidSearch(imapSearchCriteria(Criteria{Kind: KindMessageID, Value: id}))
	if err != nil {
		return nil, Interruption(fmt.Errorf("imap search message-id: %w", err))
	}
	if len(uids) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids[0])

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchRFC822Size, section.FetchItem()}
	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- f.client.UidFetch(seqset, items, ch)
	}()
	msg := <-ch
	for range ch {
	}
	if err := <-done; err != nil {
		return nil, Interruption(fmt.Errorf("imap fetch: %w", err))
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("message %s has no body section", id)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, Interruption(fmt.Errorf("imap read body: %w", err))
	}

	env, _ := envelopeFromMessage(msg)
	if env.Size == 0 {
		env.Size = int64(len(raw))
	}
	return &FullMessage{Envelope: env, Raw: raw}, nil
}

func imapSearchCriteria(crit Criteria) *imap.SearchCriteria {
	sc := imap.NewSearchCriteria()
	switch crit.Kind {
	case KindSubject:
		sc.Header.Add("Subject", crit.Value)
	case KindFrom:
		sc.Header.Add("From", crit.Value)
	case KindTo:
		sc.Header.Add("To", crit.Value)
	case KindBody:
		sc.Body = append(sc.Body, crit.Value)
	case KindMessageID:
		sc.Header.Add("Message-Id", NormalizeMessageID(crit.Value))
	}
	if !crit.Since.IsZero() {
		sc.SentSince = crit.Since
	}
	if !crit.Before.IsZero() {
		sc.SentBefore = crit.Before
	}
	return sc
}

func envelopeFromMessage(msg *imap.Message) (Envelope, bool) {
	if msg == nil || msg.Envelope == nil {
		return Envelope{}, false
	}
	id := NormalizeMessageID(msg.Envelope.MessageId)
	if id == "" {
		// Without a Message-ID there is no stable crawl identifier.
		return Envelope{}, false
	}
	return Envelope{
		MessageID: id,
		Subject:   msg.Envelope.Subject,
		From:      formatAddresses(msg.Envelope.From),
		To:        formatAddresses(msg.Envelope.To),
		Date:      msg.Envelope.Date,
		Size:      int64(msg.Size),
	}, true
}

func formatAddresses(addrs []*imap.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr == nil {
			continue
		}
		mailbox := addr.MailboxName
		host := addr.HostName
		full := mailbox
		if host != "" {
			full = mailbox + "@" + host
		}
		if addr.PersonalName != "" {
			out = append(out, fmt.Sprintf("%s <%s>", addr.PersonalName, full))
		} else {
			out = append(out, full)
		}
	}
	return out
}
