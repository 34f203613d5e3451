package mailstore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIMAPClient struct {
	selected  string
	readOnly  bool
	loggedOut bool
	closed    bool

	searchCrits []*imap.SearchCriteria
	uids        []uint32
	searchErr   error
	messages    []*imap.Message
	fetchErr    error
}

func (c *fakeIMAPClient) Login(username, password string) error { return nil }
func (c *fakeIMAPClient) Logout() error {
	c.loggedOut = true
	return nil
}
func (c *fakeIMAPClient) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	c.selected = name
	c.readOnly = readOnly
	return &imap.MailboxStatus{Name: name}, nil
}
func (c *fakeIMAPClient) Close() error {
	c.closed = true
	return nil
}
func (c *fakeIMAPClient) UidSearch(criteria *imap.SearchCriteria) ([]uint32, error) {
	c.searchCrits = append(c.searchCrits, criteria)
	return c.uids, c.searchErr
}
func (c *fakeIMAPClient) UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	for _, msg := range c.messages {
		ch <- msg
	}
	close(ch)
	return c.fetchErr
}

func imapTestMessage(id, subject string, raw []byte) *imap.Message {
	msg := &imap.Message{
		Envelope: &imap.Envelope{
			MessageId: id,
			Subject:   subject,
			From:      []*imap.Address{{PersonalName: "Billing", MailboxName: "billing", HostName: "example.com"}},
			To:        []*imap.Address{{MailboxName: "ops", HostName: "example.com"}},
			Date:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		},
		Size: uint32(len(raw)),
	}
	if raw != nil {
		msg.Body = map[*imap.BodySectionName]imap.Literal{
			{}: bytes.NewBuffer(raw),
		}
	}
	return msg
}

func TestIMAPStoreOpenFolderSelectsReadOnly(t *testing.T) {
	client := &fakeIMAPClient{}
	store := &imapStore{client: client}

	folder, err := store.OpenFolder(context.Background(), "Archive")
	require.NoError(t, err)

	assert.Equal(t, "Archive", folder.Name())
	assert.Equal(t, "Archive", client.selected)
	assert.True(t, client.readOnly)
}

func TestIMAPFolderSearch(t *testing.T) {
	client := &fakeIMAPClient{
		uids: []uint32{7},
		messages: []*imap.Message{
			imapTestMessage("<inv-1@example.com>", "Invoice", nil),
		},
	}
	folder := &imapFolder{client: client, name: "INBOX"}

	envelopes, err := folder.Search(context.Background(), Criteria{Kind: KindSubject, Value: "invoice"})
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	assert.Equal(t, "inv-1@example.com", envelopes[0].MessageID)
	assert.Equal(t, "Invoice", envelopes[0].Subject)
	assert.Equal(t, []string{"Billing <billing@example.com>"}, envelopes[0].From)
	assert.Equal(t, []string{"ops@example.com"}, envelopes[0].To)

	require.Len(t, client.searchCrits, 1)
	assert.Equal(t, []string{"invoice"}, client.searchCrits[0].Header["Subject"])
}

func TestIMAPFolderSearchSkipsMessagesWithoutID(t *testing.T) {
	client := &fakeIMAPClient{
		uids: []uint32{1, 2},
		messages: []*imap.Message{
			imapTestMessage("", "No ID", nil),
			imapTestMessage("<keep@example.com>", "Keep", nil),
		},
	}
	folder := &imapFolder{client: client, name: "INBOX"}

	envelopes, err := folder.Search(context.Background(), Criteria{Kind: KindAll})
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	assert.Equal(t, "keep@example.com", envelopes[0].MessageID)
}

func TestIMAPFolderSearchErrorIsInterruption(t *testing.T) {
	client := &fakeIMAPClient{searchErr: errors.New("connection reset")}
	folder := &imapFolder{client: client, name: "INBOX"}

	_, err := folder.Search(context.Background(), Criteria{Kind: KindAll})
	require.Error(t, err)
	assert.True(t, IsInterruption(err))
}

func TestIMAPFolderFetch(t *testing.T) {
	raw := []byte("Subject: Invoice\r\n\r\nPlease pay.\r\n")
	client := &fakeIMAPClient{
		uids: []uint32{3},
		messages: []*imap.Message{
			imapTestMessage("<inv-1@example.com>", "Invoice", raw),
		},
	}
	folder := &imapFolder{client: client, name: "INBOX"}

	msg, err := folder.Fetch(context.Background(), "inv-1@example.com")
	require.NoError(t, err)
	assert.Equal(t, "inv-1@example.com", msg.MessageID)
	assert.Equal(t, raw, msg.Raw)

	// The lookup goes through a Message-Id header search.
	require.Len(t, client.searchCrits, 1)
	assert.Equal(t, []string{"inv-1@example.com"}, client.searchCrits[0].Header["Message-Id"])
}

func TestIMAPFolderFetchNotFound(t *testing.T) {
	client := &fakeIMAPClient{uids: nil}
	folder := &imapFolder{client: client, name: "INBOX"}

	_, err := folder.Fetch(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestIMAPSearchCriteriaTranslation(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	sc := imapSearchCriteria(Criteria{Kind: KindFrom, Value: "billing", Since: since, Before: before})
	assert.Equal(t, []string{"billing"}, sc.Header["From"])
	assert.Equal(t, since, sc.SentSince)
	assert.Equal(t, before, sc.SentBefore)

	sc = imapSearchCriteria(Criteria{Kind: KindBody, Value: "overdue"})
	assert.Equal(t, []string{"overdue"}, sc.Body)

	sc = imapSearchCriteria(Criteria{Kind: KindMessageID, Value: "<a@b>"})
	assert.Equal(t, []string{"a@b"}, sc.Header["Message-Id"])

	sc = imapSearchCriteria(Criteria{Kind: KindAll})
	assert.Empty(t, sc.Header)
}
