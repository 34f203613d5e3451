package mailstore

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/emersion/go-message"
	"github.com/knadh/go-pop3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const rawInvoice = "Message-Id: <inv-1@example.com>\r\n" +
	"Subject: Quarterly Invoice\r\n" +
	"From: Billing <billing@example.com>\r\n" +
	"To: ops@example.com\r\n" +
	"Date: Tue, 10 Mar 2026 12:00:00 +0000\r\n" +
	"\r\n" +
	"Please pay the overdue balance.\r\n"

const rawNewsletter = "Message-Id: <news-9@example.com>\r\n" +
	"Subject: Weekly Newsletter\r\n" +
	"From: News <news@example.com>\r\n" +
	"To: ops@example.com\r\n" +
	"Date: Wed, 11 Mar 2026 09:00:00 +0000\r\n" +
	"\r\n" +
	"Nothing to see here.\r\n"

type fakePOP3Conn struct {
	messages []string
	quits    int
	topCalls int
	listErr  error
	retrErr  error
}

func (c *fakePOP3Conn) Auth(user, password string) error { return nil }
func (c *fakePOP3Conn) Quit() error {
	c.quits++
	return nil
}
func (c *fakePOP3Conn) Uidl(msgID int) ([]pop3.MessageID, error) {
	ids := make([]pop3.MessageID, 0, len(c.messages))
	for i := range c.messages {
		ids = append(ids, pop3.MessageID{ID: i + 1, UID: "uid"})
	}
	return ids, nil
}
func (c *fakePOP3Conn) List(msgID int) ([]pop3.MessageID, error) {
	if c.listErr != nil {
		return nil, c.listErr
	}
	ids := make([]pop3.MessageID, 0, len(c.messages))
	for i, m := range c.messages {
		ids = append(ids, pop3.MessageID{ID: i + 1, Size: len(m)})
	}
	return ids, nil
}
func (c *fakePOP3Conn) Top(msgID int, numLines int) (*message.Entity, error) {
	c.topCalls++
	raw := c.messages[msgID-1]
	header := raw[:strings.Index(raw, "\r\n\r\n")+4]
	return message.Read(strings.NewReader(header))
}
func (c *fakePOP3Conn) RetrRaw(msgID int) (*bytes.Buffer, error) {
	if c.retrErr != nil {
		return nil, c.retrErr
	}
	return bytes.NewBufferString(c.messages[msgID-1]), nil
}

func newFakePOP3Store() (*pop3Store, *fakePOP3Conn) {
	conn := &fakePOP3Conn{messages: []string{rawInvoice, rawNewsletter}}
	return &pop3Store{conn: conn}, conn
}

func TestPOP3SearchClientSide(t *testing.T) {
	store, _ := newFakePOP3Store()
	folder, err := store.OpenFolder(context.Background(), "ignored")
	require.NoError(t, err)

	envelopes, err := folder.Search(context.Background(), Criteria{Kind: KindSubject, Value: "invoice"})
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	assert.Equal(t, "inv-1@example.com", envelopes[0].MessageID)
	assert.Equal(t, "Quarterly Invoice", envelopes[0].Subject)
	assert.Equal(t, int64(len(rawInvoice)), envelopes[0].Size)
}

func TestPOP3EnvelopesCachedPerSession(t *testing.T) {
	store, conn := newFakePOP3Store()
	folder, err := store.OpenFolder(context.Background(), "")
	require.NoError(t, err)

	_, err = folder.Search(context.Background(), Criteria{Kind: KindAll})
	require.NoError(t, err)
	_, err = folder.Search(context.Background(), Criteria{Kind: KindFrom, Value: "news"})
	require.NoError(t, err)

	assert.Equal(t, len(conn.messages), conn.topCalls)
}

func TestPOP3ListFailureLeavesSizesZeroAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	store, conn := newFakePOP3Store()
	conn.listErr = errors.New("LIST not supported")
	folder, err := store.OpenFolder(context.Background(), "")
	require.NoError(t, err)

	envelopes, err := folder.Search(context.Background(), Criteria{Kind: KindAll})
	require.NoError(t, err)
	require.Len(t, envelopes, 2)
	for _, env := range envelopes {
		assert.Equal(t, int64(0), env.Size)
	}

	assert.Equal(t, 1, logs.FilterMessage("pop3 list failed, message sizes unavailable").Len())
}

func TestPOP3BodySearchFetchesContent(t *testing.T) {
	store, _ := newFakePOP3Store()
	folder, err := store.OpenFolder(context.Background(), "")
	require.NoError(t, err)

	envelopes, err := folder.Search(context.Background(), Criteria{Kind: KindBody, Value: "overdue"})
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	assert.Equal(t, "inv-1@example.com", envelopes[0].MessageID)
}

func TestPOP3Fetch(t *testing.T) {
	store, _ := newFakePOP3Store()
	folder, err := store.OpenFolder(context.Background(), "")
	require.NoError(t, err)

	msg, err := folder.Fetch(context.Background(), "<news-9@example.com>")
	require.NoError(t, err)
	assert.Equal(t, "news-9@example.com", msg.MessageID)
	assert.Equal(t, []byte(rawNewsletter), msg.Raw)
}

func TestPOP3FetchNotFound(t *testing.T) {
	store, _ := newFakePOP3Store()
	folder, err := store.OpenFolder(context.Background(), "")
	require.NoError(t, err)

	_, err = folder.Fetch(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestPOP3FetchErrorIsInterruption(t *testing.T) {
	store, conn := newFakePOP3Store()
	conn.retrErr = errors.New("connection reset")
	folder, err := store.OpenFolder(context.Background(), "")
	require.NoError(t, err)

	_, err = folder.Fetch(context.Background(), "inv-1@example.com")
	require.Error(t, err)
	assert.True(t, IsInterruption(err))
}

func TestPOP3StoreCloseQuits(t *testing.T) {
	store, conn := newFakePOP3Store()
	require.NoError(t, store.Close())
	assert.Equal(t, 1, conn.quits)
}
