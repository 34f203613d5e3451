package crawler

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcrawl/internal/mailstore"
)

const rawMultipart = "Message-Id: <report-1@example.com>\r\n" +
	"Subject: Monthly Report\r\n" +
	"From: reports@example.com\r\n" +
	"To: ops@example.com\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=frontier\r\n" +
	"\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"See the attached report.\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/html\r\n" +
	"\r\n" +
	"<p>See the attached report.</p>\r\n" +
	"--frontier\r\n" +
	"Content-Type: application/pdf; name=report.pdf\r\n" +
	"Content-Disposition: attachment; filename=\"=?UTF-8?B?cmVwb3J0LnBkZg==?=\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/csv; name=data.csv\r\n" +
	"Content-Disposition: attachment; filename=data.csv\r\n" +
	"\r\n" +
	"a,b,c\r\n" +
	"--frontier--\r\n"

func multipartMessage() *mailstore.FullMessage {
	return &mailstore.FullMessage{
		Envelope: mailstore.Envelope{
			MessageID: "report-1@example.com",
			Subject:   "Monthly Report",
			From:      []string{"reports@example.com"},
			To:        []string{"ops@example.com", "archive@example.com"},
			Date:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		},
		Raw: []byte(rawMultipart),
	}
}

func TestExtractFieldsHeaders(t *testing.T) {
	fields, err := extractFields(multipartMessage(), []string{"subject", "from", "to", "date"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Monthly Report"}, fields["subject"])
	assert.Equal(t, []string{"reports@example.com"}, fields["from"])
	assert.Equal(t, []string{"ops@example.com", "archive@example.com"}, fields["to"])
	assert.Equal(t, []string{"Tue, 10 Mar 2026 12:00:00 +0000"}, fields["date"])
}

func TestExtractFieldsBody(t *testing.T) {
	fields, err := extractFields(multipartMessage(), []string{"body"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"See the attached report.",
		"<p>See the attached report.</p>",
	}, fields["body"])
}

func TestExtractFieldsAttachments(t *testing.T) {
	fields, err := extractFields(multipartMessage(), []string{"attachment-encoding", "attachment-mimetype"})
	require.NoError(t, err)

	// The first filename is an RFC 2047 encoded word, the second is plain.
	assert.Equal(t, []string{"UTF-8", ""}, fields["attachment-encoding"])

	require.Len(t, fields["attachment-mimetype"], 2)
	assert.Contains(t, fields["attachment-mimetype"][0], "application/pdf")
	assert.Contains(t, fields["attachment-mimetype"][1], "text/csv")
}

func TestExtractFieldsNoMetadata(t *testing.T) {
	fields, err := extractFields(multipartMessage(), nil)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestBuildDocument(t *testing.T) {
	msg := multipartMessage()
	doc, err := buildDocument(msg, "v1", []string{"subject"})
	require.NoError(t, err)

	assert.Equal(t, "report-1@example.com", doc.Identifier)
	assert.Equal(t, "v1", doc.Version)
	assert.Equal(t, "Monthly Report<report-1@example.com>", doc.URI)
	assert.Equal(t, int64(len(rawMultipart)), doc.Size)

	raw, err := io.ReadAll(doc.Body)
	require.NoError(t, err)
	assert.Equal(t, msg.Raw, raw)
}

func TestDocumentURI(t *testing.T) {
	assert.Equal(t, "Hello<a@b>", DocumentURI("Hello", "a@b"))
	assert.Equal(t, "<a@b>", DocumentURI("", "a@b"))
}
