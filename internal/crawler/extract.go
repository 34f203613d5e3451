package crawler

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/emersion/go-message"

	"mailcrawl/internal/config"
	"mailcrawl/internal/mailstore"
)

// mimeParts is what a single pass over the message's top-level MIME parts
// yields: the inline text bodies plus per-attachment encoding and content
// type. Nested multiparts are not descended into.
type mimeParts struct {
	bodies              []string
	attachmentEncodings []string
	attachmentTypes     []string
}

// extractFields resolves each requested metadata field against the message.
// Unknown field names are skipped (the job was validated up front, so they
// only appear when configs drift). The MIME structure is parsed at most
// once, and only when a field actually needs it.
func extractFields(msg *mailstore.FullMessage, metadata []string) (map[string][]string, error) {
	fields := make(map[string][]string, len(metadata))

	var parts *mimeParts
	needParts := func() (*mimeParts, error) {
		if parts != nil {
			return parts, nil
		}
		p, err := parseMIMEParts(msg.Raw)
		if err != nil {
			return nil, err
		}
		parts = p
		return parts, nil
	}

	for _, field := range metadata {
		switch strings.ToLower(field) {
		case config.FieldSubject:
			fields[config.FieldSubject] = []string{msg.Subject}
		case config.FieldFrom:
			fields[config.FieldFrom] = append([]string(nil), msg.From...)
		case config.FieldTo:
			fields[config.FieldTo] = append([]string(nil), msg.To...)
		case config.FieldDate:
			if !msg.Date.IsZero() {
				fields[config.FieldDate] = []string{msg.Date.Format(time.RFC1123Z)}
			}
		case config.FieldBody:
			p, err := needParts()
			if err != nil {
				return nil, err
			}
			fields[config.FieldBody] = append([]string(nil), p.bodies...)
		case config.FieldAttachmentEncoding:
			p, err := needParts()
			if err != nil {
				return nil, err
			}
			fields[config.FieldAttachmentEncoding] = append([]string(nil), p.attachmentEncodings...)
		case config.FieldAttachmentMIMEType:
			p, err := needParts()
			if err != nil {
				return nil, err
			}
			fields[config.FieldAttachmentMIMEType] = append([]string(nil), p.attachmentTypes...)
		}
	}
	return fields, nil
}

// parseMIMEParts walks the message's top-level MIME parts once. Parts with
// no content disposition contribute their text content to the body; parts
// marked attachment or inline contribute an encoding hint and a content
// type. Unknown charsets are tolerated; content comes through undecoded
// then.
func parseMIMEParts(raw []byte) (*mimeParts, error) {
	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("parse message: %w", err)
	}

	parts := &mimeParts{}

	mr := ent.MultipartReader()
	if mr == nil {
		// Single-part message: the whole payload is the body when it is
		// text (an absent Content-Type defaults to text/plain).
		ctype, _, _ := ent.Header.ContentType()
		if ctype == "" || ctype == "text/plain" || ctype == "text/html" {
			content, err := io.ReadAll(ent.Body)
			if err != nil {
				return nil, fmt.Errorf("read message body: %w", err)
			}
			parts.bodies = append(parts.bodies, string(content))
		}
		return parts, nil
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("read message part: %w", err)
		}
		if p == nil {
			break
		}

		disp, _, _ := p.Header.ContentDisposition()
		ctype, _, _ := p.Header.ContentType()
		if disp == "" {
			if ctype == "text/plain" || ctype == "text/html" {
				content, err := io.ReadAll(p.Body)
				if err != nil {
					return nil, fmt.Errorf("read message body: %w", err)
				}
				parts.bodies = append(parts.bodies, string(content))
			}
			continue
		}

		parts.attachmentEncodings = append(parts.attachmentEncodings, attachmentEncoding(p.Header))
		parts.attachmentTypes = append(parts.attachmentTypes, attachmentContentType(p.Header))
	}
	return parts, nil
}

// attachmentEncoding reads the charset hint out of an RFC 2047 encoded
// filename, e.g. "=?UTF-8?B?...?=" yields "UTF-8". Plain filenames carry no
// hint and yield an empty string.
func attachmentEncoding(hdr message.Header) string {
	tokens := strings.Split(rawFilename(hdr), "?")
	if len(tokens) > 1 {
		return tokens[1]
	}
	return ""
}

// rawFilename prefers the undecoded filename parameter so encoded-word
// markers survive; the decoded disposition parameter is the fallback.
func rawFilename(hdr message.Header) string {
	if cd := hdr.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	if _, params, err := hdr.ContentDisposition(); err == nil {
		return params["filename"]
	}
	return ""
}

// attachmentContentType reports the part's full Content-Type header value,
// parameters included.
func attachmentContentType(hdr message.Header) string {
	if ct := hdr.Get("Content-Type"); ct != "" {
		return strings.TrimSpace(ct)
	}
	ctype, _, _ := hdr.ContentType()
	return ctype
}
