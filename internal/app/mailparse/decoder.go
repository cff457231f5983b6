package mailparse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"regexp"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"jaytaylor.com/html2text"
)

// ErrHeaderDecode reports a malformed encoded-word sequence within a header
// value. Callers listing whole mailboxes may substitute the raw value
// instead of aborting the batch.
var ErrHeaderDecode = errors.New("header decode failed")

var wordDecoder = mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeHeaderValue resolves RFC 2047 encoded words within a header value,
// decoding with the declared charset and falling back to UTF-8 when none is
// declared. On failure the raw input is returned alongside ErrHeaderDecode so
// the caller may choose substitution over abortion.
func DecodeHeaderValue(value string) (string, error) {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value, fmt.Errorf("%w: %v", ErrHeaderDecode, err)
	}

	return decoded, nil
}

// Decode transforms raw wire-format message bytes into a Message. It is a
// pure transformation: no I/O beyond reading the supplied bytes, no session
// state. Individual parts that fail to decode are dropped; a structurally
// malformed message fails as a whole.
func Decode(raw []byte) (*Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("create message reader: %w", err)
	}
	defer func() {
		_ = mr.Close()
	}()

	msg := &Message{Header: make(map[string]string)}

	fields := mr.Header.Fields()
	for fields.Next() {
		text, err := fields.Text()
		if err != nil {
			// Malformed encoded word: substitute the raw value
			// rather than dropping the whole message.
			text = fields.Value()
		}
		msg.Header[fields.Key()] = text
	}
	msg.Subject = msg.Header["Subject"]
	msg.From = msg.Header["From"]
	msg.To = msg.Header["To"]
	msg.Date = msg.Header["Date"]

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read message part: %w", err)
		}

		var header message.Header
		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			header = ph.Header
		case *mail.AttachmentHeader:
			header = ph.Header
		default:
			continue
		}

		// Classification follows the Content-Disposition header, not the
		// part type: inline parts carrying a filename are attachments too,
		// while a bare Content-Type name parameter without any disposition
		// is not enough.
		if filename, ok := attachmentFilename(header); ok {
			segment, err := readSegment(part.Body, header)
			if err != nil {
				continue
			}

			msg.Attachments = append(msg.Attachments, Attachment{
				Filename: SanitizeFilename(filename),
				MIMEType: segment.MIMEType,
				Size:     segment.Size,
				Content:  segment.Content,
			})
			continue
		}

		if _, ok := part.Header.(*mail.InlineHeader); !ok {
			continue
		}

		segment, err := readSegment(part.Body, header)
		if err != nil {
			continue
		}

		if msg.TextBody == "" && segment.MIMEType == "text/plain" {
			msg.TextBody = string(segment.Content)
		}
		if msg.HTMLBody == "" && segment.MIMEType == "text/html" {
			msg.HTMLBody = string(segment.Content)
		}
		msg.BodyParts = append(msg.BodyParts, segment)
	}

	if msg.TextBody == "" && msg.HTMLBody != "" {
		if text, err := html2text.FromString(msg.HTMLBody, html2text.Options{TextOnly: true}); err == nil {
			msg.TextBody = text
		}
	}

	return msg, nil
}

// attachmentFilename resolves the filename of an attachment part. A part is
// an attachment when its Content-Disposition names attachment or inline
// delivery and a filename is present, either as a disposition parameter or as
// a Content-Type name.
func attachmentFilename(header message.Header) (string, bool) {
	disp, dispParams, err := header.ContentDisposition()
	if err != nil || (disp != "attachment" && disp != "inline") {
		return "", false
	}

	filename := dispParams["filename"]
	if filename == "" {
		if _, typeParams, err := header.ContentType(); err == nil {
			filename = typeParams["name"]
		}
	}
	if filename == "" {
		return "", false
	}

	return filename, true
}

// readSegment drains one decoded part body. Size is the post-transfer-encoding
// byte length.
func readSegment(body io.Reader, header message.Header) (BodySegment, error) {
	var segment BodySegment
	var buf bytes.Buffer
	var err error

	segment.Size, err = buf.ReadFrom(body)
	if err != nil {
		return segment, fmt.Errorf("read part body: %w", err)
	}
	segment.Content = buf.Bytes()

	segment.MIMEType, segment.Params, err = header.ContentType()
	if err != nil {
		return segment, fmt.Errorf("get 'Content-Type': %w", err)
	}

	return segment, nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^\w.-]`)

// SanitizeFilename strips path separators, traversal sequences and unsafe
// characters from a wire-provided filename. The result is safe to use as a
// cache key or a download name; an empty result becomes "attachment".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._-")
	if name == "" || name == "/" {
		return "attachment"
	}

	return name
}
