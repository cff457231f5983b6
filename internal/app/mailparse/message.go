package mailparse

import "math"

// Message is the fully decoded form of one wire-format email: header values
// with encoded words resolved, inline body parts in their original order and
// the attachment parts extracted with decoded payloads. It carries no
// reference back to the session that fetched the raw bytes.
type Message struct {
	ID          string            `json:"email_id,omitempty"`
	Subject     string            `json:"subject"`
	From        string            `json:"from"`
	To          string            `json:"to,omitempty"`
	Date        string            `json:"date"`
	TextBody    string            `json:"text_body,omitempty"`
	HTMLBody    string            `json:"html_body,omitempty"`
	Header      map[string]string `json:"-"`
	BodyParts   []BodySegment     `json:"-"`
	Attachments []Attachment      `json:"attachments,omitempty"`
}

type BodySegment struct {
	MIMEType string
	Params   map[string]string
	Size     int64
	Content  []byte
}

// Attachment is a named message part. Filename is already sanitized and safe
// to use as a cache key or download name. Size is the decoded byte length,
// not the wire-encoded one.
type Attachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"-"`
	Content  []byte `json:"-"`
}

// SizeKB reports the decoded attachment size in kilobytes,
// rounded to two decimal places.
func (a Attachment) SizeKB() float64 {
	return math.Round(float64(a.Size)/1024*100) / 100
}
