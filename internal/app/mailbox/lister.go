package mailbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emersion/go-imap/v2"

	"github.com/hickar/mailgate/internal/app/config"
	"github.com/hickar/mailgate/internal/app/mailparse"
)

const inboxFolder = "INBOX"

type Summary struct {
	ID      string `json:"email_id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Date    string `json:"date"`
}

// SummaryEvent is one element of a streamed listing. Err is set only on a
// connection-level failure at the start of the stream, in which case it is
// the sole event emitted.
type SummaryEvent struct {
	Summary Summary
	Err     error
}

type AttachmentInfo struct {
	Filename string  `json:"filename"`
	SizeKB   float64 `json:"size_kb"`
	MIMEType string  `json:"mime_type"`
}

// Lister orchestrates sessions and the MIME decoder to produce message
// summaries and attachment manifests. Every call opens its own session and
// disconnects deterministically, success or failure.
type Lister struct {
	cfg    config.Mailbox
	dial   Dialer
	logger *slog.Logger
}

func NewLister(cfg config.Mailbox, dial Dialer, logger *slog.Logger) *Lister {
	return &Lister{
		cfg:    cfg,
		dial:   dial,
		logger: logger,
	}
}

// withSession runs fn against a connected session with folder selected,
// guaranteeing logout on every exit path.
func (l *Lister) withSession(ctx context.Context, folder string, fn func(*Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session := NewSession(l.cfg, l.dial, l.logger)
	if err := session.Connect(); err != nil {
		return err
	}
	defer session.Disconnect()

	if err := session.Select(folder); err != nil {
		return err
	}

	return fn(session)
}

// ListSummaries returns at most limit summaries of the most recent messages
// in folder, ordered by ascending arrival. A non-positive limit yields no
// summaries. A message that fails to fetch or decode is logged and skipped;
// the batch only fails if connect, select or search fails.
func (l *Lister) ListSummaries(ctx context.Context, folder string, limit int, headersOnly bool) ([]Summary, error) {
	var summaries []Summary

	err := l.withSession(ctx, folder, func(session *Session) error {
		uids, err := session.SearchAll()
		if err != nil {
			return err
		}
		uids = lastN(uids, limit)

		summaries = make([]Summary, 0, len(uids))
		for _, uid := range uids {
			if err := ctx.Err(); err != nil {
				return err
			}

			summary, err := l.fetchSummary(session, uid, headersOnly)
			if err != nil {
				l.logger.WarnContext(ctx, "skipping message",
					slog.String("id", FormatUID(uid)),
					slog.Any("error", err),
				)
				continue
			}
			if summary == nil {
				continue
			}

			summaries = append(summaries, *summary)
		}
		return nil
	})

	return summaries, err
}

// StreamSummaries emits summaries lazily as each message finishes decoding.
// The sequence is finite and non-restartable. A connection-level failure at
// the start yields a single event with Err set; per-item failures are
// swallowed. Cancelling ctx stops the producer and releases the connection
// promptly.
func (l *Lister) StreamSummaries(ctx context.Context, folder string, limit int, headersOnly bool) <-chan SummaryEvent {
	out := make(chan SummaryEvent)

	go func() {
		defer close(out)

		err := l.withSession(ctx, folder, func(session *Session) error {
			uids, err := session.SearchAll()
			if err != nil {
				return err
			}

			for _, uid := range lastN(uids, limit) {
				summary, err := l.fetchSummary(session, uid, headersOnly)
				if err != nil {
					l.logger.WarnContext(ctx, "skipping message",
						slog.String("id", FormatUID(uid)),
						slog.Any("error", err),
					)
					continue
				}
				if summary == nil {
					continue
				}

				select {
				case out <- SummaryEvent{Summary: *summary}:
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			out <- SummaryEvent{Err: err}
		}
	}()

	return out
}

// ListAttachments returns the attachment manifest of one message without
// attachment content bytes.
func (l *Lister) ListAttachments(ctx context.Context, uid imap.UID) ([]AttachmentInfo, error) {
	msg, err := l.GetMessage(ctx, uid)
	if err != nil {
		return nil, err
	}

	infos := make([]AttachmentInfo, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		infos = append(infos, AttachmentInfo{
			Filename: att.Filename,
			SizeKB:   att.SizeKB(),
			MIMEType: att.MIMEType,
		})
	}

	return infos, nil
}

// GetMessage fetches and decodes one full message from the inbox.
func (l *Lister) GetMessage(ctx context.Context, uid imap.UID) (*mailparse.Message, error) {
	var msg *mailparse.Message

	err := l.withSession(ctx, inboxFolder, func(session *Session) error {
		raw, err := session.Fetch(uid, false)
		if err != nil {
			return err
		}
		if raw == nil {
			return fmt.Errorf("%w: message %s not found", ErrFetch, FormatUID(uid))
		}

		msg, err = mailparse.Decode(raw)
		if err != nil {
			return fmt.Errorf("decode message %s: %w", FormatUID(uid), err)
		}
		msg.ID = FormatUID(uid)
		return nil
	})

	return msg, err
}

func (l *Lister) fetchSummary(session *Session, uid imap.UID, headersOnly bool) (*Summary, error) {
	raw, err := session.Fetch(uid, headersOnly)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	msg, err := mailparse.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	return &Summary{
		ID:      FormatUID(uid),
		Subject: msg.Subject,
		From:    msg.From,
		Date:    msg.Date,
	}, nil
}

// lastN trims an ascending UID sequence to its newest n elements, preserving
// order. A non-positive n selects nothing.
func lastN(uids []imap.UID, n int) []imap.UID {
	if n <= 0 {
		return nil
	}
	if n >= len(uids) {
		return uids
	}
	return uids[len(uids)-n:]
}
