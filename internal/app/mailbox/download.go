package mailbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emersion/go-imap/v2"

	"github.com/hickar/mailgate/internal/app/cache"
	"github.com/hickar/mailgate/internal/app/mailparse"
)

// AttachmentStore memoizes extracted attachment payloads across requests.
type AttachmentStore interface {
	Get(key cache.Key) (cache.Entry, bool)
	Put(key cache.Key, entry cache.Entry)
}

// Downloader serves attachment content, checking the injected store before
// fetching and decoding the owning message.
type Downloader struct {
	lister *Lister
	store  AttachmentStore
	logger *slog.Logger
}

func NewDownloader(lister *Lister, store AttachmentStore, logger *slog.Logger) *Downloader {
	return &Downloader{
		lister: lister,
		store:  store,
		logger: logger,
	}
}

// Download returns the decoded bytes and MIME type of the attachment whose
// sanitized filename matches exactly. Repeat calls for the same
// (message, filename) pair are served from the store without a second fetch.
func (d *Downloader) Download(ctx context.Context, uid imap.UID, filename string) ([]byte, string, error) {
	name := mailparse.SanitizeFilename(filename)
	key := cache.Key{MessageID: FormatUID(uid), Filename: name}

	if entry, ok := d.store.Get(key); ok {
		d.logger.DebugContext(ctx, "attachment served from cache", slog.String("filename", name))
		return entry.Data, entry.MIMEType, nil
	}

	msg, err := d.lister.GetMessage(ctx, uid)
	if err != nil {
		return nil, "", err
	}

	for _, att := range msg.Attachments {
		if att.Filename != name {
			continue
		}
		if len(att.Content) == 0 {
			return nil, "", fmt.Errorf("%w: %s", ErrEmptyAttachment, name)
		}

		mimeType := att.MIMEType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		d.store.Put(key, cache.Entry{Data: att.Content, MIMEType: mimeType})
		return att.Content, mimeType, nil
	}

	return nil, "", fmt.Errorf("%w: %s in message %s", ErrAttachmentNotFound, name, FormatUID(uid))
}
