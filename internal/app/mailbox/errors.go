package mailbox

import "errors"

// Error kinds surfaced by mail sessions and the operations built on top of
// them. The HTTP boundary classifies these with errors.Is to pick response
// codes; everything else wraps them with fmt.Errorf and %w.
var (
	ErrConnection         = errors.New("connection failed")
	ErrAuthentication     = errors.New("authentication rejected")
	ErrProtocol           = errors.New("protocol command rejected")
	ErrFetch              = errors.New("message fetch failed")
	ErrDelivery           = errors.New("message delivery rejected")
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrEmptyAttachment    = errors.New("attachment has no content")
	ErrValidation         = errors.New("missing required field")
)
