package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/gin-gonic/gin"

	"github.com/hickar/mailgate/internal/app/mailbox"
	"github.com/hickar/mailgate/internal/app/mailparse"
	"github.com/hickar/mailgate/internal/pkg/logger"
)

func (s *Server) listMails(c *gin.Context) {
	folder := c.DefaultQuery("folder", "INBOX")
	headersOnly := c.DefaultQuery("mode", "headers") != "full"

	limit := s.defaultLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit %q", v)})
			return
		}
		limit = parsed
	}

	ctx := logger.WithAttrs(c.Request.Context(), slog.String("route", "listmails"))

	if c.Query("stream") == "1" {
		s.streamMails(c, folder, limit, headersOnly)
		return
	}

	summaries, err := s.lister.ListSummaries(ctx, folder, limit, headersOnly)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, summaries)
}

// streamMails emits the summary array incrementally, one element per decoded
// message, so the client can render results before the batch completes.
// Consumer backpressure throttles the underlying fetch rate; a client
// disconnect cancels the request context and releases the session.
func (s *Server) streamMails(c *gin.Context, folder string, limit int, headersOnly bool) {
	ctx := logger.WithAttrs(c.Request.Context(), slog.String("route", "listmails"))
	events := s.lister.StreamSummaries(ctx, folder, limit, headersOnly)

	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)

	w := c.Writer
	_, _ = io.WriteString(w, "[")

	first := true
	for event := range events {
		var payload []byte
		if event.Err != nil {
			s.logger.ErrorContext(ctx, "summary stream failed", slog.Any("error", event.Err))
			payload, _ = json.Marshal(gin.H{"error": event.Err.Error()})
		} else {
			var err error
			payload, err = json.Marshal(event.Summary)
			if err != nil {
				continue
			}
		}

		if !first {
			_, _ = io.WriteString(w, ",")
		}
		_, _ = w.Write(payload)
		first = false
		w.Flush()

		if event.Err != nil {
			break
		}
	}

	_, _ = io.WriteString(w, "]")
	w.Flush()
}

func (s *Server) listAttachments(c *gin.Context) {
	uid, ok := s.messageID(c)
	if !ok {
		return
	}

	ctx := logger.WithAttrs(c.Request.Context(),
		slog.String("route", "list_attachments"),
		slog.String("email_id", mailbox.FormatUID(uid)),
	)

	infos, err := s.lister.ListAttachments(ctx, uid)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, infos)
}

func (s *Server) downloadAttachment(c *gin.Context) {
	uid, ok := s.messageID(c)
	if !ok {
		return
	}
	filename := c.Query("filename")
	if filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing filename"})
		return
	}

	ctx := logger.WithAttrs(c.Request.Context(),
		slog.String("route", "download_attachment"),
		slog.String("email_id", mailbox.FormatUID(uid)),
	)

	data, mimeType, err := s.downloader.Download(ctx, uid, filename)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", mailparse.SanitizeFilename(filename)))
	c.Data(http.StatusOK, mimeType, data)
}

func (s *Server) getMessage(c *gin.Context) {
	uid, ok := s.messageID(c)
	if !ok {
		return
	}

	ctx := logger.WithAttrs(c.Request.Context(),
		slog.String("route", "message"),
		slog.String("email_id", mailbox.FormatUID(uid)),
	)

	msg, err := s.lister.GetMessage(ctx, uid)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

type sendMailRequest struct {
	To          string `json:"to"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	ContentType string `json:"content_type"`
}

func (s *Server) sendMail(c *gin.Context) {
	var req sendMailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := logger.WithAttrs(c.Request.Context(), slog.String("route", "sendmail"))

	if err := s.sender.Send(ctx, req.To, req.Subject, req.Body, req.ContentType); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Email sent successfully"})
}

// messageID parses the email_id query parameter, responding 400 itself when
// the identifier is missing or malformed.
func (s *Server) messageID(c *gin.Context) (uid imap.UID, ok bool) {
	id := c.Query("email_id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing email_id"})
		return 0, false
	}

	uid, err := mailbox.ParseUID(id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, false
	}

	return uid, true
}

// writeError maps error kinds onto response codes: validation to 400, missing
// resources to 404, upstream protocol failures to 502.
func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, mailbox.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, mailbox.ErrAttachmentNotFound),
		errors.Is(err, mailbox.ErrEmptyAttachment),
		errors.Is(err, mailbox.ErrFetch):
		status = http.StatusNotFound
	case errors.Is(err, mailbox.ErrConnection),
		errors.Is(err, mailbox.ErrAuthentication),
		errors.Is(err, mailbox.ErrProtocol),
		errors.Is(err, mailbox.ErrDelivery):
		status = http.StatusBadGateway
	}

	s.logger.ErrorContext(c.Request.Context(), "request failed", slog.Any("error", err))
	c.JSON(status, gin.H{"error": err.Error()})
}
