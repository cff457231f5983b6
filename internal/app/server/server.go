package server

import (
	"context"
	"log/slog"

	"github.com/emersion/go-imap/v2"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hickar/mailgate/internal/app/mailbox"
	"github.com/hickar/mailgate/internal/app/mailparse"
)

type MailboxLister interface {
	ListSummaries(ctx context.Context, folder string, limit int, headersOnly bool) ([]mailbox.Summary, error)
	StreamSummaries(ctx context.Context, folder string, limit int, headersOnly bool) <-chan mailbox.SummaryEvent
	ListAttachments(ctx context.Context, uid imap.UID) ([]mailbox.AttachmentInfo, error)
	GetMessage(ctx context.Context, uid imap.UID) (*mailparse.Message, error)
}

type MessageSender interface {
	Send(ctx context.Context, to, subject, body, subtype string) error
}

type AttachmentDownloader interface {
	Download(ctx context.Context, uid imap.UID, filename string) ([]byte, string, error)
}

// Server is the HTTP boundary of the gateway. It owns no protocol state;
// every request is delegated to the mailbox layer, which opens and closes
// its own session.
type Server struct {
	lister       MailboxLister
	sender       MessageSender
	downloader   AttachmentDownloader
	defaultLimit int
	logger       *slog.Logger
}

func New(
	lister MailboxLister,
	sender MessageSender,
	downloader AttachmentDownloader,
	defaultLimit int,
	logger *slog.Logger,
) *Server {
	return &Server{
		lister:       lister,
		sender:       sender,
		downloader:   downloader,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"Content-Length", "Content-Disposition"},
	}))

	router.GET("/listmails", s.listMails)
	router.GET("/list_attachments", s.listAttachments)
	router.GET("/download_attachment", s.downloadAttachment)
	router.GET("/message", s.getMessage)
	router.POST("/sendmail", s.sendMail)

	return router
}
