package mailbox

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"

	"github.com/hickar/mailgate/internal/app/config"
)

// summaryHeaderFields are the header fields requested on header-only fetches.
var summaryHeaderFields = []string{"Subject", "From", "Date"}

// Conn is the narrow retrieval-protocol surface a Session drives. Production
// code dials a real IMAP connection; tests substitute a mock that counts
// login/logout calls.
type Conn interface {
	Login(username, password string) error
	Select(folder string) error
	SearchAll() ([]imap.UID, error)
	FetchFull(uid imap.UID) ([]byte, error)
	FetchHeaders(uid imap.UID, fields []string) ([]byte, error)
	Logout() error
}

// Dialer opens a retrieval-protocol connection for the given endpoint.
type Dialer func(cfg config.Mailbox) (Conn, error)

// DialIMAP opens a TLS (or STARTTLS-upgraded) IMAP connection bounded by the
// configured dial timeout.
func DialIMAP(cfg config.Mailbox) (Conn, error) {
	options := &imapclient.Options{
		TLSConfig:   &tls.Config{ServerName: cfg.Host},
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}

	dialer := &net.Dialer{Timeout: cfg.DialTimeout}

	if cfg.TLS {
		tlsConn, err := tls.DialWithDialer(dialer, "tcp", cfg.Addr(), options.TLSConfig)
		if err != nil {
			return nil, err
		}
		return &imapConn{client: imapclient.New(tlsConn, options)}, nil
	}

	conn, err := dialer.Dial("tcp", cfg.Addr())
	if err != nil {
		return nil, err
	}
	client, err := imapclient.NewStartTLS(conn, options)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &imapConn{client: client}, nil
}

type imapConn struct {
	client *imapclient.Client
}

func (c *imapConn) Login(username, password string) error {
	return c.client.Login(username, password).Wait()
}

func (c *imapConn) Select(folder string) error {
	_, err := c.client.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	return err
}

// SearchAll returns the UIDs of every message in the selected folder.
func (c *imapConn) SearchAll() ([]imap.UID, error) {
	data, err := c.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, err
	}
	return data.AllUIDs(), nil
}

func (c *imapConn) FetchFull(uid imap.UID) ([]byte, error) {
	return c.fetch(uid, &imap.FetchItemBodySection{Peek: true})
}

func (c *imapConn) FetchHeaders(uid imap.UID, fields []string) ([]byte, error) {
	return c.fetch(uid, &imap.FetchItemBodySection{
		Specifier:    imap.PartSpecifierHeader,
		HeaderFields: fields,
		Peek:         true,
	})
}

func (c *imapConn) fetch(uid imap.UID, section *imap.FetchItemBodySection) ([]byte, error) {
	fetchCmd := c.client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer func() {
		_ = fetchCmd.Close()
	}()

	msg := fetchCmd.Next()
	if msg == nil {
		// Server-side miss: the message vanished between search and fetch.
		return nil, nil
	}

	for {
		item := msg.Next()
		if item == nil {
			break
		}

		if body, ok := item.(imapclient.FetchItemDataBodySection); ok {
			raw, err := io.ReadAll(body.Literal)
			if err != nil {
				return nil, fmt.Errorf("read body section: %w", err)
			}
			return raw, nil
		}
	}

	return nil, nil
}

func (c *imapConn) Logout() error {
	return c.client.Logout().Wait()
}

// Session owns a single authenticated retrieval connection. The handle is
// never used before Connect succeeds, and Disconnect releases it on every
// exit path. One logical list/fetch operation opens and closes one session;
// there is no pooling.
type Session struct {
	cfg    config.Mailbox
	dial   Dialer
	conn   Conn
	logger *slog.Logger
}

func NewSession(cfg config.Mailbox, dial Dialer, logger *slog.Logger) *Session {
	return &Session{
		cfg:    cfg,
		dial:   dial,
		logger: logger,
	}
}

// Connect dials and authenticates. Dial failures wrap ErrConnection,
// credential rejections wrap ErrAuthentication.
func (s *Session) Connect() error {
	if s.conn != nil {
		return nil
	}

	conn, err := s.dial(s.cfg)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrConnection, s.cfg.Addr(), err)
	}

	if err = conn.Login(s.cfg.Address, s.cfg.Password); err != nil {
		_ = conn.Logout()
		return fmt.Errorf("%w: login as %s: %v", ErrAuthentication, s.cfg.Address, err)
	}

	s.conn = conn
	return nil
}

func (s *Session) Select(folder string) error {
	if s.conn == nil {
		return fmt.Errorf("%w: select on disconnected session", ErrProtocol)
	}
	if err := s.conn.Select(folder); err != nil {
		return fmt.Errorf("%w: select %q: %v", ErrProtocol, folder, err)
	}
	return nil
}

// SearchAll returns all message identifiers of the selected folder in
// ascending arrival order.
func (s *Session) SearchAll() ([]imap.UID, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("%w: search on disconnected session", ErrProtocol)
	}

	uids, err := s.conn.SearchAll()
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrProtocol, err)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// Fetch retrieves the raw bytes of one message, either the full body or a
// header-only subset. A nil result with nil error is a server-side miss;
// callers skip the message instead of aborting the batch. Transport-level
// failures wrap ErrProtocol; ErrFetch is reserved for missing messages.
func (s *Session) Fetch(uid imap.UID, headersOnly bool) ([]byte, error) {
	if s.conn == nil {
		return nil, fmt.Errorf("%w: fetch on disconnected session", ErrProtocol)
	}

	var raw []byte
	var err error
	if headersOnly {
		raw, err = s.conn.FetchHeaders(uid, summaryHeaderFields)
	} else {
		raw, err = s.conn.FetchFull(uid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetch uid %s: %v", ErrProtocol, FormatUID(uid), err)
	}

	return raw, nil
}

// Disconnect logs out best-effort. Safe to call multiple times and never
// raises past a prior failure.
func (s *Session) Disconnect() {
	if s.conn == nil {
		return
	}

	if err := s.conn.Logout(); err != nil {
		s.logger.Debug("logout failed", slog.Any("error", err))
	}
	s.conn = nil
}

// ParseUID normalizes a caller-provided message identifier once at the
// session boundary; everything below speaks imap.UID.
func ParseUID(raw string) (imap.UID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: invalid message identifier %q", ErrValidation, raw)
	}
	return imap.UID(n), nil
}

func FormatUID(uid imap.UID) string {
	return strconv.FormatUint(uint64(uid), 10)
}
