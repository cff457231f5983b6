package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawMessage(subject string) []byte {
	return []byte("Subject: " + subject + "\r\n" +
		"From: sender@example.com\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"body of " + subject + "\r\n")
}

func rawMessageWithAttachment(subject, filename string, payload []byte) []byte {
	var b strings.Builder
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("From: sender@example.com\r\n")
	b.WriteString("Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"sep\"\r\n")
	b.WriteString("\r\n")
	b.WriteString("--sep\r\n")
	b.WriteString("Content-Type: text/plain\r\n")
	b.WriteString("\r\n")
	b.WriteString("see attached\r\n")
	b.WriteString("--sep\r\n")
	b.WriteString("Content-Type: application/pdf\r\n")
	b.WriteString("Content-Disposition: attachment; filename=\"" + filename + "\"\r\n")
	b.WriteString("Content-Transfer-Encoding: base64\r\n")
	b.WriteString("\r\n")
	b.WriteString(base64.StdEncoding.EncodeToString(payload))
	b.WriteString("\r\n--sep--\r\n")
	return []byte(b.String())
}

func inboxConn(messages map[imap.UID][]byte) *mockConn {
	uids := make([]imap.UID, 0, len(messages))
	for uid := range messages {
		uids = append(uids, uid)
	}
	return &mockConn{uids: uids, messages: messages}
}

func TestListSummariesSkipsMalformed(t *testing.T) {
	conn := inboxConn(map[imap.UID][]byte{
		1: rawMessage("first"),
		2: rawMessage("second"),
		3: []byte("no colon means no header"),
		4: rawMessage("fourth"),
		5: rawMessage("fifth"),
	})
	lister := NewLister(testEndpoint, mockDialer(conn, nil), discardLogger())

	summaries, err := lister.ListSummaries(context.Background(), "INBOX", 10, false)
	require.NoError(t, err)
	require.Len(t, summaries, 4)

	// The malformed message is dropped, order stays ascending.
	assert.Equal(t, "1", summaries[0].ID)
	assert.Equal(t, "2", summaries[1].ID)
	assert.Equal(t, "4", summaries[2].ID)
	assert.Equal(t, "5", summaries[3].ID)
	assert.Equal(t, "first", summaries[0].Subject)

	assert.Equal(t, 1, conn.logins)
	assert.Equal(t, 1, conn.logouts)
}

func TestListSummariesLimit(t *testing.T) {
	messages := make(map[imap.UID][]byte, 10)
	for i := 1; i <= 10; i++ {
		messages[imap.UID(i)] = rawMessage(fmt.Sprintf("msg %d", i))
	}
	lister := NewLister(testEndpoint, mockDialer(inboxConn(messages), nil), discardLogger())

	summaries, err := lister.ListSummaries(context.Background(), "INBOX", 3, false)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "8", summaries[0].ID)
	assert.Equal(t, "9", summaries[1].ID)
	assert.Equal(t, "10", summaries[2].ID)
}

func TestListSummariesNonPositiveLimit(t *testing.T) {
	conn := inboxConn(map[imap.UID][]byte{
		1: rawMessage("first"),
		2: rawMessage("second"),
	})
	lister := NewLister(testEndpoint, mockDialer(conn, nil), discardLogger())

	for i, limit := range []int{0, -1} {
		t.Run(fmt.Sprintf("Case_%d", i), func(t *testing.T) {
			summaries, err := lister.ListSummaries(context.Background(), "INBOX", limit, false)
			require.NoError(t, err)
			assert.Empty(t, summaries)
		})
	}
	assert.Zero(t, conn.fetchCalls)
}

func TestListSummariesConnectFailure(t *testing.T) {
	lister := NewLister(testEndpoint, mockDialer(nil, fmt.Errorf("connection refused")), discardLogger())

	_, err := lister.ListSummaries(context.Background(), "INBOX", 10, false)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestListSummariesCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := inboxConn(map[imap.UID][]byte{1: rawMessage("first")})
	lister := NewLister(testEndpoint, mockDialer(conn, nil), discardLogger())

	_, err := lister.ListSummaries(ctx, "INBOX", 10, false)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, conn.logins)
}

func TestStreamSummaries(t *testing.T) {
	conn := inboxConn(map[imap.UID][]byte{
		1: rawMessage("first"),
		2: rawMessage("second"),
		3: rawMessage("third"),
	})
	lister := NewLister(testEndpoint, mockDialer(conn, nil), discardLogger())

	var ids []string
	for event := range lister.StreamSummaries(context.Background(), "INBOX", 10, true) {
		require.NoError(t, event.Err)
		ids = append(ids, event.Summary.ID)
	}

	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Equal(t, 1, conn.logouts)
}

func TestStreamSummariesConnectFailure(t *testing.T) {
	lister := NewLister(testEndpoint, mockDialer(nil, fmt.Errorf("connection refused")), discardLogger())

	var events []SummaryEvent
	for event := range lister.StreamSummaries(context.Background(), "INBOX", 10, true) {
		events = append(events, event)
	}

	// A connection-level failure is a single terminal error event.
	require.Len(t, events, 1)
	assert.ErrorIs(t, events[0].Err, ErrConnection)
}

func TestStreamSummariesCancel(t *testing.T) {
	messages := make(map[imap.UID][]byte, 50)
	for i := 1; i <= 50; i++ {
		messages[imap.UID(i)] = rawMessage(fmt.Sprintf("msg %d", i))
	}
	conn := inboxConn(messages)
	lister := NewLister(testEndpoint, mockDialer(conn, nil), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stream := lister.StreamSummaries(ctx, "INBOX", 50, true)

	first, ok := <-stream
	require.True(t, ok)
	require.NoError(t, first.Err)
	cancel()

	var rest int
	for range stream {
		rest++
	}
	assert.Less(t, rest, 49)
	assert.Equal(t, 1, conn.logouts)
}

func TestListAttachments(t *testing.T) {
	payload := make([]byte, 2048)
	conn := inboxConn(map[imap.UID][]byte{
		5: rawMessageWithAttachment("with file", "report.pdf", payload),
	})
	lister := NewLister(testEndpoint, mockDialer(conn, nil), discardLogger())

	infos, err := lister.ListAttachments(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "report.pdf", infos[0].Filename)
	assert.Equal(t, "application/pdf", infos[0].MIMEType)
	assert.Equal(t, 2.0, infos[0].SizeKB)
}

func TestListAttachmentsMessageNotFound(t *testing.T) {
	lister := NewLister(testEndpoint, mockDialer(inboxConn(nil), nil), discardLogger())

	_, err := lister.ListAttachments(context.Background(), 99)
	assert.ErrorIs(t, err, ErrFetch)
}

func TestGetMessageTransportFailure(t *testing.T) {
	conn := inboxConn(map[imap.UID][]byte{7: rawMessage("hello")})
	conn.fetchErr = map[imap.UID]error{7: fmt.Errorf("connection reset")}
	lister := NewLister(testEndpoint, mockDialer(conn, nil), discardLogger())

	// A transport failure is a protocol error, not a missing message.
	_, err := lister.GetMessage(context.Background(), 7)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.NotErrorIs(t, err, ErrFetch)
}

func TestGetMessage(t *testing.T) {
	conn := inboxConn(map[imap.UID][]byte{7: rawMessage("hello")})
	lister := NewLister(testEndpoint, mockDialer(conn, nil), discardLogger())

	msg, err := lister.GetMessage(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "7", msg.ID)
	assert.Equal(t, "hello", msg.Subject)
	assert.Contains(t, msg.TextBody, "body of hello")
	assert.Equal(t, 1, conn.logouts)
}
