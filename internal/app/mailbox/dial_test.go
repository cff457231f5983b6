package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hickar/mailgate/internal/app/config"
)

// 192.0.2.1 is TEST-NET-1 and never routable, so connecting either times out
// or fails immediately with no route. Without the dial timeout the attempt
// would block for the OS connect default instead.
func TestDialTimeoutBoundsConnect(t *testing.T) {
	endpoint := func(implicitTLS bool) config.Mailbox {
		return config.Mailbox{
			Host:        "192.0.2.1",
			Port:        993,
			TLS:         implicitTLS,
			Address:     "user@example.com",
			Password:    "x",
			DialTimeout: 50 * time.Millisecond,
		}
	}

	tests := []struct {
		name string
		dial func() error
	}{
		{"imap_tls", func() error { _, err := DialIMAP(endpoint(true)); return err }},
		{"imap_starttls", func() error { _, err := DialIMAP(endpoint(false)); return err }},
		{"smtp_tls", func() error { _, err := DialSMTP(endpoint(true)); return err }},
		{"smtp_starttls", func() error { _, err := DialSMTP(endpoint(false)); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			err := tt.dial()
			assert.Error(t, err)
			assert.Less(t, time.Since(start), 5*time.Second)
		})
	}
}
