package testutil

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/cory-johannsen/proxsync/internal/frontend/telnet"
)

// TelnetClient is a line-oriented Telnet client for integration tests.
// Output is matched with ANSI styling removed.
type TelnetClient struct {
	conn    net.Conn
	reader  *bufio.Reader
	t       *testing.T
	pending string
}

// NewTelnetClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected TelnetClient or fails the test.
func NewTelnetClient(t *testing.T, addr string) *TelnetClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}
	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("telnet client connected to %s [%s]", addr, time.Since(start))
	return &TelnetClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
		t:      t,
	}
}

// ReadUntil reads until substr appears in the unstyled output and returns
// the output up to and including the match. Output after the match is kept
// for the next call.
//
// Precondition: substr must be non-empty.
// Postcondition: Returns the matched output, or fails the test on timeout.
func (c *TelnetClient) ReadUntil(substr string, timeout time.Duration) string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	buf := c.pending
	tmp := make([]byte, 1024)
	for {
		text := telnet.StripANSI(string(telnet.FilterIAC([]byte(buf))))
		if idx := strings.Index(text, substr); idx >= 0 {
			end := idx + len(substr)
			c.pending = text[end:]
			return text[:end]
		}
		n, err := c.reader.Read(tmp)
		if n > 0 {
			buf += string(tmp[:n])
		}
		if err != nil {
			c.t.Fatalf("reading until %q: got %q, error: %v", substr, telnet.StripANSI(buf), err)
		}
	}
}

// Send writes a line of text to the server, appending \r\n.
//
// Precondition: text should not contain trailing newline characters.
func (c *TelnetClient) Send(text string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(c.conn, "%s\r\n", text); err != nil {
		c.t.Fatalf("sending %q: %v", text, err)
	}
}

// Close closes the underlying connection.
func (c *TelnetClient) Close() {
	c.conn.Close()
}
