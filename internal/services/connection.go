package services

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/config"
)

const (
	probeTimeout = 10 * time.Second
)

// ConnectionTestResult is the outcome of a connection probe
type ConnectionTestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ProbeConnection checks that an account's IMAP server is reachable and
// accepts its credentials, without touching any mailbox state
func ProbeConnection(account config.Account) ConnectionTestResult {
	var conn net.Conn
	var err error

	dialer := &net.Dialer{
		Timeout: probeTimeout,
	}

	if account.TLS {
		tlsConfig := &tls.Config{
			InsecureSkipVerify: false,
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", account.Addr(), tlsConfig)
	} else {
		conn, err = dialer.Dial("tcp", account.Addr())
	}

	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to connect to IMAP server: %v", err),
		}
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(probeTimeout))

	// Read server greeting
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to read IMAP greeting: %v", err),
		}
	}

	greeting := string(buf[:n])
	if !strings.HasPrefix(greeting, "* OK") {
		return ConnectionTestResult{
			Success: false,
			Message: "Invalid IMAP server response",
		}
	}

	loginCmd := fmt.Sprintf("A001 LOGIN %s %s\r\n", account.User, account.Password)
	if _, err = conn.Write([]byte(loginCmd)); err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to send login command: %v", err),
		}
	}

	conn.SetReadDeadline(time.Now().Add(probeTimeout))
	n, err = conn.Read(buf)
	if err != nil {
		return ConnectionTestResult{
			Success: false,
			Message: fmt.Sprintf("Failed to read login response: %v", err),
		}
	}

	response := string(buf[:n])
	if strings.HasPrefix(response, "A001 OK") {
		conn.Write([]byte("A002 LOGOUT\r\n"))
		return ConnectionTestResult{
			Success: true,
			Message: "IMAP connection and authentication successful",
		}
	}

	return ConnectionTestResult{
		Success: false,
		Message: "IMAP authentication failed: " + response,
	}
}
