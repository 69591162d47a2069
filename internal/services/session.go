package services

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	id "github.com/emersion/go-imap-id"
	_ "github.com/emersion/go-message/charset"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/config"
)

var (
	// ErrIMAPConnectionFailed indicates IMAP connection failed
	ErrIMAPConnectionFailed = errors.New("IMAP connection failed")
	// ErrIMAPAuthFailed indicates IMAP authentication failed
	ErrIMAPAuthFailed = errors.New("IMAP authentication failed")
)

// RawMessage is one fully fetched server message: envelope, raw source bytes,
// flags and the server-assigned UID.
type RawMessage struct {
	UID      uint32
	Envelope *imap.Envelope
	Flags    []string
	Raw      []byte
}

// MailSession is the subset of an IMAP session the ingestion core needs:
// INBOX sync, search-by-date, unseen detection and change notifications.
type MailSession interface {
	// Login authenticates the already-connected session
	Login() error
	// SelectInbox opens INBOX and returns the total message count
	SelectInbox() (uint32, error)
	// SearchSince returns sequence numbers of messages dated at or after since
	SearchSince(since time.Time) ([]uint32, error)
	// SearchUnseen returns sequence numbers of messages without \Seen
	SearchUnseen() ([]uint32, error)
	// Fetch retrieves envelope + source + uid for the given sequence numbers.
	// Partial results are returned alongside a fetch error.
	Fetch(seqNums []uint32) ([]RawMessage, error)
	// Idle blocks until stop is closed, an update arrives, or the session dies
	Idle(stop <-chan struct{}) error
	// Updates signals mailbox changes; coalesced, never blocks the producer
	Updates() <-chan struct{}
	// Logout closes the session
	Logout() error
}

// SessionFactory opens an unauthenticated session for an account
type SessionFactory func(account config.Account) (MailSession, error)

const (
	sessionDialTimeout    = 10 * time.Second
	sessionCommandTimeout = 5 * time.Minute
	fetchBatchSize        = 10
)

// imapSession wraps a go-imap client as a MailSession
type imapSession struct {
	account config.Account
	client  *client.Client
	updates chan struct{}
}

// DialIMAP connects (without authenticating) to the account's IMAP server
func DialIMAP(account config.Account) (MailSession, error) {
	addr := account.Addr()
	dialer := &net.Dialer{Timeout: sessionDialTimeout}

	var c *client.Client
	if account.TLS {
		tlsConfig := &tls.Config{ServerName: account.Host}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIMAPConnectionFailed, err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrIMAPConnectionFailed, err)
		}
	} else {
		conn, err := dialer.Dial("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIMAPConnectionFailed, err)
		}
		c, err = client.New(conn)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: %v", ErrIMAPConnectionFailed, err)
		}
	}

	// 命令超时，避免死连接卡住整个账户
	c.Timeout = sessionCommandTimeout

	return &imapSession{
		account: account,
		client:  c,
		updates: make(chan struct{}, 1),
	}, nil
}

// Login authenticates the session. Sends the IMAP ID command first for
// servers that require client identification (e.g. 163.com, 188.com).
func (s *imapSession) Login() error {
	if ok, _ := s.client.Support("ID"); ok {
		idClient := id.NewClient(s.client)
		_, err := idClient.ID(id.ID{
			id.FieldName:    "OneBox",
			id.FieldVersion: "1.0.0",
			id.FieldVendor:  "OneBox",
		})
		if err != nil {
			// Some servers advertise ID but reject it; login anyway
		}
	}

	if s.account.AuthType == config.AuthTypeXOAuth2 {
		saslClient := NewXOAuth2Client(s.account.User, s.account.Password)
		if err := s.client.Authenticate(saslClient); err != nil {
			return fmt.Errorf("%w: XOAUTH2: %v", ErrIMAPAuthFailed, err)
		}
	} else {
		if err := s.client.Login(s.account.User, s.account.Password); err != nil {
			return fmt.Errorf("%w: %v", ErrIMAPAuthFailed, err)
		}
	}

	// Route unsolicited mailbox updates into the coalescing signal channel
	raw := make(chan client.Update, 16)
	s.client.Updates = raw
	go s.translateUpdates(raw)

	return nil
}

// translateUpdates turns go-imap update structs into coalesced change signals
func (s *imapSession) translateUpdates(raw <-chan client.Update) {
	for {
		select {
		case upd := <-raw:
			if _, ok := upd.(*client.MailboxUpdate); ok {
				// 1 缓冲：重复信号合并，但待处理信号绝不丢失
				select {
				case s.updates <- struct{}{}:
				default:
				}
			}
		case <-s.client.LoggedOut():
			return
		}
	}
}

// SelectInbox opens INBOX and returns the total message count
func (s *imapSession) SelectInbox() (uint32, error) {
	mbox, err := s.client.Select("INBOX", false)
	if err != nil {
		return 0, fmt.Errorf("failed to select INBOX: %w", err)
	}
	return mbox.Messages, nil
}

// SearchSince searches INBOX for messages dated at or after since
func (s *imapSession) SearchSince(since time.Time) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	// IMAP SINCE 只比较日期，取当天零点（UTC）
	criteria.Since = time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, time.UTC)
	return s.client.Search(criteria)
}

// SearchUnseen searches INBOX for messages without the \Seen flag
func (s *imapSession) SearchUnseen() ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	return s.client.Search(criteria)
}

// Fetch retrieves envelope, flags, uid and raw source for the given sequence
// numbers in small batches. A failing batch does not abort the others; the
// last batch error is returned alongside whatever was fetched.
func (s *imapSession) Fetch(seqNums []uint32) ([]RawMessage, error) {
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchFlags, section.FetchItem()}

	var fetched []RawMessage
	var lastErr error

	for i := 0; i < len(seqNums); i += fetchBatchSize {
		batchEnd := i + fetchBatchSize
		if batchEnd > len(seqNums) {
			batchEnd = len(seqNums)
		}
		batch := seqNums[i:batchEnd]

		seqSet := new(imap.SeqSet)
		seqSet.AddNum(batch...)

		messages := make(chan *imap.Message, fetchBatchSize)
		done := make(chan error, 1)

		go func() {
			done <- s.client.Fetch(seqSet, items, messages)
		}()

		for msg := range messages {
			if msg == nil {
				continue
			}
			raw := RawMessage{
				UID:      msg.Uid,
				Envelope: msg.Envelope,
				Flags:    msg.Flags,
			}
			for _, literal := range msg.Body {
				content, err := io.ReadAll(literal)
				if err == nil && len(content) > 0 {
					raw.Raw = content
				}
			}
			fetched = append(fetched, raw)
		}

		if err := <-done; err != nil {
			lastErr = err
		}
	}

	return fetched, lastErr
}

// Idle blocks until stop is closed, an update arrives or the session fails.
// go-imap falls back to polling when the server lacks IDLE.
func (s *imapSession) Idle(stop <-chan struct{}) error {
	return s.client.Idle(stop, nil)
}

// Updates returns the coalesced mailbox change signal channel
func (s *imapSession) Updates() <-chan struct{} {
	return s.updates
}

// Logout closes the session
func (s *imapSession) Logout() error {
	return s.client.Logout()
}

// XOAuth2Client implements the SASL XOAUTH2 mechanism
type XOAuth2Client struct {
	Username    string
	AccessToken string
}

// NewXOAuth2Client creates a new XOAUTH2 SASL client
func NewXOAuth2Client(username, accessToken string) *XOAuth2Client {
	return &XOAuth2Client{
		Username:    username,
		AccessToken: accessToken,
	}
}

// Start begins the XOAUTH2 authentication
func (c *XOAuth2Client) Start() (mech string, ir []byte, err error) {
	// XOAUTH2 initial response format: "user=" + user + "\x01auth=Bearer " + token + "\x01\x01"
	ir = []byte(fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", c.Username, c.AccessToken))
	return "XOAUTH2", ir, nil
}

// Next handles server challenges (XOAUTH2 doesn't have additional challenges)
func (c *XOAuth2Client) Next(challenge []byte) (response []byte, err error) {
	return nil, nil
}
