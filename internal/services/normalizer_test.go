package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/config"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/database/models"
	"github.com/emersion/go-imap"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var normalizeTestAccount = config.Account{
	ID:   "account1",
	Host: "imap.example.com",
	Port: 993,
	User: "user@example.com",
}

func rawTestMessage(headers map[string]string, body string) []byte {
	var b strings.Builder
	for key, value := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", key, value)
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func TestNormalizeSimpleMessage(t *testing.T) {
	raw := rawTestMessage(map[string]string{
		"From":       "Alice <alice@example.com>",
		"To":         "bob@example.com",
		"Subject":    "Hello",
		"Date":       "Mon, 02 Jun 2025 10:00:00 +0000",
		"Message-Id": "<abc123@example.com>",
	}, "Plain text body")

	result := Normalize(normalizeTestAccount, RawMessage{UID: 42, Raw: raw})
	if result.Degraded {
		t.Fatalf("unexpected degraded result: %s", result.Reason)
	}

	email := result.Email
	if email.DocID != "account1_42" {
		t.Errorf("doc id = %q, want account1_42", email.DocID)
	}
	if email.MessageID != "<abc123@example.com>" {
		t.Errorf("message id = %q", email.MessageID)
	}
	if email.Subject != "Hello" {
		t.Errorf("subject = %q", email.Subject)
	}
	if email.FromAddr != "Alice <alice@example.com>" {
		t.Errorf("from = %q", email.FromAddr)
	}
	if email.Body != "Plain text body" {
		t.Errorf("body = %q", email.Body)
	}
	if !email.Date.UTC().Equal(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", email.Date)
	}

	var toAddrs []string
	json.Unmarshal([]byte(email.ToAddrs), &toAddrs)
	if len(toAddrs) != 1 || toAddrs[0] != "bob@example.com" {
		t.Errorf("to = %v", toAddrs)
	}
}

// Absent recipient headers must yield empty lists, not null
func TestNormalizeMissingRecipients(t *testing.T) {
	raw := rawTestMessage(map[string]string{
		"From":    "alice@example.com",
		"Subject": "No recipients",
	}, "body")

	result := Normalize(normalizeTestAccount, RawMessage{UID: 1, Raw: raw})
	email := result.Email

	if email.ToAddrs != "[]" {
		t.Errorf("to = %q, want []", email.ToAddrs)
	}
	if email.CcAddrs != "[]" {
		t.Errorf("cc = %q, want []", email.CcAddrs)
	}
	if email.Attachments != "[]" {
		t.Errorf("attachments = %q, want []", email.Attachments)
	}
}

// Multiple Cc recipients keep their original order
func TestNormalizeCcOrder(t *testing.T) {
	raw := rawTestMessage(map[string]string{
		"From":    "alice@example.com",
		"To":      "bob@example.com",
		"Cc":      "one@example.com, two@example.com, three@example.com",
		"Subject": "Cc order",
	}, "body")

	result := Normalize(normalizeTestAccount, RawMessage{UID: 2, Raw: raw})

	var ccAddrs []string
	json.Unmarshal([]byte(result.Email.CcAddrs), &ccAddrs)
	want := []string{"one@example.com", "two@example.com", "three@example.com"}
	if len(ccAddrs) != len(want) {
		t.Fatalf("cc = %v, want %v", ccAddrs, want)
	}
	for i := range want {
		if ccAddrs[i] != want[i] {
			t.Errorf("cc[%d] = %q, want %q", i, ccAddrs[i], want[i])
		}
	}
}

func TestNormalizeMultipartWithAttachment(t *testing.T) {
	raw := []byte("From: alice@example.com\r\n" +
		"To: bob@example.com\r\n" +
		"Subject: Multipart\r\n" +
		"Message-Id: <multi@example.com>\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"frontier\"\r\n" +
		"\r\n" +
		"--frontier\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"The plain part\r\n" +
		"--frontier\r\n" +
		"Content-Type: text/html\r\n" +
		"\r\n" +
		"<p>The html part</p>\r\n" +
		"--frontier\r\n" +
		"Content-Type: application/pdf; name=\"report.pdf\"\r\n" +
		"Content-Disposition: attachment; filename=\"report.pdf\"\r\n" +
		"\r\n" +
		"%PDF-1.4 fake content\r\n" +
		"--frontier--\r\n")

	result := Normalize(normalizeTestAccount, RawMessage{UID: 3, Raw: raw})
	if result.Degraded {
		t.Fatalf("unexpected degraded result: %s", result.Reason)
	}

	email := result.Email
	if !strings.Contains(email.Body, "The plain part") {
		t.Errorf("body = %q", email.Body)
	}
	if !strings.Contains(email.HTMLBody, "The html part") {
		t.Errorf("html body = %q", email.HTMLBody)
	}

	var attachments []models.AttachmentMeta
	json.Unmarshal([]byte(email.Attachments), &attachments)
	if len(attachments) != 1 {
		t.Fatalf("attachments = %v, want 1", attachments)
	}
	if attachments[0].Filename != "report.pdf" {
		t.Errorf("filename = %q", attachments[0].Filename)
	}
	if attachments[0].ContentType != "application/pdf" {
		t.Errorf("content type = %q", attachments[0].ContentType)
	}
	if attachments[0].Size == 0 {
		t.Error("expected non-zero attachment size")
	}
}

// Unparseable bytes degrade to an envelope-only record instead of failing
func TestNormalizeGarbageFallsBackToEnvelope(t *testing.T) {
	env := &imap.Envelope{
		Subject:   "From the envelope",
		MessageId: "<env@example.com>",
		Date:      time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
		From: []*imap.Address{
			{PersonalName: "Carol", MailboxName: "carol", HostName: "example.com"},
		},
		To: []*imap.Address{
			{MailboxName: "dave", HostName: "example.com"},
		},
	}

	result := Normalize(normalizeTestAccount, RawMessage{UID: 4, Raw: []byte("\x00\x01garbage"), Envelope: env})
	if !result.Degraded {
		t.Fatal("expected degraded result")
	}

	email := result.Email
	if email.Subject != "From the envelope" {
		t.Errorf("subject = %q", email.Subject)
	}
	if email.MessageID != "<env@example.com>" {
		t.Errorf("message id = %q", email.MessageID)
	}
	if email.FromAddr != "Carol <carol@example.com>" {
		t.Errorf("from = %q", email.FromAddr)
	}

	var toAddrs []string
	json.Unmarshal([]byte(email.ToAddrs), &toAddrs)
	if len(toAddrs) != 1 || toAddrs[0] != "dave@example.com" {
		t.Errorf("to = %v", toAddrs)
	}
}

// A message with no Message-Id header gets a synthesized one; the derived
// document id stays deterministic regardless
func TestNormalizeSynthesizesMessageID(t *testing.T) {
	raw := rawTestMessage(map[string]string{
		"From":    "alice@example.com",
		"Subject": "No message id",
	}, "body")

	result := Normalize(normalizeTestAccount, RawMessage{UID: 5, Raw: raw})
	email := result.Email

	if email.MessageID == "" {
		t.Fatal("expected synthesized message id")
	}
	if !strings.HasPrefix(email.MessageID, "account1_5_") {
		t.Errorf("message id = %q, want account1_5_<ts> prefix", email.MessageID)
	}
	if email.DocID != "account1_5" {
		t.Errorf("doc id = %q", email.DocID)
	}
}

// Property: the derived document id depends only on account id and UID, so
// refetching the same server message always maps to the same document
func TestProperty_DocIDDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	accountGen := gen.SliceOfN(8, gen.AlphaLowerChar()).Map(func(chars []rune) string {
		return string(chars)
	})

	properties.Property("doc_id_depends_only_on_account_and_uid", prop.ForAll(
		func(accountID string, uid uint32, subject string) bool {
			account := config.Account{ID: accountID, Host: "imap.example.com", Port: 993}
			raw := rawTestMessage(map[string]string{
				"From":    "a@example.com",
				"Subject": subject,
			}, "body one")
			rawOther := rawTestMessage(map[string]string{
				"From":    "b@example.com",
				"Subject": subject + " refetched",
			}, "body two")

			first := Normalize(account, RawMessage{UID: uid, Raw: raw})
			second := Normalize(account, RawMessage{UID: uid, Raw: rawOther})

			want := fmt.Sprintf("%s_%d", accountID, uid)
			return first.Email.DocID == want && second.Email.DocID == want
		},
		accountGen,
		gen.UInt32Range(1, 1000000),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
