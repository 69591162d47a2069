package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/config"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/database/models"
)

// NormalizeResult is the outcome of normalizing one raw fetch result. Email is
// always non-nil: malformed input degrades to a best-effort record with
// empty/default fields instead of failing, because a partial record is worth
// more than a dropped message. Degraded marks that path explicitly so tests
// and callers can observe it.
type NormalizeResult struct {
	Email    *models.Email
	Degraded bool
	Reason   string
}

// Normalize converts a raw fetch result into the canonical Email entity.
// Pure transformation, no I/O. The derived document id is
// "<accountID>_<uid>", so refetching the same server message always yields
// the same id.
func Normalize(account config.Account, msg RawMessage) NormalizeResult {
	email := &models.Email{
		DocID:     fmt.Sprintf("%s_%d", account.ID, msg.UID),
		AccountID: account.ID,
		Folder:    "INBOX",
		UID:       msg.UID,
		IndexedAt: time.Now(),
	}
	email.Flags = marshalStrings(msg.Flags)

	result := NormalizeResult{Email: email}

	var toAddrs, ccAddrs, bccAddrs []string
	var attachments []models.AttachmentMeta

	parsed := false
	if len(msg.Raw) > 0 {
		entity, err := message.Read(bytes.NewReader(msg.Raw))
		if err != nil && !message.IsUnknownCharset(err) {
			entity = nil
		}
		if entity != nil {
			parsed = true
			email.Subject = decodeHeader(entity.Header.Get("Subject"))
			email.MessageID = messageIDHeader(entity.Header.Get("Message-Id"), entity.Header.Get("Message-ID"))
			email.FromAddr = strings.Join(parseAddressList(entity.Header.Get("From")), ", ")
			toAddrs = parseAddressList(entity.Header.Get("To"))
			ccAddrs = parseAddressList(entity.Header.Get("Cc"))
			bccAddrs = parseAddressList(entity.Header.Get("Bcc"))
			if date, err := mail.ParseDate(entity.Header.Get("Date")); err == nil {
				email.Date = date
			}
			walkEntity(entity, email, &attachments)
		} else {
			// 整体 MIME 解析失败，退回纯 RFC 5322 解析
			m, merr := mail.ReadMessage(bytes.NewReader(msg.Raw))
			if merr == nil {
				parsed = true
				result.Degraded = true
				result.Reason = "mime parse failed, fell back to plain message"
				email.Subject = decodeHeader(m.Header.Get("Subject"))
				email.MessageID = messageIDHeader(m.Header.Get("Message-Id"), m.Header.Get("Message-ID"))
				email.FromAddr = strings.Join(parseAddressList(m.Header.Get("From")), ", ")
				toAddrs = parseAddressList(m.Header.Get("To"))
				ccAddrs = parseAddressList(m.Header.Get("Cc"))
				bccAddrs = parseAddressList(m.Header.Get("Bcc"))
				if date, err := m.Header.Date(); err == nil {
					email.Date = date
				}
				body, _ := io.ReadAll(m.Body)
				email.Body = string(body)
			}
		}
	}

	if !parsed {
		result.Degraded = true
		result.Reason = "unparseable message, envelope only"
	}

	// Fill gaps from the envelope
	if env := msg.Envelope; env != nil {
		if email.Subject == "" {
			email.Subject = env.Subject
		}
		if email.MessageID == "" {
			email.MessageID = strings.TrimSpace(env.MessageId)
		}
		if email.FromAddr == "" && len(env.From) > 0 {
			email.FromAddr = formatAddress(env.From[0])
		}
		if len(toAddrs) == 0 {
			for _, addr := range env.To {
				toAddrs = append(toAddrs, formatAddress(addr))
			}
		}
		if len(ccAddrs) == 0 {
			for _, addr := range env.Cc {
				ccAddrs = append(ccAddrs, formatAddress(addr))
			}
		}
		if email.Date.IsZero() {
			email.Date = env.Date
		}
	}

	if email.Date.IsZero() {
		email.Date = time.Now()
	}

	// 没有 Message-Id 头时合成一个，派生 id 仍保证同一封邮件去重
	if email.MessageID == "" {
		email.MessageID = fmt.Sprintf("%s_%d_%d", account.ID, msg.UID, time.Now().UnixNano())
	}

	email.ToAddrs = marshalStrings(toAddrs)
	email.CcAddrs = marshalStrings(ccAddrs)
	email.BccAddrs = marshalStrings(bccAddrs)

	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil || attachments == nil {
		attachmentsJSON = []byte("[]")
	}
	email.Attachments = string(attachmentsJSON)

	return result
}

// walkEntity recursively walks a message entity collecting text bodies and
// attachment metadata (no attachment bytes are retained)
func walkEntity(entity *message.Entity, email *models.Email, attachments *[]models.AttachmentMeta) {
	mediaType, params, _ := entity.Header.ContentType()

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := entity.MultipartReader()
		if mr == nil {
			return
		}
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			walkEntity(part, email, attachments)
		}
		return
	}

	disposition := entity.Header.Get("Content-Disposition")
	isAttachment := false
	var filename string

	if disposition != "" {
		dispType, dispParams, err := mime.ParseMediaType(disposition)
		if err == nil {
			// attachment 或 inline 带文件名都视为附件
			if dispType == "attachment" || (dispType == "inline" && dispParams["filename"] != "") {
				isAttachment = true
				filename = dispParams["filename"]
			}
		}
	}

	if !isAttachment {
		if mediaType == "text/plain" && email.Body == "" {
			body, _ := io.ReadAll(entity.Body)
			email.Body = string(body)
			return
		}
		if mediaType == "text/html" && email.HTMLBody == "" {
			body, _ := io.ReadAll(entity.Body)
			email.HTMLBody = string(body)
			return
		}
	}

	// Content-Type 带 name 参数的也视为附件
	if params["name"] != "" {
		isAttachment = true
		if filename == "" {
			filename = params["name"]
		}
	}

	// 非文本类型且有内容的也可能是附件（如图片等）
	if !isAttachment && !strings.HasPrefix(mediaType, "text/") && mediaType != "" {
		isAttachment = true
	}

	if !isAttachment {
		return
	}

	content, _ := io.ReadAll(entity.Body)
	if len(content) == 0 {
		return
	}

	filename = decodeHeader(filename)
	if filename == "" {
		filename = "unknown"
	}

	cid := strings.Trim(strings.TrimSpace(entity.Header.Get("Content-Id")), "<>")

	*attachments = append(*attachments, models.AttachmentMeta{
		Filename:    filename,
		ContentType: mediaType,
		Size:        len(content),
		CID:         cid,
	})
}

// parseAddressList flattens an address header into one string per address.
// Absent header yields an empty list; malformed entries degrade to best-effort
// comma-split strings rather than failing.
func parseAddressList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	addrs, err := mail.ParseAddressList(value)
	if err == nil {
		out := make([]string, 0, len(addrs))
		for _, a := range addrs {
			if a.Name != "" {
				out = append(out, fmt.Sprintf("%s <%s>", a.Name, a.Address))
			} else {
				out = append(out, a.Address)
			}
		}
		return out
	}

	// Best-effort extraction from malformed headers
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(decodeHeader(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// formatAddress formats an IMAP envelope address to a string
func formatAddress(addr *imap.Address) string {
	if addr == nil {
		return ""
	}
	if addr.PersonalName != "" {
		return fmt.Sprintf("%s <%s@%s>", addr.PersonalName, addr.MailboxName, addr.HostName)
	}
	return fmt.Sprintf("%s@%s", addr.MailboxName, addr.HostName)
}

// decodeHeader decodes MIME encoded-words (e.g. =?utf-8?B?...?=)
func decodeHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	dec := new(mime.WordDecoder)
	if decoded, err := dec.DecodeHeader(value); err == nil {
		return decoded
	}
	return value
}

// messageIDHeader returns the first non-empty Message-Id variant, trimmed
func messageIDHeader(variants ...string) string {
	for _, v := range variants {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// marshalStrings encodes a string slice as a JSON array, never null
func marshalStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}
