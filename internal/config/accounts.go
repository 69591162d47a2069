package config

import (
	"fmt"
	"os"
	"strconv"
)

// Auth types for mailbox sessions
const (
	AuthTypePassword = "password"
	AuthTypeXOAuth2  = "xoauth2"
)

// Account is the immutable configuration for one mailbox. The registry is
// loaded once at startup; exactly one connection manager binds to each entry.
type Account struct {
	ID       string `json:"id"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	TLS      bool   `json:"tls"`
	Label    string `json:"label"`
	AuthType string `json:"auth_type"` // "password" (default) or "xoauth2"
}

// Addr returns the host:port address for the account's IMAP server
func (a Account) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// accountsFromEnv reads numbered ONEBOX_ACCOUNT_n_* variable groups.
// Numbering starts at 1 and stops at the first missing HOST.
func accountsFromEnv() []Account {
	var accounts []Account
	for n := 1; ; n++ {
		prefix := fmt.Sprintf("ONEBOX_ACCOUNT_%d_", n)
		host := os.Getenv(prefix + "HOST")
		if host == "" {
			break
		}

		port := 993
		if val := os.Getenv(prefix + "PORT"); val != "" {
			if p, err := strconv.Atoi(val); err == nil {
				port = p
			}
		}

		label := os.Getenv(prefix + "LABEL")
		if label == "" {
			label = fmt.Sprintf("Account %d", n)
		}

		authType := os.Getenv(prefix + "AUTH")
		if authType == "" {
			authType = AuthTypePassword
		}

		accounts = append(accounts, Account{
			ID:       fmt.Sprintf("account%d", n),
			Host:     host,
			Port:     port,
			User:     os.Getenv(prefix + "USER"),
			Password: os.Getenv(prefix + "PASS"),
			TLS:      os.Getenv(prefix+"TLS") == "true",
			Label:    label,
			AuthType: authType,
		})
	}
	return accounts
}
