package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// RawMessage is one fetched mail: its UID plus the full RFC822 bytes.
type RawMessage struct {
	UID  imap.UID
	Data []byte
}

// Mailbox is the slice of IMAP the importer needs.
type Mailbox interface {
	FetchUnseen(ctx context.Context, max int, since time.Time) ([]RawMessage, error)
	MarkSeen(ctx context.Context, uids []imap.UID) error
	Close() error
}

// Dialer opens a logged-in Mailbox with the folder already selected.
type Dialer func(ctx context.Context) (Mailbox, error)

type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string
}

// Addr joins host and port, defaulting to the IMAPS port.
func (c IMAPConfig) Addr() string {
	if _, _, err := net.SplitHostPort(c.Host); err == nil {
		return c.Host
	}
	port := c.Port
	if port == 0 {
		port = 993
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

func (c IMAPConfig) folder() string {
	if strings.TrimSpace(c.Folder) == "" {
		return "INBOX"
	}
	return c.Folder
}

// IMAPDialer returns a Dialer that connects over TLS.
func IMAPDialer(cfg IMAPConfig) Dialer {
	return func(ctx context.Context) (Mailbox, error) {
		return DialIMAP(ctx, cfg)
	}
}

type imapMailbox struct {
	c    *imapclient.Client
	stop func() bool
}

// DialIMAP connects, logs in and selects the configured folder.
func DialIMAP(ctx context.Context, cfg IMAPConfig) (Mailbox, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("imap host is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("imap username/password is required")
	}

	host := cfg.Host
	if h, _, err := net.SplitHostPort(cfg.Host); err == nil {
		host = h
	}

	c, err := imapclient.DialTLS(cfg.Addr(), &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host},
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}

	// unblock pending commands if the caller gives up
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })

	if err := c.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		stop()
		_ = c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select(cfg.folder(), &imap.SelectOptions{ReadOnly: false}).Wait(); err != nil {
		stop()
		_ = c.Close()
		return nil, fmt.Errorf("imap select %q: %w", cfg.folder(), err)
	}

	return &imapMailbox{c: c, stop: stop}, nil
}

// FetchUnseen pulls up to max unseen messages newer than since, newest first.
// Bodies are fetched with BODY.PEEK[] so nothing is marked \Seen here.
func (m *imapMailbox) FetchUnseen(ctx context.Context, max int, since time.Time) ([]RawMessage, error) {
	if max <= 0 {
		max = 25
	}

	criteria := &imap.SearchCriteria{NotFlag: []imap.Flag{imap.FlagSeen}}
	if !since.IsZero() {
		criteria.Since = since
	}
	data, err := m.c.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("imap uid search unseen: %w", err)
	}

	uids := data.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}
	if len(uids) > max {
		uids = uids[:max]
	}

	section := &imap.FetchItemBodySection{Specifier: imap.PartSpecifierNone, Peek: true}
	cmd := m.c.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer func() { _ = cmd.Close() }()

	out := make([]RawMessage, 0, len(uids))
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg := cmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			return nil, fmt.Errorf("imap fetch collect: %w", err)
		}
		out = append(out, RawMessage{
			UID:  buf.UID,
			Data: append([]byte(nil), buf.FindBodySection(section)...),
		})
	}
	if err := cmd.Close(); err != nil {
		return nil, fmt.Errorf("imap fetch close: %w", err)
	}
	return out, nil
}

func (m *imapMailbox) MarkSeen(ctx context.Context, uids []imap.UID) error {
	if len(uids) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := m.c.Store(imap.UIDSetNum(uids...), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("imap store add seen: %w", err)
	}
	return nil
}

// Close logs out and drops the connection.
func (m *imapMailbox) Close() error {
	m.stop()
	if err := m.c.Logout().Wait(); err != nil {
		log.Printf("[mail] imap logout: %v", err)
	}
	return m.c.Close()
}
