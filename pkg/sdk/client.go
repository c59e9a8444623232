// Package sdk provides the client-side library for the Vitalis Store.
// It supports both remote connections via TCP/TLS and local embedded mode.
package sdk

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitalis-dev/vitalis-store/internal/server"
	"github.com/vitalis-dev/vitalis-store/pkg/engine"
)

const (
	maxAttempts = 3
	opTimeout   = 30 * time.Second
)

// RemoteError is an ERR reply from the daemon. It is never retried.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "remote: " + e.Message }

// Client is a remote client for the Vitalis Store daemon.
// It implements engine.EntityStore.
type Client struct {
	addr    string
	useTLS  bool
	logger  *zap.Logger
	conn    net.Conn
	reader  *bufio.Reader
	mu      sync.Mutex // Protects concurrent access to the connection
	backoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTLS overrides the VITALIS_DISABLE_TLS environment default.
func WithTLS(enabled bool) ClientOption {
	return func(c *Client) { c.useTLS = enabled }
}

// WithClientLogger sets the logger used for retry warnings.
func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Connect establishes a connection to a remote daemon. TLS is used unless
// VITALIS_DISABLE_TLS is "true" or WithTLS(false) is given.
func Connect(addr string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		addr:    addr,
		useTLS:  os.Getenv("VITALIS_DISABLE_TLS") != "true",
		logger:  zap.NewNop(),
		backoff: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	var conn net.Conn
	var err error
	if c.useTLS {
		config := &tls.Config{
			InsecureSkipVerify: true, // The daemon uses a self-signed certificate
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, config)
	} else {
		conn, err = dialer.Dial("tcp", c.addr)
	}
	if err != nil {
		return err
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// roundTrip sends one command line and returns the reply payload after "OK".
// Transport failures are retried with a fresh connection.
func (c *Client) roundTrip(cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for i := 0; i < maxAttempts; i++ {
		if c.conn == nil {
			if reconnectErr := c.reconnect(); reconnectErr != nil {
				err = fmt.Errorf("reconnect failed: %w", reconnectErr)
				time.Sleep(time.Duration(i) * c.backoff)
				continue
			}
		}

		c.conn.SetDeadline(time.Now().Add(opTimeout))

		var resp string
		if _, err = fmt.Fprint(c.conn, cmd+"\n"); err == nil {
			resp, err = c.reader.ReadString('\n')
			if err == nil {
				resp = strings.TrimSpace(resp)
				switch {
				case strings.HasPrefix(resp, "ERR"):
					return "", &RemoteError{Message: strings.TrimSpace(strings.TrimPrefix(resp, "ERR"))}
				case resp == "OK", resp == "PONG":
					return "", nil
				case strings.HasPrefix(resp, "OK "):
					return resp[3:], nil
				default:
					return "", fmt.Errorf("unexpected reply %q", resp)
				}
			}
		}

		c.logger.Warn("store request failed, reconnecting", zap.Int("attempt", i+1), zap.Error(err))
		if closeErr := c.reconnect(); closeErr != nil {
			c.logger.Warn("reconnect attempt failed", zap.Error(closeErr))
			c.conn = nil
		}
		time.Sleep(time.Duration(i+1) * c.backoff)
	}

	return "", fmt.Errorf("failed after %d attempts: %w", maxAttempts, err)
}

func (c *Client) call(out any, format string, args ...any) error {
	payload, err := c.roundTrip(fmt.Sprintf(format, args...))
	if err != nil {
		return err
	}
	if out == nil || payload == "" {
		return nil
	}
	return json.Unmarshal([]byte(payload), out)
}

func escape(entityType string) string {
	return server.EncodeEntityType(entityType)
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Ping checks the daemon is reachable.
func (c *Client) Ping() error {
	_, err := c.roundTrip("PING")
	return err
}

func (c *Client) List(entityType string, opts engine.ListOptions) ([]engine.Record, error) {
	cmd := "LIST " + escape(entityType)
	if opts != (engine.ListOptions{}) {
		o, err := encode(opts)
		if err != nil {
			return nil, err
		}
		cmd += " " + o
	}
	records := []engine.Record{}
	if err := c.call(&records, "%s", cmd); err != nil {
		return nil, err
	}
	if records == nil {
		records = []engine.Record{}
	}
	return records, nil
}

func (c *Client) Get(entityType, id string) (engine.Record, error) {
	if !validID(id) {
		return nil, nil
	}
	var rec engine.Record
	if err := c.call(&rec, "GET %s %s", escape(entityType), id); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) Create(entityType string, data engine.Record) (engine.Record, error) {
	if data == nil {
		data = engine.Record{}
	}
	payload, err := encode(data)
	if err != nil {
		return nil, err
	}
	var rec engine.Record
	if err := c.call(&rec, "CREATE %s %s", escape(entityType), payload); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) Update(entityType, id string, data engine.Record) (engine.Record, error) {
	if !validID(id) {
		return nil, nil
	}
	if data == nil {
		data = engine.Record{}
	}
	payload, err := encode(data)
	if err != nil {
		return nil, err
	}
	var rec engine.Record
	if err := c.call(&rec, "UPDATE %s %s %s", escape(entityType), id, payload); err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *Client) Delete(entityType, id string) error {
	if !validID(id) {
		return nil
	}
	return c.call(nil, "DEL %s %s", escape(entityType), id)
}

func (c *Client) EntityTypes() ([]string, error) {
	var list []string
	if err := c.call(&list, "TYPES"); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) Import(entityType string, records []engine.Record) error {
	if records == nil {
		records = []engine.Record{}
	}
	payload, err := encode(records)
	if err != nil {
		return err
	}
	return c.call(nil, "IMPORT %s %s", escape(entityType), payload)
}

// For returns the Collection facade for entityType.
func (c *Client) For(entityType string) engine.Collection {
	return engine.Bind(c, entityType)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, "QUIT")
	err := c.conn.Close()
	c.conn = nil
	return err
}

// validID reports whether id can travel as a single protocol token. Other ids
// are never generated by the store, so they are treated as absent.
func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, " \t\r\n")
}
