// Package server exposes an engine.EntityStore over a line-oriented TCP protocol.
//
// Each request is one line; each reply is one line, either "OK [json]" or
// "ERR <message>". Entity type names travel as "@" followed by the
// path-escaped name, so the token is never empty and never contains spaces.
// JSON payloads run to the end of the line.
//
//	PING                        -> PONG
//	TYPES                       -> OK ["Patient",...]
//	LIST <type> [options-json]  -> OK [records]
//	GET <type> <id>             -> OK record | OK null
//	CREATE <type> <json>        -> OK record
//	UPDATE <type> <id> <json>   -> OK record | OK null
//	DEL <type> <id>             -> OK
//	IMPORT <type> <json-array>  -> OK
//	QUIT
package server

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitalis-dev/vitalis-store/pkg/engine"
)

const (
	maxConnections = 100
	readTimeout    = 30 * time.Second
	maxLineBytes   = 16 << 20
)

type Router struct {
	store  engine.EntityStore
	cert   *tls.Certificate
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopped  bool
	wg       sync.WaitGroup
}

func NewRouter(s engine.EntityStore, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{store: s, logger: logger, conns: make(map[net.Conn]struct{})}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Listen starts the TCP server on port and blocks until Stop is called.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}
	return r.Serve(listener)
}

// Serve accepts connections on listener until Stop is called.
func (r *Router) Serve(listener net.Listener) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		listener.Close()
		return nil
	}
	r.listener = listener
	r.mu.Unlock()

	semaphore := make(chan struct{}, maxConnections)

	for {
		conn, err := listener.Accept()
		if err != nil {
			r.mu.Lock()
			stopped := r.stopped
			r.mu.Unlock()
			if stopped {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			r.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		semaphore <- struct{}{}
		if !r.track(conn) {
			<-semaphore
			conn.Close()
			return nil
		}

		go func(c net.Conn) {
			defer func() {
				r.untrack(c)
				c.Close()
				<-semaphore
				r.wg.Done()
			}()
			r.handleConnection(c)
		}(conn)
	}
}

// Addr returns the listening address, or nil before Serve has started.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Stop closes the listener and every open connection, then waits for the
// connection handlers to return.
func (r *Router) Stop() error {
	r.mu.Lock()
	r.stopped = true
	var err error
	if r.listener != nil {
		err = r.listener.Close()
	}
	for c := range r.conns {
		c.Close()
	}
	r.mu.Unlock()

	r.wg.Wait()
	return err
}

// track registers c and counts its handler in wg. Both happen under mu so
// Stop never waits on a group that is still growing.
func (r *Router) track(c net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.conns[c] = struct{}{}
	r.wg.Add(1)
	return true
}

func (r *Router) untrack(c net.Conn) {
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
}

func (r *Router) handleConnection(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for {
		// Set a deadline for the next command
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !isClosedErr(err) {
				r.logger.Debug("connection read ended", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		command, rest, _ := strings.Cut(line, " ")
		command = strings.ToUpper(command)
		if command == "QUIT" {
			return
		}

		reply := r.dispatch(command, strings.TrimSpace(rest))
		if _, err := io.WriteString(conn, reply+"\n"); err != nil {
			r.logger.Warn("write failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			return
		}
	}
}

// dispatch executes one command and renders its reply line.
func (r *Router) dispatch(command, args string) string {
	switch command {
	case "PING":
		return "PONG"

	case "TYPES":
		return okJSON(r.store.EntityTypes())

	case "LIST":
		entityType, rest, err := entityArg(args)
		if err != nil {
			return errLine(err)
		}
		var opts engine.ListOptions
		if rest != "" {
			if err := json.Unmarshal([]byte(rest), &opts); err != nil {
				return "ERR invalid list options"
			}
		}
		return okJSON(r.store.List(entityType, opts))

	case "GET":
		entityType, id, err := entityAndID(args)
		if err != nil {
			return errLine(err)
		}
		return okJSON(r.store.Get(entityType, id))

	case "CREATE":
		entityType, rest, err := entityArg(args)
		if err != nil {
			return errLine(err)
		}
		data, err := decodeRecord(rest)
		if err != nil {
			return errLine(err)
		}
		return okJSON(r.store.Create(entityType, data))

	case "UPDATE":
		entityType, rest, err := entityArg(args)
		if err != nil {
			return errLine(err)
		}
		id, payload, _ := strings.Cut(rest, " ")
		if id == "" {
			return "ERR usage: UPDATE <type> <id> <json>"
		}
		data, err := decodeRecord(payload)
		if err != nil {
			return errLine(err)
		}
		return okJSON(r.store.Update(entityType, id, data))

	case "DEL":
		entityType, id, err := entityAndID(args)
		if err != nil {
			return errLine(err)
		}
		if err := r.store.Delete(entityType, id); err != nil {
			return errLine(err)
		}
		return "OK"

	case "IMPORT":
		entityType, rest, err := entityArg(args)
		if err != nil {
			return errLine(err)
		}
		var records []engine.Record
		if err := json.Unmarshal([]byte(rest), &records); err != nil {
			return "ERR invalid json value"
		}
		if err := r.store.Import(entityType, records); err != nil {
			return errLine(err)
		}
		return "OK"

	default:
		return fmt.Sprintf("ERR unknown command %q", command)
	}
}

const entityMarker = "@"

// EncodeEntityType renders an entity type name as a protocol token.
func EncodeEntityType(name string) string {
	return entityMarker + url.PathEscape(name)
}

// DecodeEntityType reverses EncodeEntityType.
func DecodeEntityType(token string) (string, error) {
	escaped, ok := strings.CutPrefix(token, entityMarker)
	if !ok {
		return "", fmt.Errorf("entity type %q must start with %s", token, entityMarker)
	}
	name, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("invalid entity type %q", token)
	}
	return name, nil
}

// entityArg splits the encoded entity type off the front of args.
func entityArg(args string) (string, string, error) {
	raw, rest, _ := strings.Cut(args, " ")
	if raw == "" {
		return "", "", errors.New("missing entity type")
	}
	entityType, err := DecodeEntityType(raw)
	if err != nil {
		return "", "", err
	}
	return entityType, strings.TrimSpace(rest), nil
}

func entityAndID(args string) (string, string, error) {
	entityType, id, err := entityArg(args)
	if err != nil {
		return "", "", err
	}
	if id == "" || strings.ContainsRune(id, ' ') {
		return "", "", errors.New("expected <type> <id>")
	}
	return entityType, id, nil
}

func decodeRecord(payload string) (engine.Record, error) {
	if payload == "" {
		return nil, errors.New("missing json value")
	}
	var data engine.Record
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, errors.New("invalid json value")
	}
	return data, nil
}

func okJSON(v any, err error) string {
	if err != nil {
		return errLine(err)
	}
	res, err := json.Marshal(v)
	if err != nil {
		return "ERR internal error"
	}
	return "OK " + string(res)
}

// errLine keeps the reply on a single line.
func errLine(err error) string {
	return "ERR " + strings.ReplaceAll(err.Error(), "\n", " ")
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF)
}
