// Package server implements the line-oriented TCP console used to
// inspect and poke the shared state of a running host.
package server

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polyview-dev/polyview/internal/store"
)

// Console serves the state console over TCP, optionally TLS.
type Console struct {
	store *store.Store
	log   *zap.Logger
	cert  *tls.Certificate

	// connDeadline caps the lifetime of an idle connection. Cleared
	// entirely while a client watches.
	connDeadline time.Duration

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

func NewConsole(s *store.Store, log *zap.Logger) *Console {
	if log == nil {
		log = zap.NewNop()
	}
	return &Console{store: s, log: log, connDeadline: 5 * time.Minute}
}

// SetCertificate enables TLS on the console listener.
func (c *Console) SetCertificate(cert tls.Certificate) {
	c.cert = &cert
}

// Listen accepts console connections on the given port until Stop is
// called.
func (c *Console) Listen(port string) error {
	var listener net.Listener
	var err error

	if c.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*c.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		listener.Close()
		return nil
	}
	c.listener = listener
	c.mu.Unlock()

	defer listener.Close()

	semaphore := make(chan struct{}, 100) // Max 100 concurrent connections

	for {
		conn, err := listener.Accept()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return nil
			}
			continue
		}

		conn.SetDeadline(time.Now().Add(c.connDeadline))

		go func(nc net.Conn) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				nc.Close()
			}()
			c.handleConnection(nc)
		}(conn)
	}
}

// Addr returns the bound listener address, or nil before Listen.
func (c *Console) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Stop closes the listener. Active connections finish on their own.
func (c *Console) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.listener != nil {
		c.listener.Close()
	}
}

// connWriter serializes writes to one connection: WATCH events arrive
// from the store's dispatch goroutine while command replies come from
// the read loop.
type connWriter struct {
	mu   sync.Mutex
	conn net.Conn
}

func (w *connWriter) writeLine(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.conn, format+"\n", args...)
}

func (c *Console) handleConnection(conn net.Conn) {
	reader := bufio.NewReader(conn)
	w := &connWriter{conn: conn}

	var watch *store.Subscription
	defer func() {
		if watch != nil {
			watch.Cancel()
		}
	}()

	watching := false

	for {
		if !watching {
			conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		} else {
			// A watching client may stay silent indefinitely, and its
			// event stream must keep writing past the accept deadline.
			conn.SetDeadline(time.Time{})
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		line = strings.TrimSpace(line)
		parts := strings.Fields(line)
		if len(parts) < 1 {
			continue
		}

		command := strings.ToUpper(parts[0])

		switch command {
		case "GET":
			if len(parts) < 2 {
				continue
			}
			payload := c.store.GetState(parts[1])
			if payload == nil {
				w.writeLine("ERR state not found")
				continue
			}
			res, err := json.Marshal(payload)
			if err != nil {
				w.writeLine("ERR internal error")
				continue
			}
			w.writeLine("OK %s", res)

		case "SET":
			if len(parts) < 3 {
				continue
			}
			// The payload is everything after the type
			var payload store.Payload
			if err := json.Unmarshal([]byte(strings.Join(parts[2:], " ")), &payload); err != nil {
				w.writeLine("ERR invalid json payload")
				continue
			}
			c.store.SetState(parts[1], payload)
			w.writeLine("OK")

		case "CLEAR":
			if len(parts) < 2 {
				continue
			}
			c.store.ClearState(parts[1])
			w.writeLine("OK")

		case "DUMP":
			res, err := json.Marshal(c.store.GetAllState())
			if err != nil {
				w.writeLine("ERR internal error")
				continue
			}
			w.writeLine("OK %s", res)

		case "TYPES":
			res, err := json.Marshal(c.store.Types())
			if err != nil {
				w.writeLine("ERR internal error")
				continue
			}
			w.writeLine("OK %s", res)

		case "WATCH":
			if watch != nil {
				w.writeLine("OK")
				continue
			}
			watch = c.store.Watch(func(ev store.Event) {
				if ev.Payload == nil {
					w.writeLine("EVENT %s null", ev.Type)
					return
				}
				res, err := json.Marshal(ev.Payload)
				if err != nil {
					return
				}
				w.writeLine("EVENT %s %s", ev.Type, res)
			})
			watching = true
			w.writeLine("OK")

		case "UNWATCH":
			if watch != nil {
				watch.Cancel()
				watch = nil
			}
			watching = false
			w.writeLine("OK")

		case "PING":
			w.writeLine("PONG")

		case "QUIT":
			return

		default:
			w.writeLine("ERR unknown command %s", command)
		}
	}
}
