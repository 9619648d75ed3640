package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hpungsan/lspgate/internal/backend"
)

// ErrClosed is returned for calls made after the connection ended.
var ErrClosed = fmt.Errorf("lsp: connection closed: %w", backend.ErrUnavailable)

type result struct {
	data json.RawMessage
	err  error
}

// Client is a JSON-RPC 2.0 client speaking to a language server over a
// byte stream. Calls may be issued concurrently.
type Client struct {
	w      io.Writer
	writeM sync.Mutex
	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan result
	closed  bool
	done    chan struct{}
	err     error

	logger *slog.Logger
}

// NewClient starts reading server messages from r. Requests are written to w.
func NewClient(r io.Reader, w io.Writer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Client{
		w:       w,
		pending: make(map[int64]chan result),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go c.readLoop(bufio.NewReader(r))
	return c
}

// Call sends a request and decodes its result into out, which may be nil.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	id := c.nextID.Add(1)
	ch := make(chan result, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(request{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		c.forget(id)
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("%s: %w", method, res.err)
		}
		if out == nil || len(res.data) == 0 {
			return nil
		}
		if err := json.Unmarshal(res.data, out); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		c.cancel(id)
		return fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

// Notify sends a notification.
func (c *Client) Notify(method string, params any) error {
	if err := c.write(request{JSONRPC: "2.0", Method: method, Params: params}); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) write(v any) error {
	c.writeM.Lock()
	defer c.writeM.Unlock()
	return writeMessage(c.w, v)
}

func (c *Client) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// cancel asks the server to abandon request id. Failures are ignored.
func (c *Client) cancel(id int64) {
	_ = c.Notify("$/cancelRequest", map[string]any{"id": id})
}

func (c *Client) readLoop(r *bufio.Reader) {
	var err error
	for {
		var msg *message
		msg, err = readMessage(r)
		if err != nil {
			break
		}
		switch {
		case msg.isResponse():
			c.deliver(msg)
		case msg.isRequest():
			// Replies must not block reading: the server may be stalled
			// writing to us while we wait to write to it.
			go c.reply(msg)
		default:
			c.logger.Debug("lsp notification", "method", msg.Method)
		}
	}

	if errors.Is(err, io.EOF) {
		err = ErrClosed
	} else {
		err = fmt.Errorf("lsp: read: %w: %w", err, backend.ErrUnavailable)
	}
	c.mu.Lock()
	c.closed = true
	c.err = err
	pending := c.pending
	c.pending = make(map[int64]chan result)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- result{err: err}
	}
	close(c.done)
}

func (c *Client) deliver(msg *message) {
	id, err := strconv.ParseInt(string(msg.ID), 10, 64)
	if err != nil {
		c.logger.Warn("lsp response with unexpected id", "id", string(msg.ID))
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		return
	}

	if msg.Error != nil {
		ch <- result{err: msg.Error}
		return
	}
	ch <- result{data: msg.Result}
}

// reply answers server-initiated requests. Configuration requests get
// one null per item; everything else gets null.
func (c *Client) reply(msg *message) {
	var res any
	if msg.Method == "workspace/configuration" {
		var params struct {
			Items []json.RawMessage `json:"items"`
		}
		_ = json.Unmarshal(msg.Params, &params)
		res = make([]any, len(params.Items))
	}
	if err := c.write(response{JSONRPC: "2.0", ID: msg.ID, Result: res}); err != nil {
		c.logger.Warn("lsp reply failed", "method", msg.Method, "error", err)
	}
}
