// Package pubsub is the WebSocket JSON-RPC subscription client feeding the
// live correlator: slotSubscribe and voteSubscribe notification streams with
// per-subscription routing.
package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	unsubscribeTimeout = 2 * time.Second
	// earlyNotifLimit bounds notifications held for a subscription id whose
	// subscribe call has not finished registering yet.
	earlyNotifLimit = 32
)

// errClientClosed marks a deliberate Close; Err reports it as a clean
// shutdown.
var errClientClosed = errors.New("client closed")

// Client owns one WebSocket connection and its read loop. Subscription
// channels close when the connection ends; Err reports why.
type Client struct {
	conn *websocket.Conn
	log  *logrus.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	nextID  int64
	calls   map[int64]chan callResult
	subs    map[int64]chan json.RawMessage
	early   map[int64][]json.RawMessage
	err     error
	closed  bool
	done    chan struct{}
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Dial connects to the node's WebSocket endpoint and starts the read loop.
func Dial(ctx context.Context, url string, log *logrus.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	c := &Client{
		conn:  conn,
		log:   log,
		calls: make(map[int64]chan callResult),
		subs:  make(map[int64]chan json.RawMessage),
		early: make(map[int64][]json.RawMessage),
		done:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close tears the connection down; pending subscriptions end.
func (c *Client) Close() error {
	c.fail(errClientClosed)
	return nil
}

// Err returns the terminal connection error, nil for a clean shutdown via
// Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if errors.Is(c.err, errClientClosed) {
		return nil
	}
	return c.err
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

type envelope struct {
	ID     *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Method string `json:"method"`
	Params *struct {
		Result       json.RawMessage `json:"result"`
		Subscription int64           `json:"subscription"`
	} `json:"params"`
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(errors.Wrap(err, "read"))
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.fail(errors.Wrap(err, "decode frame"))
			return
		}
		switch {
		case env.ID != nil:
			c.dispatchCall(&env)
		case env.Params != nil:
			c.dispatchNotification(&env)
		default:
			c.log.Debugf("ignoring frame: %s", data)
		}
	}
}

func (c *Client) dispatchCall(env *envelope) {
	c.mu.Lock()
	ch, ok := c.calls[*env.ID]
	delete(c.calls, *env.ID)
	c.mu.Unlock()
	if !ok {
		c.log.Warnf("response for unknown request id %d", *env.ID)
		return
	}
	res := callResult{result: env.Result}
	if env.Error != nil {
		res.err = errors.Errorf("rpc error %d: %s", env.Error.Code, env.Error.Message)
	}
	ch <- res
}

func (c *Client) dispatchNotification(env *envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.subs[env.Params.Subscription]
	if !ok {
		// The first notifications can race the subscribe call's channel
		// registration; hold a bounded batch until the id is claimed.
		id := env.Params.Subscription
		if len(c.early[id]) < earlyNotifLimit {
			c.early[id] = append(c.early[id], env.Params.Result)
		} else {
			c.log.Debugf("dropping notification for unclaimed subscription %d", id)
		}
		return
	}
	select {
	case ch <- env.Params.Result:
	default:
		c.log.Warnf("subscription %d buffer full, dropping notification", env.Params.Subscription)
	}
}

// fail records the terminal error once, closes the connection and all
// subscription channels.
func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = err
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	for id, ch := range c.calls {
		ch <- callResult{err: err}
		delete(c.calls, id)
	}
	close(c.done)
	c.mu.Unlock()
	_ = c.conn.Close()
}

type request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	if c.closed {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan callResult, 1)
	c.calls[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.conn.WriteJSON(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		c.fail(errors.Wrapf(err, "write %s", method))
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return nil, errors.Wrap(res.err, method)
		}
		return res.result, nil
	}
}

// subscribe issues a subscription request and registers the raw channel.
func (c *Client) subscribe(ctx context.Context, method string) (int64, <-chan json.RawMessage, error) {
	result, err := c.call(ctx, method, nil)
	if err != nil {
		return 0, nil, err
	}
	var subID int64
	if err := json.Unmarshal(result, &subID); err != nil {
		return 0, nil, errors.Wrapf(err, "decode %s subscription id", method)
	}
	ch := make(chan json.RawMessage, 256)
	c.mu.Lock()
	for _, payload := range c.early[subID] {
		ch <- payload
	}
	delete(c.early, subID)
	c.subs[subID] = ch
	c.mu.Unlock()
	return subID, ch, nil
}

func (c *Client) unsubscribe(method string, subID int64) {
	c.mu.Lock()
	if ch, ok := c.subs[subID]; ok {
		close(ch)
		delete(c.subs, subID)
	}
	delete(c.early, subID)
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
	defer cancel()
	if _, err := c.call(ctx, method, []interface{}{subID}); err != nil {
		c.log.Debugf("%s %d: %v", method, subID, err)
	}
}
