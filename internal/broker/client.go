package broker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client is a worker-side connection to the broker socket: one reader
// goroutine demultiplexes newline-delimited Frame responses onto a
// per-request-ID pending map, mirroring the teacher's
// internal/mcp/transport.go StdioTransport. Unlike that transport, Dial
// retries the initial connection with cenkalti/backoff/v4 so a worker
// started before the broker is listening waits for it instead of failing;
// a connection lost after Dial returns is not re-established.
type Client struct {
	sockAddr string
	agentID  string

	mu      sync.Mutex
	conn    net.Conn
	pending map[int64]chan Frame
	nextID  int64

	closed chan struct{}
}

// Dial connects to the broker at sockAddr and registers as agentID,
// retrying the initial connection with an exponential backoff policy so a
// worker racing a broker that is still starting up does not fail outright.
func Dial(ctx context.Context, sockAddr, agentID string) (*Client, error) {
	c := &Client{
		sockAddr: sockAddr,
		agentID:  agentID,
		pending:  make(map[int64]chan Frame),
		closed:   make(chan struct{}),
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	conn, err := backoff.RetryWithData(func() (net.Conn, error) {
		return net.Dial("unix", sockAddr)
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	c.conn = conn

	go c.readLoop()

	if err := c.send(ctx, Frame{Type: FrameRegister, Payload: mustJSON(RegisterPayload{AgentID: agentID})}); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var f Frame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- f
		}
	}
	close(c.closed)
}

// send writes f and blocks until the matching reply frame arrives or ctx
// is cancelled.
func (c *Client) send(ctx context.Context, f Frame) error {
	_, err := c.request(ctx, f)
	return err
}

func (c *Client) request(ctx context.Context, f Frame) (Frame, error) {
	id := atomic.AddInt64(&c.nextID, 1)
	f.ID = id
	ch := make(chan Frame, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	data, err := json.Marshal(f)
	if err != nil {
		return Frame{}, err
	}
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return Frame{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-c.closed:
		return Frame{}, fmt.Errorf("broker connection closed")
	}
}

// RequestFileLock asks the broker to grant a lock over files in mode.
func (c *Client) RequestFileLock(ctx context.Context, files []string, mode LockMode) (LockID, []BlockedFile, error) {
	resp, err := c.request(ctx, Frame{Type: FrameRequestFileLock, Payload: mustJSON(RequestFileLockPayload{Files: files, Mode: mode})})
	if err != nil {
		return "", nil, err
	}
	switch resp.Type {
	case FrameLockGranted:
		var p LockGrantedPayload
		_ = json.Unmarshal(resp.Payload, &p)
		return p.LockID, nil, nil
	case FrameLockDenied:
		var p LockDeniedPayload
		_ = json.Unmarshal(resp.Payload, &p)
		return "", p.Blocked, nil
	default:
		return "", nil, unexpectedFrame(resp)
	}
}

// ReleaseFileLock releases any lock this client holds over files.
func (c *Client) ReleaseFileLock(ctx context.Context, files []string) error {
	return c.send(ctx, Frame{Type: FrameReleaseFileLock, Payload: mustJSON(ReleaseFileLockPayload{Files: files})})
}

// RequestGitLock asks for the exclusive git lock, returning the current
// holder's agent ID when denied.
func (c *Client) RequestGitLock(ctx context.Context) (LockID, string, error) {
	resp, err := c.request(ctx, Frame{Type: FrameRequestGitLock})
	if err != nil {
		return "", "", err
	}
	switch resp.Type {
	case FrameGitLockGranted:
		var p GitLockGrantedPayload
		_ = json.Unmarshal(resp.Payload, &p)
		return p.LockID, "", nil
	case FrameGitLockDenied:
		var p GitLockDeniedPayload
		_ = json.Unmarshal(resp.Payload, &p)
		return "", p.HeldBy, nil
	default:
		return "", "", unexpectedFrame(resp)
	}
}

// ReleaseGitLock releases the git lock if this client holds it.
func (c *Client) ReleaseGitLock(ctx context.Context) error {
	return c.send(ctx, Frame{Type: FrameReleaseGitLock})
}

// RequestAPISlot asks the broker's quota scheduler for a slot to make an
// outbound provider call, returning how long to wait before proceeding.
func (c *Client) RequestAPISlot(ctx context.Context) (time.Duration, string, error) {
	resp, err := c.request(ctx, Frame{Type: FrameRequestAPISlot})
	if err != nil {
		return 0, "", err
	}
	switch resp.Type {
	case FrameAPISlotGranted:
		var p APISlotGrantedPayload
		_ = json.Unmarshal(resp.Payload, &p)
		return time.Duration(p.Delay * float64(time.Second)), "", nil
	case FrameAPISlotWait:
		var p APISlotWaitPayload
		_ = json.Unmarshal(resp.Payload, &p)
		return time.Duration(p.Delay * float64(time.Second)), p.Reason, nil
	default:
		return 0, "", unexpectedFrame(resp)
	}
}

// ReleaseAPISlot reports a completed call's rate-limit headers and status
// so the broker's quota model stays calibrated.
func (c *Client) ReleaseAPISlot(ctx context.Context, headers map[string]string, status int) error {
	return c.send(ctx, Frame{Type: FrameReleaseAPISlot, Payload: mustJSON(ReleaseAPISlotPayload{Headers: headers, Status: status})})
}

// SendMessage delivers content to recipient's inbox (or "user").
func (c *Client) SendMessage(ctx context.Context, to, msgType, content string) error {
	return c.send(ctx, Frame{Type: FrameSendMessage, Payload: mustJSON(SendMessagePayload{To: to, Type: msgType, Content: content})})
}

// PollInbox drains and returns this agent's pending messages.
func (c *Client) PollInbox(ctx context.Context) ([]InboxMessage, error) {
	resp, err := c.request(ctx, Frame{Type: FramePollInbox})
	if err != nil {
		return nil, err
	}
	var p InboxPayload
	_ = json.Unmarshal(resp.Payload, &p)
	return p.Messages, nil
}

// Status queries the broker's current lock/agent/API-slot counters.
func (c *Client) Status(ctx context.Context) (StatusPayload, error) {
	resp, err := c.request(ctx, Frame{Type: FrameGetStatus})
	if err != nil {
		return StatusPayload{}, err
	}
	var p StatusPayload
	_ = json.Unmarshal(resp.Payload, &p)
	return p, nil
}

// Heartbeat keeps the connection's lastHeartbeat fresh so reapDeadConns
// does not treat this client as disconnected.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.send(ctx, Frame{Type: FrameHeartbeat})
}

// Close releases the underlying socket connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func unexpectedFrame(f Frame) error {
	if f.Type == FrameError {
		var p ErrorPayload
		_ = json.Unmarshal(f.Payload, &p)
		return fmt.Errorf("broker error: %s", p.Message)
	}
	return fmt.Errorf("unexpected broker frame type: %s", f.Type)
}
