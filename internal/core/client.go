package core

import (
	"errors"
	"sync"
	"time"

	"github.com/sweeney/reptile-core/internal/conditions"
)

// Client errors.
var (
	ErrNoResponse = errors.New("core: no response")
	ErrClosed     = errors.New("core: client closed")
)

// Client owns the command and response channels for one Orchestrator and
// pairs each request with its response. It is safe for concurrent use;
// requests are issued one at a time.
type Client struct {
	mu      sync.Mutex
	in      chan Command
	out     chan Response
	nextID  uint64
	closed  bool
	timeout time.Duration
}

// NewClient creates a Client whose requests give up after timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		in:      make(chan Command),
		out:     make(chan Response),
		timeout: timeout,
	}
}

// Commands is the channel to pass to Orchestrator.Run as its input.
func (c *Client) Commands() <-chan Command { return c.in }

// Responses is the channel to pass to Orchestrator.Run as its output.
func (c *Client) Responses() chan<- Response { return c.out }

// Do sends cmd and waits for the matching response. The returned error is
// the response's Err, or ErrNoResponse/ErrClosed when no response arrived.
func (c *Client) Do(cmd Command) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Response{}, ErrClosed
	}
	c.nextID++
	cmd.ID = c.nextID

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case c.in <- cmd:
	case <-timer.C:
		return Response{}, ErrNoResponse
	}

	for {
		select {
		case resp := <-c.out:
			if resp.ID != cmd.ID {
				// Late answer to an earlier request that timed out.
				continue
			}
			return resp, resp.Err
		case <-timer.C:
			return Response{}, ErrNoResponse
		}
	}
}

// Temperature queries the current temperature.
func (c *Client) Temperature() (int, error) {
	resp, err := c.Do(Command{Kind: GetTemperature})
	return resp.Value, err
}

// Humidity queries the current humidity.
func (c *Client) Humidity() (int, error) {
	resp, err := c.Do(Command{Kind: GetHumidity})
	return resp.Value, err
}

// Conditions queries the full snapshot.
func (c *Client) Conditions() (conditions.Snapshot, error) {
	resp, err := c.Do(Command{Kind: GetConditions})
	return resp.Conditions, err
}

// OpenProfile asks the Orchestrator to load and activate a profile file.
func (c *Client) OpenProfile(path string) error {
	_, err := c.Do(Command{Kind: OpenProfile, Path: path})
	return err
}

// OpenConfig asks the Orchestrator to load a configuration and its default profile.
func (c *Client) OpenConfig(path string) error {
	_, err := c.Do(Command{Kind: OpenConfig, Path: path})
	return err
}

// SaveProfile asks the Orchestrator to write the active profile to path.
func (c *Client) SaveProfile(path string) error {
	_, err := c.Do(Command{Kind: SaveProfile, Path: path})
	return err
}

// Close closes the command channel, which makes Orchestrator.Run return.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.in)
	}
}
