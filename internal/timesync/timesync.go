// Package timesync acquires absolute time from an NTP server.
package timesync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/ntp"
)

// TimeSource returns the current time as Unix epoch seconds.
type TimeSource interface {
	GetTime(ctx context.Context) (int64, error)
}

// Op names the step of a query that failed.
type Op string

const (
	OpResolve Op = "resolve"
	OpQuery   Op = "query"
	OpTimeout Op = "timeout"
)

// ErrTimeout is wrapped by the Error returned when the server does not answer
// in time.
var ErrTimeout = errors.New("no answer from time server")

// Error is returned by Client when a query fails.
type Error struct {
	Op  Op
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ntp %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DefaultTimeout bounds one query.
const DefaultTimeout = 5 * time.Second

// Client queries one NTP server. The resolved server address is cached
// between queries and dropped after any failure, so a pool name is
// re-resolved to a different server next time.
type Client struct {
	host    string
	port    int
	timeout time.Duration

	mu   sync.Mutex
	addr string

	lookupHost func(ctx context.Context, host string) ([]string, error)
	query      func(host string, opt ntp.QueryOptions) (*ntp.Response, error)
}

// NewClient creates a client for server ("host" or "host:port"). A zero
// timeout means DefaultTimeout.
func NewClient(server string, timeout time.Duration) (*Client, error) {
	if server == "" {
		return nil, errors.New("ntp server is empty")
	}
	host, port := server, 123
	if h, p, err := net.SplitHostPort(server); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 || n > 65535 {
			return nil, fmt.Errorf("invalid ntp port %q", p)
		}
		host, port = h, n
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		host:       host,
		port:       port,
		timeout:    timeout,
		lookupHost: net.DefaultResolver.LookupHost,
		query:      ntp.QueryWithOptions,
	}, nil
}

type result struct {
	resp *ntp.Response
	err  error
}

// GetTime queries the server. The query races the client timeout and ctx;
// whichever ends first wins.
func (c *Client) GetTime(ctx context.Context) (int64, error) {
	addr, err := c.resolve(ctx)
	if err != nil {
		return 0, &Error{Op: OpResolve, Err: err}
	}

	done := make(chan result, 1)
	go func() {
		resp, err := c.query(net.JoinHostPort(addr, strconv.Itoa(c.port)), ntp.QueryOptions{Timeout: c.timeout})
		if err == nil {
			err = resp.Validate()
		}
		done <- result{resp, err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			c.forget()
			return 0, &Error{Op: OpQuery, Err: res.err}
		}
		return res.resp.Time.Unix(), nil
	case <-timer.C:
		c.forget()
		return 0, &Error{Op: OpTimeout, Err: ErrTimeout}
	case <-ctx.Done():
		c.forget()
		return 0, &Error{Op: OpTimeout, Err: ctx.Err()}
	}
}

func (c *Client) resolve(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.addr != "" {
		return c.addr, nil
	}
	if net.ParseIP(c.host) != nil {
		c.addr = c.host
		return c.addr, nil
	}
	addrs, err := c.lookupHost(ctx, c.host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no addresses for %s", c.host)
	}
	c.addr = addrs[0]
	return c.addr, nil
}

func (c *Client) forget() {
	c.mu.Lock()
	c.addr = ""
	c.mu.Unlock()
}

// Cached returns the cached server address, or "" if none.
func (c *Client) Cached() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}
