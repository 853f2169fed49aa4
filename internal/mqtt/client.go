package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sweeney/ook-gateway/internal/decoder"
)

// DefaultPort is the MQTT port used when the broker address has none.
const DefaultPort = "1883"

// keepAlive is advertised on connect. Sessions are short, so it only matters
// if a publish stalls.
const keepAlive = 30 * time.Second

// Config configures a Client.
type Config struct {
	Broker   string // tcp://host:port, host:port or host
	ClientID string
	Username string
	Password string
	Protocol int  // 3 (v3.1.1) or 5
	QoS      byte // for readings; system events always use QoS 1
	// ConnectTimeout bounds the connect handshake in addition to ctx.
	ConnectTimeout time.Duration
}

// DefaultClientID returns "ook-gateway-" followed by a random suffix.
func DefaultClientID() string {
	return "ook-gateway-" + uuid.NewString()[:8]
}

// Gate serializes network operations. Client runs every publish through it.
type Gate interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// session is one connected broker session.
type session interface {
	publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error
	disconnect() error
}

type dialFunc func(ctx context.Context, addr string, cfg Config) (session, error)

// Client publishes to an MQTT broker. Each publish opens its own session:
// resolve, connect, publish, disconnect. No connection outlives a publish, so
// there is nothing to reconnect.
type Client struct {
	cfg  Config
	host string
	port string
	gate Gate

	lookupHost func(ctx context.Context, host string) ([]string, error)
	dial       dialFunc
}

// NewClient validates cfg and creates a client. gate may be nil.
func NewClient(cfg Config, gate Gate) (*Client, error) {
	host, port, err := SplitBroker(cfg.Broker)
	if err != nil {
		return nil, err
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID()
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("invalid qos %d", cfg.QoS)
	}

	c := &Client{
		cfg:        cfg,
		host:       host,
		port:       port,
		gate:       gate,
		lookupHost: net.DefaultResolver.LookupHost,
	}
	switch cfg.Protocol {
	case 3:
		c.dial = dialV3
	case 5, 0:
		c.dial = dialV5
	default:
		return nil, fmt.Errorf("unsupported mqtt protocol version %d", cfg.Protocol)
	}
	return c, nil
}

// SplitBroker extracts host and port from a broker address.
func SplitBroker(broker string) (host, port string, err error) {
	if broker == "" {
		return "", "", errors.New("broker address is empty")
	}
	if strings.Contains(broker, "://") {
		u, err := url.Parse(broker)
		if err != nil {
			return "", "", fmt.Errorf("parse broker %q: %w", broker, err)
		}
		switch u.Scheme {
		case "tcp", "mqtt":
		default:
			return "", "", fmt.Errorf("unsupported broker scheme %q", u.Scheme)
		}
		host, port = u.Hostname(), u.Port()
	} else if h, p, err := net.SplitHostPort(broker); err == nil {
		host, port = h, p
	} else {
		host = broker
	}
	if host == "" {
		return "", "", fmt.Errorf("broker %q has no host", broker)
	}
	if port == "" {
		port = DefaultPort
	}
	return host, port, nil
}

// ClientID returns the client id used for every session.
func (c *Client) ClientID() string {
	return c.cfg.ClientID
}

// Host returns the broker host name.
func (c *Client) Host() string {
	return c.host
}

// PublishReading sends a reading to sensors/<model>, not retained.
func (c *Client) PublishReading(ctx context.Context, r decoder.Reading, at time.Time) error {
	payload, err := FormatPayload(r, at)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return c.send(ctx, Topic(r.Model), c.cfg.QoS, false, payload)
}

// PublishSystem sends a lifecycle event to sensors/<client id>/system.
func (c *Client) PublishSystem(ctx context.Context, event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return c.send(ctx, TopicSystem(c.cfg.ClientID), 1, event.Retained, payload)
}

// Close is a no-op: sessions never outlive a publish.
func (c *Client) Close() error {
	return nil
}

func (c *Client) send(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	if c.gate == nil {
		return c.publishOnce(ctx, topic, qos, retain, payload)
	}
	return c.gate.Do(ctx, func(ctx context.Context) error {
		return c.publishOnce(ctx, topic, qos, retain, payload)
	})
}

func (c *Client) publishOnce(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	addr, err := c.resolve(ctx)
	if err != nil {
		return &Error{Op: OpResolve, Err: err}
	}

	sess, err := c.dial(ctx, addr, c.cfg)
	if err != nil {
		return &Error{Op: OpConnect, Err: err}
	}

	if err := sess.publish(ctx, topic, qos, retain, payload); err != nil {
		sess.disconnect()
		return &Error{Op: OpPublish, Err: err}
	}
	if err := sess.disconnect(); err != nil {
		return &Error{Op: OpDisconnect, Err: err}
	}
	return nil
}

// resolve looks the broker host up on every publish, so DNS changes are
// picked up without a restart.
func (c *Client) resolve(ctx context.Context) (string, error) {
	if net.ParseIP(c.host) != nil {
		return net.JoinHostPort(c.host, c.port), nil
	}
	addrs, err := c.lookupHost(ctx, c.host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no addresses for %s", c.host)
	}
	return net.JoinHostPort(addrs[0], c.port), nil
}
