package mqtt

import (
	"context"
	"net"

	"github.com/eclipse/paho.golang/paho"
)

// v5Session is an MQTT 5 session over a connection dialed per publish.
type v5Session struct {
	client *paho.Client
	conn   net.Conn
}

func dialV5(ctx context.Context, addr string, cfg Config) (session, error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: cfg.ClientID,
		Conn:     conn,
	})
	_, err = client.Connect(ctx, &paho.Connect{
		ClientID:     cfg.ClientID,
		KeepAlive:    uint16(keepAlive.Seconds()),
		CleanStart:   true,
		Username:     cfg.Username,
		UsernameFlag: cfg.Username != "",
		Password:     []byte(cfg.Password),
		PasswordFlag: cfg.Password != "",
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &v5Session{client: client, conn: conn}, nil
}

func (s *v5Session) publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	_, err := s.client.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  retain,
		Payload: payload,
	})
	return err
}

func (s *v5Session) disconnect() error {
	err := s.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
	s.conn.Close()
	return err
}
