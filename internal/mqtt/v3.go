package mqtt

import (
	"context"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// v3Session is an MQTT 3.1.1 session.
type v3Session struct {
	client paho.Client
}

func dialV3(ctx context.Context, addr string, cfg Config) (session, error) {
	opts := paho.NewClientOptions().
		AddBroker("tcp://" + addr).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false)

	client := paho.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, err
	}
	return &v3Session{client: client}, nil
}

func (s *v3Session) publish(ctx context.Context, topic string, qos byte, retain bool, payload []byte) error {
	return wait(ctx, s.client.Publish(topic, qos, retain, payload))
}

func (s *v3Session) disconnect() error {
	s.client.Disconnect(250)
	return nil
}

// wait blocks until the token completes or ctx is done.
func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
