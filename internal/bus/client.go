package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/capturelabs/capture-core/internal/config"
	"github.com/capturelabs/capture-core/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection for publishing transcript events.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("capture-core"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{conn: conn, log: log}, nil
}

// PublishTranscript emits a final transcript event. Audio never travels on
// the bus, only text and identifiers.
func (c *Client) PublishTranscript(_ context.Context, event protocol.TranscriptEvent) error {
	if c == nil || c.conn == nil {
		return errors.New("bus client not connected")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal transcript event: %w", err)
	}
	if err := c.conn.Publish(protocol.SubjectTranscriptFinal, payload); err != nil {
		return fmt.Errorf("publish transcript event: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}
