package push

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Gateway relays messages to an HTTP push service that fans them out to
// the devices' platform channels, the way an FCM multicast call does.
type Gateway struct {
	url    string
	client *http.Client
}

var _ Dispatcher = (*Gateway)(nil)

// NewGateway returns a Gateway posting to url. A nil client gets a 10s
// timeout.
func NewGateway(url string, client *http.Client) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Gateway{url: url, client: client}
}

type multicast struct {
	Tokens []string          `json:"tokens"`
	Data   map[string]string `json:"data"`
}

// Send posts one multicast request. Any non-2xx answer is an error.
func (g *Gateway) Send(ctx context.Context, tokens []string, data map[string]string) error {
	if len(tokens) == 0 {
		return ErrNotConnected
	}
	body, err := json.Marshal(multicast{Tokens: tokens, Data: data})
	if err != nil {
		return errors.Wrap(err, "push gateway: encode")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "push gateway: request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "push gateway: send")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("push gateway: status %d", resp.StatusCode)
	}
	return nil
}
