package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Transport is the messaging-channel surface the orchestrator depends on.
type Transport interface {
	Send(ctx context.Context, channelID int64, address, text string, mediaRef *string) error
	ConnectedChannels(ctx context.Context) ([]int64, error)
	ForceDisconnect(ctx context.Context, channelID int64) error
}

// ConnectionNotifier is told whenever a channel's connectivity may have
// changed so the active set can be refreshed.
type ConnectionNotifier interface {
	ConnectionChanged(ctx context.Context)
}

type GatewayConfig struct {
	BaseURL       string
	Token         string
	TimeoutMs     int
	FailThreshold int
	OpenForMs     int
}

// HTTPGateway talks to the channel gateway over JSON/HTTP. Each channel gets
// its own breaker so one broken session does not block the others.
type HTTPGateway struct {
	baseURL  string
	token    string
	client   *http.Client
	notifier ConnectionNotifier
	log      *zap.Logger

	failThreshold int
	openFor       time.Duration

	mu       sync.Mutex
	breakers map[int64]*MicroBreaker
}

var _ Transport = (*HTTPGateway)(nil)

func NewHTTPGateway(cfg GatewayConfig, notifier ConnectionNotifier, log *zap.Logger) *HTTPGateway {
	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 30000
	}
	if cfg.FailThreshold <= 0 {
		cfg.FailThreshold = 3
	}
	if cfg.OpenForMs <= 0 {
		cfg.OpenForMs = 15000
	}

	return &HTTPGateway{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		client:        &http.Client{Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond},
		notifier:      notifier,
		log:           log.Named("gateway"),
		failThreshold: cfg.FailThreshold,
		openFor:       time.Duration(cfg.OpenForMs) * time.Millisecond,
		breakers:      map[int64]*MicroBreaker{},
	}
}

func (g *HTTPGateway) breaker(id int64) *MicroBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[id]
	if !ok {
		b = NewMicroBreaker(g.failThreshold, g.openFor)
		g.breakers[id] = b
	}
	return b
}

type sendRequest struct {
	To    string  `json:"to"`
	Text  string  `json:"text"`
	Media *string `json:"media,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type channelInfo struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func (g *HTTPGateway) Send(ctx context.Context, channelID int64, address, text string, mediaRef *string) error {
	br := g.breaker(channelID)
	if !br.TryAcquire() {
		return &SendError{Kind: ChannelUnavailable, ChannelID: channelID, Message: "circuit open"}
	}

	path := fmt.Sprintf("/channels/%d/messages", channelID)
	err := g.do(ctx, http.MethodPost, path, channelID, sendRequest{To: address, Text: text, Media: mediaRef}, nil)
	if err != nil && Classify(err) != RecipientInvalid {
		br.OnFailure()
		return err
	}
	br.OnSuccess()
	return err
}

// ConnectedChannels asks the gateway which sessions are live.
func (g *HTTPGateway) ConnectedChannels(ctx context.Context) ([]int64, error) {
	var list []channelInfo
	if err := g.do(ctx, http.MethodGet, "/channels", 0, nil, &list); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(list))
	for _, c := range list {
		if c.Status == "connected" {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// Connect asks the gateway to start pairing a channel.
func (g *HTTPGateway) Connect(ctx context.Context, channelID int64) error {
	return g.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%d/connect", channelID), channelID, nil, nil)
}

func (g *HTTPGateway) ForceDisconnect(ctx context.Context, channelID int64) error {
	err := g.do(ctx, http.MethodPost, fmt.Sprintf("/channels/%d/disconnect", channelID), channelID, nil, nil)
	if err != nil {
		return err
	}
	g.breaker(channelID).Reset()
	if g.notifier != nil {
		g.notifier.ConnectionChanged(ctx)
	}
	return nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, channelID int64, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	res, err := g.client.Do(req)
	if err != nil {
		return &SendError{Kind: ChannelUnavailable, ChannelID: channelID, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		var eb errorBody
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
		if jerr := json.Unmarshal(raw, &eb); jerr != nil || eb.Message == "" {
			eb.Message = strings.TrimSpace(string(raw))
		}
		se := &SendError{
			Kind:      kindFor(res.StatusCode, eb.Code),
			ChannelID: channelID,
			Status:    res.StatusCode,
			Code:      eb.Code,
			Message:   eb.Message,
		}
		g.log.Debug("gateway call failed",
			zap.String("method", method), zap.String("path", path),
			zap.Int("status", res.StatusCode), zap.String("code", eb.Code))
		return se
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

func kindFor(status int, code string) FailureKind {
	switch {
	case code == CodeRecipientInvalid, status == http.StatusUnprocessableEntity:
		return RecipientInvalid
	case code == CodeChannelNotReady, status == http.StatusServiceUnavailable, status == http.StatusNotFound:
		return ChannelUnavailable
	default:
		return Other
	}
}
