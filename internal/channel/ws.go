package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"

	"github.com/kestrel-agent/kestrel/internal/interfaces"
)

// frame is the wire format exchanged with the websocket gateway.
type frame struct {
	Type   string `json:"type"` // "message", "reply", "typing"
	Sender string `json:"sender,omitempty"`
	Text   string `json:"text,omitempty"`
	On     bool   `json:"on,omitempty"`
}

// WS dials out to a websocket gateway and relays messages both ways. The
// gateway delivers whole messages, so the channel is non-streaming.
type WS struct {
	url    string
	secret string
	device string
	log    *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWS builds the gateway channel. secret signs the bearer token; device
// identifies this install to the gateway.
func NewWS(url, secret, device string, log *slog.Logger) *WS {
	if log == nil {
		log = slog.Default()
	}
	return &WS{url: url, secret: secret, device: device, log: log}
}

func (w *WS) Name() string { return "ws" }

func (w *WS) Streaming() bool { return false }

// MintToken signs a short-lived HS256 bearer token for the gateway
// handshake.
func MintToken(secret, device string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   device,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Run dials the gateway and serves it, reconnecting with exponential
// backoff until ctx is cancelled.
func (w *WS) Run(ctx context.Context, handle func(context.Context, interfaces.Inbound)) error {
	delay := time.Second
	for {
		connected, err := w.connectAndServe(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = time.Second
		}
		w.log.Warn("gateway connection lost, reconnecting",
			"error", err, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
}

// connectAndServe returns whether a connection was established, plus the
// error that ended it.
func (w *WS) connectAndServe(ctx context.Context, handle func(context.Context, interfaces.Inbound)) (bool, error) {
	token, err := MintToken(w.secret, w.device, time.Now())
	if err != nil {
		return false, err
	}
	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	opts.HTTPHeader.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.Dial(ctx, w.url, opts)
	if err != nil {
		return false, fmt.Errorf("dial gateway: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.conn = nil
		w.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()
	w.log.Info("gateway connected", "url", w.url)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, fmt.Errorf("read gateway: %w", err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			w.log.Warn("undecodable gateway frame", "error", err)
			continue
		}
		if f.Type != "message" || f.Text == "" {
			continue
		}
		handle(ctx, interfaces.Inbound{Channel: "ws", SenderID: f.Sender, Content: f.Text})
	}
}

// Send relays a reply to the gateway.
func (w *WS) Send(ctx context.Context, senderID, text string) error {
	return w.write(ctx, frame{Type: "reply", Sender: senderID, Text: text})
}

// Typing relays a typing indicator. Not being connected is a no-op; the
// indicator is cosmetic.
func (w *WS) Typing(ctx context.Context, senderID string, on bool) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil
	}
	return w.write(ctx, frame{Type: "typing", Sender: senderID, On: on})
}

func (w *WS) write(ctx context.Context, f frame) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("gateway not connected")
	}
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write gateway: %w", err)
	}
	return nil
}
