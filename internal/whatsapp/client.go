// Package whatsapp drives WhatsApp Web through a browser session: login
// and chat detection, message snapshots and image capture.
package whatsapp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikig28/secbrain/internal/browser"
	"github.com/mikig28/secbrain/internal/extract"
)

// ErrNoImage is returned when a message has no capturable image.
var ErrNoImage = errors.New("no image in message")

// LoginState is what WhatsApp Web is showing after load.
type LoginState string

const (
	LoginQRCode  LoginState = "qr"
	LoginChats   LoginState = "chats"
	LoginUnknown LoginState = "unknown"
)

// Options configures a Client.
type Options struct {
	TargetAddress     string
	ConnectionTimeout time.Duration
	LoginTimeout      time.Duration
	// PollStep is the delay between DOM probes while waiting.
	PollStep time.Duration
}

// Client is one WhatsApp Web page.
type Client struct {
	session browser.Session
	opts    Options
	log     *zap.Logger
}

// NewClient wraps session. The session is opened by Connect.
func NewClient(session browser.Session, opts Options, log *zap.Logger) *Client {
	if log == nil {
		log = zap.L()
	}
	if opts.PollStep <= 0 {
		opts.PollStep = 500 * time.Millisecond
	}
	return &Client{session: session, opts: opts, log: log.Named("whatsapp")}
}

// Connect opens the browser, loads the target address and waits until the
// chat list is visible. A QR code on screen extends the wait by
// LoginTimeout to let the phone pair.
func (c *Client) Connect(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectionTimeout)
	defer cancel()

	if err := c.session.Open(connectCtx); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}

	c.log.Info("connecting to WhatsApp Web", zap.String("target", c.opts.TargetAddress))
	if err := c.session.Navigate(connectCtx, c.opts.TargetAddress); err != nil {
		return fmt.Errorf("navigate to %s: %w", c.opts.TargetAddress, err)
	}
	if err := c.session.WaitVisible(connectCtx, appSelector, c.opts.ConnectionTimeout); err != nil {
		return fmt.Errorf("wait for app shell: %w", err)
	}

	state, err := c.waitLoginState(connectCtx, func(s LoginState) bool { return s != LoginUnknown })
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	c.log.Info("initial state", zap.String("state", string(state)))

	if state == LoginQRCode {
		c.log.Info("QR code detected, scan it with your phone", zap.Duration("timeout", c.opts.LoginTimeout))
		loginCtx, cancel := context.WithTimeout(ctx, c.opts.LoginTimeout)
		defer cancel()
		if _, err := c.waitLoginState(loginCtx, func(s LoginState) bool { return s == LoginChats }); err != nil {
			return fmt.Errorf("waiting for QR scan: %w", err)
		}
		c.log.Info("logged in")
	}
	return nil
}

// waitLoginState polls the login state until done returns true or ctx
// ends. The last observed state is returned either way.
func (c *Client) waitLoginState(ctx context.Context, done func(LoginState) bool) (LoginState, error) {
	state := LoginUnknown
	for {
		if err := c.session.Evaluate(ctx, loginStateScript, &state); err != nil {
			if ctx.Err() != nil {
				return state, ctx.Err()
			}
			return state, fmt.Errorf("read login state: %w", err)
		}
		if done(state) {
			return state, nil
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-time.After(c.opts.PollStep):
		}
	}
}

// ChatOpen reports whether a conversation panel or message list is shown.
func (c *Client) ChatOpen(ctx context.Context) (bool, error) {
	var open bool
	if err := c.session.Evaluate(ctx, chatOpenScript, &open); err != nil {
		return false, fmt.Errorf("probe open chat: %w", err)
	}
	return open, nil
}

// Snapshot returns every message node currently in the DOM, in DOM order.
func (c *Client) Snapshot(ctx context.Context) ([]extract.RawNode, error) {
	var nodes []extract.RawNode
	if err := c.session.Evaluate(ctx, snapshotScript, &nodes); err != nil {
		return nil, fmt.Errorf("snapshot messages: %w", err)
	}
	return nodes, nil
}

// ImageData draws the image of message id onto a canvas and returns the
// JPEG bytes.
func (c *Client) ImageData(ctx context.Context, id string) ([]byte, error) {
	quoted, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}

	var dataURL string
	if err := c.session.Evaluate(ctx, fmt.Sprintf(imageScript, quoted), &dataURL); err != nil {
		return nil, fmt.Errorf("capture image %s: %w", id, err)
	}
	return decodeDataURL(dataURL)
}

// QRCode captures the login QR code as PNG.
func (c *Client) QRCode(ctx context.Context) ([]byte, error) {
	return c.session.Screenshot(ctx, qrSelector)
}

func (c *Client) IsLive(ctx context.Context) bool {
	return c.session.IsLive(ctx)
}

func (c *Client) Close() error {
	return c.session.Close()
}

func decodeDataURL(dataURL string) ([]byte, error) {
	if dataURL == "" {
		return nil, ErrNoImage
	}
	i := strings.IndexByte(dataURL, ',')
	if !strings.HasPrefix(dataURL, "data:") || i < 0 || !strings.Contains(dataURL[:i], ";base64") {
		return nil, fmt.Errorf("unexpected image encoding %.32q", dataURL)
	}
	data, err := base64.StdEncoding.DecodeString(dataURL[i+1:])
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNoImage
	}
	return data, nil
}
