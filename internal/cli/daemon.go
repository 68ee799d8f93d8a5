package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mikig28/secbrain/internal/config"
)

// controlResponse is the envelope returned by the daemon's control routes.
type controlResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Execute implements the go-flags Commander interface for StartCommand.
func (c *StartCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	return c.executeWithURL(context.Background(), daemonURL(cfg), startTimeout(cfg))
}

func (c *StartCommand) executeWithURL(ctx context.Context, baseURL string, timeout time.Duration) error {
	if !c.jsonOutput() {
		fmt.Println("Starting WhatsApp poller (scan the QR code in the browser window if asked)...")
	}
	resp, err := control(ctx, http.MethodPost, baseURL, timeout)
	if err != nil {
		return err
	}
	return report(c.globals, resp, "started", "Poller started.")
}

func (c *StartCommand) jsonOutput() bool {
	return c.globals != nil && c.globals.JSON
}

// Execute implements the go-flags Commander interface for StopCommand.
func (c *StopCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	return c.executeWithURL(context.Background(), daemonURL(cfg), cfg.Session.ConnectionTimeout()+5*time.Second)
}

func (c *StopCommand) executeWithURL(ctx context.Context, baseURL string, timeout time.Duration) error {
	resp, err := control(ctx, http.MethodDelete, baseURL, timeout)
	if err != nil {
		return err
	}
	return report(c.globals, resp, "stopped", "Poller stopped.")
}

// startTimeout covers connecting, a QR login and every chat probe.
func startTimeout(cfg *config.Config) time.Duration {
	s := cfg.Session
	probes := time.Duration(s.ChatDetectionAttempts) * s.ChatDetectionDelay()
	return s.ConnectionTimeout() + s.LoginTimeout() + probes + 10*time.Second
}

func control(ctx context.Context, method, baseURL string, timeout time.Duration) (controlResponse, error) {
	var out controlResponse

	req, err := http.NewRequestWithContext(ctx, method, baseURL+"/api/whatsapp", nil)
	if err != nil {
		return out, err
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return out, fmt.Errorf("daemon not reachable at %s (is `secbrain ingest` running?): %w", baseURL, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decode daemon response (HTTP %d): %w", resp.StatusCode, err)
	}
	if !out.Success && out.Error == "" {
		out.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return out, nil
}

func report(globals *GlobalFlags, resp controlResponse, key, human string) error {
	if globals != nil && globals.JSON {
		if err := printJSON(map[string]interface{}{key: resp.Success, "error": resp.Error}); err != nil {
			return err
		}
	}
	if !resp.Success {
		return fmt.Errorf("daemon: %s", resp.Error)
	}
	if globals == nil || !globals.JSON {
		fmt.Println(human)
	}
	return nil
}
