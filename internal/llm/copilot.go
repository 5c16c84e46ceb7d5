package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdk "github.com/github/copilot-sdk/go"
)

// Copilot completes prompts through a local Copilot CLI runtime. The runtime
// is started on first use and stopped by Close.
type Copilot struct {
	Model   string
	Timeout time.Duration

	mu      sync.Mutex
	client  *sdk.Client
	started bool
}

func NewCopilot(model string, timeout time.Duration) *Copilot {
	return &Copilot{Model: model, Timeout: timeout}
}

func (c *Copilot) Name() string { return "copilot:" + c.Model }

func (c *Copilot) start() (*sdk.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return c.client, nil
	}
	client := sdk.NewClient(&sdk.ClientOptions{LogLevel: "error"})
	if err := client.Start(); err != nil {
		return nil, fmt.Errorf("%w: start copilot runtime: %v", ErrUnavailable, err)
	}
	c.client = client
	c.started = true
	return client, nil
}

func (c *Copilot) Complete(ctx context.Context, system, user string) (string, error) {
	client, err := c.start()
	if err != nil {
		return "", err
	}
	session, err := client.CreateSession(&sdk.SessionConfig{
		Model: c.Model,
		SystemMessage: &sdk.SystemMessageConfig{
			Mode:    "replace",
			Content: system,
		},
	})
	if err != nil {
		return "", fmt.Errorf("create copilot session: %w", err)
	}
	defer session.Destroy()

	var (
		mu       sync.Mutex
		reply    string
		sessErr  error
		idleOnce sync.Once
	)
	idle := make(chan struct{})
	session.On(func(event sdk.SessionEvent) {
		switch event.Type {
		case "assistant.message":
			if event.Data.Content != nil {
				mu.Lock()
				reply = *event.Data.Content
				mu.Unlock()
			}
		case "session.error":
			mu.Lock()
			sessErr = errors.New("copilot session error")
			if event.Data.Content != nil {
				sessErr = fmt.Errorf("copilot session error: %s", *event.Data.Content)
			}
			mu.Unlock()
			idleOnce.Do(func() { close(idle) })
		case "session.idle":
			idleOnce.Do(func() { close(idle) })
		}
	})

	if _, err := session.Send(sdk.MessageOptions{Prompt: user}); err != nil {
		return "", fmt.Errorf("send copilot prompt: %w", err)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(timeout):
		return "", fmt.Errorf("copilot timed out after %v", timeout)
	case <-idle:
	}
	mu.Lock()
	defer mu.Unlock()
	if sessErr != nil {
		return "", sessErr
	}
	return reply, nil
}

func (c *Copilot) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		c.client.Stop()
		c.started = false
	}
	return nil
}
