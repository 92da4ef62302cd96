package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"surface/internal/types"
)

// Events opens the push-event stream for a project. Events are delivered in
// transport order on a buffered channel; the channel closes when the stream
// ends or the returned cancel func is called. A full channel drops events
// rather than stalling the decode loop; the engine recovers through its next
// snapshot refresh.
func (c *Client) Events(ctx context.Context, projectPath string) (<-chan types.PushEvent, func(), error) {
	if err := c.ensureToken(); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	streamURL := fmt.Sprintf("%s/v1/events", c.baseURL)
	if strings.TrimSpace(projectPath) != "" {
		streamURL += "?project=" + url.QueryEscape(projectPath)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	// The shared client has a request timeout that would sever a long-lived
	// stream, so the stream uses its own client.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		cancel()
		return nil, nil, decodeAPIError(resp)
	}

	ch := make(chan types.PushEvent, 256)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var dataLines []string

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				if len(dataLines) == 0 {
					continue
				}
				payload := strings.Join(dataLines, "\n")
				dataLines = dataLines[:0]
				var event types.PushEvent
				if err := json.Unmarshal([]byte(payload), &event); err == nil && event.Kind != "" {
					select {
					case ch <- event:
					default:
					}
				}
				continue
			}
			if strings.HasPrefix(line, "data:") {
				dataLines = append(dataLines, strings.TrimSpace(line[len("data:"):]))
			}
		}
	}()

	return ch, cancel, nil
}
