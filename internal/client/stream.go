package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tbourn/go-meal-backend/internal/feed"
)

// Subscribe reads the feed event stream and hands every snapshot or change
// batch to fn, so a Client is a feed.Source for a remote server. It returns
// when ctx ends, the server closes the stream, or fn fails.
func (c *Client) Subscribe(ctx context.Context, limit int, fn func(feed.Batch) error) error {
	url := c.BaseURL + "/feed/stream"
	if limit > 0 {
		url += "?limit=" + strconv.Itoa(limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives any request timeout.
	sc := *c
	if c.HTTP != nil {
		hc := *c.HTTP
		hc.Timeout = 0
		sc.HTTP = &hc
	}
	resp, err := sc.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return readEvents(resp.Body, func(name, data string) error {
		switch name {
		case "snapshot", "changes":
			var b feed.Batch
			if err := json.Unmarshal([]byte(data), &b); err != nil {
				return fmt.Errorf("decode %s event: %w", name, err)
			}
			return fn(b)
		case "error":
			ce := &CallError{Status: http.StatusOK}
			var env struct {
				RequestID string `json:"request_id"`
				Code      string `json:"code"`
				Message   string `json:"message"`
			}
			if json.Unmarshal([]byte(data), &env) == nil {
				ce.Code, ce.Message, ce.RequestID = env.Code, env.Message, env.RequestID
			}
			return ce
		}
		return nil
	})
}

// readEvents splits a text/event-stream body into (event, data) pairs.
// Multi-line data fields are joined with newlines.
func readEvents(r io.Reader, fn func(name, data string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 4<<20)

	var (
		name string
		data []string
	)
	flush := func() error {
		if len(data) == 0 {
			name = ""
			return nil
		}
		if name == "" {
			name = "message"
		}
		err := fn(name, strings.Join(data, "\n"))
		name, data = "", nil
		return err
	}
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return flush()
}
