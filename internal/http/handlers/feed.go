// Feed endpoints.
//
//   - GET /feed          (newest shared photos, cursor paginated, ETag support)
//   - GET /feed/stream   (server-sent events: one "snapshot" then "changes")
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/feed"
	"github.com/tbourn/go-meal-backend/internal/http/middleware"
	"github.com/tbourn/go-meal-backend/internal/services"
	"github.com/tbourn/go-meal-backend/internal/utils"
)

const (
	defaultFeedLimit = 30
	maxFeedLimit     = 100
)

// FeedResponse is a page of the shared-photo feed. NextBefore is the cursor
// for the following page and is empty on the last page.
type FeedResponse struct {
	Items      []domain.SharedPhoto `json:"items"`
	NextBefore string               `json:"next_before,omitempty" example:"2025-05-01T09:00:00Z"`
}

func feedLimit(c *gin.Context) int {
	return utils.Clamp(utils.QueryInt(c.Query("limit"), defaultFeedLimit), 1, maxFeedLimit)
}

// ListFeed godoc
// @ID          listFeed
// @Summary     List shared photos
// @Description Returns shared photos newest first. Pass next_before back as before to page. The first page supports weak ETag via If-None-Match.
// @Tags        Feed
// @Produce     json
//
// @Param       before         query   string  false "RFC 3339 cursor"  example(2025-05-01T09:00:00Z)
// @Param       limit          query   int     false "Items per page"   minimum(1) maximum(100) default(30)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object} handlers.FeedResponse
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad cursor"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /feed [get]
func (h *Handlers) ListFeed(c *gin.Context) {
	ctx := c.Request.Context()
	limit := feedLimit(c)

	var before time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeInvalidArgument, "before must be an RFC 3339 timestamp")
			return
		}
		before = t
	} else if h.stats != nil {
		n, newest, err := h.stats.FeedStats(ctx)
		if notModified(c, fmt.Sprintf("feed:%d", limit), n, newest, err) {
			return
		}
	}

	items, err := h.feed.ListFeed(ctx, before, limit)
	if err != nil {
		h.failErr(c, "listFeed", err)
		return
	}
	resp := FeedResponse{Items: items}
	if resp.Items == nil {
		resp.Items = []domain.SharedPhoto{}
	}
	if len(items) == limit {
		resp.NextBefore = items[len(items)-1].Timestamp.UTC().Format(time.RFC3339Nano)
	}
	ok(c, http.StatusOK, resp)
}

// StreamFeed godoc
// @ID          streamFeed
// @Summary     Subscribe to the feed
// @Description Server-sent events. The first "snapshot" event holds the whole window; later "changes" events carry added, modified and removed rows. "ping" events keep idle connections open.
// @Tags        Feed
// @Produce     text/event-stream
//
// @Param       limit  query  int  false "Window size"  minimum(1) maximum(100) default(30)
//
// @Success     200  {object} feed.Batch
// @Router      /feed/stream [get]
func (h *Handlers) StreamFeed(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	lg := middleware.LoggerFrom(c)

	batches := make(chan feed.Batch)
	done := make(chan error, 1)
	go func() {
		done <- h.source.Subscribe(ctx, feedLimit(c), func(b feed.Batch) error {
			select {
			case batches <- b:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	// The stream outlives the server's write timeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	ping := time.NewTicker(h.keepAlive)
	defer ping.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case b := <-batches:
			event := "changes"
			if b.Initial {
				event = "snapshot"
			}
			c.SSEvent(event, b)
			return true
		case <-ping.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case err := <-done:
			if err != nil && ctx.Err() == nil {
				lg.Error().Err(err).Msg("feed subscription ended")
				h.errors.Record(ctx, "streamFeed", "", middleware.RequestIDFrom(c), err)
				c.SSEvent("error", ErrorResponse{
					RequestID: middleware.RequestIDFrom(c),
					Code:      string(services.CodeInternal),
					Message:   services.InternalMessage,
				})
			}
			return false
		}
	})
}
