// Board read endpoints.
//
//   - GET /posts                 (list, paginated, ETag support)
//   - GET /posts/{id}/comments   (list, paginated, ETag support)
//
// Writes go through the callable functions.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/utils"
)

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListPostsResponse wraps a page of posts.
type ListPostsResponse struct {
	Posts      []domain.Post `json:"posts"`
	Pagination Pagination    `json:"pagination"`
}

// ListCommentsResponse wraps a page of comments.
type ListCommentsResponse struct {
	Comments   []domain.Comment `json:"comments"`
	Pagination Pagination       `json:"pagination"`
}

func pageQuery(c *gin.Context) utils.Page {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"))
}

func paginate(p utils.Page, total int64) Pagination {
	return Pagination{
		Page:       p.Number,
		PageSize:   p.Size,
		Total:      total,
		TotalPages: p.TotalPages(total),
		HasNext:    p.HasNext(total),
	}
}

// notModified sets a weak ETag built from the collection stats and reports
// whether the client's copy is current. Stats failures disable the check.
func notModified(c *gin.Context, scope string, count int64, latest *time.Time, err error) bool {
	if err != nil {
		return false
	}
	var ts int64
	if latest != nil {
		ts = latest.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%d:%d"`, scope, count, ts)
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// ListPosts godoc
// @ID          listPosts
// @Summary     List board posts (paginated)
// @Description Returns posts newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Board
// @Produce     json
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListPostsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /posts [get]
func (h *Handlers) ListPosts(c *gin.Context) {
	ctx := c.Request.Context()
	pg := pageQuery(c)

	if h.stats != nil {
		n, latest, err := h.stats.PostsStats(ctx)
		if notModified(c, fmt.Sprintf("posts:%d:%d", pg.Number, pg.Size), n, latest, err) {
			return
		}
	}

	items, total, err := h.board.ListPosts(ctx, pg.Number, pg.Size)
	if err != nil {
		h.failErr(c, "listPosts", err)
		return
	}
	if items == nil {
		items = []domain.Post{}
	}
	ok(c, http.StatusOK, ListPostsResponse{Posts: items, Pagination: paginate(pg, total)})
}

// ListComments godoc
// @ID          listComments
// @Summary     List a post's comments (paginated)
// @Description Returns comments oldest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Board
// @Produce     json
//
// @Param       id             path    string  true  "Post ID"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListCommentsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /posts/{id}/comments [get]
func (h *Handlers) ListComments(c *gin.Context) {
	ctx := c.Request.Context()
	postID := c.Param("id")
	pg := pageQuery(c)

	if h.stats != nil {
		n, latest, err := h.stats.CommentsStats(ctx, postID)
		if notModified(c, fmt.Sprintf("comments:%s:%d:%d", postID, pg.Number, pg.Size), n, latest, err) {
			return
		}
	}

	items, total, err := h.board.ListComments(ctx, postID, pg.Number, pg.Size)
	if err != nil {
		h.failErr(c, "listComments", err)
		return
	}
	if items == nil {
		items = []domain.Comment{}
	}
	ok(c, http.StatusOK, ListCommentsResponse{Comments: items, Pagination: paginate(pg, total)})
}
