// Callable functions.
//
// Every mutating operation is exposed as POST {base}/functions/{name} with
// the body {"data": {...}} and answered with {"data": {...}} or an
// ErrorResponse. The caller's identity comes from the bearer token; the
// body never names the user.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-meal-backend/internal/auth"
	"github.com/tbourn/go-meal-backend/internal/domain"
	"github.com/tbourn/go-meal-backend/internal/http/middleware"
	"github.com/tbourn/go-meal-backend/internal/services"
)

// HeaderIdempotencyReplayed marks a response that replays an earlier call.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// CallRequest is the body of a callable function.
type CallRequest struct {
	Data json.RawMessage `json:"data" swaggertype:"object"`
}

// CallResponse wraps a callable function's result.
type CallResponse struct {
	Data any `json:"data"`
}

// SuccessResult is returned by operations without a richer result.
type SuccessResult struct {
	Success bool `json:"success" example:"true"`
}

type postRef struct {
	PostID string `json:"postId"`
}

type commentRef struct {
	CommentID string `json:"commentId"`
}

type callable func(c *gin.Context, id *auth.Identity, raw json.RawMessage) (any, error)

// decode unmarshals the data payload into T. A missing payload yields the
// zero value so validation reports the missing fields.
func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, services.InvalidArgument("malformed data payload")
	}
	return v, nil
}

// with adapts a typed operation to a callable.
func with[T any](fn func(ctx context.Context, id *auth.Identity, in T) (any, error)) callable {
	return func(c *gin.Context, id *auth.Identity, raw json.RawMessage) (any, error) {
		in, err := decode[T](raw)
		if err != nil {
			return nil, err
		}
		return fn(c.Request.Context(), id, in)
	}
}

func (h *Handlers) callables() map[string]callable {
	success := &SuccessResult{Success: true}
	return map[string]callable{
		"createPost": h.once("createPost",
			func(ctx context.Context, rid string) (any, error) { return h.resources.GetPost(ctx, rid) },
			with(func(ctx context.Context, id *auth.Identity, in services.PostInput) (any, error) {
				return h.board.CreatePost(ctx, id, in)
			})),
		"updatePost": with(func(ctx context.Context, id *auth.Identity, in services.PostInput) (any, error) {
			return h.board.UpdatePost(ctx, id, in)
		}),
		"deletePost": with(func(ctx context.Context, id *auth.Identity, in postRef) (any, error) {
			if err := h.board.DeletePost(ctx, id, in.PostID); err != nil {
				return nil, err
			}
			return success, nil
		}),
		"createComment": h.once("createComment",
			func(ctx context.Context, rid string) (any, error) { return h.resources.GetComment(ctx, rid) },
			with(func(ctx context.Context, id *auth.Identity, in services.CommentInput) (any, error) {
				return h.board.CreateComment(ctx, id, in)
			})),
		"updateComment": with(func(ctx context.Context, id *auth.Identity, in services.CommentInput) (any, error) {
			return h.board.UpdateComment(ctx, id, in)
		}),
		"deleteComment": with(func(ctx context.Context, id *auth.Identity, in commentRef) (any, error) {
			if err := h.board.DeleteComment(ctx, id, in.CommentID); err != nil {
				return nil, err
			}
			return success, nil
		}),
		"submitReport": with(func(ctx context.Context, id *auth.Identity, in services.ReportInput) (any, error) {
			return h.reports.Submit(ctx, id, in)
		}),
		"shareMealPhotos": with(func(ctx context.Context, id *auth.Identity, in services.ShareInput) (any, error) {
			return h.shares.ShareMealPhotos(ctx, id, in)
		}),
		"shareDaily": with(func(ctx context.Context, id *auth.Identity, in services.ShareInput) (any, error) {
			return h.shares.ShareDaily(ctx, id, in)
		}),
		"shareBest": with(func(ctx context.Context, id *auth.Identity, in services.ShareInput) (any, error) {
			return h.shares.ShareBest(ctx, id, in)
		}),
		"shareInsight": with(func(ctx context.Context, id *auth.Identity, in services.ShareInput) (any, error) {
			return h.shares.ShareInsight(ctx, id, in)
		}),
		"unsharePhoto": with(func(ctx context.Context, id *auth.Identity, in services.UnshareInput) (any, error) {
			return h.shares.Unshare(ctx, id, in)
		}),
		"agreeToTerms": with(func(ctx context.Context, id *auth.Identity, _ struct{}) (any, error) {
			return h.settings.AgreeToTerms(ctx, id)
		}),
		"updateProfile": with(func(ctx context.Context, id *auth.Identity, in services.ProfileInput) (any, error) {
			return h.settings.UpdateProfile(ctx, id, in)
		}),
		"getReadiness": with(func(ctx context.Context, id *auth.Identity, _ struct{}) (any, error) {
			return h.settings.GetReadiness(ctx, id)
		}),
		"createMeal": h.once("createMeal",
			func(ctx context.Context, rid string) (any, error) { return h.resources.GetMeal(ctx, rid) },
			with(func(ctx context.Context, id *auth.Identity, in services.MealInput) (any, error) {
				return h.meals.Create(ctx, id, in)
			})),
	}
}

// once makes a create callable idempotent under the Idempotency-Key
// header. A replay reloads the original resource instead of creating a new
// one; a fresh call records the created resource's ID.
func (h *Handlers) once(scope string, load func(ctx context.Context, rid string) (any, error), create callable) callable {
	return func(c *gin.Context, id *auth.Identity, raw json.RawMessage) (any, error) {
		ctx := c.Request.Context()
		if rid, replay := middleware.ReplayedResourceID(c); replay && h.resources != nil {
			v, err := load(ctx, rid)
			if errors.Is(err, domain.ErrNotFound) {
				return nil, services.NotFound("the resource created by this request no longer exists")
			}
			if err != nil {
				return nil, err
			}
			c.Header(HeaderIdempotencyReplayed, "true")
			return v, nil
		}

		out, err := create(c, id, raw)
		if err != nil {
			return nil, err
		}
		key, keyed := middleware.GetIdempotencyKey(c)
		if !keyed || h.idem == nil || id == nil {
			return out, nil
		}
		if rid := resourceID(out); rid != "" {
			if _, err := h.idem.CreateIdempotency(ctx, id.UID, scope, key, rid, h.idemTTL); err != nil {
				middleware.LoggerFrom(c).Warn().Err(err).Str("function", scope).Msg("idempotency record failed")
			}
		}
		return out, nil
	}
}

func resourceID(v any) string {
	switch r := v.(type) {
	case *domain.Post:
		return r.ID
	case *domain.Comment:
		return r.ID
	case *domain.Meal:
		return r.ID
	}
	return ""
}

// Call godoc
// @ID          callFunction
// @Summary     Invoke a callable function
// @Description Runs one of the mutating operations (createPost, updatePost, deletePost, createComment, updateComment, deleteComment, submitReport, shareMealPhotos, shareDaily, shareBest, shareInsight, unsharePhoto, agreeToTerms, updateProfile, getReadiness, createMeal). Create calls honor Idempotency-Key.
// @Tags        Functions
// @Accept      json
// @Produce     json
//
// @Param       Authorization    header  string  true  "Bearer token"
// @Param       Idempotency-Key  header  string  false "Replays the original result when repeated"
// @Param       name             path    string  true  "Function name"  example(createPost)
// @Param       body             body    handlers.CallRequest  true  "Function payload"
//
// @Success     200  {object}  handlers.CallResponse
// @Failure     400  {object}  handlers.ErrorResponse  "invalid-argument"
// @Failure     401  {object}  handlers.ErrorResponse  "unauthenticated"
// @Failure     403  {object}  handlers.ErrorResponse  "permission-denied"
// @Failure     404  {object}  handlers.ErrorResponse  "not-found"
// @Failure     409  {object}  handlers.ErrorResponse  "already-exists"
// @Failure     429  {object}  handlers.ErrorResponse  "resource-exhausted"
// @Failure     500  {object}  handlers.ErrorResponse  "internal"
// @Router      /functions/{name} [post]
func (h *Handlers) Call(c *gin.Context) {
	name := c.Param("name")
	fn, found := h.functions[name]
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown function "+name)
		return
	}

	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failErr(c, name, services.InvalidArgument(`request body must be {"data": {...}}`))
		return
	}

	out, err := fn(c, middleware.IdentityFrom(c), req.Data)
	if err != nil {
		h.failErr(c, name, err)
		return
	}
	callableCalls.WithLabelValues(name, "ok").Inc()
	ok(c, http.StatusOK, CallResponse{Data: out})
}
