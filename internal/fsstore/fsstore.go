// Package fsstore implements the document store on Cloud Firestore.
//
// Collections mirror the SQL tables: posts, comments, meals, reports,
// sharedPhotos, userSettings, rateLimits, errorLogs and idempotency. The
// per-user report index is one document per reporter under
// userReportIndex/{uid}, holding a map keyed by target group key.
//
// Documents carry no ID field; the document ID is copied onto the struct
// after DataTo. Missing documents surface as domain.ErrNotFound.
package fsstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tbourn/go-meal-backend/internal/domain"
)

const (
	colPosts       = "posts"
	colComments    = "comments"
	colMeals       = "meals"
	colReports     = "reports"
	colReportIndex = "userReportIndex"
	colShares      = "sharedPhotos"
	colSettings    = "userSettings"
	colRateLimits  = "rateLimits"
	colErrorLogs   = "errorLogs"
	colIdempotency = "idempotency"
)

// Store is the Firestore-backed document store.
type Store struct {
	client *firestore.Client
}

// New wraps an existing client.
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Open dials Firestore for projectID.
func Open(ctx context.Context, projectID string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("while creating firestore client: %w", err)
	}
	return New(client), nil
}

// Close releases the client.
func (s *Store) Close() error { return s.client.Close() }

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// mapErr translates gRPC status codes into domain sentinels.
func mapErr(err error) error {
	switch status.Code(err) {
	case codes.OK:
		return err
	case codes.NotFound:
		return domain.ErrNotFound
	case codes.AlreadyExists:
		return domain.ErrDuplicate
	}
	return err
}

// each drains iter, calling fn for every snapshot.
func each(iter *firestore.DocumentIterator, fn func(*firestore.DocumentSnapshot) error) error {
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}

// ---- posts & comments ----

func (s *Store) CreatePost(ctx context.Context, p *domain.Post) error {
	_, err := s.client.Collection(colPosts).Doc(p.ID).Create(ctx, p)
	return mapErr(err)
}

func (s *Store) GetPost(ctx context.Context, id string) (*domain.Post, error) {
	snap, err := s.client.Collection(colPosts).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return postFrom(snap)
}

func postFrom(snap *firestore.DocumentSnapshot) (*domain.Post, error) {
	p := &domain.Post{}
	if err := snap.DataTo(p); err != nil {
		return nil, fmt.Errorf("while deserializing post %s: %w", snap.Ref.ID, err)
	}
	p.ID = snap.Ref.ID
	return p, nil
}

func (s *Store) UpdatePostContent(ctx context.Context, id, content string, at time.Time) error {
	_, err := s.client.Collection(colPosts).Doc(id).Update(ctx, []firestore.Update{
		{Path: "content", Value: content},
		{Path: "updatedAt", Value: at},
	})
	return mapErr(err)
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	postRef := s.client.Collection(colPosts).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, txn *firestore.Transaction) error {
		if _, err := txn.Get(postRef); err != nil {
			return err
		}
		var refs []*firestore.DocumentRef
		q := s.client.Collection(colComments).Where("postId", "==", id)
		if err := each(txn.Documents(q), func(snap *firestore.DocumentSnapshot) error {
			refs = append(refs, snap.Ref)
			return nil
		}); err != nil {
			return fmt.Errorf("while listing comments of post %s: %w", id, err)
		}
		for _, ref := range refs {
			if err := txn.Delete(ref); err != nil {
				return err
			}
		}
		return txn.Delete(postRef)
	})
	return mapErr(err)
}

func (s *Store) ListPosts(ctx context.Context, offset, limit int) ([]domain.Post, int64, error) {
	col := s.client.Collection(colPosts)
	total, err := count(ctx, col.Query)
	if err != nil {
		return nil, 0, err
	}
	q := col.OrderBy("createdAt", firestore.Desc).Offset(offset).Limit(limit)
	var out []domain.Post
	err = each(q.Documents(ctx), func(snap *firestore.DocumentSnapshot) error {
		p, err := postFrom(snap)
		if err != nil {
			return err
		}
		out = append(out, *p)
		return nil
	})
	return out, total, err
}

func count(ctx context.Context, q firestore.Query) (int64, error) {
	res, err := q.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("while counting: %w", err)
	}
	v, ok := res["all"]
	if !ok {
		return 0, errors.New("count aggregation missing result")
	}
	switch n := v.(type) {
	case interface{ GetIntegerValue() int64 }:
		return n.GetIntegerValue(), nil
	case int64:
		return n, nil
	}
	return 0, fmt.Errorf("unexpected count result %T", v)
}

func (s *Store) CreateComment(ctx context.Context, c *domain.Comment) error {
	postRef := s.client.Collection(colPosts).Doc(c.PostID)
	commentRef := s.client.Collection(colComments).Doc(c.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, txn *firestore.Transaction) error {
		if _, err := txn.Get(postRef); err != nil {
			return err
		}
		if err := txn.Create(commentRef, c); err != nil {
			return err
		}
		return txn.Update(postRef, []firestore.Update{{Path: "commentCount", Value: firestore.Increment(1)}})
	})
	return mapErr(err)
}

func (s *Store) GetComment(ctx context.Context, id string) (*domain.Comment, error) {
	snap, err := s.client.Collection(colComments).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return commentFrom(snap)
}

func commentFrom(snap *firestore.DocumentSnapshot) (*domain.Comment, error) {
	c := &domain.Comment{}
	if err := snap.DataTo(c); err != nil {
		return nil, fmt.Errorf("while deserializing comment %s: %w", snap.Ref.ID, err)
	}
	c.ID = snap.Ref.ID
	return c, nil
}

func (s *Store) UpdateCommentContent(ctx context.Context, id, content string, at time.Time) error {
	_, err := s.client.Collection(colComments).Doc(id).Update(ctx, []firestore.Update{
		{Path: "content", Value: content},
		{Path: "updatedAt", Value: at},
	})
	return mapErr(err)
}

func (s *Store) DeleteComment(ctx context.Context, c *domain.Comment) error {
	postRef := s.client.Collection(colPosts).Doc(c.PostID)
	commentRef := s.client.Collection(colComments).Doc(c.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, txn *firestore.Transaction) error {
		if _, err := txn.Get(commentRef); err != nil {
			return err
		}
		postSnap, err := txn.Get(postRef)
		if err != nil && !isNotFound(err) {
			return err
		}
		if err := txn.Delete(commentRef); err != nil {
			return err
		}
		if postSnap == nil || !postSnap.Exists() {
			return nil
		}
		if n, _ := postSnap.DataAt("commentCount"); toInt(n) <= 0 {
			return nil
		}
		return txn.Update(postRef, []firestore.Update{{Path: "commentCount", Value: firestore.Increment(-1)}})
	})
	return mapErr(err)
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func (s *Store) ListComments(ctx context.Context, postID string, offset, limit int) ([]domain.Comment, int64, error) {
	base := s.client.Collection(colComments).Where("postId", "==", postID)
	total, err := count(ctx, base)
	if err != nil {
		return nil, 0, err
	}
	q := base.OrderBy("createdAt", firestore.Asc).Offset(offset).Limit(limit)
	var out []domain.Comment
	err = each(q.Documents(ctx), func(snap *firestore.DocumentSnapshot) error {
		c, err := commentFrom(snap)
		if err != nil {
			return err
		}
		out = append(out, *c)
		return nil
	})
	return out, total, err
}

// ---- reports ----

type reportIndexDoc struct {
	Reports map[string]domain.ReportIndexEntry `firestore:"reports"`
}

func (s *Store) LookupReport(ctx context.Context, userID, targetGroupKey string) (*domain.ReportIndexEntry, error) {
	snap, err := s.client.Collection(colReportIndex).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc reportIndexDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("while deserializing report index for %s: %w", userID, err)
	}
	e, ok := doc.Reports[targetGroupKey]
	if !ok {
		return nil, nil
	}
	e.UserID, e.TargetGroupKey = userID, targetGroupKey
	return &e, nil
}

func (s *Store) CreateReport(ctx context.Context, r *domain.Report) error {
	_, err := s.client.Collection(colReports).Doc(r.ID).Create(ctx, r)
	return mapErr(err)
}

func (s *Store) PutReportIndex(ctx context.Context, e *domain.ReportIndexEntry) error {
	// A FieldPath keeps dots and slashes in the target key literal.
	_, err := s.client.Collection(colReportIndex).Doc(e.UserID).Set(ctx,
		map[string]any{"reports": map[string]any{e.TargetGroupKey: e}},
		firestore.Merge(firestore.FieldPath{"reports", e.TargetGroupKey}),
	)
	return err
}

// ---- shared photos ----

func shareFrom(snap *firestore.DocumentSnapshot) (domain.SharedPhoto, error) {
	var row domain.SharedPhoto
	if err := snap.DataTo(&row); err != nil {
		return row, fmt.Errorf("while deserializing shared photo %s: %w", snap.Ref.ID, err)
	}
	row.ID = snap.Ref.ID
	return row, nil
}

func (s *Store) ReplaceShares(ctx context.Context, userID string, key domain.GroupingKey, rows []domain.SharedPhoto) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	col := s.client.Collection(colShares)
	var deleted int
	err := s.client.RunTransaction(ctx, func(ctx context.Context, txn *firestore.Transaction) error {
		// The transaction body may run more than once.
		deleted = 0
		var stale []*firestore.DocumentRef
		q := col.Where("userId", "==", userID).Where("type", "==", string(key.Type))
		if err := each(txn.Documents(q), func(snap *firestore.DocumentSnapshot) error {
			row, err := shareFrom(snap)
			if err != nil {
				return err
			}
			if key.Matches(row) {
				stale = append(stale, snap.Ref)
			}
			return nil
		}); err != nil {
			return fmt.Errorf("while reading group %s: %w", key, err)
		}
		for _, ref := range stale {
			if err := txn.Delete(ref); err != nil {
				return err
			}
		}
		deleted = len(stale)
		for i := range rows {
			if err := txn.Create(col.Doc(rows[i].ID), &rows[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, mapErr(err)
	}
	return deleted, nil
}

func (s *Store) ListUserShares(ctx context.Context, userID string) ([]domain.SharedPhoto, error) {
	q := s.client.Collection(colShares).Where("userId", "==", userID).OrderBy("timestamp", firestore.Desc)
	var out []domain.SharedPhoto
	err := each(q.Documents(ctx), func(snap *firestore.DocumentSnapshot) error {
		row, err := shareFrom(snap)
		if err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	return out, err
}

func (s *Store) DeleteShares(ctx context.Context, userID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	col := s.client.Collection(colShares)
	var deleted int
	err := s.client.RunTransaction(ctx, func(ctx context.Context, txn *firestore.Transaction) error {
		deleted = 0
		refs := make([]*firestore.DocumentRef, 0, len(ids))
		for _, id := range ids {
			refs = append(refs, col.Doc(id))
		}
		snaps, err := txn.GetAll(refs)
		if err != nil {
			return err
		}
		var owned []*firestore.DocumentRef
		for _, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			if uid, _ := snap.DataAt("userId"); uid != userID {
				continue
			}
			owned = append(owned, snap.Ref)
		}
		for _, ref := range owned {
			if err := txn.Delete(ref); err != nil {
				return err
			}
		}
		deleted = len(owned)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *Store) feedQuery(before time.Time, limit int) firestore.Query {
	q := s.client.Collection(colShares).OrderBy("timestamp", firestore.Desc)
	if !before.IsZero() {
		q = q.Where("timestamp", "<", before)
	}
	return q.Limit(limit)
}

func (s *Store) ListFeed(ctx context.Context, before time.Time, limit int) ([]domain.SharedPhoto, error) {
	var out []domain.SharedPhoto
	err := each(s.feedQuery(before, limit).Documents(ctx), func(snap *firestore.DocumentSnapshot) error {
		row, err := shareFrom(snap)
		if err != nil {
			return err
		}
		out = append(out, row)
		return nil
	})
	return out, err
}

// ---- settings ----

func (s *Store) GetSettings(ctx context.Context, userID string) (*domain.UserSettings, error) {
	ref := s.client.Collection(colSettings).Doc(userID)
	snap, err := ref.Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st := &domain.UserSettings{}
	if err := snap.DataTo(st); err != nil {
		return nil, fmt.Errorf("while deserializing settings for %s: %w", userID, err)
	}
	st.UserID = userID
	if domain.MigrateSettings(st) {
		// Set without merge drops the legacy top-level fields.
		if _, err := ref.Set(ctx, st); err != nil {
			return nil, fmt.Errorf("while persisting migrated settings for %s: %w", userID, err)
		}
	}
	return st, nil
}

func (s *Store) SaveSettings(ctx context.Context, st *domain.UserSettings) error {
	_, err := s.client.Collection(colSettings).Doc(st.UserID).Set(ctx, st)
	return err
}

// ---- meals ----

func (s *Store) CreateMeal(ctx context.Context, m *domain.Meal) error {
	_, err := s.client.Collection(colMeals).Doc(m.ID).Create(ctx, m)
	return mapErr(err)
}

func (s *Store) GetMeal(ctx context.Context, id string) (*domain.Meal, error) {
	snap, err := s.client.Collection(colMeals).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	m := &domain.Meal{}
	if err := snap.DataTo(m); err != nil {
		return nil, fmt.Errorf("while deserializing meal %s: %w", id, err)
	}
	m.ID = snap.Ref.ID
	return m, nil
}

func (s *Store) HasMeals(ctx context.Context, userID string) (bool, error) {
	found := false
	q := s.client.Collection(colMeals).Where("userId", "==", userID).Limit(1)
	err := each(q.Documents(ctx), func(*firestore.DocumentSnapshot) error {
		found = true
		return nil
	})
	return found, err
}

func (s *Store) SetMealSharedPhotos(ctx context.Context, mealID string, urls []string) error {
	if urls == nil {
		urls = []string{}
	}
	_, err := s.client.Collection(colMeals).Doc(mealID).Update(ctx, []firestore.Update{
		{Path: "sharedPhotos", Value: urls},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return mapErr(err)
}

// ---- rate limits ----

// LoadActions reads field from userID's rate-limit document. Entries that
// are not timestamps are dropped with a warning; the next save rewrites
// the field.
func (s *Store) LoadActions(ctx context.Context, userID, field string) ([]time.Time, error) {
	snap, err := s.client.Collection(colRateLimits).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw, ok := snap.Data()[field]
	if !ok {
		return nil, nil
	}
	ts, dropped := decodeActions(raw)
	if dropped > 0 {
		zerolog.Ctx(ctx).Warn().
			Str("user_id", userID).
			Str("field", field).
			Str("type", fmt.Sprintf("%T", raw)).
			Int("dropped", dropped).
			Msg("fsstore: malformed rate-limit field")
	}
	return ts, nil
}

// decodeActions converts a stored array to timestamps and counts the
// values it could not use. A non-array counts as one.
func decodeActions(raw any) (ts []time.Time, dropped int) {
	if raw == nil {
		return nil, 0
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, 1
	}
	ts = make([]time.Time, 0, len(items))
	for _, it := range items {
		t, ok := it.(time.Time)
		if !ok {
			dropped++
			continue
		}
		ts = append(ts, t)
	}
	return ts, dropped
}

func (s *Store) SaveActions(ctx context.Context, userID, field string, ts []time.Time) error {
	_, err := s.client.Collection(colRateLimits).Doc(userID).Set(ctx,
		map[string]any{field: ts, "updatedAt": time.Now().UTC()},
		firestore.MergeAll,
	)
	return err
}

// ---- error logs ----

func (s *Store) WriteErrorLog(ctx context.Context, e *domain.ErrorLog) error {
	_, err := s.client.Collection(colErrorLogs).Doc(e.ID).Set(ctx, e)
	return err
}

// ---- idempotency ----

// idempotencyDocID derives a stable document ID from the record's key tuple.
func idempotencyDocID(userID, scope, key string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + scope + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

func (s *Store) GetIdempotency(ctx context.Context, userID, scope, key string, now time.Time) (*domain.Idempotency, error) {
	snap, err := s.client.Collection(colIdempotency).Doc(idempotencyDocID(userID, scope, key)).Get(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	rec := &domain.Idempotency{}
	if err := snap.DataTo(rec); err != nil {
		return nil, fmt.Errorf("while deserializing idempotency record: %w", err)
	}
	rec.ID = snap.Ref.ID
	if !rec.ExpiresAt.After(now) {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (s *Store) CreateIdempotency(ctx context.Context, userID, scope, key, resourceID string, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         idempotencyDocID(userID, scope, key),
		UserID:     userID,
		Scope:      scope,
		Key:        key,
		ResourceID: resourceID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	ref := s.client.Collection(colIdempotency).Doc(rec.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, txn *firestore.Transaction) error {
		snap, err := txn.Get(ref)
		if err != nil && !isNotFound(err) {
			return err
		}
		if snap != nil && snap.Exists() {
			var prev domain.Idempotency
			if err := snap.DataTo(&prev); err != nil {
				return err
			}
			// Expired records are overwritten in place.
			if prev.ExpiresAt.After(now) {
				return domain.ErrDuplicate
			}
		}
		return txn.Set(ref, rec)
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return rec, nil
}
