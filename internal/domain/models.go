// Package domain defines the persisted entities of the meal board: posts,
// comments, meal records, reports, shared photos, user settings, and the
// bookkeeping rows used by rate limiting, idempotency, and error logging.
//
// The same structs are mapped by GORM (SQL store) and by the Firestore
// client (document store), so every field carries both tag sets. IDs are
// client-generated UUID strings in both backends.
package domain

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// Store sentinels shared by both backends.
var (
	// ErrNotFound is returned when a document or row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a uniquely keyed record already exists.
	ErrDuplicate = errors.New("duplicate")
)

// Post is a discussion-board entry.
type Post struct {
	ID           string    `json:"id"                 gorm:"type:varchar(64);primaryKey"                   firestore:"-"`
	UserID       string    `json:"userId"             gorm:"type:varchar(128);not null;index:idx_posts_user" firestore:"userId"`
	UserNickname string    `json:"userNickname"       gorm:"type:varchar(255)"                             firestore:"userNickname"`
	UserIcon     string    `json:"userIcon,omitempty" gorm:"type:varchar(255)"                             firestore:"userIcon"`
	Content      string    `json:"content"            gorm:"type:text;not null"                            firestore:"content"`
	PhotoURL     string    `json:"photoUrl,omitempty" gorm:"type:text"                                     firestore:"photoUrl"`
	CommentCount int       `json:"commentCount"       gorm:"not null;default:0"                            firestore:"commentCount"`
	CreatedAt    time.Time `json:"createdAt"          gorm:"index:idx_posts_created"                       firestore:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"                                                               firestore:"updatedAt"`
}

// TableName returns the database table name for Post.
func (Post) TableName() string { return "posts" }

// Comment is a reply to a Post.
type Comment struct {
	ID           string    `json:"id"           gorm:"type:varchar(64);primaryKey"                                   firestore:"-"`
	PostID       string    `json:"postId"       gorm:"type:varchar(64);not null;index:idx_comments_post,priority:1" firestore:"postId"`
	UserID       string    `json:"userId"       gorm:"type:varchar(128);not null"                                   firestore:"userId"`
	UserNickname string    `json:"userNickname" gorm:"type:varchar(255)"                                            firestore:"userNickname"`
	Content      string    `json:"content"      gorm:"type:text;not null"                                           firestore:"content"`
	CreatedAt    time.Time `json:"createdAt"    gorm:"index:idx_comments_post,priority:2"                           firestore:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"                                                                        firestore:"updatedAt"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// Meal is a single logged meal. SharedPhotos mirrors the URLs currently
// shared to the feed from this meal; it is a display convenience and the
// shared_photos rows remain the source of truth.
type Meal struct {
	ID           string                      `json:"id"           gorm:"type:varchar(64);primaryKey"                  firestore:"-"`
	UserID       string                      `json:"userId"       gorm:"type:varchar(128);not null;index:idx_meals_user" firestore:"userId"`
	Date         string                      `json:"date"         gorm:"type:varchar(10);not null"                    firestore:"date"`
	MealType     string                      `json:"mealType"     gorm:"type:varchar(32)"                             firestore:"mealType"`
	Content      string                      `json:"content"      gorm:"type:text"                                    firestore:"content"`
	PhotoURLs    datatypes.JSONSlice[string] `json:"photoUrls"    gorm:"type:json"                                    firestore:"photoUrls"`
	SharedPhotos datatypes.JSONSlice[string] `json:"sharedPhotos" gorm:"type:json"                                    firestore:"sharedPhotos"`
	CreatedAt    time.Time                   `json:"createdAt"                                                        firestore:"createdAt"`
	UpdatedAt    time.Time                   `json:"updatedAt"                                                        firestore:"updatedAt"`
}

// TableName returns the database table name for Meal.
func (Meal) TableName() string { return "meals" }

// RateLimitRecord is the per-user rate-limit document. Actions maps
// "{actionType}_actions" to the timestamps recorded inside the trailing
// one-hour window at the time of the last write.
type RateLimitRecord struct {
	UserID    string                                     `gorm:"type:varchar(128);primaryKey"`
	Actions   datatypes.JSONType[map[string][]time.Time] `gorm:"type:json"`
	UpdatedAt time.Time
}

// TableName returns the database table name for RateLimitRecord.
func (RateLimitRecord) TableName() string { return "rate_limits" }

// ErrorLog is a durable record of an unexpected failure at the function
// boundary.
type ErrorLog struct {
	ID        string    `json:"id"       gorm:"type:varchar(64);primaryKey" firestore:"-"`
	Function  string    `json:"function" gorm:"type:varchar(64);index"      firestore:"function"`
	UserID    string    `json:"userId"   gorm:"type:varchar(128)"           firestore:"userId"`
	RequestID string    `json:"requestId" gorm:"type:varchar(64)"          firestore:"requestId"`
	Message   string    `json:"message"  gorm:"type:text"                   firestore:"message"`
	CreatedAt time.Time `json:"createdAt" gorm:"index"                      firestore:"createdAt"`
}

// TableName returns the database table name for ErrorLog.
func (ErrorLog) TableName() string { return "error_logs" }

// Idempotency records the resource produced by a create call carrying an
// Idempotency-Key, keyed by (user_id, scope, key). A retried call with the
// same key replays ResourceID instead of creating a second resource.
type Idempotency struct {
	ID         string    `gorm:"type:varchar(64);primaryKey"                                       firestore:"-"`
	UserID     string    `gorm:"type:varchar(128);not null;uniqueIndex:ux_user_scope_key,priority:1" firestore:"userId"`
	Scope      string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_user_scope_key,priority:2"  firestore:"scope"`
	Key        string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_user_scope_key,priority:3" firestore:"key"`
	ResourceID string    `gorm:"type:varchar(64);not null"                                         firestore:"resourceId"`
	CreatedAt  time.Time `gorm:"not null"                                                          firestore:"createdAt"`
	ExpiresAt  time.Time `gorm:"not null;index"                                                    firestore:"expiresAt"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// All lists every model for schema migration.
func All() []any {
	return []any{
		&Post{},
		&Comment{},
		&Meal{},
		&Report{},
		&ReportIndexEntry{},
		&SharedPhoto{},
		&UserSettings{},
		&RateLimitRecord{},
		&ErrorLog{},
		&Idempotency{},
	}
}
