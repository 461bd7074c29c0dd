package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ShareType discriminates the kinds of feed shares.
type ShareType string

const (
	ShareMeal    ShareType = "meal"
	ShareDaily   ShareType = "daily"
	ShareBest    ShareType = "best"
	ShareInsight ShareType = "insight"
)

// Valid reports whether t is a known share type.
func (t ShareType) Valid() bool {
	switch t {
	case ShareMeal, ShareDaily, ShareBest, ShareInsight:
		return true
	}
	return false
}

// SharedPhoto is one row of the public feed. Rows are owned by UserID and
// superseded as a group: sharing again under the same GroupingKey replaces
// every prior row for that key.
type SharedPhoto struct {
	ID            string    `json:"id"                      gorm:"type:varchar(64);primaryKey"                   firestore:"-"`
	PhotoURL      string    `json:"photoUrl"                gorm:"type:text;not null"                            firestore:"photoUrl"`
	UserID        string    `json:"userId"                  gorm:"type:varchar(128);not null;index:idx_shares_user" firestore:"userId"`
	UserNickname  string    `json:"userNickname"            gorm:"type:varchar(255)"                             firestore:"userNickname"`
	UserIcon      string    `json:"userIcon,omitempty"      gorm:"type:varchar(255)"                             firestore:"userIcon"`
	UserPhotoURL  string    `json:"userPhotoUrl,omitempty"  gorm:"type:text"                                     firestore:"userPhotoUrl"`
	Type          ShareType `json:"type"                    gorm:"type:varchar(16);not null"                     firestore:"type"`
	EntryID       *string   `json:"entryId"                 gorm:"type:varchar(64);index"                        firestore:"entryId"`
	Date          string    `json:"date,omitempty"          gorm:"type:varchar(10)"                              firestore:"date,omitempty"`
	MealType      string    `json:"mealType,omitempty"      gorm:"type:varchar(32)"                              firestore:"mealType,omitempty"`
	PeriodType    string    `json:"periodType,omitempty"    gorm:"type:varchar(16)"                              firestore:"periodType,omitempty"`
	PeriodText    string    `json:"periodText,omitempty"    gorm:"type:varchar(64)"                              firestore:"periodText,omitempty"`
	DateRangeText string    `json:"dateRangeText,omitempty" gorm:"type:varchar(64)"                              firestore:"dateRangeText,omitempty"`
	Comment       string    `json:"comment,omitempty"       gorm:"type:text"                                     firestore:"comment,omitempty"`
	Timestamp     time.Time `json:"timestamp"               gorm:"not null;index:idx_shares_ts"                  firestore:"timestamp"`
}

// TableName returns the database table name for SharedPhoto.
func (SharedPhoto) TableName() string { return "shared_photos" }

// ErrInvalidGroupingKey is returned when a grouping key lacks a field its
// share type requires.
var ErrInvalidGroupingKey = errors.New("invalid grouping key")

// GroupingKey selects which of a user's shared rows a new share supersedes.
//
//	meal:    (type, entryId)             empty EntryID means "no entryId"
//	daily:   (type, date)
//	best:    (type, periodType, periodText)
//	insight: (type, dateRangeText)
type GroupingKey struct {
	Type          ShareType
	EntryID       string
	Date          string
	PeriodType    string
	PeriodText    string
	DateRangeText string
}

// MealKey returns the grouping key for meal-photo shares of entryID.
func MealKey(entryID string) GroupingKey {
	return GroupingKey{Type: ShareMeal, EntryID: strings.TrimSpace(entryID)}
}

// DailyKey returns the grouping key for the daily share of date.
func DailyKey(date string) GroupingKey {
	return GroupingKey{Type: ShareDaily, Date: strings.TrimSpace(date)}
}

// BestKey returns the grouping key for a best-of share.
func BestKey(periodType, periodText string) GroupingKey {
	return GroupingKey{Type: ShareBest, PeriodType: strings.TrimSpace(periodType), PeriodText: strings.TrimSpace(periodText)}
}

// InsightKey returns the grouping key for an insight share.
func InsightKey(dateRangeText string) GroupingKey {
	return GroupingKey{Type: ShareInsight, DateRangeText: strings.TrimSpace(dateRangeText)}
}

// Validate checks that the fields required by the key's type are present.
func (k GroupingKey) Validate() error {
	switch k.Type {
	case ShareMeal:
		return nil
	case ShareDaily:
		if k.Date == "" {
			return fmt.Errorf("%w: daily share requires date", ErrInvalidGroupingKey)
		}
	case ShareBest:
		if k.PeriodType == "" || k.PeriodText == "" {
			return fmt.Errorf("%w: best share requires periodType and periodText", ErrInvalidGroupingKey)
		}
	case ShareInsight:
		if k.DateRangeText == "" {
			return fmt.Errorf("%w: insight share requires dateRangeText", ErrInvalidGroupingKey)
		}
	default:
		return fmt.Errorf("%w: unknown share type %q", ErrInvalidGroupingKey, k.Type)
	}
	return nil
}

// Matches reports whether row belongs to the key's group (ownership is
// checked separately by the store).
func (k GroupingKey) Matches(row SharedPhoto) bool {
	if row.Type != k.Type {
		return false
	}
	switch k.Type {
	case ShareMeal:
		if k.EntryID == "" {
			return row.EntryID == nil || *row.EntryID == ""
		}
		return row.EntryID != nil && *row.EntryID == k.EntryID
	case ShareDaily:
		return row.Date == k.Date
	case ShareBest:
		return row.PeriodType == k.PeriodType && row.PeriodText == k.PeriodText
	case ShareInsight:
		return row.DateRangeText == k.DateRangeText
	}
	return false
}

// Stamp copies the key's fields onto row so the inserted row is found by
// the next replace under the same key.
func (k GroupingKey) Stamp(row *SharedPhoto) {
	row.Type = k.Type
	switch k.Type {
	case ShareMeal:
		if k.EntryID != "" {
			id := k.EntryID
			row.EntryID = &id
		} else {
			row.EntryID = nil
		}
	case ShareDaily:
		row.Date = k.Date
	case ShareBest:
		row.PeriodType, row.PeriodText = k.PeriodType, k.PeriodText
	case ShareInsight:
		row.DateRangeText = k.DateRangeText
	}
}

// String renders the key for logs and span attributes.
func (k GroupingKey) String() string {
	switch k.Type {
	case ShareMeal:
		if k.EntryID == "" {
			return "meal:<none>"
		}
		return "meal:" + k.EntryID
	case ShareDaily:
		return "daily:" + k.Date
	case ShareBest:
		return "best:" + k.PeriodType + ":" + k.PeriodText
	case ShareInsight:
		return "insight:" + k.DateRangeText
	}
	return string(k.Type)
}
