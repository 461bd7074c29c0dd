package domain

import "time"

// ReasonOther is the report reason that requires a free-text ReasonOther.
const ReasonOther = "other"

// Report is a user report against a piece of shared content, identified by
// its target group key.
type Report struct {
	ID             string    `json:"id"                    gorm:"type:varchar(64);primaryKey"          firestore:"-"`
	TargetGroupKey string    `json:"targetGroupKey"        gorm:"type:varchar(255);not null;index"     firestore:"targetGroupKey"`
	Reason         string    `json:"reason"                gorm:"type:varchar(64);not null"            firestore:"reason"`
	ReasonOther    string    `json:"reasonOther,omitempty" gorm:"type:text"                            firestore:"reasonOther,omitempty"`
	ReportedBy     string    `json:"reportedBy"            gorm:"type:varchar(128);not null;index"     firestore:"reportedBy"`
	ReportedAt     time.Time `json:"reportedAt"            gorm:"not null"                             firestore:"reportedAt"`
}

// TableName returns the database table name for Report.
func (Report) TableName() string { return "reports" }

// ReportIndexEntry is one slot of a reporter's UserReportIndex: the report
// the user already filed against TargetGroupKey. The pair (UserID,
// TargetGroupKey) is the primary key so duplicate detection is a point read.
type ReportIndexEntry struct {
	UserID         string `json:"-"                     gorm:"type:varchar(128);primaryKey" firestore:"-"`
	TargetGroupKey string `json:"-"                     gorm:"type:varchar(255);primaryKey" firestore:"-"`
	ReportID       string `json:"reportId"              gorm:"type:varchar(64);not null"    firestore:"reportId"`
	Reason         string `json:"reason"                gorm:"type:varchar(64)"             firestore:"reason"`
	ReasonOther    string `json:"reasonOther,omitempty" gorm:"type:text"                    firestore:"reasonOther"`
}

// TableName returns the database table name for ReportIndexEntry.
func (ReportIndexEntry) TableName() string { return "user_report_index" }
