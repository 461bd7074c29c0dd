package domain

import (
	"strings"
	"time"
)

// SettingsSchemaVersion is the current UserSettings layout. Version 1
// documents kept nickname and icon at the top level.
const SettingsSchemaVersion = 2

// Profile holds the public identity a user shows on the board and feed.
type Profile struct {
	Nickname string `json:"nickname"           gorm:"type:varchar(255)" firestore:"nickname"`
	Icon     string `json:"icon,omitempty"     gorm:"type:varchar(255)" firestore:"icon"`
	PhotoURL string `json:"photoUrl,omitempty" gorm:"type:text"         firestore:"photoUrl"`
}

// UserSettings is the per-user settings document.
type UserSettings struct {
	UserID        string     `json:"userId"                  gorm:"type:varchar(128);primaryKey" firestore:"-"`
	SchemaVersion int        `json:"schemaVersion"           gorm:"not null;default:0"           firestore:"schemaVersion"`
	TermsAgreed   bool       `json:"termsAgreed"             gorm:"not null;default:false"       firestore:"termsAgreed"`
	TermsVersion  string     `json:"termsVersion,omitempty"  gorm:"type:varchar(32)"             firestore:"termsVersion,omitempty"`
	TermsAgreedAt *time.Time `json:"termsAgreedAt,omitempty"                                     firestore:"termsAgreedAt,omitempty"`
	Profile       Profile    `json:"profile"                 gorm:"embedded;embeddedPrefix:profile_" firestore:"profile"`
	UpdatedAt     time.Time  `json:"updatedAt"                                                   firestore:"updatedAt"`

	// Version 1 layout.
	LegacyNickname string `json:"-" gorm:"column:nickname;type:varchar(255)" firestore:"nickname,omitempty"`
	LegacyIcon     string `json:"-" gorm:"column:icon;type:varchar(255)"     firestore:"icon,omitempty"`
}

// TableName returns the database table name for UserSettings.
func (UserSettings) TableName() string { return "user_settings" }

// MigrateSettings upgrades s in place to SettingsSchemaVersion and reports
// whether anything changed. Stores call it once when a document is loaded so
// callers only ever see the current layout.
func MigrateSettings(s *UserSettings) bool {
	if s == nil || s.SchemaVersion >= SettingsSchemaVersion {
		return false
	}
	if s.Profile.Nickname == "" {
		s.Profile.Nickname = strings.TrimSpace(s.LegacyNickname)
	}
	if s.Profile.Icon == "" {
		s.Profile.Icon = s.LegacyIcon
	}
	s.LegacyNickname, s.LegacyIcon = "", ""
	s.SchemaVersion = SettingsSchemaVersion
	return true
}

// ReadinessFacts are the derived facts that drive the client auth flow.
type ReadinessFacts struct {
	TermsAgreed    bool `json:"termsAgreed"`
	HasProfile     bool `json:"hasProfile"`
	IsExistingUser bool `json:"isExistingUser"`
}

// FactsFrom derives readiness facts from a settings document (nil when the
// user has none yet). Consent recorded without a version predates terms
// versioning and is honored as consent to currentTerms.
func FactsFrom(s *UserSettings, currentTerms string, hasPriorRecords bool) ReadinessFacts {
	f := ReadinessFacts{IsExistingUser: hasPriorRecords}
	if s == nil {
		return f
	}
	f.TermsAgreed = s.TermsAgreed && (s.TermsVersion == "" || s.TermsVersion == currentTerms)
	f.HasProfile = strings.TrimSpace(s.Profile.Nickname) != ""
	return f
}
