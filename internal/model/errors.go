package model

import (
	"fmt"
	"time"
)

// InsufficientDataError reports a post with no metric snapshot at or before the as-of date.
type InsufficientDataError struct {
	PostID string
	AsOf   time.Time
}

func (e *InsufficientDataError) Error() string {
	if e.AsOf.IsZero() {
		return fmt.Sprintf("post %s: no metric snapshots", e.PostID)
	}
	return fmt.Sprintf("post %s: no metric snapshot on or before %s", e.PostID, e.AsOf.Format("2006-01-02"))
}

// DataQualityWarning records a counter that was out of range and how it was repaired.
type DataQualityWarning struct {
	PostID string
	Field  string
	Value  float64
	Action string
}

func (w DataQualityWarning) String() string {
	return fmt.Sprintf("post %s: %s=%v (%s)", w.PostID, w.Field, w.Value, w.Action)
}

// ConfigurationError is a fatal option error raised before a run starts.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
