// Package models contains GORM persistence models for records that only the
// infrastructure layer knows about: image sync runs and the pricing sync
// tables. Session, inquiry, project and analytics entities carry their own
// gorm tags and are persisted directly.
package models
