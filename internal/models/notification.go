package models

import "time"

// NotificationLog records one outbound notification attempt. Delivery
// is fire-and-forget; the log is the only record of failures.
type NotificationLog struct {
	ID         string    `badgerhold:"key"`
	ReportDate string    `badgerhold:"index"`
	RunType    string    ``
	Content    string    ``
	Success    bool      ``
	Error      string    ``
	CreatedAt  time.Time ``
}
