// Package persistence stores the worker activity log: lifecycle events and
// the per-leg dispatch ledger, queryable from the monitoring screen.
package persistence

import (
	"time"

	"gorm.io/gorm"

	"github.com/andrescamacho/polisbot/internal/application/transport"
	"github.com/andrescamacho/polisbot/internal/domain/fleet"
	"github.com/andrescamacho/polisbot/internal/domain/shared"
)

// ActivityRecord is one worker lifecycle event
type ActivityRecord struct {
	ID        uint      `gorm:"primaryKey"`
	PID       int       `gorm:"index"`
	Module    string    `gorm:"index;size:64"`
	Event     string    `gorm:"size:64"`
	Detail    string    `gorm:"size:1024"`
	CreatedAt time.Time `gorm:"index"`
}

// DispatchRow is one transport leg as shipped
type DispatchRow struct {
	ID              uint   `gorm:"primaryKey"`
	PID             int    `gorm:"index"`
	OriginCity      string `gorm:"size:32"`
	DestinationCity string `gorm:"size:32"`
	ShipClass       string `gorm:"size:16"`
	Wood            int64
	Wine            int64
	Marble          int64
	Crystal         int64
	Sulfur          int64
	ShipsExpected   int
	ShipsConsumed   int
	CreatedAt       time.Time `gorm:"index"`
}

// ActivityLog is the repository over both tables
type ActivityLog struct {
	db    *gorm.DB
	clock shared.Clock
}

// NewActivityLog migrates the schema and returns the repository
func NewActivityLog(db *gorm.DB, clock shared.Clock) (*ActivityLog, error) {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if err := db.AutoMigrate(&ActivityRecord{}, &DispatchRow{}); err != nil {
		return nil, err
	}
	return &ActivityLog{db: db, clock: clock}, nil
}

// LogEvent appends one lifecycle event
func (l *ActivityLog) LogEvent(pid int, module, event, detail string) error {
	return l.db.Create(&ActivityRecord{
		PID:       pid,
		Module:    module,
		Event:     event,
		Detail:    detail,
		CreatedAt: l.clock.Now(),
	}).Error
}

// RecordDispatch appends one transport leg to the ledger
func (l *ActivityLog) RecordDispatch(pid int, class fleet.ShipClass, rec transport.DispatchRecord) error {
	return l.db.Create(&DispatchRow{
		PID:             pid,
		OriginCity:      rec.Route.OriginCityID,
		DestinationCity: rec.Route.DestinationCityID,
		ShipClass:       string(class),
		Wood:            rec.Cargo[shared.ResourceWood],
		Wine:            rec.Cargo[shared.ResourceWine],
		Marble:          rec.Cargo[shared.ResourceMarble],
		Crystal:         rec.Cargo[shared.ResourceCrystal],
		Sulfur:          rec.Cargo[shared.ResourceSulfur],
		ShipsExpected:   rec.ShipsExpected,
		ShipsConsumed:   rec.ShipsConsumed,
		CreatedAt:       rec.SentAt,
	}).Error
}

// RecentEvents returns the newest lifecycle events, newest first
func (l *ActivityLog) RecentEvents(limit int) ([]ActivityRecord, error) {
	var out []ActivityRecord
	err := l.db.Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// RecentDispatches returns the newest ledger rows, newest first
func (l *ActivityLog) RecentDispatches(limit int) ([]DispatchRow, error) {
	var out []DispatchRow
	err := l.db.Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}
