package db

import (
	"errors"

	"gorm.io/gorm"
)

// ErrStaleWrite is returned by conditional updates that matched no row
// because the row changed (or vanished) since it was read.
var ErrStaleWrite = errors.New("stale_write")

// MaxWriteAttempts bounds read-modify-write retries on a contended row.
const MaxWriteAttempts = 5

// CheckAffected turns a conditional write with no affected rows into ErrStaleWrite.
func CheckAffected(result *gorm.DB) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleWrite
	}
	return nil
}

// RetryStale runs fn until it succeeds, fails with anything other than
// ErrStaleWrite, or MaxWriteAttempts is reached.
func RetryStale(fn func() error) error {
	var err error
	for attempt := 0; attempt < MaxWriteAttempts; attempt++ {
		err = fn()
		if !errors.Is(err, ErrStaleWrite) {
			return err
		}
	}
	return err
}
