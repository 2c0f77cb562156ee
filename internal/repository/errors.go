// Package repository defines the MySQL stores used by the reservation core
// and the sentinel errors they share.  Higher layers compare against these
// values with errors.Is to pick HTTP status codes and user-facing messages.
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrShowtimeNotFound is returned when a showtime lookup yields no rows.
var ErrShowtimeNotFound = errors.New("showtime not found")

// ErrSeatNotFound is returned when one or more seats do not exist.
var ErrSeatNotFound = errors.New("seat not found")

// ErrPaymentNotFound is returned when no payment matches an order id.
var ErrPaymentNotFound = errors.New("payment not found")

// ErrTransactionNotFound is returned when a payment has no linked
// transaction row.
var ErrTransactionNotFound = errors.New("transaction not found")

// ErrDuplicateReservation is returned when an insert hits the
// (seat_id, showtime_id) unique key.  It is the persistence-level proof
// that another session won the race for the seat.
var ErrDuplicateReservation = errors.New("reservation already exists for seat")

// ErrStaleReservation is returned when a conditional update touched fewer
// rows than expected because some rows changed underneath the caller.
var ErrStaleReservation = errors.New("reservation state changed concurrently")

// ErrLockConflict is returned when InnoDB aborted the statement because
// another transaction holds a conflicting lock on the same rows.
var ErrLockConflict = errors.New("row lock conflict")

const (
	mysqlDuplicateEntry  = 1062 // ER_DUP_ENTRY
	mysqlLockWaitTimeout = 1205 // ER_LOCK_WAIT_TIMEOUT
	mysqlDeadlock        = 1213 // ER_LOCK_DEADLOCK
)

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// IsLockConflict reports whether err is a deadlock or lock wait timeout,
// either raw from the driver or already translated to ErrLockConflict.
func IsLockConflict(err error) bool {
	if errors.Is(err, ErrLockConflict) {
		return true
	}
	var me *mysql.MySQLError
	return errors.As(err, &me) && (me.Number == mysqlDeadlock || me.Number == mysqlLockWaitTimeout)
}

// translateLock wraps lock conflicts in ErrLockConflict and passes every
// other error through unchanged.
func translateLock(err error) error {
	if err != nil && !errors.Is(err, ErrLockConflict) && IsLockConflict(err) {
		return fmt.Errorf("%w: %v", ErrLockConflict, err)
	}
	return err
}
