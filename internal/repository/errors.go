// Package repository holds the persistence layer: MySQL repositories for
// users, ambulances, bookings and refresh tokens, the transactional Store
// the services run against, and an in-memory Store with the same
// semantics.  Absent rows are reported as sql.ErrNoRows in both
// implementations; the sentinels below cover the remaining outcomes that
// higher layers need to tell apart.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrUsernameExists is returned when the username unique key is violated.
var ErrUsernameExists = errors.New("username already exists")

// ErrEmailExists is returned when the email unique key is violated.
var ErrEmailExists = errors.New("email already exists")

// ErrActiveBookingExists is returned when inserting a booking would give a
// patient a second pending or confirmed booking.
var ErrActiveBookingExists = errors.New("patient already has an active booking")

// ErrDriverHasAmbulance is returned when a driver would own two ambulances.
var ErrDriverHasAmbulance = errors.New("driver already owns an ambulance")

// mysqlDuplicate reports whether err is a MySQL duplicate-key error (1062)
// and, if so, the message naming the violated key.
func mysqlDuplicate(err error) (string, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return me.Message, true
	}
	return "", false
}

// duplicateUserErr maps a duplicate-key error on the users table to the
// sentinel for the violated column.
func duplicateUserErr(err error) error {
	msg, ok := mysqlDuplicate(err)
	if !ok {
		return err
	}
	if strings.Contains(msg, "username") {
		return ErrUsernameExists
	}
	return ErrEmailExists
}
