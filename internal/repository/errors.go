// Package repository persists users, issued credentials and delivery
// requests in MySQL.  The sentinel values below let handlers tell failure
// scenarios apart without inspecting driver errors.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrEmailExists is returned when registering an email that is already
// taken.  Handlers translate it into 409.
var ErrEmailExists = errors.New("email already exists")

// ErrUserNotFound is returned by user lookups that match nothing.
var ErrUserNotFound = errors.New("user not found")

// ErrCredentialInvalid covers unknown, expired and revoked credentials.
var ErrCredentialInvalid = errors.New("credential invalid")

// isDuplicate reports whether err is MySQL's duplicate-key error (1062).
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
