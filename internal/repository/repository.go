// Package repository wraps gorm queries for the tables the lead flows own.
package repository

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrStatusConflict is returned when a listing cannot move to the requested status.
var ErrStatusConflict = errors.New("listing status does not allow this change")

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
