package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorReferentialConflict is returned when a delete would orphan rows that
// still reference the target (e.g. an ingredient pointing at an inventory item).
var ErrorReferentialConflict = errors.New("resource is still referenced and cannot be deleted")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
