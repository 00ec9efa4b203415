// Package authz holds the single authorization predicate for the intake
// workflow. Every step submission and record read goes through here before
// any field is touched.
package authz

import (
	"intake-service/internal/intake/steps"
	"intake-service/internal/models"
)

// CanSubmit reports whether the caller may submit the given step against the
// record. The funding pathway step requires staff regardless of ownership;
// every other step accepts the owning user or staff.
func CanSubmit(step steps.Name, caller models.Caller, rec *models.IntakeRecord) bool {
	if step.StaffOnly() {
		return caller.Role.IsStaff()
	}
	return caller.UserID == rec.UserID || caller.Role.IsStaff()
}

// CanView reports whether the caller may read the record.
func CanView(caller models.Caller, rec *models.IntakeRecord) bool {
	return caller.UserID == rec.UserID || caller.Role.IsStaff()
}
