// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package schema describes table and column names of the identity schema so
// that queries are assembled from one source of truth.
package schema

import "github.com/taibuivan/campus/internal/platform/sec"

// SchemaIdentity holds the four principal tables.
const SchemaIdentity = "identity"

// PrincipalTable represents one of the 'identity.<role>' tables.
//
// The common columns exist on every table. Variant columns are empty strings
// on the tables that do not carry them.
type PrincipalTable struct {
	Table string

	ID                 string
	Email              string
	GivenName          string
	FamilyName         string
	Roles              string
	PasswordHash       string
	TemporaryPassword  string
	MustChangePassword string
	PasswordChangedAt  string
	CreatedAt          string
	UpdatedAt          string

	// Variant columns
	Username       string
	GuardianID     string
	Phone          string
	Title          string
	MfaEnabled     string
	MfaSecret      string
	MfaBackupCodes string
}

func principalTable(name string) PrincipalTable {
	return PrincipalTable{
		Table:              SchemaIdentity + "." + name,
		ID:                 "id",
		Email:              "email",
		GivenName:          "givenname",
		FamilyName:         "familyname",
		Roles:              "roles",
		PasswordHash:       "passwordhash",
		TemporaryPassword:  "temporarypassword",
		MustChangePassword: "mustchangepassword",
		PasswordChangedAt:  "passwordchangedat",
		CreatedAt:          "createdat",
		UpdatedAt:          "updatedat",
	}
}

// Student is the schema definition for identity.student
var Student = func() PrincipalTable {
	table := principalTable("student")
	table.Username = "username"
	table.GuardianID = "guardianid"
	return table
}()

// Guardian is the schema definition for identity.guardian
var Guardian = func() PrincipalTable {
	table := principalTable("guardian")
	table.Phone = "phone"
	return table
}()

// Instructor is the schema definition for identity.instructor
var Instructor = func() PrincipalTable {
	table := principalTable("instructor")
	table.Title = "title"
	return table
}()

// Administrator is the schema definition for identity.administrator
var Administrator = func() PrincipalTable {
	table := principalTable("administrator")
	table.MfaEnabled = "mfaenabled"
	table.MfaSecret = "mfasecret"
	table.MfaBackupCodes = "mfabackupcodes"
	return table
}()

// PrincipalTableFor returns the table holding principals of the given role.
func PrincipalTableFor(role sec.Role) (PrincipalTable, bool) {
	switch role {
	case sec.RoleStudent:
		return Student, true
	case sec.RoleGuardian:
		return Guardian, true
	case sec.RoleInstructor:
		return Instructor, true
	case sec.RoleAdministrator:
		return Administrator, true
	default:
		return PrincipalTable{}, false
	}
}

// Columns returns the common columns followed by this table's variant
// columns, always in the same order.
func (t PrincipalTable) Columns() []string {
	columns := []string{
		t.ID, t.Email, t.GivenName, t.FamilyName, t.Roles,
		t.PasswordHash, t.TemporaryPassword, t.MustChangePassword, t.PasswordChangedAt,
		t.CreatedAt, t.UpdatedAt,
	}
	return append(columns, t.VariantColumns()...)
}

// VariantColumns returns the role-specific columns present on this table.
func (t PrincipalTable) VariantColumns() []string {
	var columns []string
	for _, column := range []string{t.Username, t.GuardianID, t.Phone, t.Title, t.MfaEnabled, t.MfaSecret, t.MfaBackupCodes} {
		if column != "" {
			columns = append(columns, column)
		}
	}
	return columns
}
