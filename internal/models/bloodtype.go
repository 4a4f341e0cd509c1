// Package models defines the domain models for the blood bank: blood types,
// inventory ledgers, donations, requests and donors.
package models

import (
	"fmt"
	"strings"
)

// BloodType represents an ABO/Rh blood type.
type BloodType string

const (
	BloodTypeAPos  BloodType = "A+"
	BloodTypeANeg  BloodType = "A-"
	BloodTypeBPos  BloodType = "B+"
	BloodTypeBNeg  BloodType = "B-"
	BloodTypeABPos BloodType = "AB+"
	BloodTypeABNeg BloodType = "AB-"
	BloodTypeOPos  BloodType = "O+"
	BloodTypeONeg  BloodType = "O-"
)

var allBloodTypes = []BloodType{
	BloodTypeAPos, BloodTypeANeg,
	BloodTypeBPos, BloodTypeBNeg,
	BloodTypeABPos, BloodTypeABNeg,
	BloodTypeOPos, BloodTypeONeg,
}

// AllBloodTypes returns the eight blood types in display order.
func AllBloodTypes() []BloodType {
	out := make([]BloodType, len(allBloodTypes))
	copy(out, allBloodTypes)
	return out
}

// Valid returns true if the blood type is valid.
func (b BloodType) Valid() bool {
	switch b {
	case BloodTypeAPos, BloodTypeANeg, BloodTypeBPos, BloodTypeBNeg,
		BloodTypeABPos, BloodTypeABNeg, BloodTypeOPos, BloodTypeONeg:
		return true
	default:
		return false
	}
}

func (b BloodType) String() string {
	return string(b)
}

// Index returns the position of the blood type in AllBloodTypes, or -1.
func (b BloodType) Index() int {
	for i, bt := range allBloodTypes {
		if bt == b {
			return i
		}
	}
	return -1
}

// ParseBloodType parses a blood type string such as "ab+" or " O- ".
func ParseBloodType(s string) (BloodType, error) {
	bt := BloodType(strings.ToUpper(strings.TrimSpace(s)))
	if !bt.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidBloodType, s)
	}
	return bt, nil
}

// recipient -> donor types it can receive from
var acceptsFrom = map[BloodType][]BloodType{
	BloodTypeAPos:  {BloodTypeAPos, BloodTypeANeg, BloodTypeOPos, BloodTypeONeg},
	BloodTypeANeg:  {BloodTypeANeg, BloodTypeONeg},
	BloodTypeBPos:  {BloodTypeBPos, BloodTypeBNeg, BloodTypeOPos, BloodTypeONeg},
	BloodTypeBNeg:  {BloodTypeBNeg, BloodTypeONeg},
	BloodTypeABPos: {BloodTypeAPos, BloodTypeANeg, BloodTypeBPos, BloodTypeBNeg, BloodTypeABPos, BloodTypeABNeg, BloodTypeOPos, BloodTypeONeg},
	BloodTypeABNeg: {BloodTypeANeg, BloodTypeBNeg, BloodTypeABNeg, BloodTypeONeg},
	BloodTypeOPos:  {BloodTypeOPos, BloodTypeONeg},
	BloodTypeONeg:  {BloodTypeONeg},
}

// donor -> recipient types it can give to
var givesTo = map[BloodType][]BloodType{
	BloodTypeAPos:  {BloodTypeAPos, BloodTypeABPos},
	BloodTypeANeg:  {BloodTypeAPos, BloodTypeANeg, BloodTypeABPos, BloodTypeABNeg},
	BloodTypeBPos:  {BloodTypeBPos, BloodTypeABPos},
	BloodTypeBNeg:  {BloodTypeBPos, BloodTypeBNeg, BloodTypeABPos, BloodTypeABNeg},
	BloodTypeABPos: {BloodTypeABPos},
	BloodTypeABNeg: {BloodTypeABPos, BloodTypeABNeg},
	BloodTypeOPos:  {BloodTypeAPos, BloodTypeBPos, BloodTypeABPos, BloodTypeOPos},
	BloodTypeONeg:  {BloodTypeAPos, BloodTypeANeg, BloodTypeBPos, BloodTypeBNeg, BloodTypeABPos, BloodTypeABNeg, BloodTypeOPos, BloodTypeONeg},
}

// CompatibleDonorsFor returns the donor blood types a recipient can receive.
// Unknown types yield an empty set.
func CompatibleDonorsFor(recipient BloodType) []BloodType {
	return append([]BloodType(nil), acceptsFrom[recipient]...)
}

// CompatibleRecipientsFor returns the recipient blood types a donor's blood can serve.
func CompatibleRecipientsFor(donor BloodType) []BloodType {
	return append([]BloodType(nil), givesTo[donor]...)
}

// CanDonateTo reports whether blood of the donor type may be given to the recipient type.
func CanDonateTo(donor, recipient BloodType) bool {
	for _, bt := range acceptsFrom[recipient] {
		if bt == donor {
			return true
		}
	}
	return false
}
