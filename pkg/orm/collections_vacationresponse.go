package orm

import (
	"github.com/jmapstore/core/pkg/jmaperr"
	"github.com/jmapstore/core/pkg/types"
)

// Grounded on
// original_source/components/jmap_mail/src/vacation_response/set.rs: one
// VacationResponse document per account (the singleton document ID 0),
// enable flag, an optional active window, and subject/text/html bodies.
const vacationSingletonID types.DocumentID = 0

// VacationResponseSchema implements Schema for types.CollectionVacationResponse.
type VacationResponseSchema struct{}

func (VacationResponseSchema) Collection() types.Collection {
	return types.CollectionVacationResponse
}

func (VacationResponseSchema) DefaultProperties() map[uint8]types.Value {
	return map[uint8]types.Value{
		VacationIsEnabled: {Kind: types.KindBool, Bool: false},
	}
}

func (VacationResponseSchema) Normalize(env ValidationEnv, isInsert bool, diff *Diff) error {
	return nil
}

func (VacationResponseSchema) Validate(env ValidationEnv, id types.DocumentID, doc map[uint8]types.Value) error {
	if id != vacationSingletonID {
		return jmaperr.New(jmaperr.KindForbidden, "VacationResponse is a singleton; only document id 0 is valid")
	}

	from, hasFrom := doc[VacationFromDate]
	to, hasTo := doc[VacationToDate]
	if hasFrom && from.Kind != types.KindDateTime {
		return jmaperr.InvalidProperty("fromDate", "must be a date-time")
	}
	if hasTo && to.Kind != types.KindDateTime {
		return jmaperr.InvalidProperty("toDate", "must be a date-time")
	}
	if hasFrom && hasTo && from.DateTime > to.DateTime {
		return jmaperr.InvalidProperty("toDate", "toDate must not be before fromDate")
	}

	for prop, name := range map[uint8]string{
		VacationSubject:  "subject",
		VacationTextBody: "textBody",
		VacationHTMLBody: "htmlBody",
	} {
		if v, ok := doc[prop]; ok && v.Kind != types.KindText {
			return jmaperr.InvalidProperty(name, "must be a string")
		}
	}
	if enabled, ok := doc[VacationIsEnabled]; ok && enabled.Kind != types.KindBool {
		return jmaperr.InvalidProperty("isEnabled", "must be a boolean")
	}
	return nil
}

func (VacationResponseSchema) IndexAs(doc map[uint8]types.Value) []UpdateField {
	var fields []UpdateField
	for _, prop := range []uint8{
		VacationIsEnabled, VacationFromDate, VacationToDate,
		VacationSubject, VacationTextBody, VacationHTMLBody,
	} {
		if v, ok := doc[prop]; ok {
			fields = append(fields, valueToStoredField(prop, v))
		}
	}
	return fields
}
