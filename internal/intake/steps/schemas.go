// internal/intake/steps/schemas.go
package steps

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Payload schemas per step. Divergent shapes are enforced here so a typed
// struct only ever sees a well-formed document.
var schemaSources = map[Name]string{
	Identity: `{
		"type": "object",
		"required": ["verified", "documentType"],
		"properties": {
			"verified": {"type": "boolean"},
			"documentType": {"type": "string", "minLength": 1}
		}
	}`,
	WorkforceScreening: `{
		"type": "object",
		"required": ["eligible", "agency", "caseManager", "fundingType"],
		"properties": {
			"eligible": {"type": "boolean"},
			"agency": {"type": "string"},
			"caseManager": {"type": "string"},
			"fundingType": {"type": "string"}
		}
	}`,
	EmployerScreening: `{
		"type": "object",
		"required": ["eligible", "employerName", "contact", "reimbursementConfirmed"],
		"properties": {
			"eligible": {"type": "boolean"},
			"employerName": {"type": ["string", "null"]},
			"contact": {"type": ["string", "null"]},
			"reimbursementConfirmed": {"type": "boolean"}
		}
	}`,
	FinancialReadiness: `{
		"type": "object",
		"required": ["canPayDownPayment", "canCommitMonthly", "acceptsAutoPayment", "understands90DayLimit"],
		"properties": {
			"canPayDownPayment": {"type": "boolean"},
			"canCommitMonthly": {"type": "boolean"},
			"acceptsAutoPayment": {"type": "boolean"},
			"understands90DayLimit": {"type": "boolean"}
		}
	}`,
	ProgramReadiness: `{
		"type": "object",
		"required": ["startDateConfirmed", "attendanceUnderstood", "technologyConfirmed", "timeCommitmentAcknowledged", "outcomeExpectationsExplained"],
		"properties": {
			"startDateConfirmed": {"type": "boolean"},
			"attendanceUnderstood": {"type": "boolean"},
			"technologyConfirmed": {"type": "boolean"},
			"timeCommitmentAcknowledged": {"type": "boolean"},
			"outcomeExpectationsExplained": {"type": "boolean"}
		}
	}`,
	FundingPathway: `{
		"type": "object",
		"required": ["pathway"],
		"properties": {
			"pathway": {"type": "string"}
		}
	}`,
	Signature: `{
		"type": "object",
		"required": ["signed", "signatureData"],
		"properties": {
			"signed": {"type": "boolean"},
			"signatureData": {"type": "string", "minLength": 1}
		}
	}`,
}

var schemas = map[Name]*gojsonschema.Schema{}

func init() {
	for name, src := range schemaSources {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			panic(fmt.Sprintf("invalid schema for step %s: %v", name, err))
		}
		schemas[name] = schema
	}
}
