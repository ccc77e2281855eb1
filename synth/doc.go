// Package synth builds a suggested request payload from extraction results
// and a request schema, and reports which required fields are missing.
//
// Values are taken, per property and in this order, from the extraction
// result, the schema example, the schema default, or a placeholder derived
// from the property type.
package synth
