// Package report renders the outcome of a run for the operator, as styled
// text or JSON, and can store the JSON document in object storage.
package report
