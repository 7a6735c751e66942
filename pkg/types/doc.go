// Package types defines the data model shared by the spec archival
// components: specs and their completion status, the archival
// configuration, archive metadata and the archive index, safety verdicts,
// archival results, and the standard error kinds.
package types
