// Package models defines domain entities for the trackmatch resolution service.
//
// The package contains lightweight value types passed between pipeline stages:
//   - [TrackQuery] : A loosely-specified track reference to resolve
//   - [Candidate] : A catalog track proposed as a match, with score and provenance
//   - [Resolution] : The final outcome for one query
//   - [ConfirmationRequest] : A manual-review work item with ranked candidates
//
// Candidates carry a [Provenance] marking where they were found (backend search,
// local index, linked identifier, or manual operator search); provenance feeds the
// deterministic tie-break ordering in the matching package.
package models
