// Package ui implements the interactive review terminal using bubbletea's Elm architecture.
//
// Each confirmation request gets its own short session with two views:
//  1. [CandidateView] : Browse ranked candidates, accept one, or skip
//  2. [SearchView] : Type a free-text catalog search when nothing fits
//
// The (view) [reviewModel] implements bubbletea/Elm's standard Init/Update/View pattern.
// [TerminalOperator] adapts the session to the confirm.Operator interface, so the
// review loop itself stays headless and testable.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, s, /, esc, q) with
// contextual help displayed via charmbracelet/bubbles/help. Candidate scores are
// color-coded by confidence band.
package ui
