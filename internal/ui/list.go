package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/trackmatch/internal/models"
)

var _ list.Item = candidateItem{}

// candidateItem wraps [models.Candidate] to implement [list.Item].
type candidateItem struct {
	candidate models.Candidate
}

func (i candidateItem) FilterValue() string { return i.candidate.Title }
func (i candidateItem) Title() string {
	if i.candidate.Artist == "" {
		return i.candidate.Title
	}
	return fmt.Sprintf("%s - %s", i.candidate.Title, i.candidate.Artist)
}

func (i candidateItem) Description() string {
	desc := styles.scoreStyle(i.candidate.Score).Render(fmt.Sprintf("%.2f", i.candidate.Score))
	if i.candidate.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.candidate.Album)
	}
	if i.candidate.DurationSecs > 0 {
		desc = fmt.Sprintf("%s • %s", desc, fmtDuration(i.candidate.DurationSecs))
	}
	return fmt.Sprintf("%s • %s", desc, i.candidate.Provenance)
}

func fmtDuration(secs float64) string {
	total := int(secs + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
