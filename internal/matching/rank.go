package matching

import (
	"math"
	"sort"

	"github.com/desertthunder/trackmatch/internal/models"
)

// tieEpsilon is the score gap below which two candidates are treated
// as equivalent and fall through to the deterministic tie-breakers.
const tieEpsilon = 0.01

// Rank scores every candidate against the query and returns them
// sorted best-first. Candidates within tieEpsilon of each other are
// ordered by provenance (linked identifiers beat free-text search),
// then exact duration match, then original position. The sort is
// stable: equal candidates keep their first-seen order.
func Rank(q models.TrackQuery, candidates []models.Candidate) []models.Candidate {
	ranked := make([]models.Candidate, len(candidates))
	copy(ranked, candidates)

	for i := range ranked {
		ranked[i].Score = Score(q, ranked[i])
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if math.Abs(a.Score-b.Score) > tieEpsilon {
			return a.Score > b.Score
		}
		if pa, pb := provenanceRank(a.Provenance), provenanceRank(b.Provenance); pa != pb {
			return pa < pb
		}
		if ea, eb := exactDuration(q, a), exactDuration(q, b); ea != eb {
			return ea
		}
		return false
	})

	return ranked
}

// Best returns the top-ranked candidate or nil when the list is empty.
func Best(q models.TrackQuery, candidates []models.Candidate) *models.Candidate {
	ranked := Rank(q, candidates)
	if len(ranked) == 0 {
		return nil
	}
	return &ranked[0]
}

// Dedupe collapses candidates sharing a backend id, keeping the
// highest score and the strongest provenance seen for each.
func Dedupe(candidates []models.Candidate) []models.Candidate {
	seen := make(map[string]int, len(candidates))
	var out []models.Candidate

	for _, c := range candidates {
		idx, ok := seen[c.BackendID]
		if !ok {
			seen[c.BackendID] = len(out)
			out = append(out, c)
			continue
		}
		if c.Score > out[idx].Score {
			out[idx].Score = c.Score
		}
		if provenanceRank(c.Provenance) < provenanceRank(out[idx].Provenance) {
			out[idx].Provenance = c.Provenance
		}
	}

	return out
}

func provenanceRank(p models.Provenance) int {
	switch p {
	case models.ProvenanceLinked:
		return 0
	case models.ProvenanceManual:
		return 1
	case models.ProvenanceLocalIndex:
		return 2
	default:
		return 3
	}
}

func exactDuration(q models.TrackQuery, c models.Candidate) bool {
	if q.DurationSecs <= 0 || c.DurationSecs <= 0 {
		return false
	}
	return math.Abs(q.DurationSecs-c.DurationSecs) < 0.5
}
