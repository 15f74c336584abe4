package extract

import (
	"regexp"
	"strings"

	"github.com/fmatlas/lattes-harvester/internal/model"
	"github.com/fmatlas/lattes-harvester/internal/textnorm"
	"github.com/fmatlas/lattes-harvester/internal/vocab"
)

// dateWindow bounds the scan around a title occurrence, in bytes of folded
// text. Wide enough to reach a trailing "(2011-2014)" or "desde 2002".
const dateWindow = 300

var (
	yearRangeRe = regexp.MustCompile(`((?:19|20)\d{2})\s*(?:-|–|a|ate)\s*((?:19|20)\d{2})`)
	sinceYearRe = regexp.MustCompile(`desde\s+((?:19|20)\d{2})`)
	monthYearRe = regexp.MustCompile(`(?:0?[1-9]|1[0-2])/(?:19|20)\d{2}`)
	soleYearRe  = regexp.MustCompile(`(?:19|20)\d{2}`)
)

// datesAround scans a fixed window around the title's occurrence in the
// biography for period information. An ongoing marker in the window forces
// status ongoing with no end date; otherwise a year range means completed,
// and a lone year leaves the status unknown. The first match in window
// order wins.
func datesAround(fullText, title string) (start, end string, status model.ProjectStatus) {
	window := windowAround(textnorm.Fold(fullText), textnorm.Fold(title))
	if window == "" {
		return "", "", model.StatusUnknown
	}

	ongoing := vocab.ContainsAny(window, vocab.Load().OngoingMarkers)

	// Earliest match in the window wins; a "desde", range, or month/year
	// match beats a bare year starting at the same position. The bare year
	// inside a month/year starts three bytes later, so it never shadows it.
	sinceLoc := sinceYearRe.FindStringSubmatchIndex(window)
	rangeLoc := yearRangeRe.FindStringSubmatchIndex(window)
	monthLoc := monthYearRe.FindStringIndex(window)
	soleLoc := soleYearRe.FindStringIndex(window)

	at := func(loc []int) int {
		if loc == nil {
			return len(window) + 1
		}
		return loc[0]
	}

	switch {
	case sinceLoc != nil && at(sinceLoc) <= at(rangeLoc) && at(sinceLoc) <= at(monthLoc) && at(sinceLoc) <= at(soleLoc):
		return window[sinceLoc[2]:sinceLoc[3]], "", model.StatusOngoing
	case monthLoc != nil && at(monthLoc) <= at(rangeLoc) && at(monthLoc) <= at(soleLoc):
		start = textnorm.ParseDate(window[monthLoc[0]:monthLoc[1]])
		if ongoing {
			return start, "", model.StatusOngoing
		}
		return start, "", model.StatusUnknown
	case rangeLoc != nil && at(rangeLoc) <= at(soleLoc):
		start = window[rangeLoc[2]:rangeLoc[3]]
		if ongoing {
			return start, "", model.StatusOngoing
		}
		return start, window[rangeLoc[4]:rangeLoc[5]], model.StatusCompleted
	case soleLoc != nil:
		start = window[soleLoc[0]:soleLoc[1]]
		if ongoing {
			return start, "", model.StatusOngoing
		}
		return start, "", model.StatusUnknown
	case ongoing:
		return "", "", model.StatusOngoing
	}
	return "", "", model.StatusUnknown
}

func windowAround(foldedText, foldedTitle string) string {
	idx := strings.Index(foldedText, foldedTitle)
	if idx < 0 {
		return ""
	}
	lo := max(0, idx-dateWindow)
	hi := min(len(foldedText), idx+len(foldedTitle)+dateWindow)
	return foldedText[lo:hi]
}
