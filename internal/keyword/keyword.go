// Package keyword splits free-form search titles into a base title plus the
// season and episode they mention.
//
// Release-style names ("Show.Name.S02E05.1080p") go through moistari/rls.
// CJK and spelled-out markers ("第二季", "第2期", "Season 2", "S2") are matched
// by pattern after full-width digits are folded.
package keyword

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/moistari/rls"
	"golang.org/x/text/width"

	"danmu/internal/textutil"
)

// Result is a parsed search keyword. Zero Season or Episode means the
// keyword did not mention one.
type Result struct {
	Title   string
	Season  int
	Episode int
}

var (
	cjkSeasonPattern   = regexp.MustCompile(`\s*第\s*([0-9一二三四五六七八九十两]+)\s*[季期部]`)
	cjkEpisodePattern  = regexp.MustCompile(`\s*第\s*([0-9一二三四五六七八九十百]+)\s*[集话話]`)
	japaneseSeason     = regexp.MustCompile(`\s+([0-9]+)期$`)
	englishSeason      = regexp.MustCompile(`(?i)\s*\bseason\s*([0-9]+)\b`)
	ordinalSeason      = regexp.MustCompile(`(?i)\s+([0-9]+)(?:st|nd|rd|th)\s+season\b`)
	shortSeasonEpisode = regexp.MustCompile(`(?i)\s*\bS([0-9]{1,2})(?:\s*E([0-9]{1,4}))?\b`)
	trailingEpisode    = regexp.MustCompile(`(?i)\s*\bE(?:P)?([0-9]{1,4})$`)
	bracketed          = regexp.MustCompile(`[\[【(（][^\]】)）]*[\]】)）]`)
	releaseSeparators  = regexp.MustCompile(`[._]`)
)

// Parse extracts the base title, season and episode from keyword.
func Parse(keyword string) Result {
	text := strings.TrimSpace(width.Narrow.String(keyword))
	if text == "" {
		return Result{}
	}
	if looksLikeRelease(text) {
		if res, ok := parseRelease(text); ok {
			return res
		}
	}

	var res Result
	text = cutNumber(text, cjkEpisodePattern, &res.Episode)
	text = cutNumber(text, cjkSeasonPattern, &res.Season)
	if res.Season == 0 {
		text = cutNumber(text, ordinalSeason, &res.Season)
	}
	if res.Season == 0 {
		text = cutNumber(text, englishSeason, &res.Season)
	}
	if res.Season == 0 {
		if m := shortSeasonEpisode.FindStringSubmatchIndex(text); m != nil {
			res.Season = atoi(text[m[2]:m[3]])
			if m[4] >= 0 {
				res.Episode = atoi(text[m[4]:m[5]])
			}
			text = text[:m[0]] + text[m[1]:]
		}
	}
	if res.Season == 0 {
		text = cutNumber(text, japaneseSeason, &res.Season)
	}
	if res.Episode == 0 {
		text = cutNumber(text, trailingEpisode, &res.Episode)
	}
	res.Title = strings.Join(strings.Fields(text), " ")
	return res
}

// SeasonOr returns the parsed season, or fallback when the keyword had none.
func (r Result) SeasonOr(fallback int) int {
	if r.Season > 0 {
		return r.Season
	}
	return fallback
}

// FilterKey reduces a title to the form used for alias matching: bracketed
// annotations removed, then normalized.
func FilterKey(title string) string {
	return textutil.NormalizeTitle(bracketed.ReplaceAllString(title, ""))
}

// MatchesAlias reports whether title and any alias contain one another once
// both are reduced with FilterKey.
func MatchesAlias(title string, aliases []string) bool {
	key := FilterKey(title)
	if key == "" {
		return false
	}
	for _, alias := range aliases {
		a := FilterKey(alias)
		if a == "" {
			continue
		}
		if strings.Contains(key, a) || strings.Contains(a, key) {
			return true
		}
	}
	return false
}

func looksLikeRelease(text string) bool {
	return !strings.ContainsAny(text, " ") && strings.Count(text, ".") >= 2
}

func parseRelease(text string) (Result, bool) {
	rel := rls.ParseString(text)
	title := strings.TrimSpace(rel.Title)
	if title == "" || (rel.Series == 0 && rel.Episode == 0) {
		return Result{}, false
	}
	title = strings.Join(strings.Fields(releaseSeparators.ReplaceAllString(title, " ")), " ")
	return Result{Title: title, Season: rel.Series, Episode: rel.Episode}, true
}

func cutNumber(text string, pattern *regexp.Regexp, dst *int) string {
	m := pattern.FindStringSubmatchIndex(text)
	if m == nil {
		return text
	}
	if n := atoi(text[m[2]:m[3]]); n > 0 {
		*dst = n
		return text[:m[0]] + text[m[1]:]
	}
	return text
}

// atoi parses ASCII digits or Chinese numerals up to 199.
func atoi(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return chineseNumber(s)
}

var chineseDigits = map[rune]int{
	'一': 1, '二': 2, '两': 2, '三': 3, '四': 4, '五': 5,
	'六': 6, '七': 7, '八': 8, '九': 9,
}

func chineseNumber(s string) int {
	total, current := 0, 0
	for _, r := range s {
		switch {
		case r == '十':
			if current == 0 {
				current = 1
			}
			total += current * 10
			current = 0
		case r == '百':
			if current == 0 {
				current = 1
			}
			total += current * 100
			current = 0
		default:
			d, ok := chineseDigits[r]
			if !ok {
				return 0
			}
			current = d
		}
	}
	return total + current
}
