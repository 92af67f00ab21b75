package lyrics

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Line is one timed lyric line.
type Line struct {
	Time time.Duration
	Text string
}

var lrcTimeTag = regexp.MustCompile(`\[(\d+):(\d+)(?:\.(\d+))?\]`)

// Parse turns an LRC blob into lines sorted by time. A line carrying several
// time tags yields one Line per tag. Lines with equal timestamps keep their
// parse order.
func Parse(lrc string) []Line {
	var result []Line
	if strings.TrimSpace(lrc) == "" {
		return result
	}

	for _, raw := range strings.Split(lrc, "\n") {
		line := strings.TrimRight(raw, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		// {"t":0,"c":[...]} metadata lines from netease
		if strings.HasPrefix(line, "{") {
			continue
		}

		matches := lrcTimeTag.FindAllStringSubmatchIndex(line, -1)
		if len(matches) == 0 {
			continue
		}

		last := matches[len(matches)-1]
		text := strings.TrimSpace(line[last[1]:])
		if text == "" {
			continue
		}

		for _, m := range matches {
			var frac string
			if m[6] >= 0 {
				frac = line[m[6]:m[7]]
			}
			t, ok := parseTag(line[m[2]:m[3]], line[m[4]:m[5]], frac)
			if !ok {
				continue
			}
			result = append(result, Line{Time: t, Text: text})
		}
	}

	sort.SliceStable(result, func(i, j int) bool { return result[i].Time < result[j].Time })
	return result
}

func parseTag(minStr, secStr, frac string) (time.Duration, bool) {
	min, err := strconv.Atoi(minStr)
	if err != nil {
		return 0, false
	}
	sec, err := strconv.Atoi(secStr)
	if err != nil {
		return 0, false
	}

	ms := 0
	if frac != "" {
		if len(frac) > 3 {
			frac = frac[:3]
		}
		ms, err = strconv.Atoi(frac)
		if err != nil {
			return 0, false
		}
		// .5 is 500ms, .49 is 490ms
		switch len(frac) {
		case 1:
			ms *= 100
		case 2:
			ms *= 10
		}
	}

	// tags that do not fit a time.Duration are malformed
	if int64(min) > math.MaxInt64/int64(time.Minute) {
		return 0, false
	}
	total := time.Duration(min) * time.Minute
	if int64(sec) > (math.MaxInt64-int64(total)-int64(time.Second))/int64(time.Second) {
		return 0, false
	}
	return total + time.Duration(sec)*time.Second + time.Duration(ms)*time.Millisecond, true
}

// IndexAt returns the index of the rightmost line whose time is at or before
// position+offset, or -1 if there is none.
func IndexAt(position time.Duration, lines []Line, offset time.Duration) int {
	if len(lines) == 0 {
		return -1
	}
	target := position + offset
	// first line strictly after target; the one before it is active
	i := sort.Search(len(lines), func(i int) bool { return lines[i].Time > target })
	return i - 1
}

// LineAt returns the text of the active line at position, shifted forward by
// offset, or "" before the first line.
func LineAt(position time.Duration, lines []Line, offset time.Duration) string {
	i := IndexAt(position, lines, offset)
	if i < 0 {
		return ""
	}
	return lines[i].Text
}
