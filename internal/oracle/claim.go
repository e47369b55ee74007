package oracle

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	fidPattern   = regexp.MustCompile(`(?i)\bfid\s*[:#]?\s*(\d+)\b`)
	countPattern = regexp.MustCompile(`(?i)\b(\d[\d,]*)\s+(?:reps?\s+(?:of\s+)?)?([a-z][a-z\- ]*)`)

	exerciseAliases = map[string]string{
		"pushup": "pushups", "pushups": "pushups", "push-up": "pushups", "push-ups": "pushups", "push up": "pushups", "push ups": "pushups",
		"squat": "squats", "squats": "squats",
		"situp": "situps", "situps": "situps", "sit-up": "situps", "sit-ups": "situps", "sit up": "situps", "sit ups": "situps",
		"pullup": "pullups", "pullups": "pullups", "pull-up": "pullups", "pull-ups": "pullups", "pull up": "pullups", "pull ups": "pullups",
		"burpee": "burpees", "burpees": "burpees",
		"lunge": "lunges", "lunges": "lunges",
		"jumping jack": "jumping_jacks", "jumping jacks": "jumping_jacks", "jumping_jacks": "jumping_jacks",
	}
	exercisePattern = buildExercisePattern()
)

func buildExercisePattern() *regexp.Regexp {
	alts := make([]string, 0, len(exerciseAliases))
	for alias := range exerciseAliases {
		alts = append(alts, regexp.QuoteMeta(alias))
	}
	// Longest alias first.
	slices.SortFunc(alts, func(a, b string) int { return len(b) - len(a) })
	return regexp.MustCompile(`(?i)\b(` + strings.Join(alts, "|") + `)\b`)
}

// NormalizeExercise maps an exercise name or alias to its canonical form.
func NormalizeExercise(s string) (string, bool) {
	canon, ok := exerciseAliases[strings.ToLower(strings.TrimSpace(s))]
	return canon, ok
}

// FindExercise returns the first exercise mentioned in text.
func FindExercise(text string) (string, bool) {
	m := exercisePattern.FindString(text)
	if m == "" {
		return "", false
	}
	return NormalizeExercise(m)
}

// StatedCount returns the largest count written directly before a mention
// of exercise, as in "120 pushups" or "50 reps of squats". Numbers not
// attached to the exercise, such as dates, times, and FIDs, are ignored.
func StatedCount(text, exercise string) (uint64, bool) {
	var (
		best  uint64
		found bool
	)
	for _, m := range countPattern.FindAllStringSubmatch(text, -1) {
		words := strings.Fields(m[2])
		for i := len(words); i > 0; i-- {
			canon, ok := NormalizeExercise(strings.Join(words[:i], " "))
			if !ok || canon != exercise {
				continue
			}
			n, err := strconv.ParseUint(strings.ReplaceAll(m[1], ",", ""), 10, 64)
			if err == nil && (!found || n > best) {
				best, found = n, true
			}
			break
		}
	}
	return best, found
}

// FitnessSubject is who a fitness prediction is about and what they do.
type FitnessSubject struct {
	FID      uint64
	Exercise string
}

// ParseFitnessSubject extracts a Farcaster FID and an exercise from
// free text such as "FID 123 will do 500 pushups by March 1".
func ParseFitnessSubject(text string) (FitnessSubject, bool) {
	m := fidPattern.FindStringSubmatch(text)
	if m == nil {
		return FitnessSubject{}, false
	}
	fid, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return FitnessSubject{}, false
	}
	exercise, ok := FindExercise(text)
	if !ok {
		return FitnessSubject{}, false
	}
	return FitnessSubject{FID: fid, Exercise: exercise}, true
}
