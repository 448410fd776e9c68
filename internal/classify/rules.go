// Package classify turns external-tool diagnostics into confidence-scored
// verdicts. Classification is a pure function over (text, exit code, depth)
// and an immutable rule set built once at startup.
package classify

// signature pairs a human-readable issue name with the lowercase substring
// that detects it in diagnostic output.
type signature struct {
	name    string
	pattern string
}

// Rules is the immutable pattern-group configuration. Build it once with
// DefaultRules and share it across workers; it is never mutated after
// construction.
type Rules struct {
	corruption    []signature
	warning       []signature
	criticalExits map[int]bool
	suspicious    []string
	network       []string
}

// DefaultRules returns the built-in rule set tuned for ffmpeg/ffprobe
// diagnostic wording.
func DefaultRules() *Rules {
	return &Rules{
		// High-confidence corruption wording. Matching any of these is
		// decisive on its own.
		corruption: []signature{
			{"invalid data in stream", "invalid data found"},
			{"truncated stream", "truncat"},
			{"malformed stream", "malformed"},
			{"missing container index", "moov atom not found"},
			{"decode error", "error while decoding"},
			{"slice header error", "decode_slice_header"},
			{"invalid NAL unit", "invalid nal"},
			{"NAL unit error", "no nal unit"},
			{"damaged header", "header damaged"},
			{"missing header", "header missing"},
			{"premature end of stream", "premature end"},
			{"unreadable atom", "error reading header"},
		},
		// Lower-confidence decode warnings. Suspicious on a quick pass,
		// largely benign once the whole file decoded.
		warning: []signature{
			{"timestamp discontinuity", "timestamp discontinuity"},
			{"non-monotonic dts", "non-monotonous dts"},
			{"non-monotonic dts", "non-monotonic dts"},
			{"frame size anomaly", "invalid frame size"},
			{"frame size anomaly", "frame size exceeds"},
			{"error concealment", "concealing"},
			{"oversized frame duration", "past duration"},
		},
		// sysexits-style codes ffmpeg and similar tools use: 1 generic
		// failure, 65 data format error, 74 I/O error.
		criticalExits: map[int]bool{1: true, 65: true, 74: true},
		suspicious: []string{
			"error", "invalid", "corrupt", "missing", "failed",
			"broken", "damaged", "incomplete", "illegal", "unexpected",
		},
		network: []string{
			"connection", "ssl", "tls", "certificate", "network",
		},
	}
}

// match returns the names of every signature whose pattern occurs in the
// lowercase diagnostic text. Duplicate names collapse to one entry.
func matchSignatures(sigs []signature, lower string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, s := range sigs {
		if seen[s.name] {
			continue
		}
		if contains(lower, s.pattern) {
			names = append(names, s.name)
			seen[s.name] = true
		}
	}
	return names
}
