package augment

import (
	"strconv"
	"strings"
)

// Assessment is one parsed model judgement about a candidate. Index is
// 1-based, matching the numbering in the prompt.
type Assessment struct {
	Index      int
	Confidence float64
	Reason     string
}

// parseAssessments extracts assessments from a model response.
//
// Accepted line shapes, one assessment per line:
//
//	2 0.85 matches the registry auth error
//	2 | 0.85 | matches the registry auth error
//
// A line of just "None" (any case) means no candidate applies. Code
// fences, empty lines and lines that do not parse are skipped; an index
// outside [1, n] is skipped. When the same index appears twice the last
// line wins.
func parseAssessments(response string, n int) []Assessment {
	byIndex := make(map[int]Assessment)
	var order []int

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		if strings.EqualFold(strings.TrimRight(line, "."), "none") {
			return nil
		}

		as, ok := parseLine(line)
		if !ok || as.Index < 1 || as.Index > n {
			continue
		}
		if _, seen := byIndex[as.Index]; !seen {
			order = append(order, as.Index)
		}
		byIndex[as.Index] = as
	}

	out := make([]Assessment, 0, len(order))
	for _, idx := range order {
		out = append(out, byIndex[idx])
	}
	return out
}

func parseLine(line string) (Assessment, bool) {
	var idxTok, confTok, reason string

	if strings.Contains(line, "|") {
		parts := strings.SplitN(line, "|", 3)
		if len(parts) < 2 {
			return Assessment{}, false
		}
		idxTok = strings.TrimSpace(parts[0])
		confTok = strings.TrimSpace(parts[1])
		if len(parts) == 3 {
			reason = strings.TrimSpace(parts[2])
		}
	} else {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return Assessment{}, false
		}
		idxTok = fields[0]
		confTok = fields[1]
		reason = strings.Join(fields[2:], " ")
	}

	// Tolerate list formatting like "2." or "2)".
	idxTok = strings.TrimRight(idxTok, ".):")

	idx, err := strconv.Atoi(idxTok)
	if err != nil {
		return Assessment{}, false
	}

	conf, err := strconv.ParseFloat(confTok, 64)
	if err != nil {
		return Assessment{}, false
	}
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return Assessment{Index: idx, Confidence: conf, Reason: reason}, true
}
