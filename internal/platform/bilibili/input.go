package bilibili

import (
	"bufio"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var bvidPattern = regexp.MustCompile(`BV[0-9A-Za-z]{10}`)

// ExtractBVID returns the first BV id found in input, or "".
func ExtractBVID(input string) string {
	return bvidPattern.FindString(input)
}

// ParseInput splits an input into its BV id and 1-based part number. The
// part comes from a p query parameter or a _pN suffix on the id; it
// defaults to 1.
func ParseInput(input string) (bvid string, part int) {
	input = strings.TrimSpace(input)
	loc := bvidPattern.FindStringIndex(input)
	if loc == nil {
		return "", 0
	}
	bvid = input[loc[0]:loc[1]]
	part = 1
	if rest := input[loc[1]:]; strings.HasPrefix(rest, "_p") {
		if n, err := strconv.Atoi(strings.TrimPrefix(rest, "_p")); err == nil && n > 0 {
			part = n
		}
	}
	if u, err := url.Parse(input); err == nil && u.Scheme != "" {
		if n, err := strconv.Atoi(u.Query().Get("p")); err == nil && n > 0 {
			part = n
		}
	}
	return bvid, part
}

// VideoID is the task-facing id of a part: the BV id, suffixed _pN for
// parts after the first.
func VideoID(bvid string, part int) string {
	if part <= 1 {
		return bvid
	}
	return bvid + "_p" + strconv.Itoa(part)
}

// IsLink reports whether input is an absolute http(s) URL.
func IsLink(input string) bool {
	u, err := url.Parse(strings.TrimSpace(input))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ReadInputs reads one input per line. Blank lines are skipped and # starts
// a comment.
func ReadInputs(r io.Reader) ([]string, error) {
	var inputs []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		inputs = append(inputs, line)
	}
	return inputs, scanner.Err()
}
