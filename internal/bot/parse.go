package bot

import (
	"fmt"
	"strconv"
	"strings"
)

const actionDetails = "details"

// ParseQueryArg returns the free-text argument of a command with
// surrounding whitespace removed.
func ParseQueryArg(args string) string {
	return strings.TrimSpace(args)
}

// ParseCallbackData splits "action:index" callback payloads.
func ParseCallbackData(data string) (string, int, error) {
	action, raw, ok := strings.Cut(data, ":")
	if !ok || action == "" {
		return "", 0, fmt.Errorf("malformed callback data %q", data)
	}
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 {
		return "", 0, fmt.Errorf("invalid index in callback data %q", data)
	}
	return action, idx, nil
}

func detailsData(idx int) string {
	return fmt.Sprintf("%s:%d", actionDetails, idx)
}
