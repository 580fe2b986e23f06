package common

// TruncateString shortens s for log output, appending an ellipsis when cut
func TruncateString(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
