package api

// preview truncates a request body for verbose logs, keeping the head and
// tail joined by sep. Bodies within the bounds pass through unchanged.
func preview(body []byte, head, tail int, sep string) string {
	if len(body) <= head+tail+len(sep) {
		return string(body)
	}
	if head <= 0 && tail <= 0 {
		return ""
	}
	var out []byte
	if head > 0 {
		out = append(out, body[:head]...)
	}
	out = append(out, sep...)
	if tail > 0 {
		out = append(out, body[len(body)-tail:]...)
	}
	return string(out)
}
