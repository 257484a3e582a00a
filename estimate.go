package chatrelay

// EstimateTokens provides a rough input token estimate for messages, used
// only for diagnostic records. Uses the approximation: ~4 chars per token
// plus per-message overhead.
func EstimateTokens(messages []Message) int64 {
	var total int64
	for _, m := range messages {
		total += int64(len(m.Content)) / 4
		total += 4
	}
	total += 3
	return total
}
