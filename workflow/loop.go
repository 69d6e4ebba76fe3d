package workflow

import (
	"crypto/sha256"
	"fmt"

	"github.com/martinemde/spectrail/llm"
)

// loopWindow is how many recent tool calls are compared.
const loopWindow = 6

// callSignature identifies a call by tool name and a hash of its arguments.
func callSignature(call llm.ToolCall) string {
	h := sha256.Sum256([]byte(call.Function.Arguments))
	return fmt.Sprintf("%s:%x", call.Function.Name, h[:8])
}

// detectLoop reports whether the last window calls repeat a pattern of
// length 1, 2 or 3.
func detectLoop(calls []llm.ToolCall, window int) bool {
	if window <= 0 || len(calls) < window {
		return false
	}
	sigs := make([]string, window)
	for i, c := range calls[len(calls)-window:] {
		sigs[i] = callSignature(c)
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if window%patternLen != 0 {
			continue
		}
		match := true
		for i := patternLen; i < window && match; i++ {
			match = sigs[i] == sigs[i%patternLen]
		}
		if match {
			return true
		}
	}
	return false
}
