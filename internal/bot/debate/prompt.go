package debate

import (
	"fmt"
	"strings"
)

// buildPrompt assembles the prompt for one participant turn: a stance
// instruction, the topic, and the full transcript so far as speaker-labeled
// turns grouped by round. Participants within a round run sequentially, so a
// later speaker sees everything said earlier in the same round.
func buildPrompt(topic string, transcript []TranscriptEntry, speaker string, round int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, one voice in a multi-model debate.\n", speaker)
	fmt.Fprintf(&b, "Debate topic: %s\n", topic)

	if len(transcript) > 0 {
		b.WriteString("\nDiscussion so far:\n")
		currentRound := 0
		for _, e := range transcript {
			if e.Round != currentRound {
				currentRound = e.Round
				fmt.Fprintf(&b, "--- Round %d ---\n", currentRound)
			}
			fmt.Fprintf(&b, "%s: %s\n", e.Participant, e.Text)
		}
	}

	if round == 1 && len(transcript) == 0 {
		b.WriteString("\nOpen the debate with your position on the topic. Be concise and convincing.")
	} else {
		b.WriteString("\nContinue the discussion, responding to the above. Defend your position concisely and convincingly.")
	}

	return b.String()
}
