package prompt

import (
	"strings"

	"github.com/harunnryd/sapa/pkg/conversation"
	"github.com/harunnryd/sapa/pkg/language"
)

// DefaultTurns is how many prior turns are rendered into a prompt.
const DefaultTurns = 3

const (
	historyHeader      = "Previous conversation:"
	firstMessage       = "Yeh pehla message hai."
	userLabel          = "Parent: "
	agentLabel         = "AI: "
	questionLabel      = "Parent ka sawal: "
	directiveUrdu      = "Jawab sirf Urdu script (اردو) mein dein. Reply ONLY in Urdu written in the Urdu script. Do not mix languages or scripts in the reply."
	directiveEnglish   = "Reply ONLY in English. Do not mix languages in the reply."
	directiveRomanUrdu = "Jawab sirf Roman Urdu mein dein. Reply ONLY in Roman Urdu (Urdu written with English letters). Do not mix languages and do not use the Urdu script in the reply."
)

// Composer renders completion prompts from policy, history and the new question.
type Composer struct {
	turns int
}

// NewComposer returns a Composer that renders at most turns prior turns.
func NewComposer(turns int) *Composer {
	if turns <= 0 {
		turns = DefaultTurns
	}
	return &Composer{turns: turns}
}

// Turns returns the history window rendered into each prompt.
func (c *Composer) Turns() int { return c.turns }

// Compose concatenates policy, recent history, the question and the directive
// for v, in that order.
func (c *Composer) Compose(policy string, history []conversation.Turn, userText string, v language.Variant) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(policy))
	b.WriteString("\n\n")
	b.WriteString(historyHeader)
	b.WriteString("\n")
	b.WriteString(c.renderHistory(history))
	b.WriteString("\n\n")
	b.WriteString(questionLabel)
	b.WriteString(userText)
	b.WriteString("\n\n")
	b.WriteString(Directive(v))
	b.WriteString("\n")
	return b.String()
}

func (c *Composer) renderHistory(history []conversation.Turn) string {
	if len(history) > c.turns {
		history = history[len(history)-c.turns:]
	}
	if len(history) == 0 {
		return firstMessage
	}
	parts := make([]string, 0, len(history))
	for _, t := range history {
		parts = append(parts, userLabel+t.User+"\n"+agentLabel+t.Agent)
	}
	return strings.Join(parts, "\n\n")
}

// Directive returns the reply-language instruction for v.
func Directive(v language.Variant) string {
	switch v {
	case language.Urdu:
		return directiveUrdu
	case language.English:
		return directiveEnglish
	default:
		return directiveRomanUrdu
	}
}
