package rag

import (
	"fmt"

	"github.com/cloudwego/eino/schema"
)

// Prompt builds the two-message instruction sent to the chat model. The
// zero value uses generic names.
type Prompt struct {
	// AssistantName is the persona the model answers as (default: DocGPT).
	AssistantName string

	// CorpusName describes the indexed documents (default: the indexed documentation).
	CorpusName string
}

// System returns the fixed system instruction: persona, restriction to the
// provided context and the "say you don't know" fallback.
func (p Prompt) System() string {
	name, corpus := p.names()
	return fmt.Sprintf("You are %s, an expert assistant for %s. "+
		"You answer questions using ONLY the provided context from %s. "+
		"If the answer is not in the context, say you don't know and suggest "+
		"where in the docs the user might look.", name, corpus, corpus)
}

// Build returns the system message followed by a user message that embeds
// context verbatim and ends with the literal question. Build is pure.
func (p Prompt) Build(question, context string) []*schema.Message {
	user := "Here is the relevant documentation context:\n\n" +
		context + "\n\n" +
		"Now answer this question clearly and concisely. " +
		"If helpful, reference the source file and page number.\n\n" +
		"Question: " + question

	return []*schema.Message{
		schema.SystemMessage(p.System()),
		schema.UserMessage(user),
	}
}

// Name returns the assistant name, falling back to the default.
func (p Prompt) Name() string {
	name, _ := p.names()
	return name
}

// Guidance is the reply to a blank question.
func (p Prompt) Guidance() string {
	return "Please enter a question about " + p.Corpus() + "."
}

// Corpus returns the corpus description, falling back to the default.
func (p Prompt) Corpus() string {
	_, corpus := p.names()
	return corpus
}

func (p Prompt) names() (string, string) {
	name, corpus := p.AssistantName, p.CorpusName
	if name == "" {
		name = "DocGPT"
	}
	if corpus == "" {
		corpus = defaultCorpus
	}
	return name, corpus
}
