package llm

import "fmt"

// truncationReserve is the prompt space kept for the question and
// instructions when context has to be cut to fit the budget.
const truncationReserve = 500

// EnhanceQuestion prefixes the question with the rolling conversation so
// follow-ups resolve against earlier turns.
func EnhanceQuestion(conversation, question string) string {
	if conversation == "" {
		return question
	}
	return fmt.Sprintf("Previous conversation:\n%s\n\nCurrent question: %s", conversation, question)
}

// RAGPrompt builds the retrieval-grounded prompt. maxLen bounds the whole
// prompt; overlong context is truncated, never the question.
func RAGPrompt(context, question string, maxLen int) string {
	p := ragPrompt(context, question)
	if maxLen > 0 && len(p) > maxLen {
		limit := maxLen - truncationReserve
		if limit < 0 {
			limit = 0
		}
		if len(context) > limit {
			context = context[:limit] + "...[truncated]"
		}
		p = ragPrompt(context, question)
	}
	return p
}

// GeneralPrompt builds the no-context conversational prompt.
func GeneralPrompt(question string) string {
	return fmt.Sprintf(`You are a helpful AI assistant. Answer the user's question in a conversational and helpful manner.

Question: %s

Answer:`, question)
}

func ragPrompt(context, question string) string {
	return fmt.Sprintf(`You are a helpful AI assistant. Based on the provided context, answer the user's question clearly and accurately.

Context:
%s

Question: %s

Instructions:
- Answer based primarily on the provided context
- If the context doesn't contain relevant information, say so clearly
- Be concise but comprehensive
- Use a conversational tone

Answer:`, context, question)
}
