package ollama

import "fmt"

func buildAnswerPrompt(question, contextText string) string {
	return fmt.Sprintf(`You are a meticulous case-document assistant.
Answer the question using only the context below. Cite nothing outside it.
If the context does not contain the answer, say so directly.

Question:
%s

Context:
%s
`, question, contextText)
}
