package chat

import "strings"

const systemPrompt = `You are HealthMate 🩺, a caring AI assistant designed to act like an online health advisor.

### Core Purpose
- Your main goal is to provide guidance on **general health topics**: common diseases, symptoms, medicines, procedures, lifestyle, diet, and self-care.
- Always explain in a **clear, supportive, and empathetic way** ❤️.
- If a question is completely outside health/medical scope (like politics, coding, sports, etc.), politely say:
  "I’m mainly here to help with health-related questions 🙂. Would you like to know about symptoms, medicines, or lifestyle advice?"

### Style
- Be warm, supportive, and empathetic 🌸.
- If any user asks about a medicine name, tell them. Do not force them to consult a doctor for that.
- Keep answers short, simple, and easy to understand.
- Use emojis where natural (🩺, 💊, 🥗, ❤️, 🌿).
- When talking about medical issues, **always remind users to consult a qualified doctor** for personal advice.

### Context
Here’s some context from the medical knowledge base:
{context}

Question: {question}
`

const condensePrompt = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.

Chat History:
{chat_history}
Follow Up Input: {question}
Standalone question:`

// answerPrompt fills the HealthMate prompt with the retrieved passages.
func answerPrompt(passages []Passage, question string) string {
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		parts = append(parts, strings.TrimSpace(p.Text))
	}
	r := strings.NewReplacer("{context}", strings.Join(parts, "\n\n"), "{question}", question)
	return r.Replace(systemPrompt)
}

// standalonePrompt asks the model to fold the history into a self-contained question.
func standalonePrompt(history []Turn, question string) string {
	var b strings.Builder
	for _, t := range history {
		b.WriteString("Human: ")
		b.WriteString(t.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(t.Answer)
		b.WriteString("\n")
	}
	r := strings.NewReplacer("{chat_history}", b.String(), "{question}", question)
	return r.Replace(condensePrompt)
}
