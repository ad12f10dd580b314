package chat

import (
	"math/rand/v2"
	"strings"
)

// smallTalk maps a normalised greeting or courtesy phrase to the canned
// replies one is picked from.  These never reach retrieval.
var smallTalk = map[string][]string{
	"hi": {
		"Hey! 👋 Welcome to HealthMate.",
		"Hi there! 😊 How are you feeling today?",
		"Hello 👋 How’s your health today?",
	},
	"hello": {
		"Hello! 🙂 Welcome to HealthMate.",
		"Hey there! 👋 How are you doing?",
		"Hi! 🌟 Here to support you with your health questions.",
	},
	"hey": {
		"Hey there! How are you feeling today? 🩺",
		"Yo! 👋 I’m here if you have any health-related questions.",
		"Heyyy 😎 Hope you’re doing well and staying healthy.",
	},
	"good morning": {
		"Good morning ☀️ Wishing you a healthy and positive day!",
		"Morning! 🌄 Don’t forget to stay hydrated 💧",
		"Rise and shine! ☀️ Take care of yourself today.",
	},
	"good afternoon": {
		"Good afternoon 🌞 Hope your day is going smoothly!",
		"Hey! 👋 How’s your afternoon going?",
		"Good afternoon! 🌻 Remember to eat something nutritious 🥗",
	},
	"good evening": {
		"Good evening 🌙 How was your day?",
		"Evening! 🌆 Did you get some time to relax?",
		"Good evening 🌌 Take it easy and care for yourself ❤️",
	},
	"thanks": {
		"You’re welcome! 🙌 Always here to help.",
		"No problem, happy to assist! 🙂",
		"Anytime! 🤗 Wishing you good health and happiness.",
	},
	"thank you": {
		"No problem at all, happy to help! 😊",
		"You got it! 👍 Stay safe and healthy.",
		"Always here if you need me 🙌",
	},
	"who are you": {
		"I’m HealthMate 🤖, your friendly online health advisor built to support you with medical information 🩺",
		"I’m your digital health companion 🤖 here to guide you on general health topics.",
		"I’m HealthMate, designed to help with medicines, procedures, lifestyle, and health concerns 🚑",
	},
	"what can you do": {
		"I can share helpful information about common diseases, medicines, symptoms, lifestyle, and health tips 🩺",
		"I can guide you with knowledge about health care and answer common medical questions 🙂",
		"I can provide insights into healthcare, self-care, and wellness 🚀",
	},
}

// farewells end an interactive session.
var farewells = map[string]bool{
	"exit": true, "quit": true, "goodbye": true, "ok bye": true, "bye": true,
}

// FarewellReply is printed when an interactive session ends.
const FarewellReply = "Goodbye! 👋"

func normalize(message string) string {
	return strings.ToLower(strings.TrimSpace(message))
}

// IsSmallTalk reports whether message is an exact (case-insensitive,
// trimmed) small-talk phrase.
func IsSmallTalk(message string) bool {
	_, ok := smallTalk[normalize(message)]
	return ok
}

// IsFarewell reports whether message ends an interactive session.
func IsFarewell(message string) bool {
	return farewells[normalize(message)]
}

// smallTalkReply picks one canned reply for message using pick(n) to
// choose an index in [0, n).
func smallTalkReply(message string, pick func(n int) int) (string, bool) {
	replies, ok := smallTalk[normalize(message)]
	if !ok || len(replies) == 0 {
		return "", false
	}
	if pick == nil {
		pick = rand.IntN
	}
	return replies[pick(len(replies))], true
}
