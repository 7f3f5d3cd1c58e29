package alexa

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/syllabi/chat-platform/internal/ai"
)

// LinkedBot is one chatbot linked to the integration account, with its
// voice routing config.
type LinkedBot struct {
	ID        string
	Name      string
	Trigger   string
	IsDefault bool
}

// Router decides which linked chatbot should answer an utterance and
// strips the trigger phrase from the spoken question. The classifier is
// an LLM constrained to the known trigger vocabulary; when it fails the
// router degrades to a deterministic first-word match.
type Router struct {
	classifier ai.ObjectGenerator
}

func NewRouter(classifier ai.ObjectGenerator) *Router {
	return &Router{classifier: classifier}
}

type routeDecision struct {
	Target   string `json:"target"`
	Question string `json:"question"`
	IsSwitch bool   `json:"is_switch"`
}

// Route returns the chatbot that should answer and the question with any
// trigger phrase removed. A nil bot means nothing resolved and the
// caller should speak a configuration prompt. switched reports a
// switch-only utterance ("talk to finance") that names a chatbot without
// asking anything; the caller acknowledges instead of running a turn.
func (r *Router) Route(ctx context.Context, utterance string, bots []LinkedBot) (bot *LinkedBot, question string, switched bool) {
	if len(bots) == 0 {
		return nil, utterance, false
	}

	target, question, switched := r.classify(ctx, utterance, bots)
	if target == "" {
		target, question, switched = firstWordRoute(utterance, bots)
	}

	if bot := resolveTarget(bots, target); bot != nil {
		return bot, question, switched
	}
	if bot := defaultBot(bots); bot != nil {
		return bot, utterance, false
	}
	return nil, utterance, false
}

func (r *Router) classify(ctx context.Context, utterance string, bots []LinkedBot) (target, question string, switched bool) {
	if r.classifier == nil {
		return "", utterance, false
	}

	var vocab strings.Builder
	for _, b := range bots {
		if b.Trigger == "" {
			continue
		}
		fmt.Fprintf(&vocab, "- trigger %q routes to chatbot %q (id %s)\n", b.Trigger, b.Name, b.ID)
	}

	system := "You route spoken questions to chatbots. " +
		"Given the utterance, decide which chatbot should answer based on its trigger phrase, and return the question with the trigger phrase removed. " +
		"When the utterance only names a chatbot without asking anything (\"switch to finance\", \"finance\"), set is_switch to true. " +
		"Known triggers:\n" + vocab.String() +
		"Respond with JSON: {\"target\": \"<trigger, chatbot name or id, or empty string if no trigger matched>\", \"question\": \"<the question without the trigger phrase>\", \"is_switch\": <true when the user is only selecting a chatbot>}"

	var decision routeDecision
	if err := r.classifier.GenerateObject(ctx, system, utterance, &decision); err != nil {
		log.Printf("[AlexaRouter] classifier failed, using first-word fallback: %v", err)
		return "", utterance, false
	}
	if decision.Question == "" && !decision.IsSwitch {
		decision.Question = utterance
	}
	return decision.Target, decision.Question, decision.IsSwitch
}

// firstWordRoute is the degraded-mode parser: if the first spoken word
// matches a configured trigger, route to that bot and drop the word. A
// bare trigger with nothing after it is a switch, not a question.
func firstWordRoute(utterance string, bots []LinkedBot) (target, question string, switched bool) {
	fields := strings.Fields(utterance)
	if len(fields) == 0 {
		return "", utterance, false
	}
	first := strings.ToLower(strings.Trim(fields[0], ".,!?"))
	for _, b := range bots {
		if b.Trigger != "" && strings.ToLower(b.Trigger) == first {
			rest := strings.TrimSpace(strings.Join(fields[1:], " "))
			return b.Trigger, rest, rest == ""
		}
	}
	return "", utterance, false
}

// resolveTarget matches the classifier's answer against the links:
// trigger phrase first (case-insensitive), then chatbot id, then name.
func resolveTarget(bots []LinkedBot, target string) *LinkedBot {
	if target == "" {
		return nil
	}
	for i := range bots {
		if bots[i].Trigger != "" && strings.EqualFold(bots[i].Trigger, target) {
			return &bots[i]
		}
	}
	for i := range bots {
		if bots[i].ID == target {
			return &bots[i]
		}
	}
	for i := range bots {
		if strings.EqualFold(bots[i].Name, target) {
			return &bots[i]
		}
	}
	return nil
}

func defaultBot(bots []LinkedBot) *LinkedBot {
	for i := range bots {
		if bots[i].IsDefault {
			return &bots[i]
		}
	}
	return nil
}
