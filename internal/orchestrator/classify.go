package orchestrator

import (
	"regexp"
	"strings"

	"github.com/coregx/ahocorasick"

	"github.com/coherent-ai/crt/internal/model"
)

// special names the deterministic safe-path (or fast-path) a turn matched,
// on top of its coarse InputClass. Empty means no override applied.
type special string

const (
	specialNone                special = ""
	specialSystemPrompt        special = "system_prompt_disclosure"
	specialNameDeclaration     special = "name_declaration"
	specialAssistantProfile    special = "assistant_profile"
	specialUserNamedReference  special = "user_named_reference"
	specialMemoryCitation      special = "memory_citation"
	specialMemoryInventory     special = "memory_inventory"
	specialContradictionStatus special = "contradiction_status"
	specialSynthesis           special = "synthesis"
	specialSummary             special = "summary"
	specialSingleSlot          special = "single_slot"
)

var (
	systemPromptMarkers = mustBuild([]string{
		"system prompt", "your instructions", "initial prompt", "your prompt",
		"system message", "your system message", "reveal your prompt",
	})
	assistantProfileMarkers = mustBuild([]string{
		"who are you", "what are you", "tell me about yourself", "your background in",
		"what's your background",
	})
	memoryCitationMarkers = mustBuild([]string{
		"how do you know that", "how do you know this", "where did you get that",
		"where did that come from", "how did you learn that",
	})
	memoryInventoryMarkers = mustBuild([]string{
		"list your memories", "what memories do you have", "show me what you remember",
		"what have you stored about me", "list everything you know",
	})
	contradictionStatusMarkers = mustBuild([]string{
		"any contradictions", "any conflicts", "contradiction status",
		"do you have conflicting information", "inconsistencies",
	})
	synthesisMarkers = mustBuild([]string{
		"what do you know about me", "tell me about myself", "summarize what you know",
		"what do you remember about me",
	})
	questionWordMarkers = mustBuild([]string{"why", "how", "explain", "what causes", "what is the reason"})
	greetingMarkers      = mustBuild([]string{
		"hi", "hello", "hey", "thanks", "thank you", "good morning", "good evening", "bye", "goodbye",
	})
)

func mustBuild(patterns []string) *ahocorasick.Automaton {
	a, err := ahocorasick.NewBuilder().AddStrings(patterns).SetMatchKind(ahocorasick.LeftmostLongest).SetPrefilter(true).Build()
	if err != nil {
		panic("orchestrator: building marker automaton: " + err.Error())
	}
	return a
}

func anyMatch(a *ahocorasick.Automaton, lower string) bool {
	return len(a.FindAllOverlapping([]byte(lower))) > 0
}

var userNamedReferencePattern = regexp.MustCompile(`(?i)what(?:'s| is) ([A-Z][\w'-]+)'s (job|occupation|title|employer|role|location)`)

// singleSlotPatterns map a direct "what's my X" question to the canonical
// slot it asks about.
var singleSlotPatterns = map[string]*regexp.Regexp{
	"employer": regexp.MustCompile(`(?i)\bwhere do i work\b|\bwho (?:do i|am i) work(?:ing)? for\b|\bwhat(?:'s| is) my employer\b`),
	"location": regexp.MustCompile(`(?i)\bwhere do i live\b|\bwhat(?:'s| is) my location\b`),
	"title":    regexp.MustCompile(`(?i)\bwhat(?:'s| is) my (?:job )?title\b|\bwhat do i do for (?:a living|work)\b`),
	"name":     regexp.MustCompile(`(?i)\bwhat(?:'s| is) my name\b`),
}

// referencedSlotAlias maps the free-text noun used in "what is X's <noun>"
// to the canonical slot name step 3's user-named-reference path may answer
// from (title/employer only; any other noun maps to "" and gets the
// no-information reply).
func referencedSlotAlias(noun string) string {
	switch strings.ToLower(noun) {
	case "job", "occupation", "role", "title":
		return "title"
	case "employer":
		return "employer"
	default:
		return ""
	}
}

var summaryListPattern = regexp.MustCompile(`(?i)\blist\s+(\d+)\s+facts\b|\bgive me a summary\b|\bsummarize what i'?ve told you\b`)

// Classification is the result of step 1 of the pipeline.
type Classification struct {
	Class   model.InputClass
	Special special
	// SingleSlot is populated when Special == specialSingleSlot.
	SingleSlot string
	// ReferencedName is populated when Special == specialUserNamedReference.
	ReferencedName string
	// ReferencedSlot is populated when Special == specialUserNamedReference.
	ReferencedSlot string
}

// classify runs step 1: assign a coarse InputClass, then check the
// known special-case prompts that override it. A name declaration stays an
// assertion; system-prompt, assistant-profile, memory-inventory,
// contradiction-status and memory-citation prompts become instruction;
// user-named references, synthesis, summary and single-slot prompts become
// question. Memory-inventory, synthesis, summary and single-slot turns are
// answered later as fast-paths in step 9.
func classify(q string, extracted []model.ExtractedFact) Classification {
	lower := strings.ToLower(strings.TrimSpace(q))

	hasName := false
	for _, f := range extracted {
		if f.SlotName == "name" {
			hasName = true
			break
		}
	}
	if hasName {
		return Classification{Class: model.ClassAssertion, Special: specialNameDeclaration}
	}

	switch {
	case anyMatch(systemPromptMarkers, lower):
		return Classification{Class: model.ClassInstruction, Special: specialSystemPrompt}
	case anyMatch(assistantProfileMarkers, lower):
		return Classification{Class: model.ClassInstruction, Special: specialAssistantProfile}
	case anyMatch(memoryInventoryMarkers, lower):
		return Classification{Class: model.ClassInstruction, Special: specialMemoryInventory}
	case anyMatch(contradictionStatusMarkers, lower):
		return Classification{Class: model.ClassInstruction, Special: specialContradictionStatus}
	case anyMatch(memoryCitationMarkers, lower):
		return Classification{Class: model.ClassInstruction, Special: specialMemoryCitation}
	}

	if m := userNamedReferencePattern.FindStringSubmatch(q); m != nil {
		return Classification{Class: model.ClassQuestion, Special: specialUserNamedReference, ReferencedName: m[1], ReferencedSlot: referencedSlotAlias(m[2])}
	}

	if anyMatch(synthesisMarkers, lower) {
		return Classification{Class: model.ClassQuestion, Special: specialSynthesis}
	}
	if summaryListPattern.MatchString(lower) {
		return Classification{Class: model.ClassQuestion, Special: specialSummary}
	}
	for slot, re := range singleSlotPatterns {
		if re.MatchString(lower) {
			return Classification{Class: model.ClassQuestion, Special: specialSingleSlot, SingleSlot: slot}
		}
	}

	if len(extracted) > 0 {
		return Classification{Class: model.ClassAssertion}
	}
	if strings.HasSuffix(strings.TrimSpace(q), "?") || looksLikeQuestion(lower) {
		return Classification{Class: model.ClassQuestion}
	}
	return Classification{Class: model.ClassOther}
}

var questionLead = []string{"what", "who", "where", "when", "why", "how", "is ", "are ", "do ", "does ", "can ", "could ", "would "}

func looksLikeQuestion(lower string) bool {
	for _, lead := range questionLead {
		if strings.HasPrefix(lower, lead) {
			return true
		}
	}
	return false
}

// predictResponseType heuristically classifies a candidate answer's shape
// for the reconstruction gate: question-word phrasing in the query implies
// an explanatory answer; greetings/acknowledgments imply conversational;
// everything else defaults to factual.
func predictResponseType(query string) model.PredictedResponseType {
	lower := strings.ToLower(query)
	if anyMatch(questionWordMarkers, lower) {
		return model.PredictedExplanatory
	}
	if anyMatch(greetingMarkers, lower) && len(strings.Fields(lower)) <= 6 {
		return model.PredictedConversational
	}
	return model.PredictedFactual
}
