package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"peerpulse-backend/internal/models"
)

// MinToneLength is the shortest trimmed text worth a tone check
const MinToneLength = 15

const (
	AdviceUnavailable = "Could not retrieve AI-powered advice at this time."
	CoachUnavailable  = "I'm having a little trouble thinking right now. Please try again in a moment."

	staticAdvice     = "AI Advisor: Participation is strong in Engineering. Consider running a workshop on constructive feedback for the Design department to boost their engagement and vibe scores."
	staticCoachReply = "I'm here to help! To give great feedback, try using the Situation-Behavior-Impact (SBI) model. For example, 'In yesterday's meeting (Situation), you presented the data very clearly (Behavior), which helped us make a quick decision (Impact).'"

	coachInstruction = "You are a helpful and friendly AI coach specializing in corporate peer feedback. Your goal is to provide concise, actionable advice to employees on how to write and receive feedback constructively. You are an expert in models like SBI (Situation-Behavior-Impact). Keep your answers brief and encouraging."
)

// Summary is the narrative view of the feedback a user received
type Summary struct {
	Strengths string   `json:"strengths"`
	Growth    string   `json:"growth"`
	Themes    []string `json:"themes"`
}

type peerSuggestions struct {
	Names []string `json:"names"`
}

type themeList struct {
	Themes []string `json:"themes"`
}

var (
	peerSchema    = generateSchema[peerSuggestions]()
	themeSchema   = generateSchema[themeList]()
	summarySchema = generateSchema[Summary]()
)

// PlaceholderSummary is shown when there is nothing to summarise or no credential
func PlaceholderSummary() Summary {
	return Summary{
		Strengths: "AI Summary: Excels in collaboration and project leadership.",
		Growth:    "AI Summary: Could focus more on detail-oriented QA before final delivery.",
		Themes:    []string{"Collaboration", "Leadership", "Quality Assurance"},
	}
}

// DefaultThemes is the theme list used without feedback or credential
func DefaultThemes() []string {
	return []string{"collaboration", "communication", "leadership", "innovation", "mentorship"}
}

// SuggestPeers names colleagues current could ask for feedback.
// Returned names always belong to users other than current.
func (g *Gateway) SuggestPeers(ctx context.Context, current models.User, users []models.User) []string {
	const op = "suggest_peers"

	others := make([]models.User, 0, len(users))
	byName := make(map[string]bool, len(users))
	for _, u := range users {
		if u.ID != current.ID {
			others = append(others, u)
			byName[u.Name] = true
		}
	}

	if len(others) == 0 {
		g.record(op, outcomeSkipped)
		return []string{}
	}

	if !g.Enabled() {
		g.record(op, outcomeNoCredential)
		return fallbackPeers(current, others)
	}

	type directoryEntry struct {
		Name       string `json:"name"`
		Department string `json:"department"`
	}
	directory := make([]directoryEntry, 0, len(others))
	for _, u := range others {
		directory = append(directory, directoryEntry{Name: u.Name, Department: u.Department})
	}
	directoryJSON, _ := json.Marshal(directory)

	prompt := fmt.Sprintf(`From the following list of employees, suggest 3-5 relevant peers for %s who is in the %s department. Prioritize colleagues from the same or adjacent departments.
Employee list: %s
Answer with the employees' names only.`, current.Name, current.Department, directoryJSON)

	var result peerSuggestions
	err := g.structured(ctx, completion{
		model:      g.fast,
		messages:   []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		schemaName: "peer_suggestions",
		schema:     peerSchema,
	}, func(r gjson.Result) bool { return isStringArray(r.Get("names")) }, &result)
	if err != nil {
		g.fail(op, err)
		return []string{}
	}
	g.record(op, outcomeOK)

	names := make([]string, 0, len(result.Names))
	seen := make(map[string]bool)
	for _, name := range result.Names {
		name = strings.TrimSpace(name)
		if byName[name] && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// fallbackPeers picks up to three colleagues, same department first, then by id
func fallbackPeers(current models.User, others []models.User) []string {
	sorted := append([]models.User(nil), others...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i].Department == current.Department, sorted[j].Department == current.Department
		if si != sj {
			return si
		}
		return sorted[i].ID < sorted[j].ID
	})
	if len(sorted) > 3 {
		sorted = sorted[:3]
	}
	names := make([]string, 0, len(sorted))
	for _, u := range sorted {
		names = append(names, u.Name)
	}
	return names
}

// RephraseTone proposes a kinder wording for text, or "" when the tone is fine
// or text is too short to judge
func (g *Gateway) RephraseTone(ctx context.Context, text string) string {
	const op = "rephrase_tone"

	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinToneLength {
		g.record(op, outcomeSkipped)
		return ""
	}

	if !g.Enabled() {
		g.record(op, outcomeNoCredential)
		lower := strings.ToLower(text)
		if strings.Contains(lower, "bad") || strings.Contains(lower, "terrible") {
			return fmt.Sprintf(`Instead of saying "%s", you could try: "There's an opportunity for improvement in this area. For example..." (AI suggestion)`, text)
		}
		return ""
	}

	prompt := fmt.Sprintf(`Analyze the tone of the following feedback meant for a peer.
If the tone is perceived as overly negative, harsh, or not constructive, provide a single, rephrased alternative that is more positive and helpful.
If the original feedback is already constructive and positive, or is neutral, respond with just the word "OK".
Do not include explanations.

Original feedback: %q`, text)

	result, err := g.complete(ctx, completion{
		model:    g.fast,
		messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	})
	if err != nil {
		g.fail(op, err)
		return ""
	}
	g.record(op, outcomeOK)

	if result == "OK" {
		return ""
	}
	return result
}

type promptFeedback struct {
	Strengths           string `json:"strengths"`
	GrowthOpportunities string `json:"growthOpportunities"`
	VibeComment         string `json:"vibeComment,omitempty"`
}

func describeSBI(s models.SBI) string {
	return fmt.Sprintf("Situation: %s. Behavior: %s. Impact: %s.", s.Situation, s.Behavior, s.Impact)
}

func feedbackForPrompt(feedback []models.Feedback, withComments bool) []byte {
	entries := make([]promptFeedback, 0, len(feedback))
	for _, f := range feedback {
		entry := promptFeedback{
			Strengths:           describeSBI(f.Strengths),
			GrowthOpportunities: describeSBI(f.Growth),
		}
		if withComments {
			entry.VibeComment = f.VibeComment
		}
		entries = append(entries, entry)
	}
	data, _ := json.Marshal(entries)
	return data
}

// SummarizeFeedback condenses the feedback userName received
func (g *Gateway) SummarizeFeedback(ctx context.Context, feedback []models.Feedback, userName string) Summary {
	const op = "summarize_feedback"

	if len(feedback) == 0 {
		g.record(op, outcomeSkipped)
		return PlaceholderSummary()
	}
	if !g.Enabled() {
		g.record(op, outcomeNoCredential)
		return PlaceholderSummary()
	}

	prompt := fmt.Sprintf(`Summarize the following peer feedback for %s.
Analyze the strengths and growth opportunities provided by their peers. The feedback is in Situation-Behavior-Impact format.
Identify 3-5 key themes that emerge from the comments.
Feedback data: %s`, userName, feedbackForPrompt(feedback, true))

	var summary Summary
	err := g.structured(ctx, completion{
		model:      g.pro,
		messages:   []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		schemaName: "feedback_summary",
		schema:     summarySchema,
	}, func(r gjson.Result) bool {
		return r.Get("strengths").Type == gjson.String &&
			r.Get("growth").Type == gjson.String &&
			isStringArray(r.Get("themes"))
	}, &summary)
	if err != nil {
		g.fail(op, err)
		return Summary{Themes: []string{}}
	}
	g.record(op, outcomeOK)
	return summary
}

// FeedbackThemes lists the most common themes across feedback
func (g *Gateway) FeedbackThemes(ctx context.Context, feedback []models.Feedback) []string {
	const op = "feedback_themes"

	if len(feedback) == 0 {
		g.record(op, outcomeSkipped)
		return DefaultThemes()
	}
	if !g.Enabled() {
		g.record(op, outcomeNoCredential)
		return DefaultThemes()
	}

	prompt := fmt.Sprintf(`From the following collection of peer feedback, identify the 5-7 most common themes.
Feedback data: %s`, feedbackForPrompt(feedback, false))

	var result themeList
	err := g.structured(ctx, completion{
		model:      g.fast,
		messages:   []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		schemaName: "feedback_themes",
		schema:     themeSchema,
	}, func(r gjson.Result) bool { return isStringArray(r.Get("themes")) }, &result)
	if err != nil {
		g.fail(op, err)
		return []string{}
	}
	g.record(op, outcomeOK)
	return result.Themes
}

// AdminAdvice turns organisation metrics into a few Markdown recommendations
func (g *Gateway) AdminAdvice(ctx context.Context, metrics any) string {
	const op = "admin_advice"

	if !g.Enabled() {
		g.record(op, outcomeNoCredential)
		return staticAdvice
	}

	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		g.fail(op, err)
		return AdviceUnavailable
	}

	prompt := fmt.Sprintf(`As an expert HR advisor for a tech company, analyze the following quarterly peer review metrics.
Metrics: %s

Provide 2-3 actionable, concise, and strategic recommendations to improve team culture, performance, and retention.
Format the response as a single block of Markdown text.`, metricsJSON)

	advice, err := g.complete(ctx, completion{
		model:    g.pro,
		messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	})
	if err == nil && advice == "" {
		err = errEmpty
	}
	if err != nil {
		g.fail(op, err)
		return AdviceUnavailable
	}
	g.record(op, outcomeOK)
	return advice
}

type ChatRole string

const (
	ChatRoleUser  ChatRole = "user"
	ChatRoleModel ChatRole = "model"
)

type ChatMessage struct {
	Role ChatRole `json:"role" validate:"required,oneof=user model"`
	Text string   `json:"text" validate:"required"`
}

// CoachReply answers the last user message of a coaching conversation
func (g *Gateway) CoachReply(ctx context.Context, history []ChatMessage) string {
	const op = "coach_reply"

	if !g.Enabled() {
		g.record(op, outcomeNoCredential)
		return staticCoachReply
	}
	if len(history) == 0 || history[len(history)-1].Role != ChatRoleUser {
		g.record(op, outcomeSkipped)
		return staticCoachReply
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(coachInstruction))
	for _, m := range history {
		if m.Role == ChatRoleModel {
			messages = append(messages, openai.AssistantMessage(m.Text))
		} else {
			messages = append(messages, openai.UserMessage(m.Text))
		}
	}

	reply, err := g.complete(ctx, completion{model: g.fast, messages: messages})
	if err == nil && reply == "" {
		err = errEmpty
	}
	if err != nil {
		g.fail(op, err)
		return CoachUnavailable
	}
	g.record(op, outcomeOK)
	return reply
}
