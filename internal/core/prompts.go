package core

import (
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

const (
	activitySystemInstruction = "You are a warm, supportive wellness coach inside a patient portal. " +
		"The patient has just finished a health activity and you are helping them reflect on it. " +
		"Ask one short, open-ended question at a time. Do not give medical diagnoses. " +
		"Reply with the question only, without any introduction."

	reportSystemInstruction = "You are a wellness coach summarizing a reflective conversation with a patient " +
		"about a health activity they completed. Respond with a single JSON object and nothing else."
)

func openingPrompt(activityType string) string {
	return fmt.Sprintf("The patient just completed this activity: %q. "+
		"Ask one friendly question about how the activity went for them.", activityType)
}

func followUpPrompt(activityType string) string {
	return fmt.Sprintf("Continue the reflection on the patient's %q activity. "+
		"Based on the conversation so far, ask one follow-up question that explores how they felt, "+
		"what went well or what was difficult.", activityType)
}

func reportPrompt(s *ActivitySession) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The reflection on the patient's %q activity is complete. Conversation:\n\n", s.ActivityType)
	for _, t := range s.Conversation {
		speaker := "Coach"
		if t.Role == RoleUser {
			speaker = "Patient"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, t.Content)
	}
	b.WriteString("\nReturn JSON with exactly these fields:\n" +
		`{"summary": string, "insights": [3-4 strings], "effectiveness": integer 0-100, "recommendations": [2-3 strings]}` +
		"\nThe effectiveness score estimates how beneficial the activity was for the patient.")
	return b.String()
}

// reportSchema constrains structured report output on providers with response schemas.
var reportSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"summary":         {Type: genai.TypeString},
		"insights":        {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"effectiveness":   {Type: genai.TypeInteger},
		"recommendations": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
	},
	Required: []string{"summary", "insights", "effectiveness", "recommendations"},
}
