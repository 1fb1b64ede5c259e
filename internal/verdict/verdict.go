// Package verdict asks Gemini for a playful analysis of a grid's characters.
package verdict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/bodul/waifu100/internal/editor"
)

// ErrNoCharacters is returned when there is nothing to judge.
var ErrNoCharacters = errors.New("no characters to analyze")

const maxCharacters = 100

const promptHeader = `You are an enthusiastic, observant expert in anime, manga, games and VTubers.
You are judging someone's "10x10 favourite characters" grid.

Their characters:
`

const promptRules = `
Find the patterns in this selection (genres, archetypes, eras, recurring themes) and write a verdict:
- "en": a short punchy title, a 3-4 sentence analysis in simple conversational English, and 3-4 short hashtags.
- "th": an original Thai analysis, not a translation of the English one. Use casual internet slang and anime terms, the way a close friend would tease.
- "emoji": one emoji that sums up the grid.

Keep the tone playful and appreciative. No real insults, no mean sarcasm, no medical or health metaphors.

Reply ONLY with JSON in exactly this shape, without markdown:
{
  "emoji": "💀",
  "en": {"title": "...", "content": "...", "tags": ["#...", "#..."]},
  "th": {"title": "...", "content": "...", "tags": ["#...", "#..."]}
}`

// BuildPrompt lists names, numbered, between the prompt instructions. Blank
// names are dropped.
func BuildPrompt(names []string) (string, error) {
	var b strings.Builder
	b.WriteString(promptHeader)
	n := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		n++
		if n > maxCharacters {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", n, name)
	}
	if n == 0 {
		return "", ErrNoCharacters
	}
	b.WriteString(promptRules)
	return b.String(), nil
}

var fence = regexp.MustCompile("(?i)```(?:json)?\\s*")

// Parse reads a model reply, tolerating markdown code fences around the JSON.
func Parse(text string) (*editor.Verdict, error) {
	cleaned := strings.TrimSpace(fence.ReplaceAllString(text, ""))
	if cleaned == "" {
		return nil, fmt.Errorf("empty verdict")
	}
	var v editor.Verdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, fmt.Errorf("parse verdict JSON: %w\nraw response: %s", err, text)
	}
	if v.EN.Title == "" && v.TH.Title == "" {
		return nil, fmt.Errorf("verdict has no title")
	}
	return &v, nil
}

// Analyze asks the model to judge the named characters.
func (c *Client) Analyze(ctx context.Context, names []string) (*editor.Verdict, error) {
	prompt, err := BuildPrompt(names)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.modelName,
		[]*genai.Content{{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		}},
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr(float32(0.9)),
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty gemini response")
	}
	v, err := Parse(text)
	if err != nil {
		c.logger.Warn("unparseable verdict", zap.String("model", c.modelName), zap.Error(err))
		return nil, err
	}
	return v, nil
}
