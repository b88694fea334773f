package ai

import (
	"fmt"
	"regexp"
	"strings"
)

// SystemPrompt is sent ahead of every chat completion.
const SystemPrompt = `You are an expert Software Engineer AI Assistant specialized in helping developers with their daily coding tasks. Your expertise includes:

## CORE EXPERTISE:
- Full-stack development (Frontend, Backend, DevOps)
- Code review, debugging, and optimization
- Architecture design and system design patterns
- Database design and query optimization
- API design and integration
- Testing strategies (unit, integration, e2e)
- Performance optimization and scalability
- Security best practices

## RESPONSE GUIDELINES:
1. **Be Practical**: Provide actionable, production-ready solutions
2. **Code Examples**: Include relevant code snippets with proper syntax highlighting
3. **Best Practices**: Mention industry standards and conventions
4. **Security Aware**: Point out potential security issues
5. **Explain Trade-offs**: Discuss pros/cons of different approaches
6. **Error Handling**: Include proper error handling in examples

## CODE FORMAT:
- Use markdown code blocks with language specification
- Comment complex logic
- Follow the naming conventions of the language
- Show both implementation and usage

Be concise but thorough. Focus on solving real-world development challenges efficiently.`

var codeKeywords = []string{
	"code", "function", "class", "variable", "method", "api", "database",
	"bug", "error", "debug", "optimize", "refactor", "implement", "algorithm",
	"framework", "library", "package", "install", "deploy", "test", "git",
	"javascript", "typescript", "python", "java", "react", "node", "sql",
	"html", "css", "json", "xml", "async", "await", "promise", "callback",
}

// IsCodeRelated reports whether text mentions a programming keyword.
// Matching is by substring, so "testing" and "classic" both count.
func IsCodeRelated(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range codeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var stopSequences = []string{"<|end_of_turn|>", "<|end|>"}

// ParamsFor returns sampling settings: code questions get a lower
// temperature and a larger token budget.
func ParamsFor(isCode bool) Params {
	p := Params{
		Temperature: 0.7,
		MaxTokens:   1024,
		TopP:        0.95,
		Stop:        append([]string(nil), stopSequences...),
	}
	if isCode {
		p.Temperature = 0.3
		p.MaxTokens = 2048
	}
	return p
}

// HealthParams is the tiny request used to probe the provider.
func HealthParams() Params {
	return Params{Temperature: 0.1, MaxTokens: 10}
}

var headingRules = []struct {
	re     *regexp.Regexp
	prefix string
}{
	{regexp.MustCompile(`(?m)^(Solution:|Answer:|Here's)`), "## "},
	{regexp.MustCompile(`(?m)^(Note:|Important:|Warning:)`), "### "},
	{regexp.MustCompile(`(?m)^(Tip:|Pro tip:|Best practice:)`), "### "},
	{regexp.MustCompile(`(?m)^(Example:|Code example:)`), "### "},
}

// ProcessResponse turns lead-in lines of code answers into markdown headings.
// Other answers pass through untouched.
func ProcessResponse(content string, isCode bool) string {
	if !isCode {
		return content
	}
	for _, rule := range headingRules {
		content = rule.re.ReplaceAllString(content, rule.prefix+"$1")
	}
	return content
}

// Tone selects how an explanation is pitched.
type Tone string

const (
	ToneBeginner     Tone = "beginner"
	ToneIntermediate Tone = "intermediate"
	ToneAdvanced     Tone = "advanced"
)

// ParseTone maps input onto a tone, defaulting to intermediate.
func ParseTone(s string) (Tone, bool) {
	switch Tone(strings.ToLower(strings.TrimSpace(s))) {
	case ToneBeginner:
		return ToneBeginner, true
	case ToneAdvanced:
		return ToneAdvanced, true
	case ToneIntermediate, "":
		return ToneIntermediate, true
	}
	return ToneIntermediate, false
}

// ExplanationPrompt asks for a short explanation of selected text.
func ExplanationPrompt(text string, tone Tone) string {
	prompt := fmt.Sprintf(`You're a technical assistant explaining concepts to students/developers. For: "%s" provide:
1. Concise definition (1 sentence)
2. Key applications/importance
3. Simple code example (if applicable)
Use markdown and keep under 200 words.`, text)
	switch tone {
	case ToneBeginner:
		prompt += "\nThe reader is a beginner: avoid jargon and use an everyday analogy."
	case ToneAdvanced:
		prompt += "\nThe reader is experienced: skip basics and focus on nuances and trade-offs."
	}
	return prompt
}
