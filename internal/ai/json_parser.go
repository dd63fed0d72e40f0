package ai

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
)

// Pre-compiled patterns; compiling on every parse is markedly slower.
var (
	// Code fences, with optional language tag and optional newlines.
	codeFenceStartRegex = regexp.MustCompile(`(?s)^` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}\s*$`)
	codeFenceAnyRegex   = regexp.MustCompile(`(?s)` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}`)

	trailingCommaRegex     = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRegex       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)
	singleLineCommentRegex = regexp.MustCompile(`(?m)//.*$`)
	multiLineCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)

	// Greedy, to capture nested structures.
	objectRegex = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
	arrayRegex  = regexp.MustCompile(`(?s)\[[\s\S]*\]`)
)

// maxParseInput bounds the input handed to the regex cleanup passes.
const maxParseInput = 10 * 1024 * 1024

// ParseResult is the outcome of a tolerant JSON parse. Result-style rather
// than (T, error) so callers can surface both the failure and the original
// text in one value.
type ParseResult[T any] struct {
	Success      bool
	Data         T
	Error        string
	OriginalText string
}

// ParseOptions configures tolerant JSON parsing.
type ParseOptions struct {
	Context   string // prefix for error messages
	LogErrors bool   // log when falling through to cleanup strategies
}

// Parse attempts to parse JSON from model output with fallback strategies
// for the formatting quirks models produce despite instructions:
//
//  1. Direct parse
//  2. Strip markdown code fences and retry
//  3. Fix trailing commas, unquoted keys, and comments, then retry
//  4. Extract a JSON object or array from surrounding prose, then retry
func Parse[T any](text string, opts ...ParseOptions) ParseResult[T] {
	var options ParseOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	if len(text) > maxParseInput {
		return createError[T](
			fmt.Sprintf("input exceeds size limit (%d > %d bytes)", len(text), maxParseInput),
			text[:1000]+"...",
			options.Context,
		)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return createError[T]("empty input", text, options.Context)
	}

	if result, err := tryDirectParse[T](trimmed); err == nil {
		return ParseResult[T]{Success: true, Data: result, OriginalText: text}
	} else if options.LogErrors {
		log.Printf("[ORACLE] direct JSON parse failed (%s), trying cleanup: %v", options.Context, err)
	}

	withoutFences := removeCodeFences(trimmed)
	if withoutFences != trimmed {
		if result, err := tryDirectParse[T](withoutFences); err == nil {
			return ParseResult[T]{Success: true, Data: result, OriginalText: text}
		}
	}

	cleaned := cleanupJSON(withoutFences)
	if result, err := tryDirectParse[T](cleaned); err == nil {
		return ParseResult[T]{Success: true, Data: result, OriginalText: text}
	}

	if extracted := extractJSON(cleaned); extracted != "" {
		if result, err := tryDirectParse[T](extracted); err == nil {
			return ParseResult[T]{Success: true, Data: result, OriginalText: text}
		}
	}

	return createError[T]("all JSON parsing strategies failed", text, options.Context)
}

// ParseOrDefault parses JSON and returns a fallback value on any failure.
func ParseOrDefault[T any](text string, fallback T, opts ...ParseOptions) T {
	result := Parse[T](text, opts...)
	if result.Success {
		return result.Data
	}
	return fallback
}

func tryDirectParse[T any](text string) (T, error) {
	var result T
	err := json.Unmarshal([]byte(text), &result)
	return result, err
}

// removeCodeFences strips markdown code fences, whether they wrap the whole
// response or appear mid-text, plus single backticks wrapping the content.
func removeCodeFences(text string) string {
	cleaned := codeFenceStartRegex.ReplaceAllString(text, "$1")
	if cleaned == text {
		cleaned = codeFenceAnyRegex.ReplaceAllString(text, "$1")
	}

	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = strings.TrimPrefix(cleaned, "`")
		cleaned = strings.TrimSuffix(cleaned, "`")
	}

	return strings.TrimSpace(cleaned)
}

// cleanupJSON fixes trailing commas, unquoted identifier keys, and comments.
// Single quotes are left alone; converting them would corrupt valid JSON
// containing apostrophes.
func cleanupJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	cleaned = unquotedKeyRegex.ReplaceAllString(cleaned, `$1"$2":`)
	cleaned = singleLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = multiLineCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// extractJSON pulls a JSON object or array out of mixed prose. The
// first-character check keeps an array from being shredded into its first
// element's object match.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) > 0 {
		switch trimmed[0] {
		case '[':
			if match := arrayRegex.FindString(text); match != "" {
				return match
			}
		case '{':
			if match := objectRegex.FindString(text); match != "" {
				return match
			}
		}
	}

	// Objects first; they are the common shape in model responses.
	if match := objectRegex.FindString(text); match != "" {
		return match
	}
	return arrayRegex.FindString(text)
}

func createError[T any](message, text, context string) ParseResult[T] {
	var zero T
	if context != "" {
		message = context + ": " + message
	}
	return ParseResult[T]{
		Success:      false,
		Data:         zero,
		Error:        message,
		OriginalText: text,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
