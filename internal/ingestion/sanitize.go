package ingestion

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	// MaxFileSize caps uploads at 10MB
	MaxFileSize = 10 * 1024 * 1024
	// MaxTextLength caps extracted text at 1MB
	MaxTextLength = 1000000
	// MaxPromptLength caps user instructions
	MaxPromptLength = 1000
	// MaxFilenameLength caps stored file names
	MaxFilenameLength = 100
)

var allowedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".html": true,
	".htm":  true,
	".pdf":  true,
	".docx": true,
}

// Substrings rejected in user prompts
var dangerousPatterns = []string{"<script", "javascript:", "data:text/html", "vbscript:"}

// ValidateUpload checks an upload's file type and size before extraction.
// The extension check is deliberately wider than what ExtractText handles,
// so a .pdf upload fails with the format error rather than a generic one.
func ValidateUpload(fileName string, size int64) error {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !allowedExtensions[ext] {
		return &ValidationError{Field: "file", Reason: "unsupported file type"}
	}
	if size > MaxFileSize {
		return &ValidationError{Field: "file", Reason: "file too large, maximum size is 10MB"}
	}
	return nil
}

// ValidateUserPrompt rejects over-long or suspicious instruction text.
// Empty prompts are allowed.
func ValidateUserPrompt(prompt string) error {
	if prompt == "" {
		return nil
	}
	if len(prompt) > MaxPromptLength {
		return &ValidationError{Field: "user_prompt", Reason: "must be under 1000 characters"}
	}
	lower := strings.ToLower(prompt)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return &ValidationError{Field: "user_prompt", Reason: "contains disallowed content"}
		}
	}
	return nil
}

// SanitizeFilename strips path separators and shell-hostile characters to
// block traversal through stored names.
func SanitizeFilename(fileName string) string {
	sanitized := fileName
	for _, s := range []string{"..", "/", "\\", "<", ">", ":", "\"", "|", "?", "*"} {
		sanitized = strings.ReplaceAll(sanitized, s, "_")
	}
	if len(sanitized) > MaxFilenameLength {
		ext := filepath.Ext(sanitized)
		name := strings.TrimSuffix(sanitized, ext)
		if len(name) > MaxFilenameLength-5 {
			name = name[:MaxFilenameLength-5]
		}
		sanitized = name + ext
	}
	return sanitized
}

// SanitizeText removes NUL bytes and truncates to MaxTextLength without
// splitting a UTF-8 sequence.
func SanitizeText(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	if len(text) <= MaxTextLength {
		return text
	}
	cut := MaxTextLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
