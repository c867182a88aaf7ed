package errors

import (
	"fmt"
	"strings"
)

// FormatForCLI formats an error for terminal display.
// TemoaErrors render with their suggestion and code; other errors
// render their plain message.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	te, ok := err.(*TemoaError)
	if !ok {
		return fmt.Sprintf("Error: %s\n", err.Error())
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Error: %s\n", te.Message))

	if te.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", te.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", te.Code))

	return sb.String()
}

// FormatForLog formats an error as key-value pairs for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	te, ok := err.(*TemoaError)
	if !ok {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": te.Code,
		"message":    te.Message,
		"category":   string(te.Category),
		"severity":   string(te.Severity),
		"retryable":  te.Retryable,
	}

	if te.Cause != nil {
		result["cause"] = te.Cause.Error()
	}

	for k, v := range te.Details {
		result["detail_"+k] = v
	}

	return result
}
