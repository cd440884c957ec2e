package domain

import "strings"

// Validation rule names carried by ValidationError.Rule.
const (
	RulePromptRequired  = "prompt_required"
	RuleOptionCount     = "option_count"
	RuleOptionRequired  = "option_required"
	RuleCorrectIndex    = "correct_index"
	RuleTitleRequired   = "title_required"
	RuleQuestionsNeeded = "questions_required"
	RuleNicknameLength  = "nickname_length"
)

// ValidateQuestion returns nil for a well-formed question, otherwise the first violated rule.
func ValidateQuestion(q QuizQuestion) *ValidationError {
	if strings.TrimSpace(q.Prompt) == "" {
		return newValidationError(RulePromptRequired, "question prompt is required")
	}
	if len(q.Options) != OptionCount {
		return newValidationError(RuleOptionCount, "question must have exactly %d options, got %d", OptionCount, len(q.Options))
	}
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return newValidationError(RuleOptionRequired, "option %d is empty", i+1)
		}
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= OptionCount {
		return newValidationError(RuleCorrectIndex, "correct index must be between 0 and %d, got %d", OptionCount-1, q.CorrectIndex)
	}
	return nil
}

// SanitizeQuestions keeps the questions that pass ValidateQuestion, preserving order.
func SanitizeQuestions(questions []QuizQuestion) []QuizQuestion {
	valid := make([]QuizQuestion, 0, len(questions))
	for _, q := range questions {
		if ValidateQuestion(q) == nil {
			valid = append(valid, q)
		}
	}
	return valid
}
