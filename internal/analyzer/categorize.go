package analyzer

import (
	"strings"

	"github.com/harrison/crucible/internal/models"
)

// categoryKeywords are matched case-insensitively against a failure's text.
// Categories are tried in models.FailureCategories order; runtime is the
// default and has no keywords.
var categoryKeywords = map[models.FailureCategory][]string{
	models.CategoryCompilation: {
		"compilation error", "compilation failed", "compile error",
		"build failed", "build error", "undefined:", "undefined function",
		"undefined variable", "not declared", "cannot find package",
		"could not import", "cannot find symbol", "compileerror",
		"no required module", "unresolved",
	},
	models.CategorySyntax: {
		"syntax error", "syntaxerror", "syntax_error", "unexpected token",
		"indentationerror", "parse error", "unexpected end of",
		"tokenerror", "unterminated", "missing terminator",
	},
	models.CategoryType: {
		"type error", "typeerror", "type_error", "type mismatch",
		"mismatched types", "cannot use", "incompatible type",
		"is not callable", "not a function", "badarityerror",
		"interface conversion", "wrong type",
	},
	models.CategoryLogic: {
		"assert", "expected", "want", "got", "not equal", "!=",
		"should be", "should equal", "mismatch", "incorrect",
	},
	models.CategoryEdgeCase: {
		"edge case", "empty", "nil", "null", "none", "boundary",
		"overflow", "underflow", "out of range", "out of bounds",
		"index out", "negative", "zero", "keyerror", "indexerror",
		"functionclauseerror", "division by zero",
	},
	models.CategoryTimeout: {
		"timeout", "timed out", "deadline exceeded", "time limit",
		"took too long", "test killed",
	},
}

// Categorize assigns exactly one category to text using the fixed priority
// compilation > syntax > type > logic > edge_case > timeout > runtime.
func Categorize(text string) models.FailureCategory {
	lower := strings.ToLower(text)
	for _, cat := range models.FailureCategories {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(lower, kw) {
				return cat
			}
		}
	}
	return models.CategoryRuntime
}
