package validator_test

import (
	"errors"
	"testing"

	"github.com/umtp/assist-gateway/internal/validator"
)

func TestIsBlankLabel(t *testing.T) {
	for _, s := range []string{"a", "b", "z"} {
		if !validator.IsBlankLabel(s) {
			t.Errorf("IsBlankLabel(%q) = false", s)
		}
	}
	for _, s := range []string{"", "A", "ab", "1", "あ", " a"} {
		if validator.IsBlankLabel(s) {
			t.Errorf("IsBlankLabel(%q) = true", s)
		}
	}
}

func TestTranslateErrorsPlainError(t *testing.T) {
	fields := validator.TranslateErrors(errors.New("unexpected EOF"))
	if fields["detail"] != "unexpected EOF" || len(fields) != 1 {
		t.Errorf("got %v", fields)
	}
}
