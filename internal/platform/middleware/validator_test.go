package middleware

import (
	"strings"
	"testing"
)

type sample struct {
	MemberID string `json:"memberId" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Inner    struct {
		Urgency string `json:"urgency" validate:"omitempty,oneof=low high"`
	} `json:"inner"`
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := NewValidator()
	s := sample{Email: "not-an-email"}
	s.Inner.Urgency = "whenever"

	err := v.Validate(&s)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"memberId is required", "email must be a valid email", "inner.urgency must be one of [low high]"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestValidator_Valid(t *testing.T) {
	if err := NewValidator().Validate(&sample{MemberID: "M1"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
