package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/vedran77/ontomatch/internal/domain"
)

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

func ValidateInterest(userID, targetID uuid.UUID) ValidationErrors {
	errs := make(ValidationErrors)

	if targetID == uuid.Nil {
		errs.Add("target_id", "Target user is required")
	} else if targetID == userID {
		errs.Add("target_id", "Cannot express interest in yourself")
	}

	return errs
}

func ValidateMessage(content, kind string, maxBytes int) ValidationErrors {
	errs := make(ValidationErrors)

	if strings.TrimSpace(content) == "" {
		errs.Add("content", "Message content is required")
	} else if maxBytes > 0 && len(content) > maxBytes {
		errs.Add("content", fmt.Sprintf("Message must be at most %d bytes", maxBytes))
	}

	if _, err := domain.ParseMessageKind(kind); err != nil {
		errs.Add("kind", "Unknown message kind")
	}

	return errs
}

func ValidateDisplayName(displayName string) ValidationErrors {
	errs := make(ValidationErrors)

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		errs.Add("display_name", "Display name is required")
	} else if utf8.RuneCountInString(displayName) > 100 {
		errs.Add("display_name", "Display name is too long")
	}

	return errs
}
