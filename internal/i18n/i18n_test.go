package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "Road Caption Study" {
		t.Errorf("T(AppTitle) = %q, want 'Road Caption Study'", got)
	}

	got = T(ctx, "QuizPassed")
	if got != "You passed the quiz and can continue to the main study." {
		t.Errorf("T(QuizPassed) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "QuizIntro", 1)
	if got1 != "The screening quiz has 1 question." {
		t.Errorf("Tp(QuizIntro, 1) = %q", got1)
	}

	got9 := Tp(ctx, "QuizIntro", 9)
	if got9 != "The screening quiz has 9 questions." {
		t.Errorf("Tp(QuizIntro, 9) = %q", got9)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ResultsScore", map[string]any{"Score": 5, "Total": 9})
	if got != "You answered 5 of 9 questions correctly." {
		t.Errorf("Td(ResultsScore) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want the key itself", got)
	}
}
