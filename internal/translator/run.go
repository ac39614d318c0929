package translator

import (
	"context"
	"log/slog"
	"strings"
)

// RunTranslator translates the text of individual runs for one language
// pair. It is the only component that talks to the translation [Service].
//
// RunTranslator is fail-safe: whatever goes wrong with a single
// translation call, the caller always gets usable text back, the original
// if need be. A presentation must never lose content to a translation error,
// even if some of it ends up untranslated.
type RunTranslator struct {
	svc        Service
	obs        Observer
	sourceLang string
	targetLang string
	sysPrompt  string
}

// NewRunTranslator creates a RunTranslator for one source/target language
// pair. obs may be nil.
func NewRunTranslator(svc Service, sourceLang, targetLang string, obs Observer) *RunTranslator {
	return &RunTranslator{
		svc:        svc,
		obs:        obs,
		sourceLang: sourceLang,
		targetLang: targetLang,
		sysPrompt:  SystemInstruction(sourceLang, targetLang),
	}
}

// TranslateText returns the translation of text.
//
// Empty or whitespace-only text is returned verbatim without a service call.
// When the service fails the original text is returned unchanged and the
// failure is surfaced to the observer as informational.
func (rt *RunTranslator) TranslateText(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	translated, err := rt.svc.Translate(ctx, text, rt.sysPrompt)
	if err != nil {
		slog.Warn("run translation failed, keeping original text",
			"source_lang", rt.sourceLang,
			"target_lang", rt.targetLang,
			"err", err,
		)
		notify(rt.obs, "translation failed for one text run; original kept: "+err.Error())
		return text
	}
	return translated
}
