// Package capability holds the static table of which provider kind supports
// which generation function. Saved provider configs may disable flags but can
// never enable a function the kind does not implement.
package capability

import "storyboard/internal/domain"

// Provider kinds known to the orchestrator.
const (
	KindGemini    = "gemini"
	KindOpenAI    = "openai"
	KindDashScope = "dashscope"
	KindKling     = "kling"
)

var table = map[string]map[domain.Function]bool{
	KindGemini: {
		domain.FunctionTextToImage:    true,
		domain.FunctionImageEdit:      true,
		domain.FunctionTextGeneration: true,
		domain.FunctionImageAnalysis:  true,
		domain.FunctionVideoAnalysis:  true,
	},
	KindOpenAI: {
		domain.FunctionTextToImage:    true,
		domain.FunctionTextGeneration: true,
		domain.FunctionImageAnalysis:  true,
	},
	KindDashScope: {
		domain.FunctionTextToImage: true,
		domain.FunctionImageEdit:   true,
	},
	KindKling: {
		domain.FunctionVideoGeneration: true,
	},
}

// Known reports whether the provider kind is registered.
func Known(kind string) bool {
	_, ok := table[kind]
	return ok
}

// Supports reports whether the provider kind implements the function.
func Supports(kind string, fn domain.Function) bool {
	return table[kind][fn]
}

// Functions lists the functions a provider kind implements, in canonical order.
func Functions(kind string) []domain.Function {
	var fns []domain.Function
	for _, fn := range domain.AllFunctions() {
		if table[kind][fn] {
			fns = append(fns, fn)
		}
	}
	return fns
}

// Defaults returns the capability flag set for a provider kind, all enabled.
// Unknown kinds get an empty set so nothing can be routed to them.
func Defaults(kind string) map[domain.Function]bool {
	caps := map[domain.Function]bool{}
	for fn, ok := range table[kind] {
		if ok {
			caps[fn] = true
		}
	}
	return caps
}

// Kinds lists every registered provider kind.
func Kinds() []string {
	return []string{KindGemini, KindOpenAI, KindDashScope, KindKling}
}
