package domain

import (
	"fmt"
	"strings"
)

// Function enumerates the generation operations the orchestrator can route.
type Function string

const (
	FunctionTextToImage     Function = "textToImage"
	FunctionImageEdit       Function = "imageEdit"
	FunctionTextGeneration  Function = "textGeneration"
	FunctionImageAnalysis   Function = "imageAnalysis"
	FunctionVideoGeneration Function = "videoGeneration"
	FunctionVideoAnalysis   Function = "videoAnalysis"
)

// AllFunctions returns every routable generation function in a stable order.
func AllFunctions() []Function {
	return []Function{
		FunctionTextToImage,
		FunctionImageEdit,
		FunctionTextGeneration,
		FunctionImageAnalysis,
		FunctionVideoGeneration,
		FunctionVideoAnalysis,
	}
}

// ParseFunction normalizes a user-supplied function name.
func ParseFunction(raw string) (Function, error) {
	candidate := Function(strings.TrimSpace(raw))
	for _, fn := range AllFunctions() {
		if candidate == fn {
			return fn, nil
		}
	}
	return "", fmt.Errorf("unknown generation function %q", raw)
}

// Valid reports whether the function is one of the known operations.
func (f Function) Valid() bool {
	_, err := ParseFunction(string(f))
	return err == nil
}
