// Package errors provides structured, actionable error messages for typlive.
//
// Every error carries a short code (e.g. "T110") that maps to a message, a
// longer explanation and a category. Errors can be enriched with a source
// location, a suggestion and a wrapped cause:
//
//	err := errors.New("T111").
//	    WithLocationFromOutput(output).
//	    WithSuggestion("Fix the document and save to recompile")
//
//	fmt.Print(err.Format())
//	// ERROR T111: Compilation failed
//	//
//	//   main.typ:3:5
//	//
//	//   Hint: Fix the document and save to recompile
//
// # Error Categories
//
//   - config: invalid flags or typlive.json
//   - compile: the external compiler failed or is missing
//   - server: listening, watching and WebSocket failures
//   - cli: command line usage errors
package errors
