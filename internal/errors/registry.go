package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Config Errors (T100-T109)
	// ============================================

	"T100": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "The configuration file passed with --config does not exist.",
	},
	"T101": {
		Category: CategoryConfig,
		Message:  "Invalid config file",
		Detail:   "typlive.json could not be read or is not valid JSON.",
	},
	"T102": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "The serving port must be between 0 and 65535.",
	},
	"T103": {
		Category: CategoryConfig,
		Message:  "Missing document",
		Detail:   "No document to preview was given.",
	},
	"T104": {
		Category: CategoryConfig,
		Message:  "Document not found",
		Detail:   "The document to preview does not exist.",
	},
	"T105": {
		Category: CategoryConfig,
		Message:  "Invalid ignore pattern",
		Detail:   "An ignore pattern is not a valid glob.",
	},

	// ============================================
	// Compile Errors (T110-T119)
	// ============================================

	"T110": {
		Category: CategoryCompile,
		Message:  "Compiler not found",
		Detail:   "The document compiler is not installed or not in PATH.",
	},
	"T111": {
		Category: CategoryCompile,
		Message:  "Compilation failed",
		Detail:   "The compiler exited with an error.",
	},
	"T112": {
		Category: CategoryCompile,
		Message:  "Output directory unavailable",
		Detail:   "The directory for the compiled artifact could not be created.",
	},

	// ============================================
	// Server Errors (T120-T139)
	// ============================================

	"T120": {
		Category: CategoryServer,
		Message:  "Server failed",
		Detail:   "The HTTP listener could not be started or stopped unexpectedly.",
	},
	"T121": {
		Category: CategoryServer,
		Message:  "Watcher failed",
		Detail:   "The file watcher could not be started.",
	},
	"T130": {
		Category: CategoryServer,
		Message:  "WebSocket upgrade failed",
		Detail:   "The client request could not be upgraded to a WebSocket connection.",
	},
	"T131": {
		Category: CategoryServer,
		Message:  "Refresh send failed",
		Detail:   "The refresh message could not be delivered to the client.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
