package preview

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/typlive/typlive/internal/errors"
	"github.com/typlive/typlive/pkg/middleware"
)

// CompilerConfig configures the document compiler.
type CompilerConfig struct {
	// Command is the compiler executable.
	Command string

	// Input is the source document.
	Input string

	// Output is where to write the compiled artifact.
	Output string

	// Args are extra arguments appended after the input and output paths.
	Args []string

	// Env are additional environment variables.
	Env []string
}

// BuildResult contains the result of a build.
type BuildResult struct {
	// Success indicates if the build succeeded.
	Success bool

	// Duration is how long the build took.
	Duration time.Duration

	// Output is the compiler output.
	Output string

	// Error is the build error, if any.
	Error error
}

// Compiler runs the external document compiler. Builds are serialized so
// two runs never write the artifact at the same time.
type Compiler struct {
	config CompilerConfig
	mu     sync.Mutex
}

// NewCompiler creates a new document compiler.
func NewCompiler(config CompilerConfig) *Compiler {
	if config.Command == "" {
		config.Command = "typst"
	}
	return &Compiler{config: config}
}

// OutputPath returns the artifact path.
func (c *Compiler) OutputPath() string {
	return c.config.Output
}

// Build compiles the document once.
func (c *Compiler) Build(ctx context.Context) BuildResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := c.build(ctx)
	middleware.RecordCompile(result.Success, result.Duration)
	return result
}

func (c *Compiler) build(ctx context.Context) BuildResult {
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(c.config.Output), 0755); err != nil {
		return BuildResult{
			Duration: time.Since(start),
			Error:    errors.New("T112").Wrap(err),
		}
	}

	bin, err := exec.LookPath(c.config.Command)
	if err != nil {
		return BuildResult{
			Duration: time.Since(start),
			Error: errors.New("T110").
				WithDetail("Cannot run " + c.config.Command).
				Wrap(err),
		}
	}

	cmd := exec.CommandContext(ctx, bin, c.buildArgs()...)
	cmd.Dir = filepath.Dir(c.config.Input)
	cmd.Env = append(os.Environ(), c.config.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	duration := time.Since(start)

	output := strings.TrimSpace(stderr.String())
	if output == "" {
		output = strings.TrimSpace(stdout.String())
	}

	if err != nil {
		return BuildResult{
			Success:  false,
			Duration: duration,
			Output:   output,
			Error: errors.New("T111").
				WithDetail(output).
				WithLocationFromOutput(output).
				Wrap(err),
		}
	}

	return BuildResult{
		Success:  true,
		Duration: duration,
		Output:   output,
	}
}

// buildArgs returns "compile <input> <output> [args...]".
func (c *Compiler) buildArgs() []string {
	args := make([]string, 0, 3+len(c.config.Args))
	args = append(args, "compile", c.config.Input, c.config.Output)
	return append(args, c.config.Args...)
}
