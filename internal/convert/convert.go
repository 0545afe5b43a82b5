// Package convert runs the external tool that turns binary log files into
// delimited text rows.
package convert

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Default converter invocation: dlt-viewer in silent CSV conversion mode.
const DefaultCommand = "dlt-viewer"

// DefaultArgs are the converter arguments. {in} and {out} are replaced with
// the source and destination paths.
var DefaultArgs = []string{"-v", "-s", "-csv", "-c", "{in}", "{out}"}

// Converter converts a source log file into a rows file placed in workDir
// and returns the rows file path.
type Converter interface {
	Convert(ctx context.Context, src, workDir string) (string, error)
}

// Command runs an external program to convert files.
type Command struct {
	Name string
	Args []string
}

// NewCommand returns a converter for name with argument templates args.
// Empty values fall back to the defaults.
func NewCommand(name string, args []string) *Command {
	if strings.TrimSpace(name) == "" {
		name = DefaultCommand
	}
	if len(args) == 0 {
		args = DefaultArgs
	}
	return &Command{Name: name, Args: append([]string(nil), args...)}
}

// Convert implements Converter. A non-zero exit is an error carrying the
// tool's output.
func (c *Command) Convert(ctx context.Context, src, workDir string) (string, error) {
	if _, err := exec.LookPath(c.Name); err != nil {
		return "", fmt.Errorf("convert: %s not found in PATH", c.Name)
	}
	dst := filepath.Join(workDir, OutputName(src))
	cmd := exec.CommandContext(ctx, c.Name, c.expand(src, dst)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("convert: %s failed: %w: %s", filepath.Base(c.Name), err, strings.TrimSpace(string(out)))
	}
	return dst, nil
}

func (c *Command) expand(src, dst string) []string {
	r := strings.NewReplacer("{in}", src, "{out}", dst)
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = r.Replace(a)
	}
	return args
}

// OutputName returns the rows file name for a source file: its base name
// with the extension replaced by .csv.
func OutputName(src string) string {
	base := filepath.Base(src)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".csv"
}

// Passthrough treats the source as an already converted rows file.
type Passthrough struct{}

// Convert implements Converter by returning src unchanged.
func (Passthrough) Convert(_ context.Context, src, _ string) (string, error) { return src, nil }

// PassthroughCommand selects Passthrough in configuration.
const PassthroughCommand = "none"

// FromConfig returns the converter for a configured command.
func FromConfig(name string, args []string) Converter {
	if strings.EqualFold(strings.TrimSpace(name), PassthroughCommand) {
		return Passthrough{}
	}
	return NewCommand(name, args)
}
