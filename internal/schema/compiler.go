package schema

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// DefaultProtoc is the schema compiler command used when none is set.
const DefaultProtoc = "protoc"

// Compiler turns .proto files into descriptor sets by running protoc.
type Compiler struct {
	Command      string
	IncludePaths []string
}

// Compile runs protoc on protoPath and writes the descriptor set, imports
// included, into outDir. It returns the descriptor set path.
func (c Compiler) Compile(ctx context.Context, protoPath, outDir string) (string, error) {
	command := strings.TrimSpace(c.Command)
	if command == "" {
		command = DefaultProtoc
	}
	if _, err := exec.LookPath(command); err != nil {
		return "", fmt.Errorf("schema: %s not found in PATH", command)
	}

	abs, err := filepath.Abs(protoPath)
	if err != nil {
		return "", fmt.Errorf("schema: resolve %s: %w", protoPath, err)
	}
	out := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(abs), ".proto")+".protoset")

	args := []string{"--proto_path=" + filepath.Dir(abs)}
	for _, inc := range c.IncludePaths {
		args = append(args, "--proto_path="+inc)
	}
	args = append(args, "--include_imports", "--descriptor_set_out="+out, filepath.Base(abs))

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = filepath.Dir(abs)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("schema: compile %s: %w: %s", filepath.Base(abs), err, strings.TrimSpace(string(output)))
	}
	return out, nil
}

// IsDescriptorSet reports whether path names a compiled descriptor set.
func IsDescriptorSet(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pb", ".desc", ".binpb", ".protoset":
		return true
	}
	return false
}

// Load builds a protobuf table from a .proto source, compiled with c into
// workDir, or from an already compiled descriptor set.
func Load(ctx context.Context, path, workDir string, c Compiler) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	setPath := path
	switch {
	case IsDescriptorSet(path):
	case strings.EqualFold(filepath.Ext(path), ".proto"):
		compiled, err := c.Compile(ctx, path, workDir)
		if err != nil {
			return nil, err
		}
		setPath = compiled
	default:
		return nil, fmt.Errorf("schema: unsupported schema file %s (want .proto or a descriptor set)", filepath.Base(path))
	}

	fds, err := ReadDescriptorSet(setPath)
	if err != nil {
		return nil, err
	}
	t, err := FromDescriptorSet(fds)
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, fmt.Errorf("schema: %s defines no message types", filepath.Base(path))
	}
	return t, nil
}
