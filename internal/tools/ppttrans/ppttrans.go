// Package ppttrans provides the built-in "translate_ppt" MCP tool, the RPC
// boundary around the presentation translation pipeline.
//
// The tool accepts a base64-encoded PowerPoint file, translates it between
// the requested languages while preserving formatting, and returns the
// translated file as base64 inside a JSON result envelope. Parameter problems
// and translation failures are reported inside the envelope with
// success=false; only malformed argument JSON is a protocol error.
package ppttrans

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Paul60209/toolbench/internal/langcode"
	"github.com/Paul60209/toolbench/internal/tools"
	"github.com/Paul60209/toolbench/internal/translator"
	"github.com/Paul60209/toolbench/pkg/provider/llm"
)

// DefaultFileName is used when the caller does not name the uploaded file.
const DefaultFileName = "uploaded_presentation.pptx"

// Option configures a [Translator].
type Option func(*Translator)

// WithOutputDir sets the directory translated files are written to before
// being read back into the result. Empty means [translator.DefaultOutputDir].
func WithOutputDir(dir string) Option {
	return func(t *Translator) {
		t.outputDir = dir
	}
}

// WithTempDir sets the directory uploaded files are staged in. Empty means
// the system temp directory.
func WithTempDir(dir string) Option {
	return func(t *Translator) {
		t.tempDir = dir
	}
}

// WithObserver sets the observer translation jobs report progress to.
func WithObserver(obs translator.Observer) Option {
	return func(t *Translator) {
		t.observer = obs
	}
}

// Translator exposes the translation pipeline as an MCP tool.
type Translator struct {
	pipeline  *translator.Pipeline
	resolver  *langcode.Resolver
	observer  translator.Observer
	outputDir string
	tempDir   string
}

// New creates a Translator around the given pipeline.
func New(pipeline *translator.Pipeline, opts ...Option) *Translator {
	t := &Translator{
		pipeline: pipeline,
		resolver: langcode.NewResolver(),
		observer: translator.SlogObserver{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// translateArgs is the JSON-decoded input for the "translate_ppt" tool.
type translateArgs struct {
	// OLang and TLang are the source and target languages, as a code or a
	// (possibly misspelled) language name.
	OLang string `json:"olang"`
	TLang string `json:"tlang"`

	// FileContent is the PowerPoint file, base64 encoded. Raw bytes that do
	// not decode as base64 are accepted as-is.
	FileContent string `json:"file_content"`

	// FileName is the uploaded file's name, used to name the output file.
	// Optional.
	FileName string `json:"file_name"`
}

// translateResult is the JSON envelope every "translate_ppt" call returns.
type translateResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	FileName    string `json:"file_name,omitempty"`
	FileContent string `json:"file_content,omitempty"`
}

func encodeResult(r translateResult) (string, error) {
	out, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("ppttrans: failed to encode result: %w", err)
	}
	return string(out), nil
}

func failure(format string, args ...any) (string, error) {
	return encodeResult(translateResult{
		Success: false,
		Message: fmt.Sprintf(format, args...),
	})
}

// normalizeLang resolves input to a canonical language name when possible.
// Unresolvable inputs pass through verbatim, matching the permissive
// behaviour expected at this boundary.
func (t *Translator) normalizeLang(input string) string {
	lang, err := t.resolver.Resolve(input)
	if err != nil {
		return strings.TrimSpace(input)
	}
	return lang.Name
}

// normalizeFileName applies the default name and ensures a PowerPoint
// extension.
func normalizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultFileName
	}
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".ppt") && !strings.HasSuffix(lower, ".pptx") {
		return name + ".pptx"
	}
	return name
}

// decodeContent decodes base64 file content, falling back to the raw bytes
// when the payload is not valid base64.
func decodeContent(content string) []byte {
	decoded, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return []byte(content)
	}
	return decoded
}

// translateHandler implements the "translate_ppt" tool.
func (t *Translator) translateHandler(ctx context.Context, args string) (string, error) {
	var a translateArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("ppttrans: failed to parse arguments: %w", err)
	}

	if a.FileContent == "" {
		return failure("A PowerPoint file is required. Upload a file and pass its content in file_content.")
	}

	fileName := normalizeFileName(a.FileName)
	data := decodeContent(a.FileContent)

	// Stage the upload under its own name so the output file is named after
	// it. The staging directory is always removed.
	stageDir, err := os.MkdirTemp(t.tempDir, "ppttrans-")
	if err != nil {
		return failure("Could not stage the uploaded file: %v", err)
	}
	defer os.RemoveAll(stageDir)

	srcPath := filepath.Join(stageDir, filepath.Base(fileName))
	if err := os.WriteFile(srcPath, data, 0o600); err != nil {
		return failure("Could not stage the uploaded file: %v", err)
	}

	outPath, err := t.pipeline.Run(ctx, translator.Job{
		SourcePath: srcPath,
		OutputDir:  t.outputDir,
		SourceLang: t.normalizeLang(a.OLang),
		TargetLang: t.normalizeLang(a.TLang),
		Observer:   t.observer,
	})
	if err != nil {
		return failure("Translation failed: %v", err)
	}

	translated, err := os.ReadFile(outPath)
	if err != nil {
		return failure("Could not read the translated file: %v", err)
	}

	return encodeResult(translateResult{
		Success:     true,
		Message:     "Translation complete.",
		FileName:    filepath.Base(outPath),
		FileContent: base64.StdEncoding.EncodeToString(translated),
	})
}

// Tools returns the built-in presentation translation tools ready for
// registration.
//
// The returned tools are:
//   - "translate_ppt": translate a base64-encoded PowerPoint file between
//     two languages, preserving formatting.
func Tools(t *Translator) []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "translate_ppt",
				Description: "Translate a PowerPoint presentation from one language to another while preserving fonts, colors and layout. Accepts the file as a base64-encoded string and returns the translated file the same way. Languages may be given as codes (ja, en, zh) or names (Japanese, English), misspellings are tolerated.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"olang": map[string]any{
							"type":        "string",
							"description": "Source language code or name, e.g. \"ja\" or \"Japanese\".",
						},
						"tlang": map[string]any{
							"type":        "string",
							"description": "Target language code or name, e.g. \"en\" or \"English\".",
						},
						"file_content": map[string]any{
							"type":        "string",
							"description": "The PowerPoint file, base64 encoded.",
						},
						"file_name": map[string]any{
							"type":        "string",
							"description": "Name of the uploaded file, used to name the output. Optional.",
						},
					},
					"required": []string{"olang", "tlang", "file_content"},
				},
			},
			Handler: t.translateHandler,
		},
	}
}
