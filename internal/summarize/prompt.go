// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package summarize

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"github.com/lycheng/paperboy/pkg/types"
)

// summaryPromptTmpl is the default prompt wrapped around a paper's
// converted text. Operators can replace it via summary.prompt_file.
var summaryPromptTmpl = template.Must(template.New("summary").Parse(`I would like you to help me summarize a paper in the field of machine learning.
please respond in clear, concise, and easy-to-understand language. Here are my specific requirements:

1. The core topic of the paper: Summarize the theme or research question of the paper in one sentence.
2. Main contributions: What problems does the paper solve? What new methods or insights does it propose?
3. Core methods: Describe the main technical methods or algorithms proposed in the paper using simple language.
4. Experimental results: What are the experimental results of the paper? What do they demonstrate?
5. Practical applications: In which real-world scenarios can the research findings of this paper be applied?
6. Advantages and limitations: Briefly explain the main advantages of the paper and its possible shortcomings or limitations.
7. Conclusion: Summarize the overall significance or value of this paper in one sentence.

Here is the full content of the paper:

{{.Content}}
`))

// reducePromptTmpl condenses per-part summaries into one. Parts are
// labeled by position because later sections of a paper refer to earlier
// ones by position, so the model must see them in original order.
var reducePromptTmpl = template.Must(template.New("reduce").Parse(`The following are summaries of consecutive parts of one machine learning paper, in original document order.
Condense them into a single coherent summary covering the same seven points (core topic, main contributions,
core methods, experimental results, practical applications, advantages and limitations, conclusion).
Preserve the order in which topics are introduced and do not repeat yourself.

{{range .Parts}}## Part {{.Index}} of {{$.Total}}

{{.Summary}}

{{end}}`))

// promptPart is one chunk summary fed to the reduction template.
type promptPart struct {
	Index   int
	Summary string
}

// prompts holds the rendered-per-call templates for one Summarizer.
type prompts struct {
	summary *template.Template
	reduce  *template.Template
}

// loadPrompts returns the built-in templates, with file overrides
// applied where the config names them.
func loadPrompts(cfg types.SummaryConfig) (prompts, error) {
	p := prompts{summary: summaryPromptTmpl, reduce: reducePromptTmpl}

	if cfg.PromptFile != "" {
		t, err := parsePromptFile("summary", cfg.PromptFile)
		if err != nil {
			return prompts{}, err
		}
		p.summary = t
	}
	if cfg.ReducePromptFile != "" {
		t, err := parsePromptFile("reduce", cfg.ReducePromptFile)
		if err != nil {
			return prompts{}, err
		}
		p.reduce = t
	}
	return p, nil
}

func parsePromptFile(name, path string) (*template.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt file %s: %w", path, err)
	}
	t, err := template.New(name).Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing prompt file %s: %w", path, err)
	}
	return t, nil
}

// renderSummary wraps one chunk of paper text in the summary prompt.
func (p prompts) renderSummary(content string) (string, error) {
	var buf bytes.Buffer
	if err := p.summary.Execute(&buf, struct{ Content string }{Content: content}); err != nil {
		return "", fmt.Errorf("rendering summary prompt: %w", err)
	}
	return buf.String(), nil
}

// renderReduce builds the reduction prompt from ordered chunk summaries.
func (p prompts) renderReduce(parts []promptPart) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Parts []promptPart
		Total int
	}{Parts: parts, Total: len(parts)}
	if err := p.reduce.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering reduce prompt: %w", err)
	}
	return buf.String(), nil
}
