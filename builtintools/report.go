package builtintools

import (
	"context"
	"fmt"
	"strings"

	"github.com/pipelinerun/engine/runtime/envelope"
	"github.com/pipelinerun/engine/runtime/registry"
	"github.com/pipelinerun/engine/runtime/toolident"
)

// RegisterReportGenerator registers the "report_generator" data_processor
// tool: it turns a list of findings (typically a $search.output reference)
// into a Markdown report, grounded on original_source/tools/report_generator.py's
// report_content field.
func RegisterReportGenerator(reg *registry.Registry) error {
	return reg.Register(registry.ToolDescriptor{
		Name:     "report_generator",
		Category: toolident.CategoryDataProcessor,
		InputSchema: map[string]toolident.SemanticType{
			"title":    toolident.SemanticString,
			"findings": toolident.SemanticList,
		},
		Output: registry.OutputShape{Primary: toolident.SemanticFileContent},
		Schema: &registry.SchemaHint{Keys: map[string]string{
			"report_content": "data.primary",
		}},
		Invoke: func(_ context.Context, params map[string]any) envelope.Envelope {
			title, _ := params["title"].(string)
			if title == "" {
				title = "Report"
			}
			findings, _ := params["findings"].([]any)

			var b strings.Builder
			fmt.Fprintf(&b, "# %s\n\n", title)
			for i, f := range findings {
				fmt.Fprintf(&b, "%d. %v\n", i+1, f)
			}
			content := b.String()

			return envelope.NewBuilder("report_generator", params).
				WithVersion("1.0.0").
				Primary(content).
				Secondary("report_content", content).
				Count("findings", len(findings)).
				Message(fmt.Sprintf("generated report with %d findings", len(findings))).
				Build()
		},
	})
}
