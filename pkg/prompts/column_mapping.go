// Package prompts builds the LLM prompts used for column-mapping inference.
package prompts

import (
	"fmt"
	"strings"
)

// ColumnMappingSystemMessage frames the model as a schema analyst returning
// strict JSON.
const ColumnMappingSystemMessage = `You are a data engineer classifying the columns of an uploaded monitoring dataset. You respond with a single JSON object and no other text.`

// BuildColumnMappingPrompt creates the prompt asking the model to assign
// canonical roles to raw columns and classify the rest. Sample rows are
// already bounded by the caller; the prompt never carries more than what it
// is given.
func BuildColumnMappingPrompt(headers []string, sampleRows [][]string) string {
	var prompt strings.Builder

	prompt.WriteString("# Column Mapping Proposal\n\n")
	prompt.WriteString("A user uploaded a tabular dataset of monitored sites and/or sensor readings. ")
	prompt.WriteString("Identify which columns fill the canonical roles below, and classify every remaining column.\n\n")

	prompt.WriteString("## Columns\n\n")
	for i, h := range headers {
		prompt.WriteString(fmt.Sprintf("%d. %s\n", i+1, h))
	}

	if len(sampleRows) > 0 {
		prompt.WriteString("\n## Sample rows\n\n")
		prompt.WriteString("| " + strings.Join(headers, " | ") + " |\n")
		for _, row := range sampleRows {
			cells := make([]string, len(headers))
			for i := range headers {
				if i < len(row) {
					cells[i] = row[i]
				}
			}
			prompt.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}

	prompt.WriteString(`
## Canonical roles

- ENTITY_ID: stable identifier of the monitored site/record (well code, station id)
- LATITUDE: latitude in decimal degrees
- LONGITUDE: longitude in decimal degrees
- TIMESTAMP: observation date or date-time
- METRIC_NAME: name of the measured metric, when rows carry different metrics
- METRIC_VALUE: the numeric measurement itself

Each role maps to at most one column, and a column may fill at most one role.
Leave a role out if no column fits - many datasets are snapshots with no
TIMESTAMP or METRIC_VALUE at all.

## Classification of remaining columns

Classify every column not assigned a role as one of:
CATEGORICAL (small set of repeated labels), NUMERICAL, TEXT, IGNORED
(serial numbers, empty columns, artifacts).

## Response format

Return exactly this JSON shape:

{
  "roles": {
    "ENTITY_ID": {"column": "<header>", "confidence": 0.0-1.0}
  },
  "columns": {
    "<header>": "CATEGORICAL|NUMERICAL|TEXT|IGNORED"
  }
}

Use the original header spelling. Confidence reflects how certain you are of
the role assignment.`)

	return prompt.String()
}
