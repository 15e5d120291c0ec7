package compiler

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Report is the aggregated, user-facing view of one compile run.
type Report struct {
	OK          bool         `json:"ok"`
	Mode        string       `json:"mode"`
	Hash        string       `json:"hash"`
	Nodes       int          `json:"nodes"`
	Variables   int          `json:"variables"`
	Edges       int          `json:"edges"`
	Groups      int          `json:"schedule_groups,omitempty"`
	Diagnostics []reportDiag `json:"diagnostics"`
}

type reportDiag struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Location string `json:"location,omitempty"`
	Hint     string `json:"hint,omitempty"`
}

// NewReport summarizes a compile result.
func NewReport(result *Result) *Report {
	rep := &Report{
		OK:        result.OK,
		Mode:      result.Graph.Mode.String(),
		Hash:      result.Hash,
		Nodes:     len(result.Graph.NodeOrder),
		Variables: len(result.Graph.VarOrder),
		Edges:     len(result.Graph.Edges),
	}
	if result.Schedule != nil {
		rep.Groups = len(result.Schedule.Levels)
	}
	for _, d := range result.Diagnostics {
		rep.Diagnostics = append(rep.Diagnostics, reportDiag{
			Code:     d.Code,
			Severity: d.Severity.String(),
			Message:  d.Message,
			Location: d.Location,
			Hint:     d.Hint,
		})
	}
	return rep
}

// Text renders the report for terminals.
func (r *Report) Text() string {
	var b strings.Builder
	status := "ACCEPTED"
	if !r.OK {
		status = "REJECTED"
	}
	fmt.Fprintf(&b, "compile %s (mode=%s)\n", status, r.Mode)
	fmt.Fprintf(&b, "  nodes=%d variables=%d edges=%d", r.Nodes, r.Variables, r.Edges)
	if r.Groups > 0 {
		fmt.Fprintf(&b, " schedule_groups=%d", r.Groups)
	}
	fmt.Fprintf(&b, "\n  ir=%s\n", r.Hash)

	if len(r.Diagnostics) == 0 {
		b.WriteString("  no diagnostics\n")
		return b.String()
	}
	for _, d := range r.Diagnostics {
		fmt.Fprintf(&b, "  [%s] %s: %s", d.Code, d.Severity, d.Message)
		if d.Location != "" {
			fmt.Fprintf(&b, " (at %s)", d.Location)
		}
		b.WriteByte('\n')
		if d.Hint != "" {
			fmt.Fprintf(&b, "      hint: %s\n", d.Hint)
		}
	}
	return b.String()
}

// JSON renders the report for tooling.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
