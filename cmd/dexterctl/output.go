package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"Dexter-Chain/sdk/go/dexter"
)

func render(w io.Writer, format string, v any, human func(*printer)) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		// yaml.v3 只识别 yaml 标签，先转成通用结构以沿用 JSON 字段名。
		var doc any
		if err := convert(v, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	case "human", "":
		human(&printer{w: w})
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

type printer struct {
	w io.Writer
}

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen, color.Bold)
	badColor    = color.New(color.FgRed, color.Bold)
)

func (p *printer) batch(b dexter.BatchResult) {
	p.verdict(b.AllValid, b.Summary)
	for _, tr := range b.TransactionResults {
		fmt.Fprintln(p.w)
		status := okColor.Sprint("valid")
		if !tr.Valid {
			status = badColor.Sprint("invalid")
		}
		headerColor.Fprintf(p.w, "Transaction #%d ", tr.Index)
		fmt.Fprintln(p.w, status)
		for _, r := range tr.Results {
			p.result(r)
		}
	}
	if len(b.OptimizationTips) > 0 {
		fmt.Fprintln(p.w)
		headerColor.Fprintln(p.w, "Optimization tips:")
		for _, tip := range b.OptimizationTips {
			fmt.Fprintf(p.w, "  - %s\n", tip)
		}
	}
}

func (p *printer) result(r dexter.Result) {
	mark := color.GreenString("✓")
	if !r.Passed {
		mark = severityColor(r.Severity).Sprint("✗")
	}
	fmt.Fprintf(p.w, "  %s [%s/%s] %s\n", mark, r.Category, r.Severity, r.Message)
	if !r.Passed && r.OptimizationTip != "" {
		fmt.Fprintf(p.w, "      tip: %s\n", color.CyanString(r.OptimizationTip))
	}
}

func (p *printer) outcome(o dexter.Outcome) {
	p.verdict(o.Valid, fmt.Sprintf("%s after %d iteration(s)", o.FinalEvaluation.Summary, o.Iterations))
	for _, round := range o.Rounds {
		if round.Iteration == 0 {
			continue
		}
		fmt.Fprintln(p.w)
		headerColor.Fprintf(p.w, "Round %d\n", round.Iteration)
		for _, applied := range round.Applied {
			fmt.Fprintf(p.w, "  + %s\n", applied)
		}
		fmt.Fprintf(p.w, "  %s\n", color.HiBlackString(round.Evaluation.Summary))
	}
	for i, report := range o.Reports {
		if len(report.AppliedOptimizations) == 0 && len(report.Improvements) == 0 {
			continue
		}
		fmt.Fprintln(p.w)
		headerColor.Fprintf(p.w, "Report for transaction #%d\n", i)
		for _, imp := range report.Improvements {
			fmt.Fprintf(p.w, "  %s %s\n", color.GreenString("↑"), imp)
		}
	}
	if len(o.Suggestions) > 0 {
		fmt.Fprintln(p.w)
		headerColor.Fprintln(p.w, "Suggestions:")
		for _, s := range o.Suggestions {
			fmt.Fprintf(p.w, "  %s: %s\n", color.YellowString(s.Approach), s.Description)
		}
	}
	if !o.Valid {
		fmt.Fprintln(p.w)
		p.batch(o.FinalEvaluation)
	}
}

func (p *printer) job(j dexter.Job) {
	headerColor.Fprintf(p.w, "Job %s ", j.ID)
	fmt.Fprintf(p.w, "%s (attempts %d/%d)\n", statusColor(j.Status).Sprint(j.Status), j.Attempts, j.MaxRetries)
	if j.LastError != "" {
		fmt.Fprintf(p.w, "  last error: %s %s\n", color.RedString(j.ErrorCode), j.LastError)
	}
	if j.Result != nil {
		fmt.Fprintln(p.w)
		p.outcome(*j.Result)
	}
}

func (p *printer) verdict(ok bool, summary string) {
	if ok {
		okColor.Fprint(p.w, "PASS ")
	} else {
		badColor.Fprint(p.w, "FAIL ")
	}
	fmt.Fprintln(p.w, summary)
}

func severityColor(severity string) *color.Color {
	switch strings.ToLower(severity) {
	case "critical":
		return color.New(color.FgRed, color.Bold)
	case "warning":
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

func statusColor(status string) *color.Color {
	switch status {
	case dexter.JobSucceeded:
		return color.New(color.FgGreen)
	case dexter.JobFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}
