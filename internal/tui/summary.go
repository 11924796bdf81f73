package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/iondiff/internal/campaign"
)

// Summary renders a finished campaign for plain terminal output.
func Summary(r *campaign.Result) string {
	var b strings.Builder

	outcome := r.Outcome.String()
	switch {
	case r.Outcome == campaign.OutcomeConverged:
		b.WriteString(convergedStyle.Render("outcome: "+outcome) + "\n")
	case r.Outcome.Failed():
		b.WriteString(failedStyle.Render("outcome: "+outcome) + "\n")
	default:
		b.WriteString(runningStyle.Render("outcome: "+outcome) + "\n")
	}

	b.WriteString(labelStyle.Render("Iterations") + valueStyle.Render(fmt.Sprintf("%d", r.Iterations)) + "\n")
	if r.Trajectory != nil {
		b.WriteString(labelStyle.Render("Frames") + valueStyle.Render(fmt.Sprintf("%d", r.Trajectory.Len())) + "\n")
	}

	species := make([]string, 0, len(r.Estimates))
	for sp := range r.Estimates {
		species = append(species, sp)
	}
	sort.Strings(species)
	for _, sp := range species {
		e := r.Estimates[sp]
		b.WriteString(labelStyle.Render("D["+sp+"]") + valueStyle.Render(fmt.Sprintf("%.4g ± %.2g", e.Mean, e.SEM)) + "\n")
	}

	for _, run := range r.Runs {
		b.WriteString(labelStyle.Render(run.Label) + valueStyle.Render(run.Status.String()) + "\n")
	}
	if len(r.Cleaned) > 0 {
		b.WriteString(labelStyle.Render("Cleaned") + valueStyle.Render(strings.Join(r.Cleaned, ", ")) + "\n")
	}
	if r.Err != nil {
		b.WriteString(failedStyle.Render(fmt.Sprintf("detail: %v", r.Err)) + "\n")
	}
	return b.String()
}

// EstimateTrace plots the per-iteration diffusion estimate of a finished
// campaign.
func EstimateTrace(history []campaign.IterationReport) string {
	if len(history) < 2 {
		return ""
	}
	means := make([]float64, len(history))
	for i, h := range history {
		means[i] = h.Estimate.Mean
	}
	return asciigraph.Plot(means, asciigraph.Height(8), asciigraph.Width(56), asciigraph.Caption("diffusion estimate per iteration"))
}
