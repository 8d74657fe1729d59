package reconcile

import (
	"fmt"
	"time"

	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/pkg/imaging"
	"birthday-wall/backend/pkg/logger"
)

// Source is one list of messages handed to the reconciler
type Source struct {
	Name string `json:"name"`
	// Live marks a snapshot of the canonical store; recent live messages
	// may be exempt from filtering (see Rules.PreserveRecent)
	Live     bool             `json:"live,omitempty"`
	Messages []models.Message `json:"messages"`
}

// Config parameterizes a reconciliation run
type Config struct {
	Rules Rules
	// Now is used for the PreserveRecent window; defaults to time.Now
	Now func() time.Time
}

// SourceCount is the number of input messages per source
type SourceCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Report explains what a run did
type Report struct {
	Sources     []SourceCount `json:"sources"`
	Inputs      int           `json:"inputs"`
	Unique      int           `json:"unique"`
	Output      int           `json:"output"`
	Preserved   int           `json:"preserved"`
	Duplicates  []Duplicate   `json:"duplicates,omitempty"`
	Rejected    []Rejected    `json:"rejected,omitempty"`
	Diagnostics []Diagnostic  `json:"diagnostics,omitempty"`
}

// Result is the reconciled collection and its report
type Result struct {
	Messages []models.Message `json:"messages"`
	Report   Report           `json:"report"`
}

// Reconciler runs the merge, filter and assemble stages in sequence
type Reconciler struct {
	config Config
	log    *logger.Logger
}

// New creates a reconciler. log may be nil.
func New(config Config, log *logger.Logger) *Reconciler {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Reconciler{config: config, log: log}
}

// Run reconciles sources, most trusted first
func (r *Reconciler) Run(sources []Source) Result {
	var report Report

	lists := make([][]models.Message, 0, len(sources))
	exempt := make(map[string]struct{})
	now := r.config.Now()

	for _, src := range sources {
		report.Sources = append(report.Sources, SourceCount{Name: src.Name, Count: len(src.Messages)})
		report.Inputs += len(src.Messages)

		list := make([]models.Message, 0, len(src.Messages))
		for _, m := range src.Messages {
			if diag, ok := checkAttachment(m); !ok {
				report.Diagnostics = append(report.Diagnostics, diag)
				m.DropAttachment()
			}
			if src.Live && r.isRecent(m, now) {
				exempt[Signature(m)] = struct{}{}
			}
			list = append(list, m)
		}
		lists = append(lists, list)
	}

	set, dups := mergeSources(lists)
	report.Duplicates = dups
	report.Unique = set.Len()

	compiled := r.config.Rules.compile()
	kept := make([]models.Message, 0, set.Len())
	for _, sig := range set.Signatures() {
		m, _ := set.Get(sig)
		if _, ok := exempt[sig]; ok {
			report.Preserved++
			kept = append(kept, m)
			continue
		}
		if reason := compiled.reject(m); reason != "" {
			report.Rejected = append(report.Rejected, Rejected{Message: m, Reason: reason})
			continue
		}
		kept = append(kept, m)
	}

	ordered, diags := Assemble(kept)
	report.Diagnostics = append(report.Diagnostics, diags...)
	report.Output = len(ordered)

	r.logReport(report)

	return Result{Messages: ordered, Report: report}
}

func (r *Reconciler) isRecent(m models.Message, now time.Time) bool {
	window := r.config.Rules.PreserveRecent
	if window <= 0 {
		return false
	}
	at, err := m.CreatedAt()
	if err != nil {
		return false
	}
	return now.Sub(at) < window
}

// checkAttachment validates an inline attachment
func checkAttachment(m models.Message) (Diagnostic, bool) {
	if m.Attachment() != models.AttachmentInline {
		return Diagnostic{}, true
	}
	if _, err := imaging.ParseDataURL(m.Image); err != nil {
		return Diagnostic{
			Kind:    DiagBadInlineAttachment,
			Name:    m.Name,
			Message: fmt.Sprintf("inline image dropped: %v", err),
		}, false
	}
	return Diagnostic{}, true
}

func (r *Reconciler) logReport(report Report) {
	if r.log == nil {
		return
	}
	for _, d := range report.Diagnostics {
		r.log.Warn("Data quality issue", "kind", d.Kind, "name", d.Name, "value", d.Value, "detail", d.Message)
	}
	r.log.Info("Reconciliation finished",
		"inputs", report.Inputs,
		"unique", report.Unique,
		"duplicates", len(report.Duplicates),
		"rejected", len(report.Rejected),
		"preserved", report.Preserved,
		"output", report.Output,
	)
}
