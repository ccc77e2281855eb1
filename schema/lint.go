package schema

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// LintReport is the outcome of Lint. Valid is false when any Problem was
// found; Warnings never affect validity.
type LintReport struct {
	Source     string      `json:"source"`
	OpenAPI    string      `json:"openapi"`
	Title      string      `json:"title"`
	Version    string      `json:"version"`
	Paths      int         `json:"paths"`
	Operations []Operation `json:"operations"`
	Valid      bool        `json:"valid"`
	Problems   []string    `json:"problems,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// Lint validates source against the OpenAPI 3 rules enforced by
// kin-openapi, then checks that every JSON request body resolves cleanly
// for synthesis. It returns an error only when source cannot be read.
func (l *Loader) Lint(ctx context.Context, source string) (*LintReport, error) {
	location := normalizeLocation(source)
	report := &LintReport{Source: location, Valid: true}

	kl := openapi3.NewLoader()
	kl.IsExternalRefsAllowed = true
	kl.Context = ctx

	var (
		spec *openapi3.T
		err  error
	)
	if isURL(location) {
		u, perr := url.Parse(location)
		if perr != nil {
			return nil, &SchemaLoadError{Source: source, Cause: perr}
		}
		spec, err = kl.LoadFromURI(u)
	} else {
		spec, err = kl.LoadFromFile(location)
	}
	if err != nil {
		return nil, &SchemaLoadError{Source: source, Cause: err}
	}

	report.OpenAPI = spec.OpenAPI
	if spec.Info != nil {
		report.Title = spec.Info.Title
		report.Version = spec.Info.Version
	}
	if spec.Paths != nil {
		report.Paths = spec.Paths.Len()
	}
	if verr := spec.Validate(ctx); verr != nil {
		report.addProblems(verr)
	}

	doc, err := l.Load(ctx, source)
	if err != nil {
		var resErr *SchemaResolutionError
		if errors.As(err, &resErr) {
			report.addProblems(err)
			return report, nil
		}
		return nil, err
	}

	report.Operations = doc.Operations()
	if len(report.Operations) == 0 {
		report.Warnings = append(report.Warnings, "no operation declares an application/json request body")
	}
	for _, op := range report.Operations {
		rs, rerr := doc.RequestSchema(op.Path, op.Method)
		if rerr != nil {
			continue
		}
		for _, name := range rs.Required {
			if _, ok := rs.Property(name); !ok {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("%s: required property %q is not declared", op.OperationRef, name))
			}
		}
		for _, p := range rs.Properties {
			if p.Type == TypeAbsent {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("%s: property %q has no type", op.OperationRef, p.Name))
			}
		}
	}
	return report, nil
}

func (r *LintReport) addProblems(err error) {
	r.Valid = false
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			r.Problems = append(r.Problems, line)
		}
	}
}
