// Package intentflow turns a free-form request into a candidate JSON payload
// for an operation described by an OpenAPI contract.
//
// Usage:
//
//	import "github.com/BaSui01/intentflow"
//
//	res, err := intentflow.Analyze(ctx, text, "NetworkSliceBooking.yaml", "/sessions", "post")
//	if err != nil { ... }
//	if !res.Ready {
//		fmt.Println("missing:", res.MissingRequired)
//	}
//
// This is a thin wrapper around [analyzer.Analyzer] with an uncached loader.
// Services should build their own Analyzer with a cache and history store.
package intentflow

import (
	"context"

	"github.com/BaSui01/intentflow/analyzer"
	"github.com/BaSui01/intentflow/extract"
	"github.com/BaSui01/intentflow/schema"
	"github.com/BaSui01/intentflow/synth"
)

// Result is the synthesized payload together with its readiness verdict.
type Result = synth.Result

// Analyze loads source (file path or http(s) URL), resolves its references,
// extracts the request schema for path/method and synthesizes a payload from
// text. Missing required fields are reported through Result.Ready, not as an
// error.
func Analyze(ctx context.Context, text, source, path, method string) (*Result, error) {
	a := analyzer.New(schema.NewLoader(), analyzer.Defaults{}, nil)
	return a.Analyze(ctx, analyzer.Request{
		Text:   text,
		Source: source,
		Path:   path,
		Method: method,
	})
}

// AnalyzeBytes is Analyze for an in-memory contract. name is used to resolve
// relative external references and in error messages.
func AnalyzeBytes(ctx context.Context, text, name string, data []byte, path, method string) (*Result, error) {
	doc, err := schema.NewLoader().LoadBytes(ctx, name, data)
	if err != nil {
		return nil, err
	}
	rs, err := doc.RequestSchema(path, method)
	if err != nil {
		return nil, err
	}
	return synth.Synthesize(rs, extract.Extract(text, rs.Properties)), nil
}
