// Command pipelineengine runs a single Pipeline Specification end to end: it
// reads a JSON spec file, wires the registry with the builtin tool set, and
// prints the resulting event stream and node outcomes, mirroring the
// teacher's cmd/demo idiom of a small, flag-driven, single-shot wiring
// demonstration rather than a long-running server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pipelinerun/engine/builtintools"
	"github.com/pipelinerun/engine/runtime/config"
	"github.com/pipelinerun/engine/runtime/engine"
	"github.com/pipelinerun/engine/runtime/outputadapt"
	"github.com/pipelinerun/engine/runtime/pipeline"
	"github.com/pipelinerun/engine/runtime/registry"
	"github.com/pipelinerun/engine/runtime/reqctx"
	"github.com/pipelinerun/engine/runtime/stream"
	"github.com/pipelinerun/engine/runtime/telemetry"
)

func main() {
	specPath := flag.String("spec", "", "path to a pipeline specification JSON file (required)")
	configDir := flag.String("config", "", "directory holding categories.yaml/legacy_fields.yaml/transformers.yaml (optional; compiled-in defaults are used otherwise)")
	storeDir := flag.String("store-dir", "", "local directory the uploader tool treats as its object store (optional)")
	verbose := flag.Bool("verbose", false, "use the clue-backed logger/metrics/tracer instead of no-ops")
	flag.Parse()

	if *specPath == "" {
		fmt.Fprintln(os.Stderr, "usage: pipelineengine -spec pipeline.json")
		os.Exit(2)
	}

	spec, err := loadSpec(*specPath)
	if err != nil {
		log.Fatalf("pipelineengine: %v", err)
	}

	reg := registry.New()
	must(builtintools.RegisterSearch(reg, nil))
	must(builtintools.RegisterReportGenerator(reg))
	must(builtintools.RegisterFileWriter(reg))
	must(builtintools.RegisterUploader(reg, *storeDir))
	must(builtintools.RegisterImageLoader(reg))
	must(builtintools.RegisterImageRotator(reg))

	outAdaptOpts := []outputadapt.Option{}
	var engineOpts []engine.Option
	if *verbose {
		engineOpts = append(engineOpts,
			engine.WithLogger(telemetry.NewClueLogger()),
			engine.WithMetrics(telemetry.NewClueMetrics()),
			engine.WithTracer(telemetry.NewClueTracer()),
		)
	}

	if *configDir != "" {
		cats, err := config.LoadCategories(*configDir + "/categories.yaml")
		if err != nil {
			log.Fatalf("pipelineengine: %v", err)
		}
		engineOpts = append(engineOpts, engine.WithCategorySemantics(cats.ToCategorySemantics()))

		fields, err := config.LoadLegacyFields(*configDir + "/legacy_fields.yaml")
		if err != nil {
			log.Fatalf("pipelineengine: %v", err)
		}
		engineOpts = append(engineOpts, engine.WithLegacyFieldMap(fields.Fields))

		xforms, err := config.LoadTransformers(*configDir + "/transformers.yaml")
		if err != nil {
			log.Fatalf("pipelineengine: %v", err)
		}
		rules, err := xforms.Compile()
		if err != nil {
			log.Fatalf("pipelineengine: %v", err)
		}
		outAdaptOpts = append(outAdaptOpts, outputadapt.WithPatternRules(rules))
	}

	outAdapt := outputadapt.New(outAdaptOpts...)
	eng := engine.New(reg, outAdapt, engineOpts...)

	sink := stream.NewRecorder()
	rc := reqctx.New(context.Background(), "", sink, reqctx.Overrides{})

	result, err := eng.Run(rc, spec)
	if err != nil {
		log.Fatalf("pipelineengine: %v", err)
	}

	for _, ev := range sink.Events() {
		fmt.Printf("[%s] %-12s %-20s %s\n", rc.RequestID, ev.Type, ev.Step, ev.Message)
	}

	fmt.Println()
	fmt.Println("order:", result.Plan.Order)
	for _, id := range result.Plan.Order {
		rec, ok := result.Outputs[id]
		if !ok {
			continue
		}
		fmt.Printf("%-20s status=%-8s %s\n", id, rec.Envelope.Status, rec.Description)
	}
	if result.Err != nil {
		fmt.Fprintln(os.Stderr, "pipeline failed:", result.Err)
		os.Exit(1)
	}
}

func loadSpec(path string) (pipeline.Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Spec{}, fmt.Errorf("read %s: %w", path, err)
	}
	var spec pipeline.Spec
	if err := json.Unmarshal(b, &spec); err != nil {
		return pipeline.Spec{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return spec, nil
}

func must(err error) {
	if err != nil {
		log.Fatalf("pipelineengine: %v", err)
	}
}
