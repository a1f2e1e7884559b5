package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/archivequal/dwcacore/accumulate"
	"github.com/archivequal/dwcacore/archive"
	"github.com/archivequal/dwcacore/driver"
	"github.com/archivequal/dwcacore/evaluator"
	"github.com/archivequal/dwcacore/record"
	"github.com/spf13/cobra"
)

var (
	streamFlags    []string
	uniqueFlags    []string
	referenceFlags []string
	outPath        string
	workDir        string
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured evaluators against one or more CSV streams",
		Long: `The run command reads one or more glob-matched CSV streams, dispatches
every record to the configured uniqueness and referential-integrity
evaluators, and writes every finding as a CSV row.

Example:
  dwcaval run \
    --stream path=taxon/*.csv,context=CORE,rowtype=Taxon \
    --stream path=distribution/*.csv,context=EXT,rowtype=Distribution \
    --unique key=taxonID,context=CORE,term=taxonID \
    --references key=acceptedRef,target=taxonID,context=CORE,term=acceptedNameUsageID \
    --out findings.csv --work-dir /tmp/dwcaval`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd.Context())
		},
	}
	cmd.Flags().StringArrayVar(&streamFlags, "stream", nil,
		"path=GLOB,context=CORE|EXT,rowtype=NAME[,id=TERM] (repeatable)")
	cmd.Flags().StringArrayVar(&uniqueFlags, "unique", nil,
		"key=KEY,context=CORE|EXT[,rowtype=NAME][,term=NAME] (repeatable)")
	cmd.Flags().StringArrayVar(&referenceFlags, "references", nil,
		"key=KEY,target=UNIQUEKEY,context=CORE|EXT,term=NAME[,rowtype=NAME][,sep=CHAR] (repeatable)")
	cmd.Flags().StringVar(&outPath, "out", "findings.csv", "CSV file to write findings to")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "directory for evaluator spill files (defaults to a temp dir)")
	return cmd
}

func runEvaluation(ctx context.Context) error {
	if len(streamFlags) == 0 {
		return fmt.Errorf("dwcaval: at least one --stream is required")
	}

	dir := workDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "dwcaval-")
		if err != nil {
			return fmt.Errorf("dwcaval: create work dir: %w", err)
		}
		dir = tmp
		defer os.RemoveAll(tmp)
	}

	specs, err := parseStreamFlags(streamFlags)
	if err != nil {
		return err
	}
	src, err := archive.Open(ctx, specs)
	if err != nil {
		return fmt.Errorf("dwcaval: %w", err)
	}

	uniques := make(map[string]*evaluator.Uniqueness)
	var evals []evaluator.Evaluator
	for _, raw := range uniqueFlags {
		u, err := buildUniqueness(raw, dir)
		if err != nil {
			return err
		}
		uniques[u.Key()] = u
		evals = append(evals, u)
	}
	for _, raw := range referenceFlags {
		r, err := buildReferential(raw, dir, uniques)
		if err != nil {
			return err
		}
		evals = append(evals, r)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("dwcaval: create output %q: %w", outPath, err)
	}
	defer out.Close()

	acc, err := accumulate.NewCSV(out)
	if err != nil {
		return fmt.Errorf("dwcaval: %w", err)
	}

	if err := driver.Run(ctx, src, acc, evals); err != nil {
		return fmt.Errorf("dwcaval: %w", err)
	}
	printInfo("findings written to %s\n", outPath)
	return nil
}

func parseKV(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("dwcaval: malformed option %q (want key=value)", part)
		}
		out[kv[0]] = kv[1]
	}
	return out, nil
}

func parseStreamFlags(raw []string) ([]archive.StreamSpec, error) {
	var specs []archive.StreamSpec
	for _, r := range raw {
		kv, err := parseKV(r)
		if err != nil {
			return nil, err
		}
		glob, ok := kv["path"]
		if !ok || glob == "" {
			return nil, fmt.Errorf("dwcaval: --stream requires path=GLOB")
		}
		specs = append(specs, archive.StreamSpec{
			Glob:           glob,
			Context:        record.EvalContext(strings.ToUpper(kv["context"])),
			RowType:        record.RowType(kv["rowtype"]),
			IdentifierTerm: kv["id"],
		})
	}
	return specs, nil
}

func buildUniqueness(raw, workDir string) (*evaluator.Uniqueness, error) {
	kv, err := parseKV(raw)
	if err != nil {
		return nil, err
	}
	key, ok := kv["key"]
	if !ok || key == "" {
		return nil, fmt.Errorf("dwcaval: --unique requires key=KEY")
	}
	cfg := evaluator.UniquenessConfig{
		Key:           key,
		Context:       record.EvalContext(strings.ToUpper(kv["context"])),
		WorkingFolder: workDir,
	}
	if rt, ok := kv["rowtype"]; ok && rt != "" {
		v := record.RowType(rt)
		cfg.RowType = &v
	}
	if term, ok := kv["term"]; ok && term != "" {
		v := record.Term{Simple: term}
		cfg.Term = &v
	}
	u, err := evaluator.NewUniqueness(cfg)
	if err != nil {
		return nil, fmt.Errorf("dwcaval: %w", err)
	}
	return u, nil
}

func buildReferential(raw, workDir string, uniques map[string]*evaluator.Uniqueness) (*evaluator.Referential, error) {
	kv, err := parseKV(raw)
	if err != nil {
		return nil, err
	}
	key, ok := kv["key"]
	if !ok || key == "" {
		return nil, fmt.Errorf("dwcaval: --references requires key=KEY")
	}
	targetKey, ok := kv["target"]
	if !ok || targetKey == "" {
		return nil, fmt.Errorf("dwcaval: --references %q requires target=UNIQUEKEY", key)
	}
	target, ok := uniques[targetKey]
	if !ok {
		return nil, fmt.Errorf("dwcaval: --references %q: unknown target %q (declare it with --unique first)", key, targetKey)
	}
	term, ok := kv["term"]
	if !ok || term == "" {
		return nil, fmt.Errorf("dwcaval: --references %q requires term=NAME", key)
	}
	cfg := evaluator.ReferentialConfig{
		Key:                 key,
		SourceTerm:          record.Term{Simple: term},
		SourceContext:       record.EvalContext(strings.ToUpper(kv["context"])),
		Target:              target.Handle(),
		MultiValueSeparator: kv["sep"],
		WorkingFolder:       workDir,
	}
	if rt, ok := kv["rowtype"]; ok && rt != "" {
		v := record.RowType(rt)
		cfg.SourceRowType = &v
	}
	r, err := evaluator.NewReferential(cfg)
	if err != nil {
		return nil, fmt.Errorf("dwcaval: %w", err)
	}
	return r, nil
}
