package main

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/hkmobility/transitbundle"
	"github.com/spf13/pflag"
)

func usageAndDie() {
	fmt.Println("Example usage:\n" +
		"    transitbundle --validate <dataset_dir> --spec routes_fares_xml\n" +
		"    transitbundle --commit <dataset_dir>[,<dataset_dir>...] --bundle-version 2026.08.1\n" +
		"    transitbundle --app-view <bundle.db>")
	os.Exit(1)
}

func main() {
	validatePath := pflag.StringP("validate", "v", "", "Validate a dataset directory")
	commitPaths := pflag.StringSliceP("commit", "c", nil, "Build a bundle from dataset directories")
	appViewPath := pflag.StringP("app-view", "a", "", "Derive the app bundle from a canonical bundle")

	output := pflag.StringP("out", "o", "", "Path to write output to")
	configPath := pflag.String("config", "", "YAML config file")
	specID := pflag.String("spec", "", "Validation spec to apply (defaults to the dataset's source id)")
	bundleVersion := pflag.String("bundle-version", "", "Version string recorded in the bundle")
	notes := pflag.String("notes", "", "Free-form note recorded in the bundle")
	requireValid := pflag.StringSlice("require-valid", nil, "Validation reports that must pass before committing")
	failOnWarn := pflag.Bool("fail-on-warn", true, "Treat validation warnings as failures")

	pflag.Parse()

	primaryCount := 0
	if *validatePath != "" {
		primaryCount++
	}
	if len(*commitPaths) > 0 {
		primaryCount++
	}
	if *appViewPath != "" {
		primaryCount++
	}
	if primaryCount != 1 {
		usageAndDie()
	}

	cfg := transitbundle.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = transitbundle.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("Error: %s\n", err)
			os.Exit(1)
		}
	}
	cfg.Validate.FailOnWarn = *failOnWarn

	var err error
	if *validatePath != "" {
		err = runValidate(*validatePath, *specID, *output, cfg.Validate)
	} else if len(*commitPaths) > 0 {
		if *bundleVersion == "" {
			usageAndDie()
		}
		outputPath := outputPathOrDefault((*commitPaths)[0], *output, "", ".db")
		err = runCommit(*commitPaths, outputPath, *bundleVersion, *notes, *requireValid, cfg.Commit)
	} else {
		outputPath := outputPathOrDefault(*appViewPath, *output, ".db", "_app.db")
		err = transitbundle.BuildAppView(*appViewPath, outputPath, &transitbundle.AppViewOpts{
			Config: cfg.Commit,
		})
	}

	if err != nil {
		fmt.Printf("Error: %s\n", err)
		if errors.Is(err, transitbundle.ErrValidationFailed) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	fmt.Println("All done")
}

func runValidate(dir string, specID string, output string, cfg transitbundle.ValidateConfig) error {
	ds, err := transitbundle.LoadDataset(dir)
	if err != nil {
		return err
	}

	if specID == "" {
		specID = ds.SourceID()
	}
	spec := transitbundle.SpecForSource(specID)
	if spec == nil {
		return fmt.Errorf("no validation spec for source %q", specID)
	}

	report, err := transitbundle.ValidateDataset(ds, spec, cfg)
	if err != nil {
		return err
	}

	outputPath := outputPathOrDefault(dir, output, "", "_report.json")
	if err := transitbundle.WriteReport(outputPath, report); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", outputPath)

	if report.Failed(cfg.FailOnWarn) {
		return fmt.Errorf("%w: %d error(s), %d warning(s)", transitbundle.ErrValidationFailed,
			report.Summary.Errors, report.Summary.Warnings)
	}
	return nil
}

func runCommit(dirs []string, outputPath string, bundleVersion string, notes string,
	requireValid []string, cfg transitbundle.CommitConfig) error {
	var datasets []*transitbundle.Dataset
	for _, dir := range dirs {
		ds, err := transitbundle.LoadDataset(dir)
		if err != nil {
			return err
		}
		datasets = append(datasets, ds)
	}

	_, err := transitbundle.Commit(datasets, outputPath, &transitbundle.CommitOpts{
		Config:        cfg,
		BundleVersion: bundleVersion,
		Notes:         notes,
		RequireValid:  requireValid,
	})
	return err
}

func outputPathOrDefault(inputPath string, outputPath string, suffixToTrim string, newSuffix string) string {
	if outputPath != "" {
		return outputPath
	}
	inputPath = path.Clean(inputPath)
	base := path.Base(inputPath)
	if suffixToTrim != "" {
		base = strings.TrimSuffix(base, suffixToTrim)
	}
	return base + newSuffix
}
