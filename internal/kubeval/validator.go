// Package kubeval validates Kubernetes manifests for the fields that break
// deploys most often: kind, apiVersion and metadata. It is a lint pass, not a
// schema check against the API server.
package kubeval

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Options tune validation behaviour.
type Options struct {
	// Strict treats warnings as validation failures.
	Strict bool
}

// Issue is a single problem found in a manifest document.
type Issue struct {
	Path    string `json:"path"`
	Doc     int    `json:"doc"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// FileResult aggregates the findings for one manifest file.
type FileResult struct {
	Path     string  `json:"path"`
	Docs     int     `json:"docs"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Valid reports whether the file passed under the given options.
func (r FileResult) Valid(opts Options) bool {
	if len(r.Errors) > 0 {
		return false
	}
	return !opts.Strict || len(r.Warnings) == 0
}

// Report is the outcome of validating a directory tree.
type Report struct {
	Files   []FileResult `json:"files"`
	Skipped []string     `json:"skipped,omitempty"`
}

// Valid reports whether every file passed under the given options.
func (r Report) Valid(opts Options) bool {
	for _, f := range r.Files {
		if !f.Valid(opts) {
			return false
		}
	}
	return true
}

// Counts returns how many files passed and failed under the given options.
func (r Report) Counts(opts Options) (valid, invalid int) {
	for _, f := range r.Files {
		if f.Valid(opts) {
			valid++
		} else {
			invalid++
		}
	}
	return valid, invalid
}

// clusterScopedKinds never carry a namespace, so its absence is expected.
var clusterScopedKinds = map[string]struct{}{
	"Namespace":                      {},
	"Node":                           {},
	"PersistentVolume":               {},
	"ClusterRole":                    {},
	"ClusterRoleBinding":             {},
	"CustomResourceDefinition":       {},
	"StorageClass":                   {},
	"PriorityClass":                  {},
	"MutatingWebhookConfiguration":   {},
	"ValidatingWebhookConfiguration": {},
}

// ValidateDir walks root for YAML manifests and validates each one.
// Kustomization files are configuration for kustomize, not manifests, and
// are reported as skipped.
func ValidateDir(root string, opts Options) (Report, error) {
	var report Report
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if isKustomization(path) {
			report.Skipped = append(report.Skipped, path)
			return nil
		}
		result, err := ValidateFile(path, opts)
		if err != nil {
			// An unreadable file fails on its own; the walk continues.
			result = FileResult{Path: path, Errors: []Issue{{
				Path: path, Message: fmt.Sprintf("cannot read file: %v", err),
			}}}
		}
		report.Files = append(report.Files, result)
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	sort.Slice(report.Files, func(i, j int) bool { return report.Files[i].Path < report.Files[j].Path })
	sort.Strings(report.Skipped)
	return report, nil
}

// ValidateFile validates every document in one manifest file.
func ValidateFile(path string, opts Options) (FileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileResult{}, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return validate(path, f, opts), nil
}

func validate(path string, r io.Reader, opts Options) FileResult {
	result := FileResult{Path: path}
	dec := yaml.NewDecoder(r)
	index := 0
	for {
		var doc map[string]any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			result.Errors = append(result.Errors, Issue{
				Path: path, Doc: index, Message: fmt.Sprintf("invalid YAML: %v", err),
			})
			break
		}
		if len(doc) == 0 {
			index++
			continue
		}
		result.Docs++
		errs, warns := validateDoc(path, index, doc, opts)
		result.Errors = append(result.Errors, errs...)
		result.Warnings = append(result.Warnings, warns...)
		index++
	}

	if result.Docs == 0 && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, Issue{
			Path: path, Message: "file contains no Kubernetes documents",
		})
	}
	return result
}

func validateDoc(path string, index int, doc map[string]any, opts Options) (errs, warns []Issue) {
	kind, _ := doc["kind"].(string)
	if kind == "" {
		errs = append(errs, Issue{Path: path, Doc: index, Field: "kind", Message: "missing required field"})
	}
	if apiVersion, _ := doc["apiVersion"].(string); apiVersion == "" {
		errs = append(errs, Issue{Path: path, Doc: index, Field: "apiVersion", Message: "missing required field"})
	}

	// List kinds wrap their items' metadata, the envelope itself needs none.
	if strings.HasSuffix(kind, "List") {
		return errs, warns
	}

	metadata, ok := doc["metadata"].(map[string]any)
	if !ok || len(metadata) == 0 {
		errs = append(errs, Issue{Path: path, Doc: index, Field: "metadata", Message: "missing required field"})
		return errs, warns
	}

	name, _ := metadata["name"].(string)
	generateName, _ := metadata["generateName"].(string)
	if name == "" && generateName == "" {
		errs = append(errs, Issue{Path: path, Doc: index, Field: "metadata.name", Message: "missing required field"})
	}

	if namespace, _ := metadata["namespace"].(string); namespace == "" {
		if _, clusterScoped := clusterScopedKinds[kind]; !clusterScoped && !isPatchFile(path) {
			warns = append(warns, Issue{
				Path: path, Doc: index, Field: "metadata.namespace",
				Message: "no namespace set, object will land in the current context's namespace",
			})
		}
	}

	if opts.Strict {
		errs = append(errs, strictChecks(path, index, kind, doc)...)
	}
	return errs, warns
}

// specRequiredKinds must carry a spec block to do anything at all.
var specRequiredKinds = map[string]struct{}{
	"Deployment":              {},
	"StatefulSet":             {},
	"DaemonSet":               {},
	"Service":                 {},
	"Ingress":                 {},
	"HorizontalPodAutoscaler": {},
	"PodDisruptionBudget":     {},
	"NetworkPolicy":           {},
}

// strictChecks applies per-kind structural rules beyond field presence.
func strictChecks(path string, index int, kind string, doc map[string]any) []Issue {
	var errs []Issue
	issue := func(field, message string) {
		errs = append(errs, Issue{Path: path, Doc: index, Field: field, Message: message})
	}

	spec, hasSpec := doc["spec"].(map[string]any)
	if _, required := specRequiredKinds[kind]; required && !hasSpec {
		issue("spec", "missing required field")
		return errs
	}

	switch kind {
	case "Deployment", "StatefulSet", "DaemonSet":
		selector, _ := spec["selector"].(map[string]any)
		matchLabels, _ := selector["matchLabels"].(map[string]any)
		if len(matchLabels) == 0 {
			issue("spec.selector.matchLabels", "missing required field")
			break
		}
		template, _ := spec["template"].(map[string]any)
		templateMeta, _ := template["metadata"].(map[string]any)
		labels, _ := templateMeta["labels"].(map[string]any)
		for key, want := range matchLabels {
			if got, ok := labels[key]; !ok || got != want {
				issue("spec.template.metadata.labels", fmt.Sprintf("template labels do not match selector %s=%v", key, want))
			}
		}
	case "Service":
		if _, ok := spec["ports"]; !ok {
			issue("spec.ports", "missing required field")
		}
		if _, ok := spec["selector"]; !ok {
			issue("spec.selector", "missing required field")
		}
	case "PodDisruptionBudget":
		_, hasMin := spec["minAvailable"]
		_, hasMax := spec["maxUnavailable"]
		if hasMin && hasMax {
			issue("spec", "minAvailable and maxUnavailable are mutually exclusive")
		}
		if !hasMin && !hasMax {
			issue("spec", "either minAvailable or maxUnavailable is required")
		}
	case "Secret":
		if _, ok := doc["type"].(string); !ok {
			issue("type", "missing required field")
		}
	}
	return errs
}

func isKustomization(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return base == "kustomization.yaml" || base == "kustomization.yml"
}

// isPatchFile matches the *-patch.yaml convention used with kustomize
// overlays, where partial objects are expected.
func isPatchFile(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	return strings.Contains(base, "patch")
}
