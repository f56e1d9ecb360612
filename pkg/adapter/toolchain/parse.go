package toolchain

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/3leaps/kiln/pkg/build"
)

// tscDiagnostic matches tsc's default diagnostic format:
//
//	src/index.ts(12,5): error TS2322: Type 'string' is not assignable ...
var tscDiagnostic = regexp.MustCompile(`^(.+)\((\d+),(\d+)\): error (TS\d+): (.+)$`)

// esbuildDiagnostic matches esbuild's error banner format:
//
//	✘ [ERROR] Could not resolve "./missing" [plugin ...]
var esbuildDiagnostic = regexp.MustCompile(`^[✘X] \[ERROR\] (.+)$`)

// parseDiagnostics extracts structured errors from tool output. Lines
// that match no known diagnostic shape are kept in the raw log only.
func parseDiagnostics(logs []string) []build.Error {
	var errs []build.Error

	for _, line := range logs {
		line = strings.TrimRight(line, "\r")

		if m := tscDiagnostic.FindStringSubmatch(line); m != nil {
			lineNo, _ := strconv.Atoi(m[2])
			colNo, _ := strconv.Atoi(m[3])
			errs = append(errs, build.Error{
				Message: m[5],
				Code:    m[4],
				File:    m[1],
				Line:    lineNo,
				Column:  colNo,
			})
			continue
		}

		if m := esbuildDiagnostic.FindStringSubmatch(line); m != nil {
			errs = append(errs, build.Error{
				Message: m[1],
				Code:    "esbuild_error",
			})
		}
	}

	return errs
}
