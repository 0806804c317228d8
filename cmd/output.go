package main

import (
	"io"
	"math"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

// openOutput returns the command's stdout for "" or "-", otherwise a new
// file at path.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "create %s", path)
	}
	return f, func() { _ = f.Close() }, nil
}

func parseFloatArg(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("invalid number %q", s)
	}
	return v, nil
}
