package main

import (
	"flag"
	"fmt"
	"os"

	"graydecode/internal/capture"
	"graydecode/internal/fixture"
	"graydecode/internal/logging"
)

func main() {
	var (
		outDir      = flag.String("out", ".", "Directory to write the fixture captures to")
		compression = flag.String("compress", "none", "Compression: none, zst, lz4")
		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: graygen [OPTIONS]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Writes synthetic encoder captures sampled at 1 MHz:")
		fmt.Fprintln(os.Stderr, "  graycode-ramp.dat  8-bit Gray code, accelerate/decelerate ramp")
		fmt.Fprintln(os.Stderr, "  rotary-ramp.dat    2-bit quadrature, same ramp")
		fmt.Fprintln(os.Stderr, "  graycode-sin.dat   8-bit Gray code, 1 Hz sinusoid over 2 s")
		fmt.Fprintln(os.Stderr, "  rotary-sin.dat     2-bit quadrature, same sinusoid")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()

	logLevel, err := logging.ParseLevel(*logLevelStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	codec, err := capture.ParseCodec(*compression)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logger := logging.New(logLevel, os.Stderr)

	paths, err := fixture.Generate(*outDir, fixture.StandardOutputs(), codec, logger)
	if err != nil {
		logger.Error("generate fixtures", "error", err)
		os.Exit(1)
	}
	logger.Info("fixtures complete", "files", len(paths), "dir", *outDir)
}
