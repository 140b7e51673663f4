package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"graydecode/internal/annotate"
	"graydecode/internal/capture"
	"graydecode/internal/graycode"
	"graydecode/internal/logging"
)

func printVersion() {
	fmt.Printf("graydecode v%s\n", version)
	fmt.Println("Gray-code and quadrature encoder decoder for logic captures")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  graydecode [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Decodes a capture with one byte per sample (bit i = channel i) into")
	fmt.Println("  phase, increment, count, turns, interval, average and rpm annotations.")
	fmt.Println("  Annotations are written to stdout or a file and can be streamed live")
	fmt.Println("  to WebSocket clients.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file; flags override its values")
	fmt.Println()
	fmt.Println("  -input string")
	fmt.Println("        Capture file (.zst and .lz4 are decompressed), or \"-\" for stdin (default \"-\")")
	fmt.Println()
	fmt.Println("  -samplerate uint")
	fmt.Println("        Capture sample rate in Hz (required)")
	fmt.Println()
	fmt.Println("  -channels string")
	fmt.Println("        Comma-separated enabled channels, e.g. \"0,1\" (default all)")
	fmt.Println()
	fmt.Println("  -compression string")
	fmt.Println("        Compression of stdin: none, zst, or lz4 (default none)")
	fmt.Println()
	fmt.Println("  -num-channels int")
	fmt.Println("        Number of Gray-coded channels, 1..8; 0 auto-detects (default 0)")
	fmt.Println()
	fmt.Println("  -ppr int")
	fmt.Println("        Pulses per revolution; 0 disables turns and rpm (default 0)")
	fmt.Println()
	fmt.Println("  -window int")
	fmt.Printf("        Rolling average window in edges (default %d)\n", graycode.DefaultWindowCapacity)
	fmt.Println()
	fmt.Println("  -format string")
	fmt.Println("        Output format: text, jsonl, or none (default \"text\")")
	fmt.Println()
	fmt.Println("  -output string")
	fmt.Println("        Output file, or \"-\" for stdout (default \"-\")")
	fmt.Println()
	fmt.Println("  -digest")
	fmt.Println("        Log an xxhash64 digest of the annotation stream")
	fmt.Println()
	fmt.Println("  -feed-listen string")
	fmt.Println("        Serve a live annotation feed on this address, e.g. 127.0.0.1:8090")
	fmt.Println()
	fmt.Println("  -feed-path string")
	fmt.Printf("        Feed WebSocket path (default %q)\n", defaultFeedPath)
	fmt.Println()
	fmt.Println("  -feed-linger-ms int")
	fmt.Printf("        Keep the feed up this long after the capture ends (default %d)\n", defaultFeedLingerMS)
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Decode an 8-bit absolute encoder capture sampled at 1 MHz")
	fmt.Println("  graydecode -input graycode-ramp.dat -samplerate 1000000 -num-channels 8")
	fmt.Println()
	fmt.Println("  # Quadrature encoder on channels 0 and 1 with 20000 steps per turn")
	fmt.Println("  graydecode -input rotary-ramp.dat.zst -samplerate 1000000 -channels 0,1 -ppr 20000")
	fmt.Println()
	fmt.Println("  # Stream from a pipe and watch live with graywatch")
	fmt.Println("  cat capture.dat | graydecode -samplerate 1000000 -format none -feed-listen 127.0.0.1:8090")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Logs go to stderr; annotations go to -output")
	fmt.Println("  - With -num-channels 0 the enabled channels must be 0..N-1 with no gaps")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath   = flag.String("config", "", "YAML config file")
		inputPath    = flag.String("input", stdioPath, "Capture file, or \"-\" for stdin")
		sampleRate   = flag.Uint64("samplerate", 0, "Capture sample rate in Hz")
		channels     = flag.String("channels", "", "Comma-separated enabled channels (default all)")
		compression  = flag.String("compression", "", "Compression of stdin: none, zst, lz4")
		numChannels  = flag.Int("num-channels", 0, "Number of Gray-coded channels (0 = auto)")
		ppr          = flag.Int("ppr", 0, "Pulses per revolution (0 disables turns and rpm)")
		window       = flag.Int("window", graycode.DefaultWindowCapacity, "Rolling average window in edges")
		format       = flag.String("format", formatText, "Output format: text, jsonl, none")
		outputPath   = flag.String("output", stdioPath, "Output file, or \"-\" for stdout")
		digest       = flag.Bool("digest", false, "Log an xxhash64 digest of the annotation stream")
		feedListen   = flag.String("feed-listen", "", "Live feed listen address (empty disables)")
		feedPath     = flag.String("feed-path", defaultFeedPath, "Live feed WebSocket path")
		feedLingerMS = flag.Int("feed-linger-ms", defaultFeedLingerMS, "Keep the feed up after the capture ends (ms)")
		logLevelStr  = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		_            = flag.Bool("version", false, "Print version and exit")
		_            = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	// Config file first, then only the flags that were set on top of it.
	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var o FlagOverrides
	if set["input"] {
		o.InputPath = inputPath
	}
	if set["samplerate"] {
		o.SampleRate = sampleRate
	}
	if set["channels"] {
		list, err := parseChannelList(*channels)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error: -channels:", err)
			os.Exit(1)
		}
		o.Channels = &list
	}
	if set["compression"] {
		o.Compression = compression
	}
	if set["num-channels"] {
		o.NumChannels = numChannels
	}
	if set["ppr"] {
		o.PulsesPerRevolution = ppr
	}
	if set["window"] {
		o.WindowCapacity = window
	}
	if set["format"] {
		o.OutputFormat = format
	}
	if set["output"] {
		o.OutputPath = outputPath
	}
	if set["digest"] {
		o.Digest = digest
	}
	if set["feed-listen"] {
		o.FeedListen = feedListen
	}
	if set["feed-path"] {
		o.FeedPath = feedPath
	}
	if set["feed-linger-ms"] {
		o.FeedLingerMS = feedLingerMS
	}
	if set["log-level"] {
		o.LogLevel = logLevelStr
	}
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := logging.ParseLevel(cfg.Logging.Level)
	logger := logging.New(logLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Debug("starting graydecode", "version", version)
	logger.Debug("configuration",
		"input", cfg.Input.Path,
		"sample_rate", cfg.Input.SampleRate,
		"channels", cfg.Input.Channels,
		"num_channels", cfg.Decoder.NumChannels,
		"pulses_per_revolution", cfg.Decoder.PulsesPerRevolution,
		"window_capacity", cfg.Decoder.WindowCapacity,
		"format", cfg.Output.Format,
		"output", cfg.Output.Path,
		"feed_listen", cfg.Feed.Listen)

	if err := run(ctx, cfg, os.Stdin, os.Stdout, logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("decode interrupted")
		} else {
			logger.Error("decode failed", "error", err)
		}
		stop()
		os.Exit(1)
	}
}

// run decodes the configured input until it ends. cfg must be validated.
func run(ctx context.Context, cfg Config, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	enabled, err := capture.ChannelSet(cfg.Input.Channels)
	if err != nil {
		return err
	}

	src, err := openSource(ctx, cfg.Input, enabled, stdin)
	if err != nil {
		return err
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}

	out, closeOut, err := openOutput(cfg.Output, stdout)
	if err != nil {
		return err
	}
	defer closeOut()

	var (
		sinks []graycode.Sink
		flush = func() error { return nil }
	)
	switch cfg.Output.Format {
	case formatText:
		t := annotate.NewText(out)
		sinks, flush = append(sinks, t), t.Flush
	case formatJSONL:
		j := annotate.NewJSONLines(out)
		sinks, flush = append(sinks, j), j.Flush
	}

	var dg *annotate.Digest
	if cfg.Output.Digest {
		dg = annotate.NewDigest()
		sinks = append(sinks, dg)
	}

	g, gctx := errgroup.WithContext(ctx)

	var feed *Feed
	stopFeed := func() {}
	if cfg.Feed.Listen != "" {
		var feedCtx context.Context
		feedCtx, stopFeed = context.WithCancel(gctx)
		defer stopFeed()

		feed, err = startFeed(feedCtx, g, cfg, logger)
		if err != nil {
			return err
		}
		sinks = append(sinks, feed)
	}

	dec := graycode.New(cfg.DecoderConfig(), logger)
	dec.SetSampleRate(cfg.Input.SampleRate)

	g.Go(func() error {
		start := time.Now()
		sum, err := dec.Run(gctx, src, annotate.Multi(sinks...))
		if ferr := flush(); ferr != nil && err == nil {
			err = fmt.Errorf("flush output: %w", ferr)
		}

		if feed != nil {
			feed.End(sum, err)
			linger := time.Duration(cfg.Feed.LingerMS) * time.Millisecond
			select {
			case <-time.After(linger):
			case <-gctx.Done():
			}
			stopFeed()
		}

		attrs := []any{
			"channels", sum.Channels,
			"edges", sum.Edges,
			"count", sum.Count,
			"last_index", sum.LastIndex,
			"elapsed", time.Since(start).Round(time.Millisecond),
		}
		if sum.TurnsEnabled {
			attrs = append(attrs, "turns", sum.Turns)
		}
		if dg != nil {
			attrs = append(attrs, "digest", dg.String(), "annotations", dg.Count())
		}
		logger.Info("decode finished", attrs...)
		return err
	})

	return g.Wait()
}

// startFeed binds the feed listener and starts the hub, broadcaster and HTTP
// server in g. Everything stops when ctx is done.
func startFeed(ctx context.Context, g *errgroup.Group, cfg Config, logger *slog.Logger) (*Feed, error) {
	srv, err := NewServer(logger, HubConfig{
		SendBuf:      cfg.Feed.SendBuf,
		BroadcastBuf: cfg.Feed.BroadcastBuf,
	}, wsStreamInit{
		Source:              cfg.Input.Path,
		SampleRate:          cfg.Input.SampleRate,
		NumChannels:         cfg.Decoder.NumChannels,
		PulsesPerRevolution: cfg.Decoder.PulsesPerRevolution,
		WindowCapacity:      cfg.Decoder.WindowCapacity,
	})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	srv.Register(mux, cfg.Feed.Path)

	// Bind before decoding so a bad address fails fast.
	ln, err := net.Listen("tcp", cfg.Feed.Listen)
	if err != nil {
		return nil, fmt.Errorf("feed listen: %w", err)
	}
	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("feed listening", "addr", ln.Addr().String(), "path", cfg.Feed.Path)

	feed := NewFeed(ctx, feedQueueDepth)

	g.Go(func() error {
		srv.Hub().Run(ctx)
		return nil
	})
	g.Go(func() error {
		RunBroadcaster(ctx, srv.Hub(), feed, logger)
		return nil
	})
	g.Go(func() error {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("feed server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		return nil
	})

	return feed, nil
}

// openSource opens the capture file, or wraps stdin in a streaming source.
func openSource(ctx context.Context, in InputConfig, enabled uint16, stdin io.Reader) (graycode.Source, error) {
	if in.Path != stdioPath {
		f, err := capture.Open(ExpandPath(in.Path), enabled)
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	codec, err := capture.ParseCodec(in.Compression)
	if err != nil {
		return nil, err
	}
	// The reader goroutine owns r until end of input, so it is not closed here.
	r, err := capture.NewReader(stdin, codec)
	if err != nil {
		return nil, err
	}
	return capture.NewStream(ctx, r, enabled, in.QueueChunk, in.QueueDepth), nil
}

// openOutput returns the annotation writer and a function that closes it.
func openOutput(out OutputConfig, stdout io.Writer) (io.Writer, func() error, error) {
	noop := func() error { return nil }
	switch {
	case out.Format == formatNone:
		return io.Discard, noop, nil
	case out.Path == stdioPath:
		return stdout, noop, nil
	}
	f, err := os.Create(ExpandPath(out.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, f.Close, nil
}
