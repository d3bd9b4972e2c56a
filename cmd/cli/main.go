package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/songprint/songprint/internal/audio"
	"github.com/songprint/songprint/internal/engine"
	"github.com/songprint/songprint/internal/fingerprint"
	"github.com/songprint/songprint/internal/model"
	"github.com/songprint/songprint/pkg/logger"
)

var (
	dbPath   string
	minScore int
	workers  int
)

func init() {
	// .env is optional; environment and flags win over it
	_ = godotenv.Load()

	flag.StringVar(&dbPath, "db", getEnvOrDefault("SONGPRINT_DB_PATH", "songprint.sqlite3"), "path to the SQLite database file")
	flag.IntVar(&minScore, "min-score", 5, "aligned votes required for a confident match")
	flag.IntVar(&workers, "workers", 0, "parallel songs during batch add and rehash (0 = all cores)")
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: songprint [flags] <command> [args]

commands:
  add    <file> [-title T]      fingerprint one song into the library
  batch  <folder>               fingerprint every .wav/.mp3 under a folder
  match  <file> [-top K]        identify a clip against the library
  list                          show the library
  delete <song-id>              remove one song
  clear                         empty the library
  rehash [-rate N] [-gate DB] [-fan N]
                                rebuild all fingerprints under new parameters
  params                        show the active parameter set`)
	flag.PrintDefaults()
}

func main() {
	log := logger.GetLogger()
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []engine.Option{
		engine.WithDBPath(dbPath),
		engine.WithMinScore(minScore),
		engine.WithDecoder(audio.FileDecoder{}),
		engine.WithLogger(log),
		engine.WithHistorySink(func(label string, r model.RankedMatches) {
			if r.Best != nil {
				log.Debugf("history: %q -> %q (score %d)", label, r.Best.Title, r.Best.Score)
			} else {
				log.Debugf("history: %q -> no confident match", label)
			}
		}),
	}
	if workers > 0 {
		opts = append(opts, engine.WithWorkers(workers))
	}

	svc, err := engine.New(opts...)
	if err != nil {
		log.Fatalf("starting engine: %v", err)
	}
	defer svc.Close()

	switch cmd, rest := args[0], args[1:]; cmd {
	case "add":
		err = runAdd(ctx, svc, rest)
	case "batch":
		err = runBatch(ctx, svc, rest)
	case "match":
		err = runMatch(ctx, svc, rest)
	case "list":
		err = runList(svc)
	case "delete":
		err = runDelete(svc, rest)
	case "clear":
		err = svc.ClearDatabase()
	case "rehash":
		err = runRehash(ctx, svc, rest)
	case "params":
		err = runParams(svc)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func runAdd(ctx context.Context, svc *engine.Service, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	title := fs.String("title", "", "song title (defaults to the file name)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one audio file")
	}
	path := fs.Arg(0)

	n, err := ingestFile(ctx, svc, path, *title)
	if err != nil {
		return err
	}
	fmt.Printf("added %s (%s fingerprints)\n", path, humanize.Comma(int64(n)))
	return nil
}

func ingestFile(ctx context.Context, svc *engine.Service, path, title string) (int, error) {
	params := svc.GetParameters()
	samples, rate, err := audio.FileDecoder{}.Decode(ctx, path, params.SampleRate)
	if err != nil {
		return 0, err
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return svc.Ingest(ctx, engine.IngestRequest{
		Title:      title,
		SourcePath: path,
		Samples:    samples,
		SampleRate: rate,
	})
}

func runBatch(ctx context.Context, svc *engine.Service, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one folder")
	}
	root := fs.Arg(0)

	var reqs []engine.IngestRequest
	params := svc.GetParameters()
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !audio.SupportedExt(path) {
			return nil
		}
		samples, rate, derr := audio.FileDecoder{}.Decode(ctx, path, params.SampleRate)
		if derr != nil {
			fmt.Printf("SKIP %s: %v\n", path, derr)
			return nil
		}
		reqs = append(reqs, engine.IngestRequest{
			Title:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			SourcePath: path,
			Samples:    samples,
			SampleRate: rate,
		})
		return ctx.Err()
	})
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		return fmt.Errorf("no .wav or .mp3 files under %s", root)
	}

	added := 0
	for _, res := range svc.BatchIngest(ctx, reqs) {
		if res.Err != nil {
			fmt.Printf("FAIL %s: %v\n", res.Source, res.Err)
			continue
		}
		added++
		fmt.Printf("  ok %s (%s fingerprints)\n", res.Source, humanize.Comma(int64(res.FingerprintCount)))
	}
	fmt.Printf("added %d of %d songs\n", added, len(reqs))
	return nil
}

func runMatch(ctx context.Context, svc *engine.Service, args []string) error {
	fs := flag.NewFlagSet("match", flag.ExitOnError)
	topK := fs.Int("top", 5, "number of candidates to show")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one audio file")
	}
	path := fs.Arg(0)

	params := svc.GetParameters()
	samples, rate, err := audio.FileDecoder{}.Decode(ctx, path, params.SampleRate)
	if err != nil {
		return err
	}
	ranked, err := svc.QueryLabeled(ctx, path, samples, rate, *topK)
	if err != nil {
		return err
	}

	if ranked.Best == nil {
		fmt.Println("no confident match")
	} else {
		offSec := float64(ranked.Best.Offset) * fingerprint.FrameDuration(params.SampleRate)
		fmt.Printf("best match: %q (score %d, clip at %.1fs)\n", ranked.Best.Title, ranked.Best.Score, offSec)
	}
	for i, m := range ranked.Matches {
		fmt.Printf("%2d) %-40q score=%d offset=%d\n", i+1, m.Title, m.Score, m.Offset)
	}
	return nil
}

func runList(svc *engine.Service) error {
	songs := svc.ListSongs()
	if len(songs) == 0 {
		fmt.Println("library is empty")
		return nil
	}
	for _, s := range songs {
		fmt.Printf("%s  %-40q  %s fingerprints  %s\n",
			s.ID, s.Title, humanize.Comma(int64(s.FingerprintCount)),
			humanize.Time(s.AddedAt))
	}
	return nil
}

func runDelete(svc *engine.Service, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected one song ID")
	}
	return svc.DeleteSong(args[0])
}

func runRehash(ctx context.Context, svc *engine.Service, args []string) error {
	cur := svc.GetParameters()
	fs := flag.NewFlagSet("rehash", flag.ExitOnError)
	rate := fs.Int("rate", cur.SampleRate, "sampling rate (8000-44100)")
	gate := fs.Float64("gate", cur.LoudnessGateDB, "loudness gate in dB")
	fan := fs.Int("fan", cur.FanValue, "fan value (2-10)")
	fs.Parse(args)

	report, err := svc.Rehash(ctx, fingerprint.Params{
		SampleRate:     *rate,
		LoudnessGateDB: *gate,
		FanValue:       *fan,
	})
	for id, ferr := range report.Failed {
		fmt.Printf("FAIL %s: %v\n", id, ferr)
	}
	if err != nil {
		return err
	}
	fmt.Printf("rehashed %d songs\n", len(report.Succeeded))
	return nil
}

func runParams(svc *engine.Service) error {
	p := svc.GetParameters()
	fmt.Printf("sampling rate : %d Hz\n", p.SampleRate)
	fmt.Printf("loudness gate : %.1f dB\n", p.LoudnessGateDB)
	fmt.Printf("fan value     : %d\n", p.FanValue)
	return nil
}
