package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ncmdump.dev/cli/algo/common"
	"ncmdump.dev/cli/algo/ncm"
	"ncmdump.dev/cli/internal/cache"
	"ncmdump.dev/cli/internal/metrics"
	"ncmdump.dev/cli/internal/mmap"
	"ncmdump.dev/cli/internal/netease"
	"ncmdump.dev/cli/internal/pool"
	"ncmdump.dev/cli/internal/sniff"
	"ncmdump.dev/cli/internal/tag"
	"ncmdump.dev/cli/internal/utils"
)

var AppVersion = "custom"

// mmapThreshold 超过该大小的输入走内存映射
const mmapThreshold = 10 * 1024 * 1024

func main() {
	module, ok := debug.ReadBuildInfo()
	if ok && module.Main.Version != "(devel)" {
		AppVersion = module.Main.Version
	}
	app := cli.App{
		Name:     "NCM Dump",
		HelpName: "ncmdump",
		Usage:    "Recover playable audio from encrypted .ncm containers",
		Version:  fmt.Sprintf("%s (%s,%s/%s)", AppVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "path to input file or dir", Required: false},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "path to output dir", Required: false},
			&cli.BoolFlag{Name: "remove-source", Aliases: []string{"rs"}, Usage: "remove source file after conversion", Value: false},
			&cli.BoolFlag{Name: "overwrite", Usage: "overwrite output file without asking", Value: false},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "verbose logging", Value: false},
			&cli.BoolFlag{Name: "update-metadata", Usage: "fetch high resolution album art from network", Value: false},
			&cli.StringFlag{Name: "cover-cache", Usage: "path to album art cache db", Value: ""},
			&cli.BoolFlag{Name: "watch", Usage: "watch the input dir and process new files", Value: false},
			&cli.BoolFlag{Name: "batch", Usage: "batch processing mode (read JSON from stdin)", Value: false},
			&cli.BoolFlag{Name: "service", Usage: "run as service mode (IPC communication)", Value: false},
			&cli.StringFlag{Name: "service-pipe", Usage: "service pipe name (Windows) or socket path (Unix)", Value: ""},
			&cli.StringFlag{Name: "naming-format", Usage: "output filename format: artist-title, title-artist, original", Value: "artist-title"},
			&cli.BoolFlag{Name: "stats", Usage: "print aggregate decryption stats on exit", Value: false},
		},

		Action:          appMain,
		HideHelpCommand: true,
		UsageText:       "ncmdump [-o /path/to/output/dir] [--extra-flags] [-i] /path/to/input",
	}

	err := app.Run(os.Args)
	if err != nil {
		tempLogger := setupLogger(false)
		tempLogger.Fatal("run app failed", zap.Error(err))
	}
}

func setupLogger(verbose bool) *zap.Logger {
	logConfig := zap.NewProductionEncoderConfig()
	logConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	enabler := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		if verbose {
			return true
		}
		return level >= zapcore.InfoLevel
	})

	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(logConfig),
		os.Stderr,
		enabler,
	))
}

func appMain(c *cli.Context) (err error) {
	logger := setupLogger(c.Bool("verbose"))

	if c.Bool("stats") {
		defer printStats(logger)
	}

	var coverCache *cache.CoverCache
	if path := c.String("cover-cache"); path != "" {
		coverCache, err = cache.OpenCoverCache(path, 14*24*time.Hour)
		if err != nil {
			logger.Warn("open cover cache failed, continuing without", zap.Error(err))
		} else {
			defer coverCache.Close()
		}
	}

	if c.Bool("service") {
		return runServiceMode(logger, c.String("service-pipe"), coverCache)
	}
	if c.Bool("batch") {
		return runBatchMode(logger, coverCache)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	input := c.String("input")
	if input == "" {
		switch c.Args().Len() {
		case 0:
			input = cwd
		case 1:
			input = c.Args().Get(0)
		default:
			return errors.New("please specify input file (or directory)")
		}
	}

	input, absErr := filepath.Abs(input)
	if absErr != nil {
		return fmt.Errorf("get abs path failed: %w", absErr)
	}

	inputStat, err := os.Stat(input)
	if err != nil {
		return err
	}

	inputDir := input
	if !inputStat.IsDir() {
		inputDir = filepath.Dir(input)
	}

	output := c.String("output")
	if output == "" {
		output = inputDir
	}
	logger.Debug("resolve input/output path",
		zap.String("inputDir", inputDir), zap.String("input", input), zap.String("output", output))

	outputStat, err := os.Stat(output)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = os.MkdirAll(output, 0755)
		}
		if err != nil {
			return err
		}
	} else if !outputStat.IsDir() {
		return errors.New("output should be a writable directory")
	}

	fetcher := netease.NewFetcher(coverCache, logger)
	defer fetcher.Close()

	proc := &processor{
		logger:          logger,
		inputDir:        inputDir,
		outputDir:       output,
		removeSource:    c.Bool("remove-source"),
		overwriteOutput: c.Bool("overwrite"),
		updateMetadata:  c.Bool("update-metadata"),
		namingFormat:    c.String("naming-format"),
		fetcher:         fetcher,
	}

	if inputStat.IsDir() {
		if c.Bool("watch") {
			return proc.watchDir(input)
		}
		return proc.processDir(input)
	}
	return proc.processFile(input)
}

func printStats(logger *zap.Logger) {
	snap := metrics.Global.GetSnapshot()
	buf, _ := json.MarshalIndent(snap, "", "  ")
	logger.Info("aggregate stats", zap.String("snapshot", string(buf)))
}

type processor struct {
	logger    *zap.Logger
	inputDir  string
	outputDir string

	removeSource    bool
	overwriteOutput bool
	updateMetadata  bool
	namingFormat    string

	fetcher *netease.Fetcher
}

func (p *processor) watchDir(inputDir string) error {
	if err := p.processDir(inputDir); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
					// try open with exclusive mode, to avoid file is still writing
					f, err := os.OpenFile(event.Name, os.O_RDONLY, os.ModeExclusive)
					if err != nil {
						p.logger.Debug("failed to open file exclusively", zap.String("path", event.Name), zap.Error(err))
						time.Sleep(1 * time.Second) // wait for file writing complete
						continue
					}
					_ = f.Close()

					if err := p.processFile(event.Name); err != nil {
						p.logger.Warn("failed to process file", zap.String("path", event.Name), zap.Error(err))
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Error("file watcher got error", zap.Error(err))
			}
		}
	}()

	if err := watcher.Add(inputDir); err != nil {
		return fmt.Errorf("failed to watch dir %s: %w", inputDir, err)
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	<-signalCtx.Done()
	return nil
}

func (p *processor) processDir(inputDir string) error {
	items, err := os.ReadDir(inputDir)
	if err != nil {
		return err
	}

	var lastError error
	for _, item := range items {
		filePath := filepath.Join(inputDir, item.Name())
		if item.IsDir() {
			if err = p.processDir(filePath); err != nil {
				lastError = err
			}
			continue
		}

		if err := p.processFile(filePath); err != nil {
			lastError = err
			p.logger.Error("conversion failed", zap.String("source", item.Name()), zap.Error(err))
		}
	}
	if lastError != nil {
		return fmt.Errorf("last error: %w", lastError)
	}
	return nil
}

func (p *processor) processFile(filePath string) (err error) {
	defer func() { metrics.Global.RecordFile(err) }()

	allDec := common.GetDecoder(filePath, true)
	if len(allDec) == 0 {
		return errors.New("skipping while no suitable decoder")
	}

	if err = p.process(filePath, allDec); err != nil {
		return err
	}

	if p.removeSource {
		if err := os.RemoveAll(filePath); err != nil {
			return err
		}
		p.logger.Info("source file removed after success conversion", zap.String("source", filePath))
	}
	return nil
}

// openInput memory-maps large containers; small ones get a plain handle.
func (p *processor) openInput(filePath string) (io.ReadSeeker, io.Closer, error) {
	if stat, err := os.Stat(filePath); err == nil && stat.Size() >= mmapThreshold {
		if rd, err := mmap.Open(filePath); err == nil {
			return rd, rd, nil
		}
		p.logger.Debug("mmap failed, falling back to regular read", zap.String("source", filePath))
	}
	file, err := os.Open(filePath)
	if err != nil {
		return nil, nil, err
	}
	return file, file, nil
}

func (p *processor) findDecoder(decoders []common.DecoderFactory, params *common.DecoderParams) (common.Decoder, *common.DecoderFactory, error) {
	for _, factory := range decoders {
		dec := factory.Create(params)
		err := dec.Validate()
		if err == nil {
			return dec, &factory, nil
		}
		p.logger.Warn("try decode failed", zap.Error(err))
	}
	return nil, nil, errors.New("no any decoder can resolve the file")
}

func (p *processor) process(inputFile string, allDec []common.DecoderFactory) error {
	rd, closer, err := p.openInput(inputFile)
	if err != nil {
		return err
	}
	defer closer.Close()
	logger := p.logger.With(zap.String("source", inputFile))

	dec, decoderFactory, err := p.findDecoder(allDec, &common.DecoderParams{
		Reader:    rd,
		Extension: filepath.Ext(inputFile),
		FilePath:  inputFile,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	// sniff the decrypted payload for its real format
	headerBuf := pool.GetBuffer(256)
	defer pool.PutBuffer(headerBuf)

	headerBytes, err := readSniffHeader(dec, headerBuf)
	if err != nil {
		return fmt.Errorf("read decrypted header: %w", err)
	}
	header := bytes.NewBuffer(headerBytes)
	audio := io.MultiReader(header, dec)

	audioExt, sniffed := sniff.AudioExtension(header.Bytes())
	if !sniffed {
		audioExt = p.fallbackExtension(dec)
		logger.Warn("unknown audio format, using fallback extension",
			zap.String("ext", audioExt))
	}

	meta := p.resolveMeta(dec, inputFile, logger)
	cover, coverURL := p.resolveCover(dec, logger)

	inputRelDir, err := filepath.Rel(p.inputDir, filepath.Dir(inputFile))
	if err != nil {
		return fmt.Errorf("get relative dir failed: %w", err)
	}

	inFilename := strings.TrimSuffix(filepath.Base(inputFile), decoderFactory.Suffix)
	outFilename := p.generateOutputFilename(inFilename, audioExt, meta)
	outPath := filepath.Join(p.outputDir, inputRelDir, outFilename)

	if !p.overwriteOutput {
		if _, err := os.Stat(outPath); err == nil {
			logger.Warn("output file already exist, skip", zap.String("destination", outPath))
			return nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat output file failed: %w", err)
		}
	}

	if err := p.writeOutput(outPath, audio, audioExt, sniffed); err != nil {
		return err
	}

	if err := tag.Embed(outPath, audioExt, &tag.Params{Meta: meta, Cover: cover, CoverURL: coverURL}, logger); err != nil {
		logger.Warn("embed tags failed", zap.Error(err))
	}

	logger.Info("successfully converted",
		zap.String("source", inputFile), zap.String("destination", outPath))
	return nil
}

// readSniffHeader fills buf from rd for format sniffing. Audio sections
// shorter than the buffer are still valid containers; the short prefix is
// returned for sniffing and replay.
func readSniffHeader(rd io.Reader, buf []byte) ([]byte, error) {
	n, err := io.ReadFull(rd, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}

// writeOutput streams the decrypted audio to outPath and verifies the
// result. A failed verification removes the file: no corrupt output is
// left behind.
func (p *processor) writeOutput(outPath string, audio io.Reader, audioExt string, verify bool) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return err
	}
	outFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	start := time.Now()
	written, err := utils.Copy(outFile, audio)
	closeErr := outFile.Close()
	metrics.Global.RecordDecryption(time.Since(start), written)

	if err == nil {
		err = closeErr
	}
	if err == nil && verify {
		err = utils.VerifyOutput(outPath, audioExt)
	}
	if err != nil {
		_ = os.Remove(outPath)
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// fallbackExtension consults the container's own format field before
// giving up with the default.
func (p *processor) fallbackExtension(dec common.Decoder) string {
	if ncmDec, ok := dec.(*ncm.Decoder); ok {
		if m := ncmDec.Meta(); m != nil && m.Format != "" {
			return "." + m.Format
		}
	}
	return ".mp3"
}

func (p *processor) resolveMeta(dec common.Decoder, inputFile string, logger *zap.Logger) common.AudioMeta {
	var meta common.AudioMeta
	if metaGetter, ok := dec.(common.AudioMetaGetter); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		if meta, err = metaGetter.GetAudioMeta(ctx); err != nil {
			logger.Warn("get audio meta failed, using filename fallback", zap.Error(err))
		}
	}
	return common.WrapMetaWithFilename(meta, filepath.Base(inputFile))
}

// resolveCover prefers freshly fetched high resolution art, then the
// embedded image, then the bare URL reference.
func (p *processor) resolveCover(dec common.Decoder, logger *zap.Logger) (cover []byte, coverURL string) {
	musicID := 0
	if ncmDec, ok := dec.(*ncm.Decoder); ok {
		if m := ncmDec.Meta(); m != nil {
			musicID = m.MusicID
			coverURL = m.CoverURL()
		}
	}

	if p.updateMetadata && (musicID > 0 || coverURL != "") {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fetched, err := p.fetcher.FetchCover(ctx, musicID, coverURL)
		if err != nil {
			logger.Warn("fetch album art failed", zap.Error(err))
		} else if fetched != nil {
			return fetched, coverURL
		}
	}

	if coverGetter, ok := dec.(common.CoverImageGetter); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if embedded, err := coverGetter.GetCoverImage(ctx); err == nil {
			if _, ok := sniff.ImageExtension(embedded); ok {
				return embedded, coverURL
			}
			logger.Warn("sniff embedded cover image type failed")
		}
	}
	return nil, coverURL
}

// generateOutputFilename builds the output name from the recovered tags,
// falling back to the source name when they are empty.
func (p *processor) generateOutputFilename(inputFilename, audioExt string, meta common.AudioMeta) string {
	if p.namingFormat == "original" || meta == nil {
		return inputFilename + audioExt
	}

	title := meta.GetTitle()
	if title == "" {
		return inputFilename + audioExt
	}
	artists := strings.Join(meta.GetArtists(), ", ")

	var name string
	switch {
	case artists == "":
		name = title
	case p.namingFormat == "title-artist":
		name = title + " - " + artists
	default: // artist-title
		name = artists + " - " + title
	}

	if name = utils.SanitizeFilename(name); name == "" {
		return inputFilename + audioExt
	}
	return name + audioExt
}
