// Package split cuts long recordings at silence boundaries so the
// transcription model sees short stretches with coherent context. Split
// points land in the middle of detected silences; segments that are almost
// entirely silent are dropped.
package split

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/oxlade/meetscribe/internal/audio"
)

// Silence is one detected quiet period in the source audio.
type Silence struct {
	Start float64
	End   float64
}

// Duration returns the silence length in seconds.
func (s Silence) Duration() float64 { return s.End - s.Start }

// Segment describes one extracted chunk, with its position in the source.
type Segment struct {
	Filename string  `json:"filename"`
	Start    float64 `json:"start_time"`
	End      float64 `json:"end_time"`
	Duration float64 `json:"duration"`
	Index    int     `json:"segment_index"`
}

// Metadata is the manifest written next to the extracted segments. Merge
// order and timing headers downstream come from here, not from listing the
// directory.
type Metadata struct {
	SourceFile    string    `json:"source_file"`
	TotalSegments int       `json:"total_segments"`
	Segments      []Segment `json:"segments"`
}

// MetadataFile is the manifest name inside a segment directory.
const MetadataFile = "metadata.json"

// Options tunes silence detection and segment sizing.
type Options struct {
	NoiseThresholdDB float64 // quieter than this is silence
	MinSilence       float64 // seconds of quiet before it counts
	MinSegment       float64 // seconds; shorter chunks lack context
	MaxSegment       float64 // seconds; longer chunks mix topics and languages
	MaxSilenceRatio  float64 // drop segments quieter than this fraction
	Log              zerolog.Logger
}

// DefaultOptions returns the tuning that works for meeting audio.
func DefaultOptions() Options {
	return Options{
		NoiseThresholdDB: -45.0,
		MinSilence:       1.0,
		MinSegment:       30.0,
		MaxSegment:       120.0,
		MaxSilenceRatio:  0.9,
	}
}

// Splitter runs the detect/cut/filter pipeline for one file at a time.
type Splitter struct {
	opts Options
	log  zerolog.Logger
}

// New creates a Splitter.
func New(opts Options) *Splitter {
	return &Splitter{
		opts: opts,
		log:  opts.Log.With().Str("component", "splitter").Logger(),
	}
}

// Run splits input into outputDir and writes the metadata manifest.
func (s *Splitter) Run(ctx context.Context, input, outputDir string) (*Metadata, error) {
	if err := audio.CheckRecording(input); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	total, err := audio.Duration(ctx, input)
	if err != nil {
		return nil, err
	}

	silences, err := s.DetectSilences(ctx, input)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("input", filepath.Base(input)).
		Float64("duration_s", total).
		Int("silences", len(silences)).
		Msg("silence detection complete")

	points := SplitPoints(silences, total, s.opts.MinSegment, s.opts.MaxSegment)

	meta := &Metadata{SourceFile: filepath.Base(input)}
	index := 1
	for _, p := range points {
		dur := p.End - p.Start

		ratio, err := s.silenceRatio(ctx, input, p.Start, dur)
		if err != nil {
			return nil, err
		}
		if ratio > s.opts.MaxSilenceRatio {
			s.log.Debug().
				Float64("start_s", p.Start).
				Float64("silence_ratio", ratio).
				Msg("skipping silent segment")
			continue
		}

		name := fmt.Sprintf("segment_%03d.wav", index)
		if err := s.extract(ctx, input, filepath.Join(outputDir, name), p.Start, dur); err != nil {
			return nil, err
		}
		meta.Segments = append(meta.Segments, Segment{
			Filename: name,
			Start:    p.Start,
			End:      p.End,
			Duration: dur,
			Index:    index,
		})
		index++
	}
	meta.TotalSegments = len(meta.Segments)

	if len(meta.Segments) == 0 {
		return nil, fmt.Errorf("no voiced segments in %s, audio may be entirely silent", input)
	}

	if err := WriteMetadata(filepath.Join(outputDir, MetadataFile), meta); err != nil {
		return nil, err
	}
	s.log.Info().
		Int("segments", meta.TotalSegments).
		Int("dropped", len(points)-meta.TotalSegments).
		Str("dir", outputDir).
		Msg("split complete")
	return meta, nil
}

// DetectSilences runs ffmpeg silencedetect over the whole file. The filter
// reports on stderr; nothing is written.
func (s *Splitter) DetectSilences(ctx context.Context, input string) ([]Silence, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", input,
		"-af", fmt.Sprintf("silencedetect=noise=%gdB:d=%g", s.opts.NoiseThresholdDB, s.opts.MinSilence),
		"-f", "null", "-",
	)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg silencedetect: %w", err)
	}
	silences := ParseSilences(stderr)
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("ffmpeg silencedetect %s: %w", input, err)
	}
	return silences, nil
}

// ParseSilences extracts silence intervals from ffmpeg silencedetect stderr.
// Lines look like:
//
//	[silencedetect @ 0x...] silence_start: 12.345
//	[silencedetect @ 0x...] silence_end: 14.1 | silence_duration: 1.755
func ParseSilences(r io.Reader) []Silence {
	var silences []Silence
	start := -1.0

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "silencedetect") {
			continue
		}
		if v, ok := fieldAfter(line, "silence_start:"); ok {
			start = v
		} else if v, ok := fieldAfter(line, "silence_end:"); ok && start >= 0 {
			silences = append(silences, Silence{Start: start, End: v})
			start = -1
		}
	}
	return silences
}

// fieldAfter parses the first float following marker in line.
func fieldAfter(line, marker string) (float64, bool) {
	i := strings.Index(line, marker)
	if i < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(line[i+len(marker):])
	if f := strings.Fields(rest); len(f) > 0 {
		rest = f[0]
	}
	v, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Span is a half-open cut range within the source file.
type Span struct {
	Start float64
	End   float64
}

// SplitPoints turns detected silences into cut ranges. Each silence midpoint
// becomes a candidate cut; a cut is taken once at least minSegment seconds
// have accumulated. With no silences at all the file is cut into fixed
// maxSegment windows.
func SplitPoints(silences []Silence, total, minSegment, maxSegment float64) []Span {
	if len(silences) == 0 {
		var spans []Span
		for cur := 0.0; cur < total; {
			end := cur + maxSegment
			if end > total {
				end = total
			}
			spans = append(spans, Span{Start: cur, End: end})
			cur = end
		}
		return spans
	}

	var spans []Span
	cur := 0.0
	for _, sil := range silences {
		mid := (sil.Start + sil.End) / 2
		if mid-cur >= minSegment {
			spans = append(spans, Span{Start: cur, End: mid})
			cur = mid
		}
	}
	if cur < total {
		spans = append(spans, Span{Start: cur, End: total})
	}
	return spans
}

// silenceRatio measures what fraction of a span is silent, using a short
// detection window so brief pauses count too.
func (s *Splitter) silenceRatio(ctx context.Context, input string, start, dur float64) (float64, error) {
	if dur <= 0 {
		return 0, nil
	}
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(dur),
		"-i", input,
		"-af", fmt.Sprintf("silencedetect=noise=%gdB:d=0.1", s.opts.NoiseThresholdDB),
		"-f", "null", "-",
	)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 0, err
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("ffmpeg silence ratio: %w", err)
	}
	silent := SumSilenceDurations(stderr)
	if err := cmd.Wait(); err != nil {
		return 0, fmt.Errorf("ffmpeg silence ratio %s: %w", input, err)
	}
	return silent / dur, nil
}

// SumSilenceDurations totals the silence_duration fields in silencedetect
// stderr output.
func SumSilenceDurations(r io.Reader) float64 {
	total := 0.0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "silencedetect") {
			continue
		}
		if v, ok := fieldAfter(line, "silence_duration:"); ok {
			total += v
		}
	}
	return total
}

// extract copies one span out of the source without re-encoding.
func (s *Splitter) extract(ctx context.Context, input, output string, start, dur float64) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", input,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(dur),
		"-c", "copy",
		"-y", output,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("extract %s: %s", output, lastLine(out))
	}
	return nil
}

// WriteMetadata persists the segment manifest as indented JSON.
func WriteMetadata(path string, meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

// ReadMetadata loads a segment manifest written by WriteMetadata.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	return &meta, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
