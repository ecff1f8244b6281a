// Package batch processes a directory of finished recordings offline. Each
// file goes through split, per-segment transcription, and merge; failures
// stay local to the file they hit.
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/oxlade/meetscribe/internal/cleaner"
	"github.com/oxlade/meetscribe/internal/split"
	"github.com/oxlade/meetscribe/internal/transcribe"
)

// MergedTranscript is the per-recording output file name.
const MergedTranscript = "merged_transcript.txt"

// MasterTranscript is the cross-recording output written to the input dir.
const MasterTranscript = "all_meetings_transcript.txt"

var audioExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".m4a": true,
	".flac": true, ".aac": true, ".ogg": true,
}

// Options configures a batch pipeline run.
type Options struct {
	Splitter     *split.Splitter
	Backend      transcribe.Transcriber
	Model        string // resolved model path or name
	Language     string
	Threads      int
	Timeout      time.Duration
	KeepSegments bool // keep the intermediate WAV chunks
	NoMaster     bool // skip the cross-recording master transcript
	Now          func() time.Time
	Log          zerolog.Logger
}

// FileResult records the outcome for one input recording.
type FileResult struct {
	File        string
	SegmentsDir string
	Segments    int
	Err         error
	Took        time.Duration
}

// Summary aggregates a whole batch run.
type Summary struct {
	Results    []FileResult
	MasterPath string
}

// Failed returns the results that did not complete.
func (s *Summary) Failed() []FileResult {
	var out []FileResult
	for _, r := range s.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Pipeline drives the offline split/transcribe/merge flow.
type Pipeline struct {
	opts Options
	log  zerolog.Logger
}

// New creates a batch pipeline.
func New(opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		opts: opts,
		log:  opts.Log.With().Str("component", "batch").Logger(),
	}
}

// FindAudioFiles lists the recordings in dir, sorted by name so timestamped
// filenames process chronologically.
func FindAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan input dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if audioExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Run processes every recording in inputDir and writes the master transcript
// unless disabled. A failed recording is reported in the summary and does not
// stop the rest of the batch.
func (p *Pipeline) Run(ctx context.Context, inputDir string) (*Summary, error) {
	files, err := FindAudioFiles(inputDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no audio files in %s", inputDir)
	}
	p.log.Info().Int("files", len(files)).Str("dir", inputDir).Msg("batch started")

	sum := &Summary{}
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		log := p.log.With().Str("file", filepath.Base(f)).Logger()
		log.Info().Int("n", i+1).Int("of", len(files)).Msg("processing recording")

		start := time.Now()
		res := p.processFile(ctx, f)
		res.Took = time.Since(start)
		if res.Err != nil {
			log.Error().Err(res.Err).Msg("recording failed")
		} else {
			log.Info().Int("segments", res.Segments).Dur("took", res.Took).Msg("recording complete")
		}
		sum.Results = append(sum.Results, res)
	}

	if !p.opts.NoMaster {
		path, err := p.writeMaster(inputDir, sum.Results)
		if err != nil {
			p.log.Warn().Err(err).Msg("master transcript not written")
		} else if path != "" {
			sum.MasterPath = path
			p.log.Info().Str("path", path).Msg("master transcript written")
		}
	}

	failed := len(sum.Failed())
	p.log.Info().
		Int("ok", len(sum.Results)-failed).
		Int("failed", failed).
		Msg("batch complete")
	return sum, nil
}

// processFile runs one recording through split, per-segment transcription,
// merge, and segment cleanup.
func (p *Pipeline) processFile(ctx context.Context, audioPath string) FileResult {
	res := FileResult{File: audioPath}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	segDir := filepath.Join(filepath.Dir(audioPath), base)
	res.SegmentsDir = segDir

	meta, err := p.opts.Splitter.Run(ctx, audioPath, segDir)
	if err != nil {
		res.Err = fmt.Errorf("split: %w", err)
		return res
	}
	res.Segments = meta.TotalSegments

	if err := p.transcribeSegments(ctx, segDir, meta); err != nil {
		res.Err = err
		return res
	}

	if err := MergeTranscripts(segDir, meta); err != nil {
		res.Err = fmt.Errorf("merge: %w", err)
		return res
	}

	if !p.opts.KeepSegments {
		p.cleanupSegments(segDir)
	}
	return res
}

// transcribeSegments writes one transcript per chunk under
// <segDir>/transcripts. A chunk that fails to transcribe leaves a gap in the
// merge rather than failing the file.
func (p *Pipeline) transcribeSegments(ctx context.Context, segDir string, meta *split.Metadata) error {
	txDir := filepath.Join(segDir, "transcripts")
	if err := os.MkdirAll(txDir, 0o755); err != nil {
		return fmt.Errorf("create transcripts dir: %w", err)
	}

	for _, seg := range meta.Segments {
		tctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		res, err := p.opts.Backend.Transcribe(tctx, transcribe.Request{
			AudioPath: filepath.Join(segDir, seg.Filename),
			Model:     p.opts.Model,
			Language:  p.opts.Language,
			Threads:   p.opts.Threads,
		})
		cancel()
		if err != nil {
			p.log.Warn().Err(err).Str("segment", seg.Filename).Msg("segment transcription failed")
			continue
		}

		name := strings.TrimSuffix(seg.Filename, filepath.Ext(seg.Filename)) + ".txt"
		text := cleaner.Clean(res.Text)
		if err := os.WriteFile(filepath.Join(txDir, name), []byte(text+"\n"), 0o644); err != nil {
			return fmt.Errorf("write transcript %s: %w", name, err)
		}
	}
	return nil
}

// MergeTranscripts joins the per-segment transcripts into one file in
// manifest order, each part headed by its position in the source recording.
func MergeTranscripts(segDir string, meta *split.Metadata) error {
	txDir := filepath.Join(segDir, "transcripts")

	var parts []string
	for _, seg := range meta.Segments {
		name := strings.TrimSuffix(seg.Filename, filepath.Ext(seg.Filename)) + ".txt"
		data, err := os.ReadFile(filepath.Join(txDir, name))
		if err != nil {
			// Gap from a failed segment; the rest still merges.
			continue
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		parts = append(parts,
			fmt.Sprintf("=== %s (%.1fs - %.1fs) ===", seg.Filename, seg.Start, seg.End),
			content,
			"",
		)
	}
	if len(parts) == 0 {
		return fmt.Errorf("no transcript content in %s", txDir)
	}

	out := filepath.Join(segDir, MergedTranscript)
	if err := os.WriteFile(out, []byte(strings.Join(parts, "\n")), 0o644); err != nil {
		return fmt.Errorf("write merged transcript: %w", err)
	}
	return nil
}

// cleanupSegments deletes the intermediate WAV chunks, keeping transcripts,
// the manifest, and the merged output.
func (p *Pipeline) cleanupSegments(segDir string) {
	matches, err := filepath.Glob(filepath.Join(segDir, "segment_*.wav"))
	if err != nil {
		return
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			removed++
		}
	}
	if removed > 0 {
		p.log.Debug().Int("removed", removed).Str("dir", segDir).Msg("segment audio cleaned up")
	}
}

// writeMaster concatenates every successful recording's merged transcript
// into one file at the root of the input directory. Returns "" when there is
// nothing to merge.
func (p *Pipeline) writeMaster(inputDir string, results []FileResult) (string, error) {
	type entry struct {
		file    string
		name    string
		date    string
		content string
	}
	var entries []entry

	for _, r := range results {
		if r.Err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.SegmentsDir, MergedTranscript))
		if err != nil {
			p.log.Warn().Err(err).Str("file", r.File).Msg("merged transcript missing")
			continue
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		base := filepath.Base(r.File)
		entries = append(entries, entry{
			file:    base,
			name:    strings.TrimSuffix(base, filepath.Ext(base)),
			date:    MeetingDate(base),
			content: content,
		})
	}
	if len(entries) == 0 {
		return "", nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].file < entries[j].file })

	rule := strings.Repeat("=", 70)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nMASTER TRANSCRIPT - ALL MEETINGS\nGenerated: %s\nTotal meetings: %d\n%s\n\n",
		rule, p.opts.Now().Format("2006-01-02 15:04:05"), len(entries), rule)
	for i, e := range entries {
		fmt.Fprintf(&b, "\n%s\nMeeting %d/%d: %s\nDate: %s\nSource file: %s\n%s\n\n%s\n",
			rule, i+1, len(entries), e.name, e.date, e.file, rule, e.content)
	}

	out := filepath.Join(inputDir, MasterTranscript)
	if err := os.WriteFile(out, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write master transcript: %w", err)
	}
	return out, nil
}

// MeetingDate recovers a readable timestamp from filenames shaped like
// meeting_YYYYMMDD_HHMMSS.wav. Anything else reports an unknown date.
func MeetingDate(filename string) string {
	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(name, "_")
	if len(parts) < 3 {
		return "Unknown date"
	}
	d, t := parts[len(parts)-2], parts[len(parts)-1]
	ts, err := time.Parse("20060102150405", d+t)
	if err != nil {
		return "Unknown date"
	}
	return ts.Format("2006-01-02 15:04:05")
}
