// Package pipeline runs the song and log stages that build the star schema.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"songplays_etl/internal/columnar"
	"songplays_etl/internal/config"
	"songplays_etl/internal/extract"
	"songplays_etl/internal/metrics"
	"songplays_etl/internal/model"
	"songplays_etl/internal/storage"
	"songplays_etl/internal/transform"
)

const (
	StageSongs = "song_data"
	StageLogs  = "log_data"

	// StatsKey is written to the output root after a successful run.
	StatsKey = "_etl_stats.json"
)

// StageError tells which stage aborted the run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ETLStats holds the performance metrics of one run.
type ETLStats struct {
	RunID                 string         `json:"run_id"`
	StartedAt             time.Time      `json:"started_at"`
	TotalExecutionTime    string         `json:"total_execution_time"`
	SongRecordsRead       int            `json:"song_records_read"`
	LogEventsRead         int            `json:"log_events_read"`
	SongPlayEvents        int            `json:"song_play_events"`
	MatchedSongPlays      int            `json:"matched_song_plays"`
	RowsWritten           map[string]int `json:"rows_written"`
	FilesWritten          int            `json:"files_written"`
	TotalBytesWritten     int64          `json:"total_bytes_written"`
	WriteThroughputMBPerS float64        `json:"write_throughput_mb_per_sec"`
}

// Pipeline wires the stores, reader, writer and metrics for one run.
type Pipeline struct {
	cfg     config.Config
	input   storage.Store
	output  storage.Store
	extract *extract.Reader
	writer  *columnar.Writer
	reader  *columnar.Reader
	ids     transform.IDGenerator
	credits transform.Credits
	metrics *metrics.Metrics
	pusher  *metrics.Pusher
	log     *logrus.Entry
	runID   string
	tempDir string
	stats   ETLStats
}

// Open builds a Pipeline whose stores come from cfg.
func Open(cfg config.Config, logger *logrus.Logger, m *metrics.Metrics) (*Pipeline, error) {
	input, err := storage.Open(cfg.Input, cfg.S3Options())
	if err != nil {
		return nil, fmt.Errorf("failed to open input store: %w", err)
	}
	output, err := storage.Open(cfg.Output, cfg.S3Options())
	if err != nil {
		return nil, fmt.Errorf("failed to open output store: %w", err)
	}
	return New(cfg, input, output, logger, m)
}

func New(cfg config.Config, input, output storage.Store, logger *logrus.Logger, m *metrics.Metrics) (*Pipeline, error) {
	runID := uuid.NewString()
	log := logger.WithField("run_id", runID)

	// Create temp directory for parquet files
	tempDir, err := os.MkdirTemp(cfg.ETL.TempDir, "parquet_temp_")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	ids, err := transform.NewSnowflakeIDs(1)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to create id generator: %w", err)
	}

	var pusher *metrics.Pusher
	if cfg.Metrics.PushgatewayURL != "" {
		pusher = metrics.NewPusher(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, map[string]string{"run_id": runID})
	}

	return &Pipeline{
		cfg:     cfg,
		input:   input,
		output:  output,
		extract: extract.NewReader(input, cfg.ETL.Workers, log),
		writer:  columnar.NewWriter(output, tempDir, cfg.ETL.Workers, runID, log),
		reader:  columnar.NewReader(output, log),
		ids:     ids,
		metrics: m,
		pusher:  pusher,
		log:     log,
		runID:   runID,
		tempDir: tempDir,
		stats:   ETLStats{RunID: runID, RowsWritten: map[string]int{}},
	}, nil
}

func (p *Pipeline) RunID() string {
	return p.runID
}

// Run executes the song stage and then the log stage. Nothing is retried:
// the first error aborts the run.
func (p *Pipeline) Run(ctx context.Context) (ETLStats, error) {
	start := time.Now()
	p.stats.StartedAt = start.UTC()
	p.log.WithFields(logrus.Fields{
		"input":   p.input.URI(""),
		"output":  p.output.URI(""),
		"workers": p.cfg.ETL.Workers,
	}).Info("Starting ETL pipeline")

	if err := p.output.CheckAccess(ctx); err != nil {
		if !errors.Is(err, storage.ErrAccessTestCleanup) {
			return p.stats, fmt.Errorf("output store access test failed: %w", err)
		}
		p.log.WithError(err).Warn("Output store is writable but the access test object was left behind")
	}

	if err := p.stage(ctx, StageSongs, p.ProcessSongData); err != nil {
		return p.stats, err
	}
	if err := p.stage(ctx, StageLogs, p.ProcessLogData); err != nil {
		return p.stats, err
	}

	duration := time.Since(start)
	p.stats.TotalExecutionTime = duration.String()
	if duration.Seconds() > 0 {
		p.stats.WriteThroughputMBPerS = float64(p.stats.TotalBytesWritten) / 1e6 / duration.Seconds()
	}
	p.log.Infof("ETL pipeline completed in %v", duration)

	if err := p.writeStats(ctx); err != nil {
		return p.stats, err
	}
	p.metrics.MarkSuccess(time.Now())
	p.pushMetrics(ctx)
	return p.stats, nil
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	p.metrics.ObserveStage(name, time.Since(start), err)
	if err != nil {
		p.pushMetrics(ctx)
		return &StageError{Stage: name, Err: err}
	}
	return nil
}

// ProcessSongData reads the song catalog and writes the songs and artists
// dimensions.
func (p *Pipeline) ProcessSongData(ctx context.Context) error {
	log := p.log.WithField("stage", StageSongs)
	log.Info("Processing song data")

	records, err := p.extract.SongRecords(ctx, p.cfg.ETL.SongPrefix)
	if err != nil {
		return err
	}
	p.metrics.RecordsRead(StageSongs, len(records))
	p.stats.SongRecordsRead = len(records)
	p.credits = transform.SongCredits(records)

	songs := transform.SongsTable(records)
	if err := p.record(columnar.WriteTable(ctx, p.writer, TableSongs, songs, splitSong)); err != nil {
		return err
	}

	artists := transform.ArtistsTable(records)
	if err := p.record(columnar.WriteTable(ctx, p.writer, TableArtists, artists, splitArtist)); err != nil {
		return err
	}

	log.Infof("Wrote %d songs and %d artists", len(songs), len(artists))
	return nil
}

// ProcessLogData reads the activity log, keeps song plays, and writes the
// users, time and songplays tables. Song and artist ids are resolved against
// the dimensions written by ProcessSongData, under the artist names the song
// records carried.
func (p *Pipeline) ProcessLogData(ctx context.Context) error {
	log := p.log.WithField("stage", StageLogs)
	log.Info("Processing log data")

	events, err := p.extract.LogEvents(ctx, p.cfg.ETL.LogPrefix)
	if err != nil {
		return err
	}
	p.metrics.RecordsRead(StageLogs, len(events))
	p.stats.LogEventsRead = len(events)

	plays := transform.FilterSongPlays(events)
	p.stats.SongPlayEvents = len(plays)
	log.Infof("Kept %d song-play events out of %d", len(plays), len(events))

	users := transform.UsersTable(plays)
	if err := p.record(columnar.WriteTable(ctx, p.writer, TableUsers, users, splitUser)); err != nil {
		return err
	}

	times := transform.TimeTable(plays)
	if err := p.record(columnar.WriteTable(ctx, p.writer, TableTime, times, splitTime)); err != nil {
		return err
	}

	catalog, err := p.loadCatalog(ctx)
	if err != nil {
		return err
	}

	songplays := transform.SongplaysTable(plays, catalog, p.ids)
	for _, sp := range songplays {
		if sp.SongID != nil {
			p.stats.MatchedSongPlays++
		}
	}
	log.Infof("Resolved %d of %d song plays against the catalog", p.stats.MatchedSongPlays, len(songplays))

	return p.record(columnar.WriteTable(ctx, p.writer, TableSongplays, songplays, splitSongplay))
}

func (p *Pipeline) loadCatalog(ctx context.Context) (*transform.Catalog, error) {
	songRows, err := columnar.ReadTable[model.SongFile](ctx, p.reader, TableSongs)
	if err != nil {
		return nil, fmt.Errorf("failed to read back %s: %w", TableSongs, err)
	}
	songs := make([]model.Song, 0, len(songRows))
	for _, row := range songRows {
		s, err := songFromRow(row)
		if err != nil {
			return nil, err
		}
		songs = append(songs, s)
	}

	artistRows, err := columnar.ReadTable[model.ArtistFile](ctx, p.reader, TableArtists)
	if err != nil {
		return nil, fmt.Errorf("failed to read back %s: %w", TableArtists, err)
	}
	artists := make([]model.Artist, 0, len(artistRows))
	for _, row := range artistRows {
		artists = append(artists, row.Value.Artist())
	}

	return transform.NewCatalog(songs, artists, p.credits), nil
}

func (p *Pipeline) record(res columnar.WriteResult, err error) error {
	if err != nil {
		return err
	}
	p.metrics.TableWritten(res.Table, res.Rows, res.Files, res.Bytes)
	p.stats.RowsWritten[res.Table] = res.Rows
	p.stats.FilesWritten += res.Files
	p.stats.TotalBytesWritten += res.Bytes
	return nil
}

func (p *Pipeline) writeStats(ctx context.Context) error {
	statsJSON, err := json.MarshalIndent(p.stats, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize stats: %w", err)
	}
	if err := p.output.Upload(ctx, StatsKey, bytes.NewReader(statsJSON), nil); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}
	p.log.Infof("Successfully wrote stats to %s", p.output.URI(StatsKey))
	return nil
}

func (p *Pipeline) pushMetrics(ctx context.Context) {
	if p.pusher == nil {
		return
	}
	if err := p.pusher.Push(ctx, p.metrics.Registry()); err != nil {
		p.log.WithError(err).Warn("Failed to push metrics")
	}
}

// Cleanup removes the temp directory used for parquet files.
func (p *Pipeline) Cleanup() {
	p.log.Debugf("Cleaning up temp directory: %s", p.tempDir)
	if err := os.RemoveAll(p.tempDir); err != nil {
		p.log.Warnf("Failed to clean up temp directory: %v", err)
	}
}
