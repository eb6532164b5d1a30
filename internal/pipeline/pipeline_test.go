package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songplays_etl/internal/columnar"
	"songplays_etl/internal/config"
	"songplays_etl/internal/extract"
	"songplays_etl/internal/metrics"
	"songplays_etl/internal/model"
	"songplays_etl/internal/storage"
)

const (
	soulDeepJSON = `{"num_songs": 1, "artist_id": "ARMJAGH1187FB546F3", "artist_latitude": 35.14968, "artist_longitude": -90.04892, "artist_location": "Memphis, TN", "artist_name": "The Box Tops", "song_id": "SOCIWDW12A8C13D406", "title": "Soul Deep", "duration": 148.03546, "year": 1969}`
	renaudJSON   = `{"num_songs": 1, "artist_id": "ARJIE2Y1187B994AB7", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Line Renaud", "song_id": "SOUPIRU12A6D4FA1E1", "title": "Der Kleine Dompfaff", "duration": 152.92036, "year": 0}`

	// Walter (user 39) only ever visits Home.
	homeEventJSON = `{"artist":null,"auth":"Logged In","firstName":"Walter","gender":"M","itemInSession":0,"lastName":"Frye","length":null,"level":"free","location":"San Francisco-Oakland-Hayward, CA","method":"GET","page":"Home","registration":1540919166796.0,"sessionId":38,"song":null,"status":200,"ts":1541105830796,"userAgent":"Mozilla\/5.0","userId":"39"}`
	playEventJSON = `{"artist":"The Box Tops","auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":1,"lastName":"Summers","length":148.03546,"level":"free","location":"Phoenix-Mesa-Scottsdale, AZ","method":"PUT","page":"NextSong","registration":1540344794796.0,"sessionId":139,"song":"Soul Deep","status":200,"ts":1541106106796,"userAgent":"Mozilla\/5.0","userId":"8"}`
	missEventJSON = `{"artist":"Des'ree","auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":2,"lastName":"Summers","length":246.30812,"level":"paid","location":"Phoenix-Mesa-Scottsdale, AZ","method":"PUT","page":"NextSong","registration":1540344794796.0,"sessionId":139,"song":"You Gotta Be","status":200,"ts":1543449657796,"userAgent":"Mozilla\/5.0","userId":"8"}`
)

type fixture struct {
	input    *storage.LocalStore
	output   *storage.LocalStore
	pipeline *Pipeline
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	ctx := context.Background()

	input, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	output, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	for key, body := range files {
		require.NoError(t, input.Upload(ctx, key, strings.NewReader(body), nil))
	}

	cfg := config.Config{
		ETL: config.ETLConfig{
			SongPrefix: "song_data/",
			LogPrefix:  "log_data/",
			TempDir:    t.TempDir(),
			Workers:    2,
		},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := metrics.New()

	p, err := New(cfg, input, output, logger, m)
	require.NoError(t, err)
	t.Cleanup(p.Cleanup)

	return &fixture{input: input, output: output, pipeline: p, metrics: m}
}

func defaultFiles() map[string]string {
	return map[string]string{
		"song_data/A/A/A/TRAAAAW128F429D538.json": soulDeepJSON,
		"song_data/A/B/C/TRABCEI128F424C983.json": renaudJSON,
		"log_data/2018/11/2018-11-01-events.json": homeEventJSON + "\n" + playEventJSON + "\n",
		"log_data/2018/11/2018-11-28-events.json": missEventJSON + "\n",
	}
}

func readTable[R any](t *testing.T, store storage.Store, table string) []columnar.Row[R] {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rows, err := columnar.ReadTable[R](context.Background(), columnar.NewReader(store, logrus.NewEntry(logger)), table)
	require.NoError(t, err)
	return rows
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t, defaultFiles())

	stats, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.SongRecordsRead)
	assert.Equal(t, 3, stats.LogEventsRead)
	assert.Equal(t, 2, stats.SongPlayEvents)
	assert.Equal(t, 1, stats.MatchedSongPlays)
	assert.Equal(t, map[string]int{
		TableSongs:     2,
		TableArtists:   2,
		TableUsers:     1,
		TableTime:      2,
		TableSongplays: 2,
	}, stats.RowsWritten)

	songs := readTable[model.SongFile](t, f.output, TableSongs)
	require.Len(t, songs, 2)
	ids := map[string]bool{}
	for _, row := range songs {
		s, err := songFromRow(row)
		require.NoError(t, err)
		ids[s.SongID] = true
		if s.SongID == "SOCIWDW12A8C13D406" {
			assert.Equal(t, int32(1969), s.Year)
			assert.Equal(t, "ARMJAGH1187FB546F3", s.ArtistID)
		}
	}
	assert.Equal(t, map[string]bool{"SOCIWDW12A8C13D406": true, "SOUPIRU12A6D4FA1E1": true}, ids)

	artists := readTable[model.ArtistFile](t, f.output, TableArtists)
	assert.Len(t, artists, 2)

	// Only the song-play user is present; Walter's Home visit adds nothing.
	users := readTable[model.UserFile](t, f.output, TableUsers)
	require.Len(t, users, 1)
	assert.Equal(t, "8", users[0].Value.UserID)
	assert.Equal(t, "paid", users[0].Value.Level, "latest event decides the level")

	times := readTable[model.TimeFile](t, f.output, TableTime)
	require.Len(t, times, 2)
	for _, row := range times {
		assert.NotEqual(t, int64(1541105830000), row.Value.StartTime, "Home event must not reach dim_time")
		year, _ := row.Partition.Get("year")
		assert.Equal(t, "2018", year)
	}

	plays := readTable[model.SongplayFile](t, f.output, TableSongplays)
	require.Len(t, plays, 2)
	var matched, unmatched *model.SongplayFile
	for i := range plays {
		if plays[i].Value.SongID != nil {
			matched = &plays[i].Value
		} else {
			unmatched = &plays[i].Value
		}
	}
	require.NotNil(t, matched)
	require.NotNil(t, unmatched)
	assert.Equal(t, "SOCIWDW12A8C13D406", *matched.SongID)
	require.NotNil(t, matched.ArtistID)
	assert.Equal(t, "ARMJAGH1187FB546F3", *matched.ArtistID)
	assert.Equal(t, int64(1541106106000), matched.StartTime)
	assert.Equal(t, int64(139), matched.SessionID)
	assert.Nil(t, unmatched.ArtistID)
	assert.NotEqual(t, matched.SongplayID, unmatched.SongplayID)

	for _, table := range []string{TableSongs, TableArtists, TableUsers, TableTime, TableSongplays} {
		rc, err := f.output.Open(context.Background(), table+"/"+columnar.SuccessMarker)
		require.NoError(t, err, table)
		rc.Close()
	}

	rc, err := f.output.Open(context.Background(), StatsKey)
	require.NoError(t, err)
	defer rc.Close()
	var written ETLStats
	require.NoError(t, json.NewDecoder(rc).Decode(&written))
	assert.Equal(t, f.pipeline.RunID(), written.RunID)
	assert.Equal(t, 2, written.RowsWritten[TableSongplays])
}

func TestRun_ResolvesPlaysUnderEachRecordsArtistName(t *testing.T) {
	f := newFixture(t, map[string]string{
		"song_data/A/A/A/TRAAAHD128F42635A5.json": `{"num_songs": 1, "artist_id": "ARTC1LV1187B9A4858", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Elvis Presley", "song_id": "SOAAHZV12A6D4F8EAD", "title": "Hound Dog", "duration": 135.91465, "year": 1956}`,
		"song_data/A/A/B/TRAABJL12903CDCF1A.json": `{"num_songs": 1, "artist_id": "ARTC1LV1187B9A4858", "artist_latitude": null, "artist_longitude": null, "artist_location": "", "artist_name": "Elvis Presley / The Jordanaires", "song_id": "SOBBDXR12A8C13AB52", "title": "Don't Be Cruel", "duration": 200.25, "year": 1956}`,
		"log_data/2018-11-01-events.json": `{"artist":"Elvis Presley \/ The Jordanaires","auth":"Logged In","firstName":"Kaylee","gender":"F","itemInSession":0,"lastName":"Summers","length":200.25,"level":"free","location":"Phoenix-Mesa-Scottsdale, AZ","method":"PUT","page":"NextSong","registration":1540344794796.0,"sessionId":139,"song":"Don't Be Cruel","status":200,"ts":1541106106796,"userAgent":"Mozilla\/5.0","userId":"8"}`,
	})

	_, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	artists := readTable[model.ArtistFile](t, f.output, TableArtists)
	require.Len(t, artists, 1)

	plays := readTable[model.SongplayFile](t, f.output, TableSongplays)
	require.Len(t, plays, 1)
	require.NotNil(t, plays[0].Value.SongID)
	assert.Equal(t, "SOBBDXR12A8C13AB52", *plays[0].Value.SongID)
	require.NotNil(t, plays[0].Value.ArtistID)
	assert.Equal(t, "ARTC1LV1187B9A4858", *plays[0].Value.ArtistID)
}

// stickyStore cannot remove its access test object.
type stickyStore struct {
	*storage.LocalStore
}

func (s stickyStore) CheckAccess(ctx context.Context) error {
	return fmt.Errorf("%w connection-test.txt: permission denied", storage.ErrAccessTestCleanup)
}

func TestRun_AccessTestCleanupFailureOnlyWarns(t *testing.T) {
	f := newFixture(t, defaultFiles())
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	p, err := New(f.pipeline.cfg, f.input, stickyStore{f.output}, logger, metrics.New())
	require.NoError(t, err)
	defer p.Cleanup()

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, readTable[model.SongplayFile](t, f.output, TableSongplays), 2)
}

func TestRun_SecondRunOverwrites(t *testing.T) {
	files := defaultFiles()
	f := newFixture(t, files)
	_, err := f.pipeline.Run(context.Background())
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	again, err := New(f.pipeline.cfg, f.input, f.output, logger, metrics.New())
	require.NoError(t, err)
	defer again.Cleanup()
	_, err = again.Run(context.Background())
	require.NoError(t, err)

	plays := readTable[model.SongplayFile](t, f.output, TableSongplays)
	assert.Len(t, plays, 2)
	songs := readTable[model.SongFile](t, f.output, TableSongs)
	assert.Len(t, songs, 2)
}

func TestRun_LogStageFailureLeavesSongOutput(t *testing.T) {
	files := defaultFiles()
	files["log_data/2018/11/2018-11-30-events.json"] = `{"page":"NextSong","ts":"not-a-number"}`
	f := newFixture(t, files)

	_, err := f.pipeline.Run(context.Background())
	require.Error(t, err)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageLogs, stageErr.Stage)
	assert.ErrorIs(t, err, extract.ErrMalformedRecord)

	assert.Len(t, readTable[model.SongFile](t, f.output, TableSongs), 2)
	assert.Empty(t, readTable[model.SongplayFile](t, f.output, TableSongplays))

	_, err = f.output.Open(context.Background(), StatsKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRun_MissingSongDataFailsSongStage(t *testing.T) {
	f := newFixture(t, map[string]string{
		"log_data/2018-11-01-events.json": playEventJSON,
	})

	_, err := f.pipeline.Run(context.Background())

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageSongs, stageErr.Stage)
	assert.ErrorIs(t, err, extract.ErrNoInputFiles)
}

func TestProcessLogData_OnlyHomeEvents(t *testing.T) {
	f := newFixture(t, map[string]string{
		"song_data/A/A/A/TRAAAAW128F429D538.json": soulDeepJSON,
		"log_data/2018-11-01-events.json":         homeEventJSON,
	})
	ctx := context.Background()

	require.NoError(t, f.pipeline.ProcessSongData(ctx))
	require.NoError(t, f.pipeline.ProcessLogData(ctx))

	assert.Empty(t, readTable[model.UserFile](t, f.output, TableUsers))
	assert.Empty(t, readTable[model.TimeFile](t, f.output, TableTime))
	assert.Empty(t, readTable[model.SongplayFile](t, f.output, TableSongplays))
}
