package pipeline

import (
	"fmt"
	"strconv"

	"songplays_etl/internal/columnar"
	"songplays_etl/internal/model"
)

// Output table directories under the output root.
const (
	TableSongs     = "dim_songs"
	TableArtists   = "dim_artists"
	TableUsers     = "dim_users"
	TableTime      = "dim_time"
	TableSongplays = "fact_songplays"
)

func yearMonth(year, month int32) columnar.Partition {
	return columnar.Partition{
		{Name: "year", Value: strconv.Itoa(int(year))},
		{Name: "month", Value: strconv.Itoa(int(month))},
	}
}

func splitSong(s model.Song) (columnar.Partition, model.SongFile) {
	return columnar.Partition{
		{Name: "year", Value: strconv.Itoa(int(s.Year))},
		{Name: "artist_id", Value: s.ArtistID},
	}, s.File()
}

func splitArtist(a model.Artist) (columnar.Partition, model.ArtistFile) {
	return nil, a.File()
}

func splitUser(u model.User) (columnar.Partition, model.UserFile) {
	return nil, u.File()
}

func splitTime(t model.Time) (columnar.Partition, model.TimeFile) {
	return yearMonth(t.Year, t.Month), t.File()
}

func splitSongplay(p model.Songplay) (columnar.Partition, model.SongplayFile) {
	return yearMonth(p.Year, p.Month), p.File()
}

// songFromRow restores the partition columns of a song read back from disk.
func songFromRow(row columnar.Row[model.SongFile]) (model.Song, error) {
	yearStr, ok := row.Partition.Get("year")
	if !ok {
		return model.Song{}, fmt.Errorf("song %s: missing year partition", row.Value.SongID)
	}
	artistID, ok := row.Partition.Get("artist_id")
	if !ok {
		return model.Song{}, fmt.Errorf("song %s: missing artist_id partition", row.Value.SongID)
	}
	year, err := strconv.ParseInt(yearStr, 10, 32)
	if err != nil {
		return model.Song{}, fmt.Errorf("song %s: bad year partition %q: %w", row.Value.SongID, yearStr, err)
	}
	return model.Song{
		SongID:   row.Value.SongID,
		Title:    row.Value.Title,
		ArtistID: artistID,
		Year:     int32(year),
		Duration: row.Value.Duration,
	}, nil
}
