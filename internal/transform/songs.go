// Package transform reshapes source records into star-schema rows. All
// functions are pure and deterministic for a given input order.
package transform

import "songplays_etl/internal/model"

// SongsTable projects the songs dimension. The first record seen for a song
// id wins.
func SongsTable(records []model.SongRecord) []model.Song {
	seen := make(map[string]struct{}, len(records))
	songs := make([]model.Song, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.SongID]; ok {
			continue
		}
		seen[r.SongID] = struct{}{}
		songs = append(songs, model.Song{
			SongID:   r.SongID,
			Title:    r.Title,
			ArtistID: r.ArtistID,
			Year:     r.Year,
			Duration: r.Duration,
		})
	}
	return songs
}

// ArtistsTable projects the artists dimension. The first record seen for an
// artist id wins.
func ArtistsTable(records []model.SongRecord) []model.Artist {
	seen := make(map[string]struct{})
	var artists []model.Artist
	for _, r := range records {
		if _, ok := seen[r.ArtistID]; ok {
			continue
		}
		seen[r.ArtistID] = struct{}{}
		artists = append(artists, model.Artist{
			ArtistID:  r.ArtistID,
			Name:      r.ArtistName,
			Location:  r.ArtistLocation,
			Latitude:  r.ArtistLatitude,
			Longitude: r.ArtistLongitude,
		})
	}
	return artists
}
