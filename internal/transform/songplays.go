package transform

import (
	"slices"
	"sort"

	"github.com/bwmarrin/snowflake"

	"songplays_etl/internal/model"
)

// IDGenerator hands out surrogate ids. Successive calls must return strictly
// increasing values.
type IDGenerator interface {
	Next() int64
}

// SnowflakeIDs generates surrogate ids from a snowflake node. Ids from one
// node are unique and increase monotonically.
type SnowflakeIDs struct {
	node *snowflake.Node
}

func NewSnowflakeIDs(nodeID int64) (*SnowflakeIDs, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &SnowflakeIDs{node: node}, nil
}

func (g *SnowflakeIDs) Next() int64 {
	return g.node.Generate().Int64()
}

type catalogKey struct {
	title    string
	artist   string
	duration float64
}

type catalogMatch struct {
	songID   string
	artistID string
}

// Catalog resolves free-text (title, artist name, duration) triples from the
// activity log to song and artist ids.
type Catalog struct {
	index map[catalogKey]catalogMatch
}

// Credits maps a song id to every artist name the song catalog credits it
// with, in record order. One artist id can appear under several names.
type Credits map[string][]string

// SongCredits collects the artist names each song record carries.
func SongCredits(records []model.SongRecord) Credits {
	credits := make(Credits, len(records))
	for _, r := range records {
		if !slices.Contains(credits[r.SongID], r.ArtistName) {
			credits[r.SongID] = append(credits[r.SongID], r.ArtistName)
		}
	}
	return credits
}

// NewCatalog indexes songs under the artist names their records carry. Songs
// missing from credits fall back to the artists dimension, joined on artist
// id. When several songs share a triple, the smallest song id wins.
func NewCatalog(songs []model.Song, artists []model.Artist, credits Credits) *Catalog {
	names := make(map[string]string, len(artists))
	for _, a := range artists {
		if _, ok := names[a.ArtistID]; !ok {
			names[a.ArtistID] = a.Name
		}
	}

	sorted := make([]model.Song, len(songs))
	copy(sorted, songs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SongID < sorted[j].SongID })

	index := make(map[catalogKey]catalogMatch, len(sorted))
	for _, s := range sorted {
		credited := credits[s.SongID]
		if len(credited) == 0 {
			name, ok := names[s.ArtistID]
			if !ok {
				continue
			}
			credited = []string{name}
		}
		for _, name := range credited {
			key := catalogKey{title: s.Title, artist: name, duration: s.Duration}
			if _, dup := index[key]; dup {
				continue
			}
			index[key] = catalogMatch{songID: s.SongID, artistID: s.ArtistID}
		}
	}
	return &Catalog{index: index}
}

// Lookup returns the ids for an exact match on all three fields.
func (c *Catalog) Lookup(title, artist string, duration *float64) (songID, artistID string, ok bool) {
	if duration == nil {
		return "", "", false
	}
	m, ok := c.index[catalogKey{title: title, artist: artist, duration: *duration}]
	return m.songID, m.artistID, ok
}

func (c *Catalog) Len() int {
	return len(c.index)
}

// SongplaysTable emits exactly one fact row per event, in event order. Events
// without a catalog match keep nil song and artist ids.
func SongplaysTable(events []model.LogEvent, catalog *Catalog, ids IDGenerator) []model.Songplay {
	plays := make([]model.Songplay, 0, len(events))
	for _, e := range events {
		start := StartTime(e.TS)
		p := model.Songplay{
			SongplayID: ids.Next(),
			StartTime:  start,
			UserID:     e.UserID,
			Level:      e.Level,
			SessionID:  e.SessionID,
			Location:   e.Location,
			UserAgent:  e.UserAgent,
			Year:       int32(start.Year()),
			Month:      int32(start.Month()),
		}
		if songID, artistID, ok := catalog.Lookup(e.Song, e.Artist, e.Length); ok {
			p.SongID = &songID
			p.ArtistID = &artistID
		}
		plays = append(plays, p)
	}
	return plays
}
