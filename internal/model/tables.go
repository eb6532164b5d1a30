package model

import "time"

// Song is a row of the songs dimension.
type Song struct {
	SongID   string
	Title    string
	ArtistID string
	Year     int32
	Duration float64
}

// Artist is a row of the artists dimension.
type Artist struct {
	ArtistID  string
	Name      string
	Location  string
	Latitude  *float64
	Longitude *float64
}

// User is a row of the users dimension.
type User struct {
	UserID    string
	FirstName string
	LastName  string
	Gender    string
	Level     string
}

// Time is a row of the time dimension. Weekday follows the 1 = Sunday
// numbering analysts get from SQL engines' dayofweek.
type Time struct {
	StartTime   time.Time
	Hour        int32
	Day         int32
	Week        int32
	Month       int32
	Year        int32
	Weekday     int32
	WeekdayName string
}

// Songplay is a row of the songplays fact table. SongID and ArtistID are nil
// when the event did not match the catalog.
type Songplay struct {
	SongplayID int64
	StartTime  time.Time
	UserID     string
	Level      string
	SongID     *string
	ArtistID   *string
	SessionID  int64
	Location   string
	UserAgent  string
	Year       int32
	Month      int32
}
