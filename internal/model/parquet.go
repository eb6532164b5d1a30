package model

// Parquet file layouts. Partition columns (year, artist_id, month) live in
// the Hive-style directory path and are not repeated inside the files.

type SongFile struct {
	SongID   string  `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Title    string  `parquet:"name=title, type=BYTE_ARRAY, convertedtype=UTF8"`
	Duration float64 `parquet:"name=duration, type=DOUBLE"`
}

type ArtistFile struct {
	ArtistID  string   `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Name      string   `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Location  string   `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	Latitude  *float64 `parquet:"name=latitude, type=DOUBLE, repetitiontype=OPTIONAL"`
	Longitude *float64 `parquet:"name=longitude, type=DOUBLE, repetitiontype=OPTIONAL"`
}

type UserFile struct {
	UserID    string `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	FirstName string `parquet:"name=first_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	LastName  string `parquet:"name=last_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Gender    string `parquet:"name=gender, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level     string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type TimeFile struct {
	StartTime   int64  `parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Hour        int32  `parquet:"name=hour, type=INT32"`
	Day         int32  `parquet:"name=day, type=INT32"`
	Week        int32  `parquet:"name=week, type=INT32"`
	Weekday     int32  `parquet:"name=weekday, type=INT32"`
	WeekdayName string `parquet:"name=weekday_name, type=BYTE_ARRAY, convertedtype=UTF8"`
}

type SongplayFile struct {
	SongplayID int64   `parquet:"name=songplay_id, type=INT64"`
	StartTime  int64   `parquet:"name=start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	UserID     string  `parquet:"name=user_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Level      string  `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8"`
	SongID     *string `parquet:"name=song_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ArtistID   *string `parquet:"name=artist_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	SessionID  int64   `parquet:"name=session_id, type=INT64"`
	Location   string  `parquet:"name=location, type=BYTE_ARRAY, convertedtype=UTF8"`
	UserAgent  string  `parquet:"name=user_agent, type=BYTE_ARRAY, convertedtype=UTF8"`
}

func (s Song) File() SongFile {
	return SongFile{SongID: s.SongID, Title: s.Title, Duration: s.Duration}
}

func (a Artist) File() ArtistFile {
	return ArtistFile(a)
}

func (a ArtistFile) Artist() Artist {
	return Artist(a)
}

func (u User) File() UserFile {
	return UserFile(u)
}

func (t Time) File() TimeFile {
	return TimeFile{
		StartTime:   t.StartTime.UnixMilli(),
		Hour:        t.Hour,
		Day:         t.Day,
		Week:        t.Week,
		Weekday:     t.Weekday,
		WeekdayName: t.WeekdayName,
	}
}

func (p Songplay) File() SongplayFile {
	return SongplayFile{
		SongplayID: p.SongplayID,
		StartTime:  p.StartTime.UnixMilli(),
		UserID:     p.UserID,
		Level:      p.Level,
		SongID:     p.SongID,
		ArtistID:   p.ArtistID,
		SessionID:  p.SessionID,
		Location:   p.Location,
		UserAgent:  p.UserAgent,
	}
}
