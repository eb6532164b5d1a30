package transform

import (
	"sort"
	"time"

	"songplays_etl/internal/model"
)

// FilterSongPlays keeps only song-play events, preserving order.
func FilterSongPlays(events []model.LogEvent) []model.LogEvent {
	plays := make([]model.LogEvent, 0, len(events))
	for _, e := range events {
		if e.IsSongPlay() {
			plays = append(plays, e)
		}
	}
	return plays
}

// StartTime converts an event's millisecond epoch to a UTC timestamp at
// whole-second precision.
func StartTime(ts int64) time.Time {
	return time.Unix(ts/1000, 0).UTC()
}

// UsersTable builds the users dimension with one row per user id. The
// profile carried by the user's latest event (greatest ts) wins; equal
// timestamps resolve to the later event in input order. Output is ordered by
// first appearance of each user.
func UsersTable(events []model.LogEvent) []model.User {
	type latest struct {
		ts   int64
		user model.User
	}

	byID := make(map[string]*latest)
	var order []string
	for _, e := range events {
		if e.UserID == "" {
			continue
		}
		u := model.User{
			UserID:    e.UserID,
			FirstName: e.FirstName,
			LastName:  e.LastName,
			Gender:    e.Gender,
			Level:     e.Level,
		}
		cur, ok := byID[e.UserID]
		if !ok {
			byID[e.UserID] = &latest{ts: e.TS, user: u}
			order = append(order, e.UserID)
			continue
		}
		if e.TS >= cur.ts {
			cur.ts = e.TS
			cur.user = u
		}
	}

	users := make([]model.User, 0, len(order))
	for _, id := range order {
		users = append(users, byID[id].user)
	}
	return users
}

// TimeTable builds one row per distinct start time, sorted ascending.
func TimeTable(events []model.LogEvent) []model.Time {
	seen := make(map[int64]struct{})
	var rows []model.Time
	for _, e := range events {
		t := StartTime(e.TS)
		sec := t.Unix()
		if _, ok := seen[sec]; ok {
			continue
		}
		seen[sec] = struct{}{}
		rows = append(rows, TimeParts(t))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StartTime.Before(rows[j].StartTime) })
	return rows
}

// TimeParts derives the calendar attributes of t. Week is the ISO week.
func TimeParts(t time.Time) model.Time {
	t = t.UTC()
	_, week := t.ISOWeek()
	return model.Time{
		StartTime:   t,
		Hour:        int32(t.Hour()),
		Day:         int32(t.Day()),
		Week:        int32(week),
		Month:       int32(t.Month()),
		Year:        int32(t.Year()),
		Weekday:     int32(t.Weekday()) + 1,
		WeekdayName: t.Weekday().String(),
	}
}
