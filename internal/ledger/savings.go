package ledger

import "time"

// applyTokenSavings derives savings for a just-finalized session. Callers
// hold the mutex. Without a baseline this is a no-op rather than an error:
// savings reporting is an optional add-on.
func (l *Ledger) applyTokenSavings(lastSessionChars int) {
	s := &l.st.TokenSavings
	if s.BeforeRoutingAvg <= 0 {
		return
	}

	l.rollWeekWindow()

	saved := s.BeforeRoutingAvg - lastSessionChars
	if saved < 0 {
		saved = 0
	}
	s.SavedLastSession = saved
	s.SavedTotal += saved
	s.SavedThisWeek += saved
}

// rollWeekWindow anchors or advances the rolling weekly window. The anchor
// is the most recent UTC Monday 00:00 at or before now; it is set lazily on
// the first observed activity (a baseline configured mid-week starts a
// partial first week) and re-anchored once a full window has elapsed.
func (l *Ledger) rollWeekWindow() {
	s := &l.st.TokenSavings
	now := l.now().UTC()

	if s.WeekStart.IsZero() {
		s.WeekStart = weekStart(now)
		return
	}
	if now.Sub(s.WeekStart) >= 7*24*time.Hour {
		s.SavedThisWeek = 0
		s.WeekStart = weekStart(now)
	}
}

// weekStart returns the most recent UTC Monday 00:00 at or before t.
func weekStart(t time.Time) time.Time {
	t = t.UTC()
	daysSinceMonday := (int(t.Weekday()) + 6) % 7
	day := t.AddDate(0, 0, -daysSinceMonday)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
}
