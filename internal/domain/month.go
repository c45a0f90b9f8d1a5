package domain

import (
	"fmt"
	"time"
)

// Month — ключ периода (год-месяц) для выписок и выплат. Границы считаются в UTC.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth разбирает строку вида "2024-03".
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf возвращает месяц, в который попадает момент t.
func MonthOf(t time.Time) Month {
	t = t.UTC()
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// IsZero сообщает, что месяц не задан.
func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// Start — первая наносекунда месяца.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End — начало следующего месяца (исключающая граница).
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, 0)
}

// Next возвращает следующий месяц.
func (m Month) Next() Month {
	return MonthOf(m.End())
}

// Prev возвращает предыдущий месяц.
func (m Month) Prev() Month {
	return MonthOf(m.Start().AddDate(0, -1, 0))
}

// Closed — месяц завершён к моменту at.
func (m Month) Closed(at time.Time) bool {
	return !at.Before(m.End())
}

// CutoffAt — граница агрегации: конец месяца или текущий момент, если месяц ещё идёт.
func (m Month) CutoffAt(now time.Time) time.Time {
	end := m.End()
	if now.Before(end) {
		return now.UTC()
	}
	return end
}

// DueDate — день dueDay следующего месяца; dueDay обрезается до длины месяца.
func (m Month) DueDate(dueDay int) time.Time {
	next := m.Next()
	if dueDay < 1 {
		dueDay = 1
	}
	last := next.End().AddDate(0, 0, -1).Day()
	if dueDay > last {
		dueDay = last
	}
	return time.Date(next.Year, next.Month, dueDay, 0, 0, 0, 0, time.UTC)
}
