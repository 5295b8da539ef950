package scheduling

import (
	"fmt"
	"time"

	"consulta/backend/internal/domain"
)

var ruWeekdays = [7]string{
	"Воскресенье", "Понедельник", "Вторник", "Среда", "Четверг", "Пятница", "Суббота",
}

// Month names in the genitive case, as they read after a day number.
var ruMonths = [12]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// DayLabel renders a date for end users, e.g. "Понедельник, 2 сентября"
// or "Monday, 2 September". Unknown locales fall back to English.
func (s *Service) DayLabel(date time.Time) string {
	if s.cfg.Locale == "ru" {
		return fmt.Sprintf("%s, %d %s", ruWeekdays[date.Weekday()], date.Day(), ruMonths[date.Month()-1])
	}
	return fmt.Sprintf("%s, %d %s", date.Weekday().String(), date.Day(), date.Month().String())
}

// FormatSlot renders a slot as a single choice line. Pure formatting;
// safe to call concurrently.
func (s *Service) FormatSlot(slot domain.Slot) string {
	return fmt.Sprintf("%s, %s-%s", s.DayLabel(slot.Date), slot.StartTime, slot.EndTime)
}
