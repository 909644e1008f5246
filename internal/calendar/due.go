package calendar

// Day offsets that open each notification window. Matching is exact-day:
// a daily run must land on the offset, the "previous" offsets only catch up
// a run missed the day before.
const (
	ReminderDaysBefore         = 3
	OverdueDaysAfter           = 1
	PreviousReminderDaysBefore = ReminderDaysBefore + 1
	PreviousOverdueDaysAfter   = OverdueDaysAfter + 1
)

// DaysUntilDue is due - today; negative once the due date has passed.
func DaysUntilDue(due, today Date) int {
	return due.Sub(today)
}

// DaysOverdue is today - due; negative while not yet due.
func DaysOverdue(due, today Date) int {
	return today.Sub(due)
}

// IsOverdue reports whether today is strictly after due.
func IsOverdue(due, today Date) bool {
	return today.After(due)
}

func ShouldSendReminder(due, today Date) bool {
	return DaysUntilDue(due, today) == ReminderDaysBefore
}

func ShouldSendOverdue(due, today Date) bool {
	return DaysOverdue(due, today) == OverdueDaysAfter
}

func ShouldSendReminderPrevious(due, today Date) bool {
	return DaysUntilDue(due, today) == PreviousReminderDaysBefore
}

func ShouldSendOverduePrevious(due, today Date) bool {
	return DaysOverdue(due, today) == PreviousOverdueDaysAfter
}
