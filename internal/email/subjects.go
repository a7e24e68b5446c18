package email

const (
	subjectBookingConfirmed   = "Your viewing is confirmed"
	subjectBookingRescheduled = "Your viewing has been rescheduled"
	subjectBookingCancelled   = "Your viewing has been cancelled"
)
