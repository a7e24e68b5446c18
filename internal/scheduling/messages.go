package scheduling

import (
	"fmt"
	"time"
)

// User-facing response strings. The dispatcher returns exactly one of these
// per action; the messaging transport delivers it.
const (
	msgNoAgent = "Thanks for your message! An agent hasn't been assigned to you yet. We'll reach out as soon as one is, and then we can plan your viewing."

	msgClarifyTime = "I couldn't quite work out the time you meant. Could you give me a day and a time, for example \"tomorrow at 3pm\" or \"June 26 at 14:00\"?"

	msgNoSlotFound = "I couldn't find a free slot around that time in the coming weeks. Could you suggest a different day or time?"

	msgClarifySelection = "Just to be sure I book the right one: could you reply with the number of the slot you'd like, for example \"1\"?"

	msgCancelNothing = "You don't have a viewing scheduled at the moment. Would you like to book one? Just tell me a day and time that suits you."

	msgHandoff = "I want to make sure this is handled correctly, so I've asked a colleague to look into your appointment personally. They'll contact you shortly."

	msgTryAgain = "Sorry, something went wrong on our side. Please try again in a moment."
)

func formatInstant(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Monday, January 2 at 15:04")
}

func msgAlreadyBooked(start time.Time, loc *time.Location) string {
	return fmt.Sprintf("You already have a viewing scheduled on %s. If that no longer works, just tell me a new time and I'll reschedule it.", formatInstant(start, loc))
}

func msgBooked(start time.Time, loc *time.Location, joinURL string) string {
	msg := fmt.Sprintf("Your viewing is confirmed for %s.", formatInstant(start, loc))
	if joinURL != "" {
		msg += " You can join here: " + joinURL
	} else {
		msg += " You'll receive the video link shortly."
	}
	return msg
}

func msgRescheduled(start time.Time, loc *time.Location, joinURL string) string {
	msg := fmt.Sprintf("Done! Your viewing has been moved to %s.", formatInstant(start, loc))
	if joinURL != "" {
		msg += " Your new link: " + joinURL
	}
	return msg
}

func msgAlternative(requested *time.Time, alternative time.Time, loc *time.Location) string {
	if requested != nil {
		return fmt.Sprintf("That time is taken, I'm afraid. The nearest opening is %s. Reply \"1\" to book it, or suggest another time.", formatInstant(alternative, loc))
	}
	return fmt.Sprintf("The nearest opening is %s. Reply \"1\" to book it, or suggest another time.", formatInstant(alternative, loc))
}

func msgCancelled(start time.Time, loc *time.Location) string {
	return fmt.Sprintf("Your viewing on %s has been cancelled. Whenever you're ready, just send me a new time and we'll set one up again.", formatInstant(start, loc))
}

func msgTentativeHeld(hold time.Time, loc *time.Location) string {
	return fmt.Sprintf("Noted! I've pencilled in %s for you. Reply \"yes\" closer to the time to confirm, or send another time if your plans change.", formatInstant(hold, loc))
}

func msgTentativeBusy(hold, alternative time.Time, loc *time.Location) string {
	return fmt.Sprintf("I've noted your preference for %s, but that slot looks taken. The nearest opening is %s. Reply \"1\" to take it, or suggest another time.", formatInstant(hold, loc), formatInstant(alternative, loc))
}

func msgStatusNone() string {
	return "no appointment scheduled, can book a viewing"
}

func msgStatusBooked(start time.Time, loc *time.Location) string {
	return fmt.Sprintf("has appointment on %s, can reschedule or cancel", formatInstant(start, loc))
}

func msgStatusAlternatives(alternative time.Time, loc *time.Location) string {
	return fmt.Sprintf("was offered an alternative slot on %s, can accept it or suggest another time", formatInstant(alternative, loc))
}

func msgStatusTentative(hold time.Time, loc *time.Location) string {
	return fmt.Sprintf("has a tentative hold on %s, can confirm or change it", formatInstant(hold, loc))
}
