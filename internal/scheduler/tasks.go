package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskMeetingRepair = "booking.meeting_repair"

const TaskBookingReminder = "booking.reminder"

type MeetingRepairPayload struct {
	AppointmentID string `json:"appointmentId"`
}

type BookingReminderPayload struct {
	AppointmentID string `json:"appointmentId"`
}

func NewMeetingRepairTask(payload MeetingRepairPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMeetingRepair, data), nil
}

func ParseMeetingRepairPayload(task *asynq.Task) (MeetingRepairPayload, error) {
	var payload MeetingRepairPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return MeetingRepairPayload{}, err
	}
	return payload, nil
}

func NewBookingReminderTask(payload BookingReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBookingReminder, data), nil
}

func ParseBookingReminderPayload(task *asynq.Task) (BookingReminderPayload, error) {
	var payload BookingReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return BookingReminderPayload{}, err
	}
	return payload, nil
}
