// Package intent classifies inbound WhatsApp messages into scheduling actions.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"estatebot_backend/platform/config"
	"estatebot_backend/platform/logger"
)

// Action is the classifier's verdict on what the user wants to do.
type Action string

const (
	ActionInitiateBooking       Action = "initiate_booking"
	ActionRescheduleAppointment Action = "reschedule_appointment"
	ActionCancelAppointment     Action = "cancel_appointment"
	ActionSelectAlternative     Action = "select_alternative"
	ActionTentativeBooking      Action = "tentative_booking"
	ActionProvideInfo           Action = "provide_info"
	ActionOther                 Action = "other"
)

// Result is the structured classifier output. The scheduling service
// re-validates Action against lead state instead of trusting it blindly.
type Result struct {
	Action            Action            `json:"action"`
	NormalizedMessage string            `json:"normalizedMessage"`
	FieldUpdates      map[string]string `json:"fieldUpdates"`
	Reply             string            `json:"reply"`
}

// Classifier turns a raw message plus conversation context into a Result.
type Classifier interface {
	Classify(ctx context.Context, message, bookingContext string) (Result, error)
}

type GeminiClassifier struct {
	client *genai.Client
	model  string
	log    *logger.Logger
}

func NewGeminiClassifier(ctx context.Context, cfg config.IntentConfig, log *logger.Logger) (*GeminiClassifier, error) {
	if cfg.GetGeminiAPIKey() == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required for the intent classifier")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GetGeminiAPIKey(),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClassifier{
		client: client,
		model:  cfg.GetIntentModel(),
		log:    log,
	}, nil
}

const systemInstruction = `You are the intake assistant of a real-estate agency talking to leads over WhatsApp.
Classify the user's latest message into exactly one action:
- initiate_booking: the user proposes a viewing time or asks to book one
- reschedule_appointment: the user wants to move an existing appointment
- cancel_appointment: the user wants to cancel an existing appointment
- select_alternative: the user picks a previously offered slot ("1", "the first one", "option 2", "yes that works")
- tentative_booking: the user expresses soft interest in a time without committing ("maybe Friday", "possibly around 3")
- provide_info: the user supplies contact or preference details (name, email, budget)
- other: anything else (questions, greetings, small talk)

Also produce:
- normalizedMessage: the message with times and ordinals spelled out plainly, in the user's words
- fieldUpdates: contact fields the message reveals (keys: firstName, lastName, email), empty object if none
- reply: for the "other" action only, a short friendly answer in the user's language; empty string otherwise`

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"action": {
			Type: genai.TypeString,
			Enum: []string{
				string(ActionInitiateBooking),
				string(ActionRescheduleAppointment),
				string(ActionCancelAppointment),
				string(ActionSelectAlternative),
				string(ActionTentativeBooking),
				string(ActionProvideInfo),
				string(ActionOther),
			},
		},
		"normalizedMessage": {Type: genai.TypeString},
		"fieldUpdates": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"firstName": {Type: genai.TypeString},
				"lastName":  {Type: genai.TypeString},
				"email":     {Type: genai.TypeString},
			},
		},
		"reply": {Type: genai.TypeString},
	},
	Required: []string{"action", "normalizedMessage"},
}

func (c *GeminiClassifier) Classify(ctx context.Context, message, bookingContext string) (Result, error) {
	prompt := fmt.Sprintf("Booking status: %s\n\nUser message:\n%s", bookingContext, message)

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema,
		Temperature:       genai.Ptr[float32](0),
	})
	if err != nil {
		return Result{}, fmt.Errorf("classify message: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		c.log.Error("classifier returned malformed JSON", "error", err, "raw", text)
		return Result{}, fmt.Errorf("parse classifier response: %w", err)
	}

	if result.Action == "" {
		result.Action = ActionOther
	}
	if result.NormalizedMessage == "" {
		result.NormalizedMessage = message
	}
	return result, nil
}
