package api

import (
	"context"
	"net/http"
)

// OnboardingQuestion is one entry from the onboarding question bank.
type OnboardingQuestion struct {
	ID                  int64    `json:"id"`
	QuestionText        string   `json:"questionText"`
	QuestionTextTagalog string   `json:"questionTextTagalog,omitempty"`
	QuestionType        string   `json:"questionType,omitempty"`
	Options             []string `json:"options,omitempty"`
	Order               int      `json:"order,omitempty"`
}

// OnboardingResponse pairs a question with the chosen answer.
type OnboardingResponse struct {
	Question    int64  `json:"question"`
	AnswerValue string `json:"answerValue"`
}

// OnboardingStatus reports where the user is in the onboarding flow.
type OnboardingStatus struct {
	Started   bool `json:"started"`
	Completed bool `json:"completed"`
	Answered  int  `json:"answered"`
	Total     int  `json:"total"`
}

func (c *Client) OnboardingStatus(ctx context.Context) (*OnboardingStatus, error) {
	var out OnboardingStatus
	if err := c.Do(ctx, http.MethodGet, "/onboarding/status/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) OnboardingQuestions(ctx context.Context) ([]OnboardingQuestion, error) {
	var out listEnvelope[OnboardingQuestion]
	if err := c.Do(ctx, http.MethodGet, "/onboarding/questions/", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

func (c *Client) StartOnboarding(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/onboarding/start/", nil, nil)
}

func (c *Client) SubmitOnboardingResponses(ctx context.Context, responses []OnboardingResponse) error {
	body := map[string]any{"responses": responses}
	return c.Do(ctx, http.MethodPost, "/onboarding/responses/", body, nil)
}

// CompleteOnboarding finishes the flow server-side. Callers follow up with
// session.Store.MarkOnboarded to patch local identity without a round trip.
func (c *Client) CompleteOnboarding(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/onboarding/complete/", nil, nil)
}
