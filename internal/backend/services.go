package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"vist/pkg/protocol"
)

// WaterGoal is the daily number of glasses the nutrition view tracks.
const WaterGoal = 8

func (c *Client) Weather(ctx context.Context, city string) (protocol.Weather, error) {
	q := url.Values{}
	if city != "" {
		q.Set("city", city)
	}
	var out protocol.Weather
	err := c.getJSON(ctx, "/api/weather_data", q, &out)
	return out, err
}

func (c *Client) Reminders(ctx context.Context) ([]protocol.Reminder, error) {
	if c.uid == "" {
		return nil, ErrNoUser
	}
	var out []protocol.Reminder
	err := c.getJSON(ctx, "/api/reminders", url.Values{"uid": {c.uid}}, &out)
	return out, err
}

func (c *Client) AddReminder(ctx context.Context, r protocol.ReminderRequest) (protocol.Reminder, error) {
	if c.uid == "" {
		return protocol.Reminder{}, ErrNoUser
	}
	r.UID = c.uid
	var out protocol.Reminder
	err := c.sendJSON(ctx, http.MethodPost, "/api/reminders", nil, r, &out)
	return out, err
}

func (c *Client) UpdateReminder(ctx context.Context, id int, r protocol.ReminderRequest) (protocol.Reminder, error) {
	if c.uid == "" {
		return protocol.Reminder{}, ErrNoUser
	}
	r.UID = c.uid
	var out protocol.Reminder
	err := c.sendJSON(ctx, http.MethodPut, "/api/reminders/"+strconv.Itoa(id), nil, r, &out)
	return out, err
}

func (c *Client) DeleteReminder(ctx context.Context, id int) error {
	if c.uid == "" {
		return ErrNoUser
	}
	return c.sendJSON(ctx, http.MethodDelete, "/api/reminders/"+strconv.Itoa(id), url.Values{"uid": {c.uid}}, nil, nil)
}

func (c *Client) NutritionToday(ctx context.Context) (protocol.NutritionDay, error) {
	if c.uid == "" {
		return protocol.NutritionDay{}, ErrNoUser
	}
	var out protocol.NutritionDay
	err := c.getJSON(ctx, "/api/nutrition/today", url.Values{"uid": {c.uid}}, &out)
	return out, err
}

func (c *Client) AddMeal(ctx context.Context, meal protocol.Meal) error {
	if c.uid == "" {
		return ErrNoUser
	}
	var out protocol.StatusResponse
	return c.sendJSON(ctx, http.MethodPost, "/api/nutrition/add_meal", nil, protocol.AddMealRequest{UID: c.uid, Meal: meal}, &out)
}

// AddWater records one glass and returns today's count.
func (c *Client) AddWater(ctx context.Context) (int, error) {
	if c.uid == "" {
		return 0, ErrNoUser
	}
	var out protocol.WaterResponse
	err := c.sendJSON(ctx, http.MethodPost, "/api/nutrition/water", nil, protocol.WaterRequest{UID: c.uid}, &out)
	return out.Water, err
}

func (c *Client) EstimateNutrition(ctx context.Context, name string) (protocol.NutritionEstimate, error) {
	var out protocol.NutritionEstimate
	err := c.sendJSON(ctx, http.MethodPost, "/api/nutrition/estimate", nil, protocol.EstimateRequest{Name: name}, &out)
	return out, err
}

func (c *Client) NutritionVoiceCommand(ctx context.Context, text string) (protocol.VoiceCommandResponse, error) {
	if c.uid == "" {
		return protocol.VoiceCommandResponse{}, ErrNoUser
	}
	var out protocol.VoiceCommandResponse
	err := c.sendJSON(ctx, http.MethodPost, "/api/nutrition/voice_command", nil, protocol.VoiceCommandRequest{Text: text, UID: c.uid}, &out)
	return out, err
}

func (c *Client) SuggestFood(ctx context.Context, req protocol.SuggestRequest) ([]protocol.Suggestion, error) {
	if req.IgnoreList == nil {
		req.IgnoreList = []string{}
	}
	var out protocol.SuggestResponse
	err := c.sendJSON(ctx, http.MethodPost, "/api/nutrition/suggest", nil, req, &out)
	return out.Suggestion, err
}

func (c *Client) NutritionProfile(ctx context.Context) (protocol.Profile, error) {
	if c.uid == "" {
		return nil, ErrNoUser
	}
	var out protocol.Profile
	err := c.getJSON(ctx, "/api/nutrition/profile", url.Values{"uid": {c.uid}}, &out)
	return out, err
}

func (c *Client) SaveNutritionProfile(ctx context.Context, p protocol.Profile) error {
	if c.uid == "" {
		return ErrNoUser
	}
	var out protocol.StatusResponse
	return c.sendJSON(ctx, http.MethodPost, "/api/nutrition/profile", nil, protocol.ProfileRequest{UID: c.uid, Data: p}, &out)
}

// AnalyzeMeal uploads a meal photo and returns the estimated nutrition.
func (c *Client) AnalyzeMeal(ctx context.Context, imagePath string) (protocol.NutritionEstimate, error) {
	var out protocol.NutritionEstimate
	fields := map[string]string{}
	if c.uid != "" {
		fields["uid"] = c.uid
	}
	err := c.upload(ctx, "/api/nutrition/analyze_image", "image", imagePath, fields, &out)
	return out, err
}
