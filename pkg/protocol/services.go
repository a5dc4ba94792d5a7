package protocol

// Weather is the body of /api/weather_data.
type Weather struct {
	City       string        `json:"city"`
	Temp       float64       `json:"temp"`
	Desc       string        `json:"desc"`
	TempMax    float64       `json:"temp_max"`
	TempMin    float64       `json:"temp_min"`
	Humidity   string        `json:"humidity"`
	WindSpeed  string        `json:"wind_speed"`
	Visibility string        `json:"visibility"`
	Pressure   string        `json:"pressure"`
	IconCode   string        `json:"icon_code"`
	Hourly     []HourlyPoint `json:"hourly"`
}

type HourlyPoint struct {
	Time     string  `json:"time"`
	Temp     float64 `json:"temp"`
	IconCode string  `json:"icon_code"`
}

// Reminder categories.
const (
	CategoryWork     = "work"
	CategoryPersonal = "personal"
	CategoryHealth   = "health"
)

type Reminder struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Time       string `json:"time"`
	Date       string `json:"date"`
	Category   string `json:"category"`
	Color      string `json:"color,omitempty"`
	IsNotified bool   `json:"is_notified,omitempty"`
}

// ReminderRequest creates or updates a reminder.
type ReminderRequest struct {
	Title    string `json:"title"`
	Time     string `json:"time"`
	Date     string `json:"date"`
	Category string `json:"category"`
	UID      string `json:"uid"`
}

// StatusResponse is the small {"status": ...} acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
	UID    string `json:"uid,omitempty"`
}

type Meal struct {
	ID       int    `json:"id,omitempty"`
	Name     string `json:"name"`
	Time     string `json:"time,omitempty"`
	Calories int    `json:"calories"`
	Protein  int    `json:"protein,omitempty"`
	Carbs    int    `json:"carbs,omitempty"`
	Fat      int    `json:"fat,omitempty"`
	Icon     string `json:"icon,omitempty"`
}

type Macros struct {
	Protein int `json:"protein"`
	Carbs   int `json:"carbs"`
	Fat     int `json:"fat"`
}

// NutritionDay is the body of /api/nutrition/today.
type NutritionDay struct {
	TotalCalories int     `json:"total_calories"`
	Water         int     `json:"water"`
	Meals         []Meal  `json:"meals"`
	Macros        *Macros `json:"macros,omitempty"`
}

type AddMealRequest struct {
	UID  string `json:"uid"`
	Meal Meal   `json:"meal"`
}

type WaterRequest struct {
	UID string `json:"uid"`
}

type WaterResponse struct {
	Water int `json:"water"`
}

type EstimateRequest struct {
	Name string `json:"name"`
}

// NutritionEstimate is the body of /api/nutrition/estimate.
type NutritionEstimate struct {
	Name     string `json:"name,omitempty"`
	Calories int    `json:"calories"`
	Protein  int    `json:"protein"`
	Carbs    int    `json:"carbs"`
	Fat      int    `json:"fat"`
	Time     string `json:"time,omitempty"`
}

type VoiceCommandRequest struct {
	Text string `json:"text"`
	UID  string `json:"uid"`
}

// Nutrition voice command intents.
const (
	IntentFillManual  = "fill_manual_input"
	IntentSuggestion  = "suggestion"
	IntentFillProfile = "fill_profile"
	IntentCamera      = "camera"
)

type VoiceCommandResponse struct {
	Intent     string         `json:"intent"`
	Message    string         `json:"message,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Preference string         `json:"preference,omitempty"`
}

type SuggestRequest struct {
	UserProfile       map[string]any `json:"userProfile"`
	RemainingCalories int            `json:"remainingCalories"`
	IgnoreList        []string       `json:"ignoreList"`
	Preference        *string        `json:"preference"`
}

type Suggestion struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Calories int    `json:"calories"`
	Protein  int    `json:"protein"`
	Carbs    int    `json:"carbs"`
	Fat      int    `json:"fat"`
	Icon     string `json:"icon,omitempty"`
	Desc     string `json:"desc,omitempty"`
}

type SuggestResponse struct {
	Suggestion []Suggestion `json:"suggestion"`
}

// Profile is a free-form nutrition profile (age, height, weight, goal, dailyCalories, ...).
type Profile map[string]any

type ProfileRequest struct {
	UID  string  `json:"uid"`
	Data Profile `json:"data"`
}
