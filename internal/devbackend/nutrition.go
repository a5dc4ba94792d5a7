package devbackend

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"vist/pkg/protocol"
)

type food struct {
	name                          string
	calories, protein, carbs, fat int
	icon                          string
}

// Per serving.
var foods = []food{
	{"apple", 95, 0, 25, 0, "🍎"},
	{"banana", 105, 1, 27, 0, "🍌"},
	{"rice", 205, 4, 45, 0, "🍚"},
	{"pho", 420, 25, 55, 10, "🍜"},
	{"chicken salad", 350, 30, 12, 18, "🥗"},
	{"egg", 78, 6, 1, 5, "🥚"},
	{"oatmeal", 150, 5, 27, 3, "🥣"},
	{"salmon", 367, 40, 0, 22, "🐟"},
	{"yogurt", 120, 10, 15, 2, "🥛"},
	{"sandwich", 300, 15, 35, 10, "🥪"},
}

func lookupFood(name string) (food, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, f := range foods {
		if strings.Contains(key, f.name) {
			return f, true
		}
	}
	return food{}, false
}

// estimate returns the table values, or a stable guess for unknown food.
func estimate(name string) protocol.NutritionEstimate {
	if f, ok := lookupFood(name); ok {
		return protocol.NutritionEstimate{Name: name, Calories: f.calories, Protein: f.protein, Carbs: f.carbs, Fat: f.fat}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(name)))
	cal := 150 + int(h.Sum32()%350)
	return protocol.NutritionEstimate{Name: name, Calories: cal, Protein: cal / 20, Carbs: cal / 8, Fat: cal / 30}
}

var (
	ateRe     = regexp.MustCompile(`(?i)\b(ate|had|add)\b\s+(an?\s+|some\s+)?(.+)`)
	suggestRe = regexp.MustCompile(`(?i)\b(suggest|what should i eat|recommend)\b`)
	profileRe = regexp.MustCompile(`(?i)\b(\d{2,3})\s*(kg|cm|years?)\b`)
	cameraRe  = regexp.MustCompile(`(?i)\b(camera|photo|scan)\b`)
)

// voiceCommand classifies a spoken nutrition command.
func voiceCommand(text string) protocol.VoiceCommandResponse {
	switch {
	case cameraRe.MatchString(text):
		return protocol.VoiceCommandResponse{Intent: protocol.IntentCamera, Message: "Opening the camera."}
	case suggestRe.MatchString(text):
		pref := ""
		if strings.Contains(strings.ToLower(text), "vegetarian") {
			pref = "vegetarian"
		}
		return protocol.VoiceCommandResponse{Intent: protocol.IntentSuggestion, Message: "Here are some ideas.", Preference: pref}
	case ateRe.MatchString(text):
		m := ateRe.FindStringSubmatch(text)
		name := strings.TrimRight(strings.TrimSpace(m[3]), ".!")
		e := estimate(name)
		return protocol.VoiceCommandResponse{
			Intent:  protocol.IntentFillManual,
			Message: fmt.Sprintf("%s is about %d calories.", name, e.Calories),
			Data: map[string]any{
				"name": name, "calories": e.Calories, "protein": e.Protein, "carbs": e.Carbs, "fat": e.Fat,
			},
		}
	case profileRe.MatchString(text):
		data := map[string]any{}
		for _, m := range profileRe.FindAllStringSubmatch(text, -1) {
			v, _ := strconv.Atoi(m[1])
			switch strings.ToLower(m[2]) {
			case "kg":
				data["weight"] = v
			case "cm":
				data["height"] = v
			default:
				data["age"] = v
			}
		}
		return protocol.VoiceCommandResponse{Intent: protocol.IntentFillProfile, Message: "Profile updated.", Data: data}
	}
	return protocol.VoiceCommandResponse{Intent: protocol.IntentFillManual, Message: "Tell me what you ate."}
}

func suggest(req protocol.SuggestRequest) []protocol.Suggestion {
	out := []protocol.Suggestion{}
	for i, f := range foods {
		if slices.ContainsFunc(req.IgnoreList, func(s string) bool { return strings.EqualFold(s, f.name) }) {
			continue
		}
		if req.RemainingCalories > 0 && f.calories > req.RemainingCalories {
			continue
		}
		if req.Preference != nil && *req.Preference == "vegetarian" && (f.name == "salmon" || f.name == "pho" || f.name == "chicken salad") {
			continue
		}
		out = append(out, protocol.Suggestion{
			ID: i + 1, Name: f.name, Calories: f.calories, Protein: f.protein, Carbs: f.carbs, Fat: f.fat, Icon: f.icon,
			Desc: fmt.Sprintf("%d kcal per serving", f.calories),
		})
		if len(out) == 3 {
			break
		}
	}
	return out
}

// weather returns made-up but stable conditions for city.
func weather(city string) protocol.Weather {
	if city == "" {
		city = "Hanoi"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(city)))
	seed := h.Sum32()

	temp := float64(10 + seed%25)
	descs := []string{"clear sky", "few clouds", "light rain", "overcast clouds"}
	icons := []string{"01d", "02d", "10d", "04d"}
	i := int(seed>>8) % len(descs)

	w := protocol.Weather{
		City:       city,
		Temp:       temp,
		Desc:       descs[i],
		TempMax:    temp + 3,
		TempMin:    temp - 4,
		Humidity:   fmt.Sprintf("%d%%", 40+seed%50),
		WindSpeed:  fmt.Sprintf("%d km/h", 3+seed%20),
		Visibility: "10 km",
		Pressure:   fmt.Sprintf("%d hPa", 1000+seed%30),
		IconCode:   icons[i],
	}
	for k := range 6 {
		w.Hourly = append(w.Hourly, protocol.HourlyPoint{
			Time:     fmt.Sprintf("%02d:00", (9+3*k)%24),
			Temp:     temp - 2 + float64(k%3),
			IconCode: icons[(i+k)%len(icons)],
		})
	}
	return w
}
