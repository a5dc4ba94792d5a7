package devbackend

import (
	"errors"
	"slices"
	"strconv"
	"sync"

	"vist/pkg/protocol"
)

var errNotFound = errors.New("not found")

var categoryColors = map[string]string{
	protocol.CategoryWork:     "#3b82f6",
	protocol.CategoryPersonal: "#22c55e",
	protocol.CategoryHealth:   "#ef4444",
}

type userData struct {
	history   []protocol.HistoryEntry
	reminders []protocol.Reminder
	meals     []protocol.Meal
	water     int
	day       string
	profile   protocol.Profile
}

// store keeps every user's data in memory.
type store struct {
	mu      sync.Mutex
	users   map[string]*userData
	current string
	nextID  int
}

func newStore() *store {
	return &store{users: make(map[string]*userData), nextID: 1}
}

func (s *store) user(uid string) *userData {
	u, ok := s.users[uid]
	if !ok {
		u = &userData{}
		s.users[uid] = u
	}
	return u
}

func (s *store) id() int {
	id := s.nextID
	s.nextID++
	return id
}

func (s *store) setCurrent(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = uid
}

func (s *store) addHistory(uid string, e protocol.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(uid)
	if e.ID == "" {
		e.ID = strconv.Itoa(s.id())
	}
	u.history = append(u.history, e)
}

func (s *store) history(uid string) []protocol.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.user(uid).history)
}

func (s *store) reminders(uid string) []protocol.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.user(uid).reminders)
	if out == nil {
		out = []protocol.Reminder{}
	}
	return out
}

func (s *store) addReminder(uid string, r protocol.ReminderRequest) protocol.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	rem := reminderFrom(s.id(), r)
	u := s.user(uid)
	u.reminders = append(u.reminders, rem)
	return rem
}

func (s *store) updateReminder(uid string, id int, r protocol.ReminderRequest) (protocol.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(uid)
	for i := range u.reminders {
		if u.reminders[i].ID == id {
			u.reminders[i] = reminderFrom(id, r)
			return u.reminders[i], nil
		}
	}
	return protocol.Reminder{}, errNotFound
}

func (s *store) deleteReminder(uid string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(uid)
	for i := range u.reminders {
		if u.reminders[i].ID == id {
			u.reminders = slices.Delete(u.reminders, i, i+1)
			return nil
		}
	}
	return errNotFound
}

func reminderFrom(id int, r protocol.ReminderRequest) protocol.Reminder {
	category := r.Category
	if _, ok := categoryColors[category]; !ok {
		category = protocol.CategoryPersonal
	}
	return protocol.Reminder{
		ID:       id,
		Title:    r.Title,
		Time:     r.Time,
		Date:     r.Date,
		Category: category,
		Color:    categoryColors[category],
	}
}

// rollDay clears meals and water when the date changed.
func (u *userData) rollDay(day string) {
	if u.day != day {
		u.day = day
		u.meals = nil
		u.water = 0
	}
}

func (s *store) nutrition(uid, day string) protocol.NutritionDay {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(uid)
	u.rollDay(day)

	out := protocol.NutritionDay{Water: u.water, Meals: slices.Clone(u.meals), Macros: &protocol.Macros{}}
	if out.Meals == nil {
		out.Meals = []protocol.Meal{}
	}
	for _, m := range u.meals {
		out.TotalCalories += m.Calories
		out.Macros.Protein += m.Protein
		out.Macros.Carbs += m.Carbs
		out.Macros.Fat += m.Fat
	}
	return out
}

func (s *store) addMeal(uid, day string, m protocol.Meal) protocol.Meal {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(uid)
	u.rollDay(day)
	m.ID = s.id()
	if m.Icon == "" {
		m.Icon = "🍽️"
	}
	u.meals = append(u.meals, m)
	return m
}

func (s *store) addWater(uid, day string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(uid)
	u.rollDay(day)
	u.water++
	return u.water
}

func (s *store) profile(uid string) protocol.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := protocol.Profile{}
	for k, v := range s.user(uid).profile {
		out[k] = v
	}
	return out
}

func (s *store) saveProfile(uid string, p protocol.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user(uid)
	if u.profile == nil {
		u.profile = protocol.Profile{}
	}
	for k, v := range p {
		u.profile[k] = v
	}
}
