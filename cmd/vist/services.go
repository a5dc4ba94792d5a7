package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vist/internal/app"
	"vist/internal/audio"
	"vist/internal/conversation"
	"vist/pkg/protocol"
)

// WaterGoal is the daily number of glasses.
const WaterGoal = 8

func newHistoryCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireUID(g); err != nil {
				return err
			}
			c, err := g.backend()
			if err != nil {
				return err
			}
			entries, err := c.History(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %-14s %s\n", e.Time, e.Type, historyText(c.DataURL, e))
			}
			return nil
		},
	}
}

func historyText(dataURL func(string) string, e protocol.HistoryEntry) string {
	switch e.Type {
	case protocol.HistoryImage:
		return strings.TrimSpace(e.Prompt + " " + dataURL(conversation.FileName(e.ImagePath)))
	case protocol.HistoryImageAnalysis, protocol.HistoryScreenAnalysis:
		return strings.TrimSpace(e.Prompt + ": " + e.Analysis)
	}
	if e.Role != "" {
		return e.Role + ": " + e.Content
	}
	return e.Content
}

func newAnalyzeCmd(g *globals) *cobra.Command {
	var prompt string
	cmd := &cobra.Command{
		Use:   "analyze <image>",
		Short: "Describe an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUID(g); err != nil {
				return err
			}
			c, err := g.backend()
			if err != nil {
				return err
			}
			desc, err := c.AnalyzeImage(cmd.Context(), args[0], prompt)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), desc)
			return nil
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "question about the image")
	return cmd
}

func newWeatherCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "weather [city]",
		Short: "Show current weather",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.backend()
			if err != nil {
				return err
			}
			city := ""
			if len(args) == 1 {
				city = args[0]
			}
			w, err := c.Weather(cmd.Context(), city)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %.0f°C, %s (%.0f..%.0f)\n", w.City, w.Temp, w.Desc, w.TempMin, w.TempMax)
			fmt.Fprintf(out, "humidity %s  wind %s  visibility %s  pressure %s\n", w.Humidity, w.WindSpeed, w.Visibility, w.Pressure)
			for _, h := range w.Hourly {
				fmt.Fprintf(out, "  %s %5.0f°C\n", h.Time, h.Temp)
			}
			return nil
		},
	}
}

func newRemindersCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reminders",
		Aliases: []string{"rem"},
		Short:   "Manage reminders",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.load(cmd, false); err != nil {
				return err
			}
			return requireUID(g)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.backend()
			if err != nil {
				return err
			}
			rs, err := c.Reminders(cmd.Context())
			if err != nil {
				return err
			}
			printReminders(cmd.OutOrStdout(), rs)
			return nil
		},
	}

	var req protocol.ReminderRequest
	reminderFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&req.Time, "time", "", "time, HH:MM")
		c.Flags().StringVar(&req.Date, "date", "", "date, YYYY-MM-DD")
		c.Flags().StringVar(&req.Category, "category", protocol.CategoryPersonal, "work, personal or health")
	}

	add := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a reminder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.backend()
			if err != nil {
				return err
			}
			req.Title = strings.Join(args, " ")
			r, err := c.AddReminder(cmd.Context(), req)
			if err != nil {
				return err
			}
			printReminders(cmd.OutOrStdout(), []protocol.Reminder{r})
			return nil
		},
	}
	reminderFlags(add)

	update := &cobra.Command{
		Use:   "update <id> <title>",
		Short: "Replace a reminder",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("bad reminder id %q", args[0])
			}
			c, err := g.backend()
			if err != nil {
				return err
			}
			req.Title = strings.Join(args[1:], " ")
			r, err := c.UpdateReminder(cmd.Context(), id, req)
			if err != nil {
				return err
			}
			printReminders(cmd.OutOrStdout(), []protocol.Reminder{r})
			return nil
		},
	}
	reminderFlags(update)

	del := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a reminder",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("bad reminder id %q", args[0])
			}
			c, err := g.backend()
			if err != nil {
				return err
			}
			return c.DeleteReminder(cmd.Context(), id)
		},
	}

	cmd.AddCommand(list, add, update, del)
	return cmd
}

func printReminders(w io.Writer, rs []protocol.Reminder) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range rs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Date, r.Time, r.Category, r.Title)
	}
	_ = tw.Flush()
}

func newNutritionCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "nutrition",
		Aliases: []string{"food"},
		Short:   "Nutrition tracking",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.load(cmd, false); err != nil {
				return err
			}
			return requireUID(g)
		},
	}

	today := &cobra.Command{
		Use:   "today",
		Short: "Show today's meals and water",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.backend()
			if err != nil {
				return err
			}
			day, err := c.NutritionToday(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d kcal, water %d/%d\n", day.TotalCalories, day.Water, WaterGoal)
			if day.Macros != nil {
				fmt.Fprintf(out, "protein %dg  carbs %dg  fat %dg\n", day.Macros.Protein, day.Macros.Carbs, day.Macros.Fat)
			}
			for _, m := range day.Meals {
				fmt.Fprintf(out, "  %s %-24s %5d kcal\n", m.Time, m.Name, m.Calories)
			}
			return nil
		},
	}

	var meal protocol.Meal
	addMeal := &cobra.Command{
		Use:   "meal <name>",
		Short: "Log a meal; calories are estimated when not given",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.backend()
			if err != nil {
				return err
			}
			meal.Name = strings.Join(args, " ")
			if meal.Calories == 0 {
				est, err := c.EstimateNutrition(cmd.Context(), meal.Name)
				if err != nil {
					return err
				}
				meal.Calories, meal.Protein, meal.Carbs, meal.Fat = est.Calories, est.Protein, est.Carbs, est.Fat
			}
			if err := c.AddMeal(cmd.Context(), meal); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged %s, %d kcal\n", meal.Name, meal.Calories)
			return nil
		},
	}
	addMeal.Flags().IntVar(&meal.Calories, "kcal", 0, "calories")
	addMeal.Flags().IntVar(&meal.Protein, "protein", 0, "protein, grams")
	addMeal.Flags().IntVar(&meal.Carbs, "carbs", 0, "carbs, grams")
	addMeal.Flags().IntVar(&meal.Fat, "fat", 0, "fat, grams")

	var quietWater bool
	water := &cobra.Command{
		Use:   "water",
		Short: "Log a glass of water",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.backend()
			if err != nil {
				return err
			}
			n, err := c.AddWater(cmd.Context())
			if err != nil {
				return err
			}
			progress := waterProgress(n)
			fmt.Fprintln(cmd.OutOrStdout(), progress)

			if quietWater {
				return nil
			}
			if synth := app.NewSynth(g.cfg.Speech.Primary, audio.NewPlayer()); synth != nil {
				if err := synth.Speak(cmd.Context(), progress); err != nil {
					g.logger.Warn("water progress not spoken", "err", err)
				}
			}
			return nil
		},
	}
	water.Flags().BoolVarP(&quietWater, "quiet", "q", false, "do not speak the progress")

	estimate := &cobra.Command{
		Use:   "estimate <food>",
		Short: "Estimate calories and macros of a food",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.backend()
			if err != nil {
				return err
			}
			est, err := c.EstimateNutrition(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printEstimate(cmd.OutOrStdout(), est)
			return nil
		},
	}

	var (
		remaining  int
		ignore     []string
		preference string
	)
	suggest := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest foods that fit the remaining calories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.backend()
			if err != nil {
				return err
			}
			profile, err := c.NutritionProfile(cmd.Context())
			if err != nil {
				return err
			}
			req := protocol.SuggestRequest{UserProfile: profile, RemainingCalories: remaining, IgnoreList: ignore}
			if preference != "" {
				req.Preference = &preference
			}
			items, err := c.SuggestFood(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range items {
				fmt.Fprintf(out, "%-24s %5d kcal  %s\n", s.Name, s.Calories, s.Desc)
			}
			return nil
		},
	}
	suggest.Flags().IntVar(&remaining, "remaining", 600, "calories left today")
	suggest.Flags().StringSliceVar(&ignore, "ignore", nil, "foods to skip")
	suggest.Flags().StringVar(&preference, "preference", "", "e.g. vegetarian")

	var set []string
	profile := &cobra.Command{
		Use:   "profile",
		Short: "Show or update the nutrition profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.backend()
			if err != nil {
				return err
			}
			p, err := c.NutritionProfile(cmd.Context())
			if err != nil {
				return err
			}
			if len(set) > 0 {
				if p == nil {
					p = protocol.Profile{}
				}
				for _, kv := range set {
					k, v, ok := strings.Cut(kv, "=")
					if !ok {
						return fmt.Errorf("bad --set %q (want key=value)", kv)
					}
					p[k] = profileValue(v)
				}
				if err := c.SaveNutritionProfile(cmd.Context(), p); err != nil {
					return err
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}
	profile.Flags().StringArrayVar(&set, "set", nil, "key=value to store, repeatable")

	voice := &cobra.Command{
		Use:   "voice <text>",
		Short: "Interpret a spoken nutrition command",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.backend()
			if err != nil {
				return err
			}
			res, err := c.NutritionVoiceCommand(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "intent: %s\n", res.Intent)
			if res.Message != "" {
				fmt.Fprintln(out, res.Message)
			}
			if len(res.Data) > 0 {
				b, _ := json.Marshal(res.Data)
				fmt.Fprintln(out, string(b))
			}
			return nil
		},
	}

	scan := &cobra.Command{
		Use:   "scan <image>",
		Short: "Estimate a meal from a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.backend()
			if err != nil {
				return err
			}
			est, err := c.AnalyzeMeal(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printEstimate(cmd.OutOrStdout(), est)
			return nil
		},
	}

	cmd.AddCommand(today, addMeal, water, estimate, suggest, profile, voice, scan)
	return cmd
}

func waterProgress(n int) string {
	if n >= WaterGoal {
		return fmt.Sprintf("%d/%d glasses, goal reached", n, WaterGoal)
	}
	return fmt.Sprintf("%d/%d glasses, %d to go", n, WaterGoal, WaterGoal-n)
}

func printEstimate(w io.Writer, est protocol.NutritionEstimate) {
	name := est.Name
	if name == "" {
		name = "meal"
	}
	fmt.Fprintf(w, "%s: %d kcal, protein %dg, carbs %dg, fat %dg\n", name, est.Calories, est.Protein, est.Carbs, est.Fat)
}

// profileValue keeps numbers numeric so the server can do arithmetic on them.
func profileValue(v string) any {
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}
