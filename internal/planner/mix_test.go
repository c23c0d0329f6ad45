package planner

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/pkg/logger"
)

func newTestPlanner(seed int64) *Planner {
	p := New(MixConfig{}, logger.Default())
	p.rng = rand.New(rand.NewSource(seed))
	p.now = func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}
	return p
}

func TestWarmupPhases(t *testing.T) {
	p := newTestPlanner(1)
	tests := []struct {
		name          string
		startDate     string
		wantPhase     string
		wantQuotes    int
		wantOriginals int
	}{
		{"day 2", "2026-03-08", "week_0", 0, 3},
		{"day 5", "2026-03-05", "week_1", 1, 3},
		{"day 10", "2026-02-28", "week_2", 2, 5},
		{"day 18", "2026-02-20", "week_3", 4, 4},
		{"day 40", "2026-01-29", "week_4+", 7, 3},
		{"no start date", "", "フル稼働", 99, 99},
		{"bad date", "not-a-date", "フル稼働", 99, 99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.WarmupFor(tt.startDate)
			if got.Phase != tt.wantPhase {
				t.Errorf("phase = %q, want %q", got.Phase, tt.wantPhase)
			}
			if got.DailyQuotes != tt.wantQuotes || got.DailyOriginals != tt.wantOriginals {
				t.Errorf("limits = %d/%d, want %d/%d",
					got.DailyQuotes, got.DailyOriginals, tt.wantQuotes, tt.wantOriginals)
			}
		})
	}
}

func TestPlanDailyInvariants(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		p := newTestPlanner(seed)
		plan := p.PlanDaily(10, "")

		if len(plan.Slots) < 7 || len(plan.Slots) > 10 {
			t.Fatalf("seed %d: %d slots", seed, len(plan.Slots))
		}

		// time-ordered with at least 60 minutes between posts
		for i := 1; i < len(plan.Slots); i++ {
			diff := plan.Slots[i].MinuteOfDay() - plan.Slots[i-1].MinuteOfDay()
			if diff < 60 {
				t.Fatalf("seed %d: interval %d min between %s and %s",
					seed, diff, plan.Slots[i-1].TimeLabel, plan.Slots[i].TimeLabel)
			}
		}

		// hours within the allowed band
		for _, s := range plan.Slots {
			if s.Hour < 6 {
				t.Fatalf("seed %d: slot %s before 06:00", seed, s.TimeLabel)
			}
		}

		// quote ratio cap
		quotes := plan.CountByType(models.PostTypeQuoteRT)
		if float64(quotes) > float64(len(plan.Slots))*0.7+1e-9 {
			t.Fatalf("seed %d: %d quotes of %d slots", seed, quotes, len(plan.Slots))
		}

		// never more than two consecutive quotes
		consecutive := 0
		for _, s := range plan.Slots {
			if s.Type == models.PostTypeQuoteRT {
				consecutive++
				if consecutive > 2 {
					t.Fatalf("seed %d: 3 consecutive quotes", seed)
				}
			} else {
				consecutive = 0
			}
		}
	}
}

func TestPlanDailyWarmupCapsVolume(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		p := newTestPlanner(seed)
		// week_0: 0 quotes, 3 originals
		plan := p.PlanDaily(10, "2026-03-08")
		if len(plan.Slots) > 3 {
			t.Fatalf("seed %d: week_0 plan has %d slots", seed, len(plan.Slots))
		}
		if q := plan.CountByType(models.PostTypeQuoteRT); q != 0 {
			t.Fatalf("seed %d: week_0 plan has %d quotes", seed, q)
		}
	}
}

func TestPlanDailyQuoteSupplyCap(t *testing.T) {
	for seed := int64(0); seed < 20; seed++ {
		p := newTestPlanner(seed)
		plan := p.PlanDaily(2, "")
		if q := plan.CountByType(models.PostTypeQuoteRT); q > 2 {
			t.Fatalf("seed %d: %d quotes with supply of 2", seed, q)
		}
	}
}

func TestSlotForNow(t *testing.T) {
	p := newTestPlanner(1)
	plan := models.DailyPlan{Slots: []models.PlanSlot{
		{SlotID: "slot_01", Hour: 7, Minute: 0, Type: models.PostTypeOriginal},
		{SlotID: "slot_04", Hour: 12, Minute: 20, Type: models.PostTypeOriginal},
		{SlotID: "slot_10", Hour: 22, Minute: 30, Type: models.PostTypeQuoteRT},
	}}

	// now is 12:00, slot_04 at 12:20 is within 30 minutes
	got := p.SlotForNow(plan, 30)
	if got == nil || got.SlotID != "slot_04" {
		t.Fatalf("SlotForNow = %+v", got)
	}

	if got := p.SlotForNow(plan, 10); got != nil {
		t.Errorf("tight tolerance matched %s", got.SlotID)
	}
}

func TestFormatPlan(t *testing.T) {
	plan := models.DailyPlan{Slots: []models.PlanSlot{
		{SlotID: "slot_01", Hour: 7, Minute: 5, Type: models.PostTypeOriginal, TimeLabel: "07:05"},
		{SlotID: "slot_02", Hour: 8, Minute: 40, Type: models.PostTypeQuoteRT, TimeLabel: "08:40"},
	}}
	out := FormatPlan(plan)
	if out == "" {
		t.Fatal("empty format")
	}
	for _, want := range []string{"07:05", "slot_02", "引用RT: 1", "オリジナル: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted plan missing %q:\n%s", want, out)
		}
	}
}
