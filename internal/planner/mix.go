// Package planner builds the daily publishing schedule: how many posts, at
// which jittered times, and the quote/original mix. Slot variety and spacing
// keep the account from looking automated.
package planner

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/pkg/logger"
)

const minIntervalMinutes = 60

type baseSlot struct {
	id        string
	hour      int
	minute    int
	jitterMin int
	pool      []models.PostType
}

// Ten fixed base slots spread across the waking day. The pool limits which
// post types a slot may carry.
var defaultSlots = []baseSlot{
	{"slot_01", 7, 0, 20, []models.PostType{models.PostTypeOriginal}},
	{"slot_02", 8, 30, 25, []models.PostType{models.PostTypeQuoteRT}},
	{"slot_03", 10, 15, 20, []models.PostType{models.PostTypeQuoteRT}},
	{"slot_04", 12, 0, 20, []models.PostType{models.PostTypeOriginal}},
	{"slot_05", 14, 15, 20, []models.PostType{models.PostTypeQuoteRT}},
	{"slot_06", 16, 0, 25, []models.PostType{models.PostTypeQuoteRT}},
	{"slot_07", 18, 0, 20, []models.PostType{models.PostTypeQuoteRT}},
	{"slot_08", 19, 45, 15, []models.PostType{models.PostTypeOriginal}},
	{"slot_09", 21, 0, 20, []models.PostType{models.PostTypeQuoteRT}},
	{"slot_10", 22, 30, 25, []models.PostType{models.PostTypeQuoteRT, models.PostTypeOriginal}},
}

// WarmupLimits cap daily volume while a young account ramps up
type WarmupLimits struct {
	DailyQuotes    int
	DailyOriginals int
	Phase          string
}

// MixConfig tunes the planner; zero values fall back to defaults
type MixConfig struct {
	DailyTotalMin        int
	DailyTotalMax        int
	QuoteRatioMax        float64
	MaxConsecutiveQuotes int
}

func (c *MixConfig) fill() {
	if c.DailyTotalMin == 0 {
		c.DailyTotalMin = 7
	}
	if c.DailyTotalMax == 0 {
		c.DailyTotalMax = 10
	}
	if c.QuoteRatioMax == 0 {
		c.QuoteRatioMax = 0.7
	}
	if c.MaxConsecutiveQuotes == 0 {
		c.MaxConsecutiveQuotes = 2
	}
}

// Planner builds daily plans. rng is injectable so tests run deterministic;
// now is injectable for warm-up phase and slot-for-now computation.
type Planner struct {
	cfg MixConfig
	rng *rand.Rand
	now func() time.Time
	log *logger.Logger
}

func New(cfg MixConfig, log *logger.Logger) *Planner {
	cfg.fill()
	return &Planner{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
		log: log.WithComponent("planner"),
	}
}

// WarmupFor returns the volume caps for an account by its elapsed age.
// An empty or unparseable start date means no restriction.
func (p *Planner) WarmupFor(startDate string) WarmupLimits {
	full := WarmupLimits{DailyQuotes: 99, DailyOriginals: 99, Phase: "フル稼働"}
	if startDate == "" {
		return full
	}
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return full
	}
	elapsed := int(p.now().Sub(start).Hours() / 24)

	switch {
	case elapsed < 4:
		return WarmupLimits{DailyQuotes: 0, DailyOriginals: 3, Phase: "week_0"}
	case elapsed < 8:
		return WarmupLimits{DailyQuotes: 1, DailyOriginals: 3, Phase: "week_1"}
	case elapsed < 15:
		return WarmupLimits{DailyQuotes: 2, DailyOriginals: 5, Phase: "week_2"}
	case elapsed < 22:
		return WarmupLimits{DailyQuotes: 4, DailyOriginals: 4, Phase: "week_3"}
	default:
		return WarmupLimits{DailyQuotes: 7, DailyOriginals: 3, Phase: "week_4+"}
	}
}

// PlanDaily builds the full schedule for today. availableQuotes caps how many
// quote slots can actually be filled from the approved queue.
func (p *Planner) PlanDaily(availableQuotes int, accountStartDate string) models.DailyPlan {
	warmup := p.WarmupFor(accountStartDate)
	if warmup.Phase != "フル稼働" {
		p.log.Info().
			Str("phase", warmup.Phase).
			Int("max_quotes", warmup.DailyQuotes).
			Int("max_originals", warmup.DailyOriginals).
			Msg("Warm-up limits active")
	}

	effectiveMax := p.cfg.DailyTotalMax
	if limit := warmup.DailyQuotes + warmup.DailyOriginals; limit < effectiveMax {
		effectiveMax = limit
	}
	effectiveMin := p.cfg.DailyTotalMin
	if effectiveMax < effectiveMin {
		effectiveMin = effectiveMax
	}
	count := p.randomDailyCount(effectiveMin, effectiveMax)

	slots := p.selectSlots(count)

	effectiveQuotes := availableQuotes
	if warmup.DailyQuotes < effectiveQuotes {
		effectiveQuotes = warmup.DailyQuotes
	}
	plan := p.assignTypes(slots, effectiveQuotes)
	p.randomizeTimes(plan)
	enforceMinInterval(plan)

	return models.DailyPlan{Slots: plan}
}

// randomDailyCount picks the day's post count, weighted quadratically toward
// the upper end of the band.
func (p *Planner) randomDailyCount(min, max int) int {
	if max <= min {
		return min
	}
	total := 0
	weights := make([]int, 0, max-min+1)
	for i := min; i <= max; i++ {
		w := (i - min + 1) * (i - min + 1)
		weights = append(weights, w)
		total += w
	}
	pick := p.rng.Intn(total)
	for i, w := range weights {
		if pick < w {
			return min + i
		}
		pick -= w
	}
	return max
}

// selectSlots keeps the first and last base slot and fills the rest randomly,
// then restores time order.
func (p *Planner) selectSlots(count int) []baseSlot {
	if count >= len(defaultSlots) {
		out := make([]baseSlot, len(defaultSlots))
		copy(out, defaultSlots)
		return out
	}
	if count < 2 {
		count = 2
	}

	selected := []baseSlot{defaultSlots[0], defaultSlots[len(defaultSlots)-1]}
	middle := make([]baseSlot, len(defaultSlots)-2)
	copy(middle, defaultSlots[1:len(defaultSlots)-1])
	p.rng.Shuffle(len(middle), func(i, j int) { middle[i], middle[j] = middle[j], middle[i] })
	selected = append(selected, middle[:count-2]...)

	for i := 1; i < len(selected); i++ {
		for j := i; j > 0 && selected[j].hour*60+selected[j].minute < selected[j-1].hour*60+selected[j-1].minute; j-- {
			selected[j], selected[j-1] = selected[j-1], selected[j]
		}
	}
	return selected
}

// assignTypes fills each slot with a post type, honoring the quote ratio cap,
// the available quote supply, and the consecutive-quote limit.
func (p *Planner) assignTypes(slots []baseSlot, availableQuotes int) []models.PlanSlot {
	maxQuotes := int(float64(len(slots)) * p.cfg.QuoteRatioMax)
	if availableQuotes < maxQuotes {
		maxQuotes = availableQuotes
	}

	plan := make([]models.PlanSlot, 0, len(slots))
	quoteCount := 0

	for _, slot := range slots {
		consecutive := 0
		for i := len(plan) - 1; i >= 0 && plan[i].Type == models.PostTypeQuoteRT; i-- {
			consecutive++
		}

		var postType models.PostType
		switch {
		case consecutive >= p.cfg.MaxConsecutiveQuotes:
			postType = models.PostTypeOriginal
		case poolHas(slot.pool, models.PostTypeQuoteRT) && quoteCount < maxQuotes:
			postType = models.PostTypeQuoteRT
		default:
			postType = models.PostTypeOriginal
		}
		if postType == models.PostTypeQuoteRT {
			quoteCount++
		}

		plan = append(plan, models.PlanSlot{
			SlotID: slot.id,
			Hour:   slot.hour,
			Minute: slot.minute,
			Type:   postType,
		})
	}
	return plan
}

// randomizeTimes jitters each slot inside its base window, clamping hours to
// the 06:00-23:59 band.
func (p *Planner) randomizeTimes(plan []models.PlanSlot) {
	for i := range plan {
		base := baseFor(plan[i].SlotID)
		jitter := p.rng.Intn(2*base.jitterMin+1) - base.jitterMin
		hour := base.hour
		minute := base.minute + jitter
		if minute < 0 {
			hour--
			minute += 60
		} else if minute >= 60 {
			hour++
			minute -= 60
		}
		if hour < 6 {
			hour = 6
		}
		if hour > 23 {
			hour = 23
		}
		plan[i].Hour = hour
		plan[i].Minute = minute
		plan[i].TimeLabel = plan[i].TimeString()
	}
}

// enforceMinInterval pushes any slot forward until it sits at least the
// minimum interval after its predecessor.
func enforceMinInterval(plan []models.PlanSlot) {
	for i := 1; i < len(plan); i++ {
		prev := plan[i-1].MinuteOfDay()
		if plan[i].MinuteOfDay()-prev < minIntervalMinutes {
			next := prev + minIntervalMinutes
			plan[i].Hour = next / 60
			plan[i].Minute = next % 60
			plan[i].TimeLabel = plan[i].TimeString()
		}
	}
}

// SlotForNow returns the plan slot whose scheduled time is within tolerance
// of the current time, or nil.
func (p *Planner) SlotForNow(plan models.DailyPlan, toleranceMinutes int) *models.PlanSlot {
	now := p.now()
	nowMinutes := now.Hour()*60 + now.Minute()
	for i := range plan.Slots {
		diff := nowMinutes - plan.Slots[i].MinuteOfDay()
		if diff < 0 {
			diff = -diff
		}
		if diff <= toleranceMinutes {
			return &plan.Slots[i]
		}
	}
	return nil
}

// FormatPlan renders a plan for notifications and CLI output
func FormatPlan(plan models.DailyPlan) string {
	var b strings.Builder
	b.WriteString("📋 本日の投稿スケジュール:\n\n")
	for i, slot := range plan.Slots {
		icon := "✍️"
		if slot.Type == models.PostTypeQuoteRT {
			icon = "🔄"
		}
		fmt.Fprintf(&b, "  %d. %s  %s %-10s (%s)\n", i+1, slot.TimeString(), icon, slot.Type, slot.SlotID)
	}
	fmt.Fprintf(&b, "\n  合計: %d件 (引用RT: %d / オリジナル: %d)",
		len(plan.Slots),
		plan.CountByType(models.PostTypeQuoteRT),
		plan.CountByType(models.PostTypeOriginal))
	return b.String()
}

func baseFor(slotID string) baseSlot {
	for _, s := range defaultSlots {
		if s.id == slotID {
			return s
		}
	}
	return defaultSlots[0]
}

func poolHas(pool []models.PostType, t models.PostType) bool {
	for _, p := range pool {
		if p == t {
			return true
		}
	}
	return false
}
