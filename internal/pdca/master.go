package pdca

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/pkg/logger"
)

var (
	selfDisclosureHook = regexp.MustCompile(`^(ぶっちゃけ|正直|マジで)`)
	numberHook         = regexp.MustCompile(`^\d+`)
	emotionHook        = regexp.MustCompile(`^(やばい|えぐい|これ)`)
	concreteNumber     = regexp.MustCompile(`\d+[万円%時間分]`)
)

// MasterUpdater mines posted metrics for winning patterns and appends
// them to the master data update log.
type MasterUpdater struct {
	masterPath string
	log        *logger.Logger
	now        func() time.Time
}

func NewMasterUpdater(masterPath string, log *logger.Logger) *MasterUpdater {
	return &MasterUpdater{
		masterPath: masterPath,
		log:        log.WithComponent("pdca"),
		now:        time.Now,
	}
}

// UpdateFromMetrics compares the week's best and worst posts and records
// the detected patterns in the master data file.
func (m *MasterUpdater) UpdateFromMetrics(metrics []models.PostMetrics) (string, error) {
	if len(metrics) == 0 {
		return "メトリクスデータなし。更新スキップ。", nil
	}

	ranked := make([]models.PostMetrics, len(metrics))
	copy(ranked, metrics)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Engagement() > ranked[j].Engagement()
	})

	bestN, worstN := 3, 3
	if len(ranked) < bestN {
		bestN, worstN = len(ranked), len(ranked)
	}

	var findings []string
	if patterns := DetectPatterns(texts(ranked[:bestN])); len(patterns) > 0 {
		findings = append(findings, "勝ちパターン: "+strings.Join(patterns, ", "))
	}
	if patterns := DetectPatterns(texts(ranked[len(ranked)-worstN:])); len(patterns) > 0 {
		findings = append(findings, "負けパターン: "+strings.Join(patterns, ", "))
	}

	note := "特筆事項なし"
	if len(findings) > 0 {
		note = strings.Join(findings, "; ")
	}
	entry := fmt.Sprintf("| %s | 週次分析: %s |", m.now().Format("2006/01/02"), note)

	raw, err := os.ReadFile(m.masterPath)
	if err != nil {
		return "", fmt.Errorf("read master data: %w", err)
	}
	content := string(raw)

	if strings.Contains(content, "## 更新ログ") {
		content = strings.TrimRight(content, " \t\n") + "\n" + entry + "\n"
	} else {
		content += "\n\n## 更新ログ\n\n| 日付 | 更新内容 |\n|---|---|\n" + entry + "\n"
	}
	if err := os.WriteFile(m.masterPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write master data: %w", err)
	}

	summary := "更新内容なし"
	if len(findings) > 0 {
		summary = "マスターデータ更新完了: " + strings.Join(findings, "; ")
	}
	m.log.Info().Str("path", m.masterPath).Msg(summary)
	return summary, nil
}

// DetectPatterns finds shared traits across a group of post texts
func DetectPatterns(texts []string) []string {
	var patterns []string

	hookVotes := map[string]int{}
	for _, text := range texts {
		firstLine := text
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			firstLine = text[:i]
		}
		switch {
		case selfDisclosureHook.MatchString(firstLine):
			hookVotes["自己開示系フック"]++
		case numberHook.MatchString(firstLine):
			hookVotes["数字フック"]++
		case emotionHook.MatchString(firstLine):
			hookVotes["感情フック"]++
		}
	}
	if best := mostCommon(hookVotes); best != "" {
		patterns = append(patterns, "フック:"+best)
	}

	withNumbers := 0
	for _, text := range texts {
		if concreteNumber.MatchString(text) {
			withNumbers++
		}
	}
	if withNumbers >= 2 {
		patterns = append(patterns, "具体的数字あり")
	}

	if len(texts) > 0 {
		total := 0
		for _, text := range texts {
			total += len([]rune(strings.ReplaceAll(text, "\n", "")))
		}
		avg := float64(total) / float64(len(texts))
		if avg < 140 {
			patterns = append(patterns, "短文(〜140字)")
		} else if avg > 220 {
			patterns = append(patterns, "長文(220字+)")
		}
	}
	return patterns
}

func mostCommon(votes map[string]int) string {
	best, bestCount := "", 0
	keys := make([]string, 0, len(votes))
	for k := range votes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if votes[k] > bestCount {
			best, bestCount = k, votes[k]
		}
	}
	return best
}

func texts(metrics []models.PostMetrics) []string {
	out := make([]string, len(metrics))
	for i, m := range metrics {
		out[i] = m.Text
	}
	return out
}
