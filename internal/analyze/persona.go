package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/xpost-agent/internal/models"
	"github.com/xpost-agent/pkg/logger"
)

// firstPersons are checked in order; the most frequent one wins
var firstPersons = []string{
	"僕", "俺", "私", "自分", "ワイ", "わし", "うち", "あたし", "おれ", "ぼく", "わたし",
}

var emotionWords = []string{
	"マジで", "ガチで", "ガチ", "まじで", "えぐい", "やばい", "ヤバい", "やばくない",
	"最強", "最高", "神", "鬼", "半端ない", "めちゃくちゃ", "めっちゃ", "すごい",
	"凄い", "ありえない", "ありえん", "しんどい", "つらい", "嬉しい", "楽しい",
	"面白い", "おもろい", "怖い", "こわい", "ぶっちゃけ", "正直", "率直に",
	"控えめに言って", "割と", "結構", "かなり", "なかなか", "相当",
	"圧倒的", "激しく", "猛烈に", "劇的に", "爆速", "秒速",
}

type endingPattern struct {
	re    *regexp.Regexp
	label string
}

var endingPatterns = []endingPattern{
	{regexp.MustCompile(`[だよ。]+$`), "だよ。"},
	{regexp.MustCompile(`[だな。]+$`), "だな。"},
	{regexp.MustCompile(`[だね。]+$`), "だね。"},
	{regexp.MustCompile(`[だよね。]+$`), "だよね。"},
	{regexp.MustCompile(`[じゃん。]+$`), "じゃん。"},
	{regexp.MustCompile(`[よな。]+$`), "よな。"},
	{regexp.MustCompile(`[よね。]+$`), "よね。"},
	{regexp.MustCompile(`[けど。]+$`), "けど。"},
	{regexp.MustCompile(`[けどね。]+$`), "けどね。"},
	{regexp.MustCompile(`してる。?$`), "してる。"},
	{regexp.MustCompile(`している。?$`), "している。"},
	{regexp.MustCompile(`と思う。?$`), "と思う。"},
	{regexp.MustCompile(`かもしれない。?$`), "かもしれない。"},
	{regexp.MustCompile(`一択。?$`), "一択。"},
	{regexp.MustCompile(`な気がする。?$`), "な気がする。"},
	{regexp.MustCompile(`[ですね。]+$`), "ですね。"},
	{regexp.MustCompile(`[ですよ。]+$`), "ですよ。"},
	{regexp.MustCompile(`[ますね。]+$`), "ますね。"},
	{regexp.MustCompile(`[ました。]+$`), "ました。"},
	{regexp.MustCompile(`[でした。]+$`), "でした。"},
}

var (
	taigenDomePattern = regexp.MustCompile(`[一-龥ァ-ヶー]+[。．]?\s*$`)
	politeEndPattern  = regexp.MustCompile(`(?m)(です|ます|ました|でした|ません)[。！？!?\s]*$`)
	casualEndPattern  = regexp.MustCompile(`(?m)(だよ|だな|じゃん|よな|してる|してた)[。！？!?\s]*$`)
	segmentSplit      = regexp.MustCompile(`[。\n、！？!?]`)
	jsonBlockPattern  = regexp.MustCompile(`\{[\s\S]*\}`)
)

// StyleLLM is the optional model pass that adds tone, topics and a prompt
// summary on top of the statistical profile.
type StyleLLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// PersonaAnalyzer derives a style profile from an account's tweets. llm may
// be nil, in which case only the statistical analysis runs.
type PersonaAnalyzer struct {
	llm StyleLLM
	rng *rand.Rand
	log *logger.Logger
}

func NewPersonaAnalyzer(llm StyleLLM, log *logger.Logger) *PersonaAnalyzer {
	return &PersonaAnalyzer{
		llm: llm,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		log: log.WithComponent("persona"),
	}
}

// Analyze builds the profile from raw tweet texts. More tweets give better
// estimates; 50-200 is the useful range.
func (a *PersonaAnalyzer) Analyze(ctx context.Context, tweets []string, username string) *models.PersonaProfile {
	profile := &models.PersonaProfile{
		Username:           username,
		TweetCountAnalyzed: len(tweets),
		AnalyzedAt:         time.Now().Format(time.RFC3339),
	}
	if len(tweets) == 0 {
		return profile
	}

	a.analyzeFirstPerson(tweets, profile)
	a.analyzeEndings(tweets, profile)
	a.analyzeEmotionWords(tweets, profile)
	a.analyzeEmoji(tweets, profile)
	a.analyzeStructure(tweets, profile)
	a.analyzePunctuation(tweets, profile)
	a.selectSamples(tweets, profile)

	if a.llm != nil {
		a.aiAnalyze(ctx, tweets, profile)
	}
	return profile
}

func (a *PersonaAnalyzer) analyzeFirstPerson(tweets []string, profile *models.PersonaProfile) {
	counts := map[string]int{}
	for _, tweet := range tweets {
		for _, fp := range firstPersons {
			if strings.Contains(tweet, fp) {
				counts[fp]++
			}
		}
	}
	best, bestCount := "", 0
	for _, fp := range firstPersons {
		if counts[fp] > bestCount {
			best, bestCount = fp, counts[fp]
		}
	}
	profile.FirstPerson = best
}

func (a *PersonaAnalyzer) analyzeEndings(tweets []string, profile *models.PersonaProfile) {
	counts := map[string]int{}
	for _, tweet := range tweets {
		for _, line := range strings.Split(tweet, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if taigenDomePattern.MatchString(line) {
				counts["体言止め"]++
			}
			for _, ep := range endingPatterns {
				if ep.re.MatchString(line) {
					counts[ep.label]++
					break
				}
			}
		}
	}
	profile.SentenceEndings = topN(counts, 10)
}

func (a *PersonaAnalyzer) analyzeEmotionWords(tweets []string, profile *models.PersonaProfile) {
	allText := strings.Join(tweets, " ")
	counts := map[string]int{}
	for _, word := range emotionWords {
		if n := strings.Count(allText, word); n > 0 {
			counts[word] = n
		}
	}
	profile.EmotionWords = topN(counts, 15)

	// Catchphrases: short segments between punctuation that recur 3+ times
	phraseCounts := map[string]int{}
	for _, tweet := range tweets {
		for _, seg := range segmentSplit.Split(tweet, -1) {
			seg = strings.TrimSpace(seg)
			if n := len([]rune(seg)); n >= 4 && n <= 15 {
				phraseCounts[seg]++
			}
		}
	}
	var phrases []string
	for _, phrase := range topN(phraseCounts, 20) {
		if phraseCounts[phrase] >= 3 {
			phrases = append(phrases, phrase)
		}
	}
	if len(phrases) > 10 {
		phrases = phrases[:10]
	}
	profile.Catchphrases = phrases
}

func (a *PersonaAnalyzer) analyzeEmoji(tweets []string, profile *models.PersonaProfile) {
	counts := map[string]int{}
	withEmoji := 0
	for _, tweet := range tweets {
		found := false
		for _, r := range tweet {
			if isEmojiRune(r) {
				found = true
				counts[string(r)]++
			}
		}
		if found {
			withEmoji++
		}
	}
	profile.UsesEmoji = float64(withEmoji) > float64(len(tweets))*0.1
	profile.EmojiFrequency = float64(withEmoji) / float64(len(tweets))
	profile.TopEmojis = topN(counts, 10)
}

func (a *PersonaAnalyzer) analyzeStructure(tweets []string, profile *models.PersonaProfile) {
	totalLen, totalLines, kanji := 0, 0, 0
	for _, tweet := range tweets {
		runes := []rune(tweet)
		totalLen += len(runes)
		totalLines += strings.Count(tweet, "\n") + 1
		for _, r := range runes {
			if r >= 0x4E00 && r <= 0x9FFF {
				kanji++
			}
		}
	}
	n := float64(len(tweets))
	profile.AvgTweetLength = float64(totalLen) / n
	profile.AvgLineCount = float64(totalLines) / n
	if totalLen > 0 {
		profile.KanjiRatio = float64(kanji) / float64(totalLen)
	}
}

func (a *PersonaAnalyzer) analyzePunctuation(tweets []string, profile *models.PersonaProfile) {
	total := len(tweets)
	periods, newlines, taigen := 0, 0, 0
	politeCount, casualCount := 0, 0
	for _, tweet := range tweets {
		periods += strings.Count(tweet, "。")
		newlines += strings.Count(tweet, "\n")
		for _, line := range strings.Split(tweet, "\n") {
			if taigenDomePattern.MatchString(strings.TrimSpace(line)) {
				taigen++
			}
		}
		if politeEndPattern.MatchString(tweet) {
			politeCount++
		}
		if casualEndPattern.MatchString(tweet) {
			casualCount++
		}
	}

	var styles []string
	if float64(periods)/float64(total) < 1.0 {
		styles = append(styles, "句点少なめ")
	} else {
		styles = append(styles, "句点使う")
	}
	if float64(newlines)/float64(total) > 2.0 {
		styles = append(styles, "改行多め")
	}
	if float64(taigen)/float64(total) > 1.0 {
		styles = append(styles, "体言止め多用")
	}
	profile.PunctuationStyle = strings.Join(styles, "、")

	switch {
	case politeCount > casualCount*2:
		profile.FormalityLevel = "敬語ベース"
	case casualCount > politeCount*2:
		profile.FormalityLevel = "タメ口ベース"
	default:
		profile.FormalityLevel = "敬語とタメ口ミックス"
	}
}

// selectSamples keeps structured posts of moderate length for prompt few-shots
func (a *PersonaAnalyzer) selectSamples(tweets []string, profile *models.PersonaProfile) {
	var candidates []string
	for _, t := range tweets {
		n := len([]rune(t))
		if n >= 50 && n <= 250 &&
			strings.Contains(t, "\n") &&
			!strings.HasPrefix(t, "RT ") &&
			!strings.HasPrefix(t, "@") &&
			!strings.Contains(t, "http") {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		for _, t := range tweets {
			n := len([]rune(t))
			if n >= 30 && n <= 280 && !strings.Contains(t, "http") {
				candidates = append(candidates, t)
			}
		}
	}
	a.rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if len(candidates) > 8 {
		candidates = candidates[:8]
	}
	profile.SampleTweets = candidates
}

type styleAnalysis struct {
	Tone          string             `json:"tone"`
	Topics        []string           `json:"topics"`
	ContentTypes  map[string]float64 `json:"content_types"`
	PromptSummary string             `json:"prompt_summary"`
}

func (a *PersonaAnalyzer) aiAnalyze(ctx context.Context, tweets []string, profile *models.PersonaProfile) {
	sample := make([]string, len(tweets))
	copy(sample, tweets)
	a.rng.Shuffle(len(sample), func(i, j int) { sample[i], sample[j] = sample[j], sample[i] })
	if len(sample) > 30 {
		sample = sample[:30]
	}

	prompt := fmt.Sprintf(`以下は@%sのツイート%d件です。
このアカウントの文体・口調・言い回しを徹底分析してください。

━━━━━━━━━━━━
■ 分析対象ツイート
━━━━━━━━━━━━
%s

━━━━━━━━━━━━
■ 分析してほしいこと
━━━━━━━━━━━━

以下のJSON形式で出力してください。余計な説明は不要。

{
  "tone": "トーン（例: カジュアルだが知的、熱量高い、冷静な分析者、etc.）",
  "topics": ["主なトピック1", "主なトピック2", "主なトピック3"],
  "content_types": {
    "意見・主張": 0.3,
    "情報共有": 0.4,
    "実体験報告": 0.2,
    "質問・問いかけ": 0.1
  },
  "prompt_summary": "このアカウントの投稿文を完璧にコピーするために、AIが守るべき文体ルールを200字以内で簡潔にまとめてください。一人称、語尾、改行の使い方、感情表現、避けるべき表現を含めてください。"
}`, profile.Username, len(sample), strings.Join(sample, "\n---\n"))

	raw, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		a.log.Warn().Err(err).Msg("Style analysis LLM pass failed, statistical profile stands")
		return
	}
	block := jsonBlockPattern.FindString(raw)
	if block == "" {
		a.log.Warn().Msg("Style analysis returned no JSON block")
		return
	}
	var result styleAnalysis
	if err := json.Unmarshal([]byte(block), &result); err != nil {
		a.log.Warn().Err(err).Msg("Style analysis JSON did not parse")
		return
	}
	profile.Tone = result.Tone
	profile.Topics = result.Topics
	profile.PromptSummary = result.PromptSummary
	for name := range result.ContentTypes {
		profile.ContentTypes = append(profile.ContentTypes, name)
	}
	sort.Strings(profile.ContentTypes)
}

// topN returns the keys with the highest counts, ties broken alphabetically
// so output stays deterministic.
func topN(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F600 && r <= 0x1F64F,
		r >= 0x1F300 && r <= 0x1F5FF,
		r >= 0x1F680 && r <= 0x1F6FF,
		r >= 0x1F1E0 && r <= 0x1F1FF,
		r >= 0x2702 && r <= 0x27B0,
		r >= 0x1FA00 && r <= 0x1FAFF,
		r >= 0x2600 && r <= 0x26FF:
		return true
	}
	return false
}
