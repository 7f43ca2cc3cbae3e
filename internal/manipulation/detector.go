// Package manipulation implements the per-token manipulation detector:
// seven independent signals folded into a survival-function confidence,
// plus the per-post quality weighting used to downweight suspicious
// engagement before sentiment aggregation. Grounded on
// original_source/workers/src/processors/manipulation_detector.py, with
// the mutex-protected per-key map idiom taken from the teacher's
// internal/security/rate_limiter.go.
package manipulation

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/toxzak-svg/sentibridge/internal/domain"
)

const (
	baselineWindow    = 24 * time.Hour
	volumeSpikeFactor = 3.0
	similarityThreshold = 0.8
	duplicateThreshold  = 0.6
	clusteringThreshold = 0.85
	newAccountThreshold = 0.5
	burstRatioThreshold = 0.6
	burstWindow         = 300 * time.Second
	maxSimilarityPairs  = 1000
	maxDuplicatePairs   = 500
)

type volumeRecord struct {
	at     time.Time
	volume int
}

// Detector holds per-token volume history across calls; callers create
// one Detector per worker process and reuse it across collection cycles.
type Detector struct {
	mu      sync.Mutex
	history map[string][]volumeRecord
}

func NewDetector() *Detector {
	return &Detector{history: make(map[string][]volumeRecord)}
}

// Analyze scores one token's batch of posts, returning empty flags
// (zero confidence, not suspicious) for an empty batch.
func (d *Detector) Analyze(posts []domain.SocialPost, token string) domain.ManipulationFlags {
	if len(posts) == 0 {
		return domain.ManipulationFlags{}
	}

	var reasons []string
	var adjustments []float64

	volumeAnomaly := d.checkVolumeAnomaly(posts, token)
	if volumeAnomaly {
		reasons = append(reasons, "volume_spike")
		adjustments = append(adjustments, 0.7)
	}

	similarity := checkContentSimilarity(posts)
	if similarity > similarityThreshold {
		reasons = append(reasons, "content_similarity")
		adjustments = append(adjustments, 0.6)
	}

	duplicateRatio := checkDuplicateRatio(posts)
	if duplicateRatio > duplicateThreshold {
		reasons = append(reasons, "duplicate_content")
		adjustments = append(adjustments, 0.55)
	}

	clustering := checkTemporalClustering(posts)
	if clustering > clusteringThreshold {
		reasons = append(reasons, "temporal_clustering")
		adjustments = append(adjustments, 0.7)
	}

	newAccountRatio := checkNewAccounts(posts)
	if newAccountRatio > newAccountThreshold {
		reasons = append(reasons, "new_account_concentration")
		adjustments = append(adjustments, 0.8)
	}

	burst := checkBurstActivity(posts)
	if burst > burstRatioThreshold {
		reasons = append(reasons, "burst_activity")
		adjustments = append(adjustments, 0.65)
	}

	divergence := checkCrossPlatformDivergence(posts)

	confidence := 0.0
	if len(adjustments) > 0 {
		survival := 1.0
		for _, a := range adjustments {
			survival *= 1.0 - a
		}
		confidence = 1.0 - survival
	}

	return domain.ManipulationFlags{
		IsSuspicious:            len(reasons) > 0,
		Reasons:                 reasons,
		Confidence:              confidence,
		VolumeAnomaly:           volumeAnomaly,
		ContentSimilarityScore:  similarity,
		TemporalClusteringScore: clustering,
		NewAccountRatio:         newAccountRatio,
		CrossPlatformDivergence: divergence,
		DuplicateRatio:          duplicateRatio,
		BurstScore:              burst,
	}
}

// checkVolumeAnomaly updates and reads token's history under lock. A
// token with no recorded history yet is anomalous only on a large
// absolute first batch (>=50 posts); otherwise the anomaly is relative
// to the mean volume recorded inside baselineWindow.
func (d *Detector) checkVolumeAnomaly(posts []domain.SocialPost, token string) bool {
	current := len(posts)
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	hist := d.history[token]
	if len(hist) == 0 {
		d.history[token] = append(d.history[token], volumeRecord{now, current})
		return current >= 50
	}

	cutoff := now.Add(-baselineWindow)
	var recent []int
	for _, r := range hist {
		if !r.at.Before(cutoff) {
			recent = append(recent, r.volume)
		}
	}

	baseline := float64(current)
	if len(recent) > 0 {
		sum := 0
		for _, v := range recent {
			sum += v
		}
		baseline = float64(sum) / float64(len(recent))
	}

	hist = append(hist, volumeRecord{now, current})
	kept := hist[:0]
	for _, r := range hist {
		if !r.at.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	d.history[token] = kept

	return float64(current) > baseline*volumeSpikeFactor
}

func ngrams3(text string) map[string]bool {
	text = strings.ToLower(text)
	runes := []rune(text)
	set := make(map[string]bool)
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0.0
	}
	return float64(inter) / float64(union)
}

// checkContentSimilarity samples at most maxSimilarityPairs pairwise
// 3-gram Jaccard comparisons, returning the fraction above
// similarityThreshold.
func checkContentSimilarity(posts []domain.SocialPost) float64 {
	n := len(posts)
	if n < 2 {
		return 0.0
	}

	sets := make([]map[string]bool, n)
	for i, p := range posts {
		sets[i] = ngrams3(p.Text)
	}

	var sims []float64
	totalPairs := n * (n - 1) / 2
	if totalPairs > maxSimilarityPairs {
		for k := 0; k < maxSimilarityPairs; k++ {
			i, j := randomPair(n)
			sims = append(sims, jaccard(sets[i], sets[j]))
		}
	} else {
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				sims = append(sims, jaccard(sets[i], sets[j]))
			}
		}
	}

	if len(sims) == 0 {
		return 0.0
	}
	high := 0
	for _, s := range sims {
		if s > similarityThreshold {
			high++
		}
	}
	return float64(high) / float64(len(sims))
}

func randomPair(n int) (int, int) {
	i := rand.Intn(n)
	j := rand.Intn(n - 1)
	if j >= i {
		j++
	}
	return i, j
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		set[w] = true
	}
	return set
}

// checkDuplicateRatio combines exact-duplicate counts with sampled
// near-duplicate (token-Jaccard) pairs of non-identical texts, normalized
// by batch size.
func checkDuplicateRatio(posts []domain.SocialPost) float64 {
	n := len(posts)
	if n < 2 {
		return 0.0
	}

	texts := make([]string, n)
	counts := make(map[string]int, n)
	for i, p := range posts {
		t := strings.ToLower(strings.TrimSpace(p.Text))
		texts[i] = t
		counts[t]++
	}
	dupCount := 0
	for _, c := range counts {
		if c > 1 {
			dupCount += c - 1
		}
	}

	nearDup := 0
	pairsChecked := 0
outer:
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if pairsChecked >= maxDuplicatePairs {
				break outer
			}
			pairsChecked++
			if texts[i] == texts[j] {
				// already counted as an exact duplicate above
				continue
			}
			if jaccard(tokenSet(texts[i]), tokenSet(texts[j])) > similarityThreshold {
				nearDup++
			}
		}
	}

	ratio := float64(dupCount+nearDup) / float64(n)
	if ratio > 1.0 {
		ratio = 1.0
	}
	return ratio
}

// checkTemporalClustering maps the coefficient of variation of inter-post
// gaps to a suspicion score: highly regular spacing (cv<0.3) is
// suspicious; irregular spacing (cv>2.0) is not.
func checkTemporalClustering(posts []domain.SocialPost) float64 {
	if len(posts) < 5 {
		return 0.0
	}

	sorted := make([]domain.SocialPost, len(posts))
	copy(sorted, posts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Timestamp.Sub(sorted[i-1].Timestamp).Seconds())
	}
	if len(gaps) == 0 {
		return 0.0
	}

	mean := meanF(gaps)
	if mean == 0 {
		return 1.0
	}
	std := math.Sqrt(varianceF(gaps, mean))
	cv := std / mean

	switch {
	case cv < 0.3:
		return 0.9
	case cv < 0.5:
		return 0.6
	case cv > 2.0:
		return 0.4
	default:
		return 0.2
	}
}

func meanF(v []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func varianceF(v []float64, mean float64) float64 {
	sum := 0.0
	for _, x := range v {
		d := x - mean
		sum += d * d
	}
	return sum / float64(len(v))
}

// checkBurstActivity returns the largest fraction of the batch falling
// inside any sliding burstWindow-second window, via a two-pointer sweep
// over sorted timestamps.
func checkBurstActivity(posts []domain.SocialPost) float64 {
	n := len(posts)
	if n < 3 {
		return 0.0
	}
	times := make([]float64, n)
	for i, p := range posts {
		times[i] = float64(p.Timestamp.UnixNano()) / 1e9
	}
	sort.Float64s(times)

	left := 0
	maxFrac := 0.0
	for right := 0; right < n; right++ {
		for times[right]-times[left] > burstWindow.Seconds() {
			left++
		}
		frac := float64(right-left+1) / float64(n)
		if frac > maxFrac {
			maxFrac = frac
		}
	}
	return maxFrac
}

// checkNewAccounts scores 1.0 per post with <50 followers, 0.5 per post
// with unknown follower count and not verified, averaged over the batch.
func checkNewAccounts(posts []domain.SocialPost) float64 {
	if len(posts) == 0 {
		return 0.0
	}
	total := 0.0
	for _, p := range posts {
		if p.AuthorFollowers != nil {
			if *p.AuthorFollowers < 50 {
				total += 1.0
			}
		} else if !p.AuthorVerified {
			total += 0.5
		}
	}
	return total / float64(len(posts))
}

// checkCrossPlatformDivergence compares mean engagement-per-follower
// across source groups; 0 when fewer than two sources are present.
func checkCrossPlatformDivergence(posts []domain.SocialPost) float64 {
	bySource := make(map[domain.Source][]float64)
	for _, p := range posts {
		normalized := 0.0
		if p.AuthorFollowers != nil && *p.AuthorFollowers > 0 {
			normalized = float64(p.EngagementCount) / float64(*p.AuthorFollowers)
		}
		bySource[p.Source] = append(bySource[p.Source], normalized)
	}
	if len(bySource) < 2 {
		return 0.0
	}

	var means []float64
	for _, vals := range bySource {
		means = append(means, meanF(vals))
	}
	maxVal, minVal := means[0], means[0]
	for _, m := range means {
		if m > maxVal {
			maxVal = m
		}
		if m < minVal {
			minVal = m
		}
	}
	if maxVal == 0 {
		return 0.0
	}
	return (maxVal - minVal) / maxVal
}

// QualityWeights computes a per-post weight used to downweight
// low-credibility engagement before sentiment aggregation, normalized so
// the highest weight in the batch is 1.0.
func QualityWeights(posts []domain.SocialPost) map[string]float64 {
	weights := make(map[string]float64, len(posts))
	for _, p := range posts {
		w := 1.0
		if p.AuthorVerified {
			w *= 1.5
		}
		if p.AuthorFollowers != nil {
			switch {
			case *p.AuthorFollowers > 10000:
				w *= 2.0
			case *p.AuthorFollowers > 1000:
				w *= 1.5
			case *p.AuthorFollowers < 100:
				w *= 0.7
			}
		}
		if p.AuthorAccountAgeDays != nil {
			switch {
			case *p.AuthorAccountAgeDays < 30:
				w *= 0.6
			case *p.AuthorAccountAgeDays > 365:
				w *= 1.2
			}
		}
		switch {
		case p.EngagementCount > 100:
			w *= 1.3
		case p.EngagementCount > 10:
			w *= 1.1
		}
		weights[p.PostID] = w
	}

	maxW := 0.0
	for _, w := range weights {
		if w > maxW {
			maxW = w
		}
	}
	if maxW > 0 {
		for k, w := range weights {
			weights[k] = w / maxW
		}
	}
	return weights
}
