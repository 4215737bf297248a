package ensemble

import (
	"sort"

	"sceneminer/internal/models"
	"sceneminer/internal/processors"
)

type Status string

const (
	StatusAccepted       Status = "accepted"
	StatusBelowThreshold Status = "below_threshold"
	StatusMerged         Status = "merged"
)

// ProcessorVotes is one processor's contribution to a pass. A processor that
// ran successfully but found nothing still appears here with an empty
// candidate list: its weight counts toward the consensus denominator.
type ProcessorVotes struct {
	Processor  string
	Weight     float64
	Candidates []processors.Candidate
}

// Scored is a voted cluster: one description-to-be, or a rejected diagnostic.
type Scored struct {
	Type           models.DescriptionType `json:"type"`
	Text           string                 `json:"text"`
	Position       int                    `json:"position"`
	ConsensusScore float64                `json:"consensus_score"`
	MeanConfidence float64                `json:"mean_confidence"`
	QualityScore   float64                `json:"quality_score"`
	Sources        []string               `json:"sources"`
	Status         Status                 `json:"status"`
}

type Result struct {
	Accepted []Scored `json:"accepted"`
	Rejected []Scored `json:"rejected"`
}

type Options struct {
	ConsensusThreshold float64
	Similarity         SimilarityOptions
}

func DefaultOptions() Options {
	return Options{ConsensusThreshold: 0.6, Similarity: DefaultSimilarity()}
}

type Voter struct {
	opts Options
}

func NewVoter(opts Options) *Voter {
	if opts.ConsensusThreshold == 0 {
		opts.ConsensusThreshold = 0.6
	}
	if opts.Similarity.MinOverlapChars == 0 {
		opts.Similarity = DefaultSimilarity()
	}
	return &Voter{opts: opts}
}

type member struct {
	processor string
	weight    float64
	candidate processors.Candidate
}

type cluster struct {
	members []member
}

// Vote merges candidates from all pass participants via weighted consensus.
// The denominator is the total weight of every processor that voted in the
// pass, so a lone low-weight engine cannot manufacture a high score.
func (v *Voter) Vote(votes []ProcessorVotes) Result {
	totalWeight := 0.0
	members := make([]member, 0, 16)
	for _, pv := range votes {
		totalWeight += pv.Weight
		for _, c := range pv.Candidates {
			members = append(members, member{processor: pv.Processor, weight: pv.Weight, candidate: c})
		}
	}
	if totalWeight <= 0 || len(members) == 0 {
		return Result{}
	}

	clusters := v.clusterMembers(members)

	scored := make([]Scored, 0, len(clusters))
	for _, cl := range clusters {
		scored = append(scored, v.score(cl, totalWeight, len(votes)))
	}
	// highest consensus first; position breaks ties deterministically
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].ConsensusScore != scored[j].ConsensusScore {
			return scored[i].ConsensusScore > scored[j].ConsensusScore
		}
		return scored[i].Position < scored[j].Position
	})

	var res Result
	for _, s := range scored {
		if s.ConsensusScore < v.opts.ConsensusThreshold {
			s.Status = StatusBelowThreshold
			res.Rejected = append(res.Rejected, s)
			continue
		}
		s.Status = StatusAccepted
		res.Accepted = append(res.Accepted, s)
	}

	res.Accepted, res.Rejected = v.dedupAccepted(res.Accepted, res.Rejected)
	sort.SliceStable(res.Accepted, func(i, j int) bool {
		return res.Accepted[i].Position < res.Accepted[j].Position
	})
	return res
}

// clusterMembers greedily groups near-duplicate candidate texts. A member
// joins the first cluster any existing member of which it resembles.
func (v *Voter) clusterMembers(members []member) []*cluster {
	clusters := make([]*cluster, 0, len(members))
outer:
	for _, m := range members {
		for _, cl := range clusters {
			for _, existing := range cl.members {
				if v.opts.Similarity.similar(m.candidate.Text, existing.candidate.Text) {
					cl.members = append(cl.members, m)
					continue outer
				}
			}
		}
		clusters = append(clusters, &cluster{members: []member{m}})
	}
	return clusters
}

func (v *Voter) score(cl *cluster, totalWeight float64, voterCount int) Scored {
	// one vote per processor per cluster: keep its highest-confidence member
	best := map[string]member{}
	for _, m := range cl.members {
		if prev, ok := best[m.processor]; !ok || m.candidate.Confidence > prev.candidate.Confidence {
			best[m.processor] = m
		}
	}

	weighted := 0.0
	confSum := 0.0
	sources := make([]string, 0, len(best))
	var winner member
	for _, m := range best {
		weighted += m.weight * m.candidate.Confidence
		confSum += m.candidate.Confidence
		sources = append(sources, m.processor)
		if winner.processor == "" || betterRepresentative(m, winner) {
			winner = m
		}
	}
	sort.Strings(sources)

	consensus := weighted / totalWeight
	mean := confSum / float64(len(best))
	sourceRatio := float64(len(best)) / float64(voterCount)
	quality := 0.5*consensus + 0.3*sourceRatio + 0.2*mean

	return Scored{
		Type:           clusterType(best),
		Text:           winner.candidate.Text,
		Position:       winner.candidate.Start,
		ConsensusScore: consensus,
		MeanConfidence: mean,
		QualityScore:   quality,
		Sources:        sources,
	}
}

// betterRepresentative prefers the longest member text, then the highest
// confidence, so the emitted description is the most complete quote.
func betterRepresentative(a, b member) bool {
	if len(a.candidate.Text) != len(b.candidate.Text) {
		return len(a.candidate.Text) > len(b.candidate.Text)
	}
	return a.candidate.Confidence > b.candidate.Confidence
}

// clusterType is the weighted type vote across the cluster's members.
func clusterType(best map[string]member) models.DescriptionType {
	scores := map[models.DescriptionType]float64{}
	for _, m := range best {
		scores[m.candidate.Type] += m.weight * m.candidate.Confidence
	}
	winner := models.TypeOther
	top := 0.0
	for _, dt := range []models.DescriptionType{models.TypeLocation, models.TypeCharacter, models.TypeAtmosphere, models.TypeOther} {
		if s, ok := scores[dt]; ok && s > top {
			top = s
			winner = dt
		}
	}
	return winner
}

// dedupAccepted merges accepted clusters that still overlap after independent
// scoring: the higher-scoring one survives and absorbs the other's sources.
func (v *Voter) dedupAccepted(accepted, rejected []Scored) ([]Scored, []Scored) {
	out := make([]Scored, 0, len(accepted))
	for _, s := range accepted {
		mergedInto := -1
		for i := range out {
			if v.opts.Similarity.similar(s.Text, out[i].Text) {
				mergedInto = i
				break
			}
		}
		if mergedInto < 0 {
			out = append(out, s)
			continue
		}
		// accepted is sorted by score, so out[mergedInto] is the keeper
		out[mergedInto].Sources = mergeSources(out[mergedInto].Sources, s.Sources)
		s.Status = StatusMerged
		rejected = append(rejected, s)
	}
	return out, rejected
}

func mergeSources(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
