// Package verification turns heterogeneous evidence into a single
// confidence score and status. Scoring is a pure function of the evidence
// list: no clock, no randomness, and the same input always produces a
// bit-identical result.
package verification

import (
	"sort"

	"github.com/stakeloop/incentive-engine/pkg/models"
)

// Flags attached to a VerificationResult per contributing source.
const (
	FlagMediaEvidence      = "MEDIA_EVIDENCE_PROVIDED"
	FlagThirdPartyVerified = "THIRD_PARTY_VERIFIED"
	FlagIoTVerified        = "IOT_VERIFIED"
	FlagPeerVerified       = "PEER_VERIFIED"
)

// Score weights and status thresholds.
const (
	selfDoneWeight      = 0.4
	selfPartialWeight   = 0.2
	mediaWeight         = 0.2
	thirdPartyWeight    = 0.2
	iotWeight           = 0.15
	peerWeight          = 0.15
	verifiedThreshold   = 0.7
	selfVerifyThreshold = 0.4
)

// Score computes the VerificationResult for an evidence list.
//
// The self-report contributes its base weight once; when several self
// reports exist the most recent in submission order wins. Media presence,
// third-party confidence, IoT presence and peer ratings each add their
// weighted contribution, and the total is capped at 1.0.
func Score(evidence []models.Evidence) models.VerificationResult {
	var (
		score         float64
		selfSeen      bool
		selfScore     models.SelfScore
		mediaSeen     bool
		thirdPartySum float64
		thirdPartyN   int
		iotSeen       bool
		peerRatingSum float64
		peerRatingN   int
	)
	sources := make(map[models.EvidenceKind]bool)

	for _, ev := range evidence {
		sources[ev.Kind] = true
		switch ev.Kind {
		case models.SELF:
			selfSeen = true
			selfScore = ev.SelfScore
		case models.MEDIA:
			mediaSeen = true
		case models.THIRD_PARTY:
			thirdPartySum += ev.Confidence
			thirdPartyN++
		case models.IOT:
			iotSeen = true
		case models.PEER:
			peerRatingSum += float64(ev.PeerRating)
			peerRatingN++
		}
	}

	var flags []string

	if selfSeen {
		switch selfScore {
		case models.SelfDone:
			score += selfDoneWeight
		case models.SelfPartiallyDone:
			score += selfPartialWeight
		}
	}
	if mediaSeen {
		score += mediaWeight
		flags = append(flags, FlagMediaEvidence)
	}
	if thirdPartyN > 0 {
		score += thirdPartyWeight * (thirdPartySum / float64(thirdPartyN))
		flags = append(flags, FlagThirdPartyVerified)
	}
	if iotSeen {
		score += iotWeight
		flags = append(flags, FlagIoTVerified)
	}
	if peerRatingN > 0 {
		score += peerWeight * (peerRatingSum / float64(peerRatingN) / 5.0)
		flags = append(flags, FlagPeerVerified)
	}

	if score > 1.0 {
		score = 1.0
	}

	status := models.UNVERIFIED
	switch {
	case score >= verifiedThreshold:
		status = models.VERIFIED
	case score >= selfVerifyThreshold:
		status = models.SELF_VERIFIED
	}

	sourceList := make([]models.EvidenceKind, 0, len(sources))
	for kind := range sources {
		sourceList = append(sourceList, kind)
	}
	sort.Slice(sourceList, func(i, j int) bool { return sourceList[i] < sourceList[j] })
	sort.Strings(flags)

	return models.VerificationResult{
		Status:  status,
		Score:   score,
		Sources: sourceList,
		Flags:   flags,
	}
}
