package analysis

import "sort"

const (
	// weakRiskThreshold marks a category as a risk factor at or above it.
	weakRiskThreshold = 0.6
	// strongRiskThreshold marks a category as a strength at or below it.
	strongRiskThreshold = 0.3

	maxListedFactors   = 3
	maxRecommendations = 5
)

var riskFactorPhrases = map[string]string{
	CategoryAcademic:   "Low academic standing (CGPA below cohort expectations)",
	CategoryEngagement: "Minimal participation in campus events",
	CategoryActivity:   "Extended period of platform inactivity",
	CategoryProfile:    "Largely incomplete profile",
	CategorySocial:     "Few connections within the student network",
}

var strengthPhrases = map[string]string{
	CategoryAcademic:   "Strong academic performance",
	CategoryEngagement: "Active participation in campus events",
	CategoryActivity:   "Consistently active on the platform",
	CategoryProfile:    "Well-maintained profile",
	CategorySocial:     "Healthy network of connections",
}

var categoryRecommendations = map[string]string{
	CategoryAcademic:   "Schedule a session with an academic advisor to review your course load",
	CategoryEngagement: "Register for at least one campus event this week",
	CategoryActivity:   "Log in regularly to keep up with announcements and opportunities",
	CategoryProfile:    "Complete your profile (bio, skills, photo) to improve discoverability",
	CategorySocial:     "Connect with classmates and join interest groups",
}

var levelRecommendations = map[string]string{
	LevelLow:    "Keep up the momentum and explore leadership opportunities",
	LevelMedium: "Set a weekly goal to improve one engagement area",
	LevelHigh:   "Reach out to a student success mentor for a personalized plan",
}

var levelActions = map[string][]string{
	LevelLow: {
		"Maintain your current study routine",
		"Mentor peers who are struggling",
		"Explore leadership roles in clubs and events",
		"Keep your profile up to date",
	},
	LevelMedium: {
		"Set a weekly goal to attend one campus event",
		"Review your study plan with an academic advisor",
		"Update your profile to reflect recent work",
		"Reconnect with classmates on the platform",
	},
	LevelHigh: {
		"Meet with an academic advisor as soon as possible",
		"Start with one small commitment, like attending a single event",
		"Complete the basic sections of your profile",
		"Reach out to a student success mentor",
		"Re-engage with the platform for a few minutes each day",
	},
}

// LevelActions returns the canned action list for a risk level. The second
// return is false for levels other than low, medium, and high.
func LevelActions(level string) ([]string, bool) {
	actions, ok := levelActions[level]
	if !ok {
		return nil, false
	}
	out := make([]string, len(actions))
	copy(out, actions)
	return out, true
}

type categoryEntry struct {
	name string
	risk float64
}

// orderedRisks lists categories in their canonical order, which doubles as
// the tie-break when sorting by sub-score.
func orderedRisks(r CategoryRisks) []categoryEntry {
	return []categoryEntry{
		{CategoryAcademic, r.Academic},
		{CategoryEngagement, r.Engagement},
		{CategoryActivity, r.Activity},
		{CategoryProfile, r.Profile},
		{CategorySocial, r.Social},
	}
}

// riskFactors names the weakest categories, worst first.
func riskFactors(r CategoryRisks) []string {
	entries := orderedRisks(r)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].risk > entries[j].risk })

	factors := make([]string, 0, maxListedFactors)
	for _, e := range entries {
		if e.risk < weakRiskThreshold {
			break
		}
		factors = append(factors, riskFactorPhrases[e.name])
		if len(factors) == maxListedFactors {
			break
		}
	}
	return factors
}

// strengths names the strongest categories, best first.
func strengths(r CategoryRisks) []string {
	entries := orderedRisks(r)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].risk < entries[j].risk })

	out := make([]string, 0, maxListedFactors)
	for _, e := range entries {
		if e.risk > strongRiskThreshold {
			break
		}
		out = append(out, strengthPhrases[e.name])
		if len(out) == maxListedFactors {
			break
		}
	}
	return out
}

// recommendations builds the action list: one entry per weak category in
// descending severity, then the level-generic entry while room remains.
func recommendations(r CategoryRisks, level string) []string {
	entries := orderedRisks(r)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].risk > entries[j].risk })

	recs := make([]string, 0, maxRecommendations)
	for _, e := range entries {
		if e.risk < weakRiskThreshold || len(recs) == maxRecommendations {
			break
		}
		recs = append(recs, categoryRecommendations[e.name])
	}
	if len(recs) < maxRecommendations {
		recs = append(recs, levelRecommendations[level])
	}
	return recs
}
