package analysis

// StudentFeatures is the raw feature payload submitted for a student. Every
// field is optional; an absent field contributes the neutral midpoint to its
// category instead of failing the request, so sparse profiles still score.
type StudentFeatures struct {
	// Display name, carried through to enrichment prompts but never scored.
	Name string `json:"name,omitempty"`

	// Academic: grade point average on a 4-point scale.
	CGPA *float64 `json:"cgpa,omitempty"`

	// Engagement: campus event participation counts.
	EventsAttended  *float64 `json:"events_attended,omitempty"`
	EventsOrganized *float64 `json:"events_organized,omitempty"`

	// Activity: platform recency and direction.
	DaysSinceActivity *float64 `json:"days_since_activity,omitempty"`
	ActivityTrend     *float64 `json:"activity_trend,omitempty"`

	// Profile: either a completion fraction in [0,1] or the section booleans.
	ProfileCompletion *float64 `json:"profile_completion,omitempty"`
	BioFilled         *bool    `json:"bio_filled,omitempty"`
	SkillsFilled      *bool    `json:"skills_filled,omitempty"`
	HasPhoto          *bool    `json:"has_photo,omitempty"`

	// Social: network size and interaction volume.
	Connections  *float64 `json:"connections,omitempty"`
	Followers    *float64 `json:"followers,omitempty"`
	Interactions *float64 `json:"interactions,omitempty"`
}

// neutralRisk is the midpoint contributed by any missing field.
const neutralRisk = 0.5

// scoreableFields is the number of inputs that can move a score. Profile
// completeness counts once whether it arrives as a fraction or as booleans.
const scoreableFields = 9

// Normalize maps raw features to per-category risk sub-scores. Inputs are
// clamped into their documented ranges first, so negative counts read as
// zero and an out-of-scale CGPA reads as the scale boundary.
func (s *Scorer) Normalize(f StudentFeatures) CategoryRisks {
	caps := s.cfg.Caps
	present := 0

	var academic []float64
	if f.CGPA != nil {
		academic = append(academic, inverseRisk(*f.CGPA, caps.CGPAMax))
		present++
	}

	var engagement []float64
	if f.EventsAttended != nil {
		engagement = append(engagement, inverseRisk(*f.EventsAttended, caps.EventsAttended))
		present++
	}
	if f.EventsOrganized != nil {
		engagement = append(engagement, inverseRisk(*f.EventsOrganized, caps.EventsOrganized))
		present++
	}

	var activity []float64
	if f.DaysSinceActivity != nil {
		// More days without activity means more risk, not less.
		activity = append(activity, clip(*f.DaysSinceActivity, 0, caps.InactivityDays)/caps.InactivityDays)
		present++
	}
	if f.ActivityTrend != nil {
		// Trend is -1..1 (declining..improving) and maps to risk 1..0.
		activity = append(activity, (1-clip(*f.ActivityTrend, -1, 1))/2)
		present++
	}

	var profile []float64
	if completion, ok := profileCompletion(f); ok {
		profile = append(profile, 1-completion)
		present++
	}

	var social []float64
	if f.Connections != nil {
		social = append(social, inverseRisk(*f.Connections, caps.Connections))
		present++
	}
	if f.Followers != nil {
		social = append(social, inverseRisk(*f.Followers, caps.Followers))
		present++
	}
	if f.Interactions != nil {
		social = append(social, inverseRisk(*f.Interactions, caps.Interactions))
		present++
	}

	return CategoryRisks{
		Academic:   categoryRisk(academic, 1),
		Engagement: categoryRisk(engagement, 2),
		Activity:   categoryRisk(activity, 2),
		Profile:    categoryRisk(profile, 1),
		Social:     categoryRisk(social, 3),
		Coverage:   float64(present) / scoreableFields,
	}
}

// inverseRisk maps a capped quantity to risk: more of it means less risk.
// Values at or beyond the cap normalize to zero risk.
func inverseRisk(value, limit float64) float64 {
	if limit <= 0 {
		return neutralRisk
	}
	return 1 - clip(value, 0, limit)/limit
}

// categoryRisk averages the present components of a category, counting each
// missing field as the neutral midpoint.
func categoryRisk(components []float64, fields int) float64 {
	sum := 0.0
	for _, c := range components {
		sum += c
	}
	sum += neutralRisk * float64(fields-len(components))
	return sum / float64(fields)
}

// profileCompletion resolves the completion fraction. The explicit fraction
// wins; otherwise the bio/skills/photo booleans each contribute a third, and
// once any of them is supplied the absent ones count as unfilled.
func profileCompletion(f StudentFeatures) (float64, bool) {
	if f.ProfileCompletion != nil {
		return clip(*f.ProfileCompletion, 0, 1), true
	}
	if f.BioFilled == nil && f.SkillsFilled == nil && f.HasPhoto == nil {
		return 0, false
	}
	filled := 0.0
	if f.BioFilled != nil && *f.BioFilled {
		filled++
	}
	if f.SkillsFilled != nil && *f.SkillsFilled {
		filled++
	}
	if f.HasPhoto != nil && *f.HasPhoto {
		filled++
	}
	return filled / 3, true
}
