package analysis

// Example is one curated demonstration text for the demo page and the
// examples endpoint.
type Example struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Text        string `json:"text"`
}

// Examples returns the built-in demonstration texts, one per bias category
// plus one neutral control.
func Examples() []Example {
	return []Example{
		{
			ID:          1,
			Title:       "Gender-coded job posting",
			Description: "A posting leaning on male pronouns and gendered role titles",
			Text: "The chairman announced his new policy today. He emphasized that every " +
				"businessman should man up and take charge, and that his salesman of the " +
				"year sets the example for the boys on the floor.",
		},
		{
			ID:          2,
			Title:       "Stereotype-heavy recruiting copy",
			Description: "Tech recruiting jargon built on mythologized roles and trait stereotypes",
			Text: "We want a rockstar engineer, a true code ninja and data wizard. You are " +
				"aggressive about shipping, never emotional under pressure, and assertive " +
				"in design reviews.",
		},
		{
			ID:          3,
			Title:       "Exclusionary requirements",
			Description: "Credential gatekeeping and institution tier references",
			Text: "We only consider graduates from top-tier universities, ideally with a " +
				"prestigious ivy league background. Candidates must be a native speaker " +
				"with perfect english and a strong culture fit.",
		},
		{
			ID:          4,
			Title:       "Age-biased team description",
			Description: "Capability assumptions keyed to age and generation",
			Text: "Our young, energetic team moves fast, so older developers might struggle " +
				"to keep up with the fast-paced agile environment. Boomer habits and " +
				"outdated workflows don't fit here, millennial mindset preferred.",
		},
		{
			ID:          5,
			Title:       "Neutral announcement",
			Description: "Balanced, inclusive control text that should score zero",
			Text: "The chairperson addressed the press conference. They confirmed that the " +
				"firefighter rescued three families from the blaze, and thanked everyone " +
				"who contributed to the response effort regardless of background.",
		},
	}
}

// ExampleByID returns the example with the given id, if any
func ExampleByID(id int) (Example, bool) {
	for _, ex := range Examples() {
		if ex.ID == id {
			return ex, true
		}
	}
	return Example{}, false
}
