package memory

import (
	"context"

	"ifrs17-training-service/internal/domain"
)

// StaticCatalogLoader serves a fixed catalog (useful for tests/demos and as
// a fallback when no database is configured).
type StaticCatalogLoader struct {
	catalog domain.Catalog
}

func NewStaticCatalogLoader(catalog domain.Catalog) *StaticCatalogLoader {
	return &StaticCatalogLoader{catalog: catalog}
}

func (l *StaticCatalogLoader) LoadCatalog(_ context.Context) (domain.Catalog, error) {
	return l.catalog, nil
}

// DefaultCatalog is the built-in IFRS 17 training content.
func DefaultCatalog() domain.Catalog {
	return domain.Catalog{Modules: []domain.Module{
		{
			ID:    0,
			Title: "IFRS 17 Basics",
			Icon:  "📚",
			Color: "from-blue-500 to-blue-700",
			Questions: []domain.Question{
				{
					Text:        "What does IFRS 17 primarily govern?",
					Options:     []string{"Revenue from contracts with customers", "Insurance contracts", "Financial instruments", "Lease accounting"},
					Correct:     1,
					Explanation: "IFRS 17 establishes principles for the recognition, measurement, presentation and disclosure of insurance contracts.",
				},
				{
					Text:        "Which standard did IFRS 17 replace?",
					Options:     []string{"IFRS 4", "IAS 39", "IFRS 9", "IAS 18"},
					Correct:     0,
					Explanation: "IFRS 17 replaced IFRS 4, the interim standard that had allowed a wide variety of national practices.",
				},
				{
					Text:        "When did IFRS 17 become effective for annual reporting periods?",
					Options:     []string{"1 January 2018", "1 January 2021", "1 January 2023", "1 January 2025"},
					Correct:     2,
					Explanation: "After a one-time deferral the standard applies to annual reporting periods beginning on or after 1 January 2023.",
				},
			},
		},
		{
			ID:    1,
			Title: "Measurement Models",
			Icon:  "📐",
			Color: "from-purple-500 to-purple-700",
			Questions: []domain.Question{
				{
					Text:        "What is the default measurement model under IFRS 17?",
					Options:     []string{"Premium Allocation Approach", "General Measurement Model", "Variable Fee Approach", "Cost model"},
					Correct:     1,
					Explanation: "The General Measurement Model (also called the Building Block Approach) is the default; the PAA and VFA are modifications for specific contract types.",
				},
				{
					Text:        "The Premium Allocation Approach may be used for contracts with a coverage period of at most how long?",
					Options:     []string{"Six months", "One year", "Two years", "Five years"},
					Correct:     1,
					Explanation: "The PAA is permitted for contracts of one year or less, or where it produces a measurement not materially different from the GMM.",
				},
				{
					Text:        "Which contracts qualify for the Variable Fee Approach?",
					Options:     []string{"Reinsurance contracts held", "Contracts measured under the PAA", "Insurance contracts with direct participation features", "All investment contracts"},
					Correct:     2,
					Explanation: "The VFA applies to insurance contracts with direct participation features, where the entity shares in returns on underlying items.",
				},
			},
		},
		{
			ID:    2,
			Title: "Contractual Service Margin",
			Icon:  "💰",
			Color: "from-green-500 to-green-700",
			Questions: []domain.Question{
				{
					Text:        "What does the Contractual Service Margin (CSM) represent?",
					Options:     []string{"Expected claims payments", "Unearned profit to be recognised as services are provided", "The risk adjustment for non-financial risk", "Acquisition cash flows"},
					Correct:     1,
					Explanation: "The CSM is the unearned profit in a group of contracts, released to profit or loss as insurance services are provided.",
				},
				{
					Text:        "What happens when a group of contracts is onerous at initial recognition?",
					Options:     []string{"A negative CSM is recorded", "The loss is deferred over the coverage period", "The loss is recognised immediately in profit or loss", "The contracts are excluded from the standard"},
					Correct:     2,
					Explanation: "The CSM cannot be negative; a loss on onerous contracts is recognised immediately and tracked in a loss component.",
				},
				{
					Text:        "How is the CSM released to profit or loss?",
					Options:     []string{"In proportion to premiums received", "Based on coverage units reflecting services provided", "Evenly over the contract boundary", "At contract derecognition"},
					Correct:     1,
					Explanation: "The CSM is allocated over the coverage period based on coverage units, reflecting the quantity and duration of services.",
				},
			},
		},
		{
			ID:    3,
			Title: "Fulfilment Cash Flows",
			Icon:  "🧮",
			Color: "from-orange-500 to-orange-700",
			Questions: []domain.Question{
				{
					Text:        "Which of the following is NOT a component of fulfilment cash flows?",
					Options:     []string{"Estimates of future cash flows", "Discounting adjustment for the time value of money", "Risk adjustment for non-financial risk", "Contractual Service Margin"},
					Correct:     3,
					Explanation: "Fulfilment cash flows comprise estimated future cash flows, discounting and the risk adjustment; the CSM is a separate building block.",
				},
				{
					Text:        "What does the risk adjustment compensate the entity for?",
					Options:     []string{"Credit risk of reinsurers", "Uncertainty about the amount and timing of cash flows from non-financial risk", "Market risk on underlying items", "Operational expenses"},
					Correct:     1,
					Explanation: "The risk adjustment reflects the compensation the entity requires for bearing uncertainty from non-financial risk such as insurance risk.",
				},
				{
					Text:        "Discount rates under IFRS 17 must reflect what?",
					Options:     []string{"The entity's weighted average cost of capital", "The characteristics of the insurance contract cash flows", "The central bank policy rate", "Historical investment returns"},
					Correct:     1,
					Explanation: "Discount rates must be consistent with observable market prices and reflect the liquidity and currency characteristics of the contract cash flows.",
				},
			},
		},
		{
			ID:    4,
			Title: "Presentation & Disclosure",
			Icon:  "📊",
			Color: "from-pink-500 to-pink-700",
			Questions: []domain.Question{
				{
					Text:        "How is insurance revenue presented under IFRS 17?",
					Options:     []string{"As premiums received in the period", "As the change in the claims liability", "As the services provided in exchange for expected consideration", "It is not presented separately"},
					Correct:     2,
					Explanation: "Insurance revenue depicts the provision of services, excluding any investment components, rather than cash premiums.",
				},
				{
					Text:        "Where may insurance finance income or expenses be presented?",
					Options:     []string{"Only in profit or loss", "Only in other comprehensive income", "In profit or loss, or disaggregated between profit or loss and OCI", "In equity directly"},
					Correct:     2,
					Explanation: "Entities have an accounting policy choice to disaggregate insurance finance income or expenses between profit or loss and OCI.",
				},
				{
					Text:        "Which reconciliation is required in the notes?",
					Options:     []string{"Opening to closing balances of insurance contract liabilities", "Gross premiums to net premiums only", "Solvency capital movements", "Share capital movements"},
					Correct:     0,
					Explanation: "IFRS 17 requires reconciliations of opening to closing balances, separately for the liability for remaining coverage and incurred claims.",
				},
			},
		},
	}}
}
